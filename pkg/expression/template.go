package expression

import (
	"encoding/json"
	"regexp"
	"strings"
)

// refPattern matches `${{ <expr> }}` substrings, mirroring the teacher's
// single `{{...}}` preprocessing regex generalized to the engine's
// three-character delimiter.
var refPattern = regexp.MustCompile(`\$\{\{\s*([^}]+?)\s*\}\}`)

// Substitute implements string-mode evaluation (§4.1): every `${{ expr }}`
// occurrence in s is replaced by the string form of its looked-up value.
// Multiple expressions in one string are independent. A string containing
// no `${{` is returned unchanged (the expression round-trip property).
func Substitute(s string, ctx *ExecutionContext) (string, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}

	var firstErr error
	result := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := refPattern.FindStringSubmatch(match)
		expr := strings.TrimSpace(sub[1])
		val, err := ctx.Lookup(expr)
		if err != nil {
			firstErr = err
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// SubstituteStructural implements structural-JSON-mode evaluation (§4.1):
// scalars, sequences, and mappings are recursively converted to their JSON
// analogue; string leaves are interpolated in place. When an entire string
// leaf is exactly one `${{ expr }}` reference, the resolved value is
// reparsed as JSON so that numeric/boolean/object results keep their
// native type instead of being forced to a string; otherwise the leaf is
// string-substituted in place. Non-string scalars, empty mappings, and
// empty sequences pass through unchanged.
func SubstituteStructural(v interface{}, ctx *ExecutionContext) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return substituteStructuralString(val, ctx)

	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			resolved, err := SubstituteStructural(item, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			resolved, err := SubstituteStructural(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return v, nil
	}
}

func substituteStructuralString(s string, ctx *ExecutionContext) (interface{}, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}

	if m := wholeExprPattern.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		val, err := ctx.Lookup(strings.TrimSpace(m[1]))
		if err != nil {
			return nil, err
		}
		var jsonVal interface{}
		if err := json.Unmarshal([]byte(val), &jsonVal); err == nil {
			return jsonVal, nil
		}
		return val, nil
	}

	return Substitute(s, ctx)
}

// wholeExprPattern matches a string that is nothing but a single `${{ ... }}`
// reference, with no surrounding text.
var wholeExprPattern = regexp.MustCompile(`^\$\{\{\s*([^}]+?)\s*\}\}$`)
