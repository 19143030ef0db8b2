package expression

import (
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// Outcome carries the accumulated job/step success state visible to a
// conditional expression's success()/failure() calls. Per the design note
// resolving this spec's open question, these reflect real runtime state
// rather than being hard-coded.
type Outcome struct {
	Success bool
}

// ConditionEvaluator compiles and caches the two fixed equality programs
// ("==" / "!=") as expr-lang VM programs, mirroring the teacher's
// Evaluator{cache map[string]*vm.Program, mu sync.RWMutex} shape. The
// conditional grammar itself (success()/failure()/always()/bare
// reference/equality) is fixed and small enough to dispatch directly; only
// the equality comparison is delegated to a compiled program, since
// comparing already-resolved sides is a sensible place to reuse expr-lang.
type ConditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewConditionEvaluator returns a ready-to-use evaluator.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{cache: make(map[string]*vm.Program)}
}

func (e *ConditionEvaluator) compile(program string) (*vm.Program, error) {
	e.mu.RLock()
	if p, ok := e.cache[program]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	p, err := expr.Compile(program, expr.Env(map[string]interface{}{"Lhs": "", "Rhs": ""}))
	if err != nil {
		return nil, stageerr.Wrap(stageerr.KindExpression, stageerr.CodeInvalidSyntax,
			"expression.condition", "failed to compile equality program", err)
	}

	e.mu.Lock()
	e.cache[program] = p
	e.mu.Unlock()
	return p, nil
}

// CacheSize returns the number of compiled programs currently cached.
func (e *ConditionEvaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// ClearCache empties the compiled-program cache.
func (e *ConditionEvaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*vm.Program)
}

// Evaluate implements the conditional-expression mini-language of §4.1:
// success()/failure()/always(), a bare reference (truthy check), or an
// equality `<expr> == <expr>` / `<expr> != <expr>` with both sides
// evaluated and compared as quote-stripped strings.
func (e *ConditionEvaluator) Evaluate(raw string, ctx *ExecutionContext, outcome Outcome) (bool, error) {
	trimmed := strings.TrimSpace(raw)

	switch trimmed {
	case "success()":
		return outcome.Success, nil
	case "failure()":
		return !outcome.Success, nil
	case "always()":
		return true, nil
	}

	if op, lhsRaw, rhsRaw, ok := splitEquality(trimmed); ok {
		lhs, err := e.resolveSide(lhsRaw, ctx)
		if err != nil {
			return false, err
		}
		rhs, err := e.resolveSide(rhsRaw, ctx)
		if err != nil {
			return false, err
		}

		program, err := e.compile("Lhs " + op + " Rhs")
		if err != nil {
			return false, err
		}
		out, err := expr.Run(program, map[string]interface{}{"Lhs": lhs, "Rhs": rhs})
		if err != nil {
			return false, stageerr.Wrap(stageerr.KindExpression, stageerr.CodeInvalidSyntax,
				"expression.condition", "failed to run equality program", err)
		}
		b, ok := out.(bool)
		if !ok {
			return false, stageerr.New(stageerr.KindExpression, stageerr.CodeInvalidSyntax,
				"expression.condition", "equality program did not return a boolean")
		}
		return b, nil
	}

	val, err := e.resolveSide(trimmed, ctx)
	if err != nil {
		return false, err
	}
	return isTruthy(val), nil
}

// splitEquality finds a top-level "==" or "!=" in s and returns its
// operator and both sides. It is deliberately naive (no nested-expression
// awareness) since the grammar's sides are simple dot-paths or quoted
// literals, never further equalities.
func splitEquality(s string) (op, lhs, rhs string, ok bool) {
	if idx := strings.Index(s, "=="); idx >= 0 {
		return "==", strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+2:]), true
	}
	if idx := strings.Index(s, "!="); idx >= 0 {
		return "!=", strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+2:]), true
	}
	return "", "", "", false
}

// resolveSide evaluates one side of a bare reference or equality: a quoted
// literal is unquoted verbatim; anything else is treated as a dot-path
// reference into the ExecutionContext.
func (e *ConditionEvaluator) resolveSide(s string, ctx *ExecutionContext) (string, error) {
	if unquoted, ok := stripQuotes(s); ok {
		return unquoted, nil
	}
	return ctx.Lookup(s)
}

func stripQuotes(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return "", false
}

// isTruthy implements the bare-reference truthiness rule of §4.1: truthy
// unless empty, "false", "0", "null", or "none".
func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "", "false", "0", "null", "none":
		return false
	default:
		return true
	}
}
