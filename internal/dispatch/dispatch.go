// Package dispatch implements the Action Dispatcher (C6): parsing `uses`
// into category/action, resolving the platform a step runs on, checking
// compatibility, and handling the platform-agnostic built-in actions
// directly.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/stagecraft/engine/pkg/clock"
	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// Category is the left half of `uses`.
type Category string

const (
	CategoryPage    Category = "page"
	CategoryElement Category = "element"
	CategoryAssert  Category = "assert"
	CategoryWait    Category = "wait"
	CategoryBrowser Category = "browser"
	CategoryNetwork Category = "network"
	CategoryNode    Category = "node"
	CategoryCtx     Category = "ctx"
	CategoryMock    Category = "mock"
	CategoryHook    Category = "hook"
	CategoryRust    Category = "rs"
	CategoryPython  Category = "py"
	CategoryJava    Category = "java"
	CategoryGo      Category = "go"
	CategoryWeb     Category = "web"
	CategoryFail    Category = "fail"
	CategoryClock   Category = "clock"
	CategoryBash    Category = "bash"
)

// categoryPlatform maps a category to the platform it requires. Categories
// absent from this map are platform-agnostic.
var categoryPlatform = map[Category]string{
	CategoryPage:    "playwright",
	CategoryElement: "playwright",
	CategoryBrowser: "playwright",
	CategoryNetwork: "playwright",
	CategoryNode:    "nodejs",
	CategoryCtx:     "nodejs",
	CategoryMock:    "nodejs",
	CategoryHook:    "nodejs",
	CategoryRust:    "rust",
	CategoryPython:  "python",
	CategoryJava:    "java",
	CategoryGo:      "go",
	CategoryWeb:     "web",
}

// platformAgnostic is the set of categories dispatched directly without
// resolving a platform bridge.
var platformAgnostic = map[Category]bool{
	CategoryAssert: true,
	CategoryWait:   true,
	CategoryFail:   true,
	CategoryClock:  true,
	CategoryBash:   true,
}

// ParseUses splits `uses` into its category and action halves.
func ParseUses(uses string) (Category, string, error) {
	category, action, ok := strings.Cut(uses, "/")
	if !ok || category == "" || action == "" {
		return "", "", stageerr.New(stageerr.KindSchema, stageerr.CodeUnknownAction, "dispatch.parse_uses",
			fmt.Sprintf("malformed 'uses' value: %q, expected category/action", uses))
	}
	return Category(category), action, nil
}

// IsPlatformAgnostic reports whether a category dispatches without a
// resolved platform bridge.
func IsPlatformAgnostic(c Category) bool {
	return platformAgnostic[c]
}

// InferredPlatform returns the platform a category requires, or "" if the
// category is platform-agnostic (and thus has none).
func InferredPlatform(c Category) string {
	return categoryPlatform[c]
}

// ResolvePlatform implements the resolution order of §4.6: step.platform →
// job.platform → workflow.platform → category's inferred platform →
// browser ("playwright") as last-ditch default.
func ResolvePlatform(stepPlatform, jobPlatform, workflowPlatform string, category Category) string {
	if stepPlatform != "" {
		return stepPlatform
	}
	if jobPlatform != "" {
		return jobPlatform
	}
	if workflowPlatform != "" {
		return workflowPlatform
	}
	if p := InferredPlatform(category); p != "" {
		return p
	}
	return "playwright"
}

// CheckCompatible enforces §4.6: a step's action is compatible with
// platform P iff the category requires P, or the category is
// platform-agnostic.
func CheckCompatible(category Category, platform string) error {
	if platformAgnostic[category] {
		return nil
	}
	if required := categoryPlatform[category]; required == platform {
		return nil
	}
	return stageerr.New(stageerr.KindSchema, stageerr.CodePlatformMismatch, "dispatch.check_compatible",
		fmt.Sprintf("category %q is not compatible with platform %q", category, platform))
}

// BuiltinResult is the outcome of a platform-agnostic built-in dispatch.
type BuiltinResult struct {
	Outputs map[string]interface{}
	Err     error
}

// DispatchBuiltin handles the platform-agnostic categories directly (§4.6):
// wait/*, fail/now, clock/*, bash/exec. clk is nil-able; clock/*
// actions fail with MissingContext if no clock is available.
func DispatchBuiltin(ctx context.Context, category Category, action string, with map[string]interface{}, clk *clock.Clock) BuiltinResult {
	switch category {
	case CategoryWait:
		return dispatchWait(ctx, action, with)
	case CategoryFail:
		return dispatchFail(action, with)
	case CategoryClock:
		return dispatchClock(action, with, clk)
	case CategoryBash:
		return dispatchBash(ctx, with)
	default:
		return BuiltinResult{Err: stageerr.New(stageerr.KindSchema, stageerr.CodeUnknownAction,
			"dispatch.builtin", fmt.Sprintf("category %q has no built-in dispatch", category))}
	}
}

func dispatchWait(ctx context.Context, action string, with map[string]interface{}) BuiltinResult {
	switch action {
	case "ms", "timeout", "delay":
	default:
		return BuiltinResult{Err: stageerr.New(stageerr.KindSchema, stageerr.CodeUnknownAction,
			"dispatch.wait", fmt.Sprintf("unknown wait action: %s", action))}
	}

	ms, err := numericParam(with, "ms", "duration")
	if err != nil {
		return BuiltinResult{Err: err}
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return BuiltinResult{Outputs: map[string]interface{}{"waited_ms": ms}}
	case <-ctx.Done():
		return BuiltinResult{Err: ctx.Err()}
	}
}

func dispatchFail(action string, with map[string]interface{}) BuiltinResult {
	if action != "now" {
		return BuiltinResult{Err: stageerr.New(stageerr.KindSchema, stageerr.CodeUnknownAction,
			"dispatch.fail", fmt.Sprintf("unknown fail action: %s", action))}
	}
	message, _ := with["message"].(string)
	if message == "" {
		message = "fail/now"
	}
	return BuiltinResult{Err: stageerr.New(stageerr.KindRuntime, stageerr.CodeStepFailed, "dispatch.fail", message)}
}

func dispatchClock(action string, with map[string]interface{}, clk *clock.Clock) BuiltinResult {
	if clk == nil {
		return BuiltinResult{Err: stageerr.New(stageerr.KindExpression, stageerr.CodeMissingContext,
			"dispatch.clock", "no clock available for this run")}
	}

	switch action {
	case "set":
		s, _ := with["time"].(string)
		t, err := clock.ParseTime(s)
		if err != nil {
			return BuiltinResult{Err: err}
		}
		clk.Set(t)

	case "forward":
		s, _ := with["duration"].(string)
		d, err := clock.ParseDuration(s)
		if err != nil {
			return BuiltinResult{Err: err}
		}
		clk.Forward(d)

	case "forward-until":
		s, _ := with["time"].(string)
		t, err := clock.ParseTime(s)
		if err != nil {
			return BuiltinResult{Err: err}
		}
		if err := clk.ForwardUntil(t); err != nil {
			return BuiltinResult{Err: err}
		}

	case "timezone":
		s, _ := with["timezone"].(string)
		if err := clk.SetTimezoneName(s); err != nil {
			return BuiltinResult{Err: err}
		}

	case "reset":
		clk.Reset()

	default:
		return BuiltinResult{Err: stageerr.New(stageerr.KindSchema, stageerr.CodeUnknownAction,
			"dispatch.clock", fmt.Sprintf("unknown clock action: %s", action))}
	}

	state := clk.GetSyncState()
	return BuiltinResult{Outputs: map[string]interface{}{"sync_state": state}}
}

func dispatchBash(ctx context.Context, with map[string]interface{}) BuiltinResult {
	command, _ := with["command"].(string)
	script, _ := with["script"].(string)
	if command == "" && script == "" {
		return BuiltinResult{Err: stageerr.New(stageerr.KindSchema, stageerr.CodeMissingParameter,
			"dispatch.bash", "bash/exec requires 'command' or 'script'")}
	}

	var cmd *exec.Cmd
	if command != "" {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	} else {
		args, _ := with["args"].([]interface{})
		argv := make([]string, 0, len(args))
		for _, a := range args {
			argv = append(argv, fmt.Sprintf("%v", a))
		}
		cmd = exec.CommandContext(ctx, "bash", append([]string{script}, argv...)...)
	}

	if wd, _ := with["working_dir"].(string); wd != "" {
		cmd.Dir = wd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return BuiltinResult{Err: stageerr.Wrap(stageerr.KindRuntime, stageerr.CodeStepFailed,
				"dispatch.bash", "failed to run command", runErr)}
		}
	}

	outputs := map[string]interface{}{
		"stdout":      stdout.String(),
		"stderr":      stderr.String(),
		"exit_code":   exitCode,
		"duration_ms": duration.Milliseconds(),
	}

	if exitCode != 0 {
		return BuiltinResult{
			Outputs: outputs,
			Err: stageerr.New(stageerr.KindRuntime, stageerr.CodeStepFailed, "dispatch.bash",
				fmt.Sprintf("command exited with code %d", exitCode)),
		}
	}
	return BuiltinResult{Outputs: outputs}
}

func numericParam(with map[string]interface{}, keys ...string) (int64, error) {
	for _, k := range keys {
		v, ok := with[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return 0, stageerr.New(stageerr.KindSchema, stageerr.CodeInvalidParameter,
					"dispatch.numeric_param", fmt.Sprintf("invalid numeric value for %q: %s", k, n))
			}
			return parsed, nil
		}
	}
	return 0, stageerr.New(stageerr.KindSchema, stageerr.CodeMissingParameter,
		"dispatch.numeric_param", fmt.Sprintf("missing one of %v", keys))
}
