package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	stageerr "github.com/stagecraft/engine/pkg/errors"
	"github.com/stagecraft/engine/pkg/workflow"
)

// ProcessBridge is the generic out-of-process adapter for the language
// platforms (nodejs, python, rust, java, go); the web platform is served by
// HTTPBridge instead. Spawn lifecycle follows the lazy-spawn pattern of an
// MCP stdio client: build argv+env, start the child, wire its stdio to a
// Transport, and keep the *os.Process handle. Close does not use the handle
// to kill the child; it waits for the child to exit.
type ProcessBridge struct {
	UnsupportedBridge

	platform string
	caps     Capabilities
	cmd      *exec.Cmd
	process  *os.Process
	tr       *Transport
}

// NewProcessBridge spawns the child described by cfg and wires up the
// transport. On any failure to spawn or attach stdio, it reports
// StartupFailed and the bridge is not retained (§4.5 spawn contract).
func NewProcessBridge(platform string, cfg workflow.PlatformConfig, caps Capabilities) (*ProcessBridge, error) {
	if cfg.Command == "" {
		return nil, stageerr.New(stageerr.KindConfiguration, stageerr.CodeMissingPlatformConfig,
			"bridge.process.spawn", fmt.Sprintf("platform %q has no command configured", platform))
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	if cfg.WorkingDir != "" {
		cmd.Dir = cfg.WorkingDir
	}
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, startupFailed(platform, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, startupFailed(platform, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, startupFailed(platform, err)
	}

	return &ProcessBridge{
		platform: platform,
		caps:     caps,
		cmd:      cmd,
		process:  cmd.Process,
		tr:       Start(stdin, stdout),
	}, nil
}

func startupFailed(platform string, cause error) error {
	return stageerr.Wrap(stageerr.KindTransport, stageerr.CodeStartupFailed, "bridge.process.spawn",
		fmt.Sprintf("failed to start %s bridge", platform), cause)
}

func (b *ProcessBridge) Capabilities() Capabilities { return b.caps }

// callMethod is "fn.call" for every platform except Java, which exposes
// "method.call" for its reflective method dispatch (§6.3).
func (b *ProcessBridge) callMethod() string {
	if b.platform == string(workflow.PlatformJava) {
		return "method.call"
	}
	return "fn.call"
}

func (b *ProcessBridge) Call(ctx context.Context, name string, args interface{}) (json.RawMessage, error) {
	return b.tr.Call(ctx, b.callMethod(), map[string]interface{}{"name": name, "args": args})
}

func (b *ProcessBridge) CtxGet(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if !b.caps.Context {
		return nil, false, unsupported("bridge.ctx_get")
	}
	result, err := b.tr.Call(ctx, "ctx.get", map[string]interface{}{"key": key})
	if err != nil {
		return nil, false, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, false, nil
	}
	return result, true, nil
}

func (b *ProcessBridge) CtxSet(ctx context.Context, key string, value interface{}) error {
	if !b.caps.Context {
		return unsupported("bridge.ctx_set")
	}
	_, err := b.tr.Call(ctx, "ctx.set", map[string]interface{}{"key": key, "value": value})
	return err
}

func (b *ProcessBridge) CtxClear(ctx context.Context, pattern string) (uint64, error) {
	if !b.caps.Context {
		return 0, unsupported("bridge.ctx_clear")
	}
	result, err := b.tr.Call(ctx, "ctx.clear", map[string]interface{}{"pattern": pattern})
	if err != nil {
		return 0, err
	}
	var count uint64
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, stageerr.Wrap(stageerr.KindTransport, stageerr.CodeServerError, "bridge.ctx_clear",
			"malformed ctx.clear result", err)
	}
	return count, nil
}

func (b *ProcessBridge) MockSet(ctx context.Context, target string, value interface{}) error {
	if !b.caps.Mocking {
		return unsupported("bridge.mock_set")
	}
	_, err := b.tr.Call(ctx, "mock.set", map[string]interface{}{"target": target, "value": value})
	return err
}

func (b *ProcessBridge) MockClear(ctx context.Context) error {
	if !b.caps.Mocking {
		return unsupported("bridge.mock_clear")
	}
	_, err := b.tr.Call(ctx, "mock.clear", map[string]interface{}{})
	return err
}

func (b *ProcessBridge) HookCall(ctx context.Context, name string) error {
	if !b.caps.Hooks {
		return unsupported("bridge.hook_call")
	}
	_, err := b.tr.Call(ctx, "hook.call", map[string]interface{}{"name": name})
	return err
}

func (b *ProcessBridge) AssertCustom(ctx context.Context, name string, params interface{}) (AssertionResult, error) {
	result, err := b.tr.Call(ctx, "assert.custom", map[string]interface{}{"name": name, "params": params})
	if err != nil {
		return AssertionResult{}, err
	}
	var ar AssertionResult
	if err := json.Unmarshal(result, &ar); err != nil {
		return AssertionResult{}, stageerr.Wrap(stageerr.KindTransport, stageerr.CodeServerError, "bridge.assert_custom",
			"malformed assert.custom result", err)
	}
	return ar, nil
}

func (b *ProcessBridge) SetExecutionInfo(ctx context.Context, runID, job, step string) error {
	if !b.caps.Context {
		return unsupported("bridge.set_execution_info")
	}
	_, err := b.tr.Call(ctx, "ctx.setExecutionInfo", map[string]interface{}{
		"run_id": runID, "job": job, "step": step,
	})
	return err
}

func (b *ProcessBridge) SyncStepOutputs(ctx context.Context, stepID string, outputs map[string]string) error {
	if !b.caps.Context {
		return unsupported("bridge.sync_step_outputs")
	}
	_, err := b.tr.Call(ctx, "ctx.syncStepOutputs", map[string]interface{}{
		"step_id": stepID, "outputs": outputs,
	})
	return err
}

func (b *ProcessBridge) SyncClock(ctx context.Context, state interface{}) error {
	if !b.caps.Clock {
		return unsupported("bridge.sync_clock")
	}
	_, err := b.tr.Call(ctx, "clock.sync", state)
	return err
}

// Close shuts down the transport gracefully, then waits for the child to
// exit. It never kills the child: a child that does not exit on its own
// after stdin EOF keeps Close blocked.
func (b *ProcessBridge) Close() error {
	b.tr.Close()
	err := b.cmd.Wait()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// A child exiting non-zero after a deliberate shutdown is not
			// itself a transport error.
			return nil
		}
	}
	return err
}

var _ io.Closer = (*ProcessBridge)(nil)
