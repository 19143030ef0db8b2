package bridge

import (
	"context"
	"encoding/json"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// Capabilities declares which of the uniform operations a bridge supports
// (§4.5). Adding a platform is writing one value satisfying this shape, not
// extending a branching ladder (§9 "bridge as capability set").
type Capabilities struct {
	Context bool
	Hooks   bool
	Mocking bool
	Clock   bool
}

// AssertionResult is the shape returned by assert_custom (§4.5).
type AssertionResult struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message,omitempty"`
	Actual   interface{} `json:"actual,omitempty"`
	Expected interface{} `json:"expected,omitempty"`
}

// Bridge is the uniform operation set every platform adapter exposes.
// Implementations that don't support an operation embed UnsupportedBridge
// to get UnsupportedAction errors for free rather than hand-writing each
// stub.
type Bridge interface {
	Capabilities() Capabilities

	Call(ctx context.Context, name string, args interface{}) (json.RawMessage, error)
	CtxGet(ctx context.Context, key string) (json.RawMessage, bool, error)
	CtxSet(ctx context.Context, key string, value interface{}) error
	CtxClear(ctx context.Context, pattern string) (uint64, error)
	MockSet(ctx context.Context, target string, value interface{}) error
	MockClear(ctx context.Context) error
	HookCall(ctx context.Context, name string) error
	AssertCustom(ctx context.Context, name string, params interface{}) (AssertionResult, error)
	SetExecutionInfo(ctx context.Context, runID, job, step string) error
	SyncStepOutputs(ctx context.Context, stepID string, outputs map[string]string) error
	SyncClock(ctx context.Context, state interface{}) error

	Close() error
}

// UnsupportedBridge is embedded by adapters to default every operation to
// UnsupportedAction, matching §4.5's "unsupported operations return an
// UnsupportedAction error rather than a silent success" contract.
type UnsupportedBridge struct{}

func unsupported(op string) error {
	return stageerr.New(stageerr.KindTransport, stageerr.CodeUnsupportedAction, op,
		"operation not supported by this bridge")
}

func (UnsupportedBridge) CtxGet(context.Context, string) (json.RawMessage, bool, error) {
	return nil, false, unsupported("bridge.ctx_get")
}
func (UnsupportedBridge) CtxSet(context.Context, string, interface{}) error {
	return unsupported("bridge.ctx_set")
}
func (UnsupportedBridge) CtxClear(context.Context, string) (uint64, error) {
	return 0, unsupported("bridge.ctx_clear")
}
func (UnsupportedBridge) MockSet(context.Context, string, interface{}) error {
	return unsupported("bridge.mock_set")
}
func (UnsupportedBridge) MockClear(context.Context) error {
	return unsupported("bridge.mock_clear")
}
func (UnsupportedBridge) HookCall(context.Context, string) error {
	return unsupported("bridge.hook_call")
}
func (UnsupportedBridge) AssertCustom(context.Context, string, interface{}) (AssertionResult, error) {
	return AssertionResult{}, unsupported("bridge.assert_custom")
}
func (UnsupportedBridge) SetExecutionInfo(context.Context, string, string, string) error {
	return unsupported("bridge.set_execution_info")
}
func (UnsupportedBridge) SyncStepOutputs(context.Context, string, map[string]string) error {
	return unsupported("bridge.sync_step_outputs")
}
func (UnsupportedBridge) SyncClock(context.Context, interface{}) error {
	return unsupported("bridge.sync_clock")
}
