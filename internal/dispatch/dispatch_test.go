package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecraft/engine/pkg/clock"
)

func TestParseUses(t *testing.T) {
	cat, action, err := ParseUses("bash/exec")
	require.NoError(t, err)
	assert.Equal(t, CategoryBash, cat)
	assert.Equal(t, "exec", action)

	_, _, err = ParseUses("malformed")
	require.Error(t, err)
}

func TestResolvePlatformOrder(t *testing.T) {
	assert.Equal(t, "python", ResolvePlatform("python", "nodejs", "rust", CategoryPage))
	assert.Equal(t, "nodejs", ResolvePlatform("", "nodejs", "rust", CategoryPage))
	assert.Equal(t, "rust", ResolvePlatform("", "", "rust", CategoryPage))
	assert.Equal(t, "playwright", ResolvePlatform("", "", "", CategoryPage))
	assert.Equal(t, "nodejs", ResolvePlatform("", "", "", CategoryNode))
}

func TestCheckCompatible(t *testing.T) {
	require.NoError(t, CheckCompatible(CategoryPage, "playwright"))
	require.Error(t, CheckCompatible(CategoryPage, "nodejs"))
	require.NoError(t, CheckCompatible(CategoryBash, "anything"))
}

func TestDispatchFailNow(t *testing.T) {
	res := DispatchBuiltin(context.Background(), CategoryFail, "now", map[string]interface{}{"message": "boom"}, nil)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "boom")
}

func TestDispatchWaitMS(t *testing.T) {
	start := time.Now()
	res := DispatchBuiltin(context.Background(), CategoryWait, "ms", map[string]interface{}{"ms": 10}, nil)
	require.NoError(t, res.Err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestDispatchClockSetAndForward(t *testing.T) {
	clk := clock.New()
	res := DispatchBuiltin(context.Background(), CategoryClock, "set",
		map[string]interface{}{"time": "2024-01-15T10:30:00Z"}, clk)
	require.NoError(t, res.Err)

	res = DispatchBuiltin(context.Background(), CategoryClock, "forward",
		map[string]interface{}{"duration": "1h"}, clk)
	require.NoError(t, res.Err)

	expected := time.Date(2024, 1, 15, 11, 30, 0, 0, time.UTC)
	assert.Equal(t, expected, clk.Now())
}

func TestDispatchClockMissingClock(t *testing.T) {
	res := DispatchBuiltin(context.Background(), CategoryClock, "reset", nil, nil)
	require.Error(t, res.Err)
}

func TestDispatchBashExec(t *testing.T) {
	res := DispatchBuiltin(context.Background(), CategoryBash, "exec",
		map[string]interface{}{"command": "echo hello"}, nil)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Outputs["stdout"], "hello")
	assert.Equal(t, 0, res.Outputs["exit_code"])
}

func TestDispatchBashExecNonZeroExit(t *testing.T) {
	res := DispatchBuiltin(context.Background(), CategoryBash, "exec",
		map[string]interface{}{"command": "exit 7"}, nil)
	require.Error(t, res.Err)
	assert.Equal(t, 7, res.Outputs["exit_code"])
}
