package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *ExecutionContext {
	ctx := NewExecutionContext("run-1", map[string]string{"NAME": "world"}, map[string]string{"TOKEN": "shh"})
	ctx.SetStepOutput("login", "status", "ok")
	ctx.SetJobOutput("build", "artifact", "app.bin")
	ctx.CurrentJob = "deploy"
	return ctx
}

func TestSubstituteRoundTrip(t *testing.T) {
	ctx := newTestContext()
	s := "plain string with no markers"
	got, err := Substitute(s, ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSubstituteStringMode(t *testing.T) {
	ctx := newTestContext()
	got, err := Substitute("hello ${{ env.NAME }}, status=${{ steps.login.outputs.status }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello world, status=ok", got)
}

func TestSubstituteUnknownVariable(t *testing.T) {
	ctx := newTestContext()
	_, err := Substitute("${{ env.MISSING }}", ctx)
	require.Error(t, err)
}

func TestSubstituteRunIdentity(t *testing.T) {
	ctx := newTestContext()
	got, err := Substitute("${{ run.id }}/${{ run.job }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1/deploy", got)
}

func TestSubstituteStructuralPreservesTypes(t *testing.T) {
	ctx := newTestContext()
	input := map[string]interface{}{
		"count":   3,
		"name":    "hi ${{ env.NAME }}",
		"nested":  map[string]interface{}{"artifact": "${{ jobs.build.outputs.artifact }}"},
		"list":    []interface{}{1, "${{ env.NAME }}"},
		"emptyM":  map[string]interface{}{},
	}
	out, err := SubstituteStructural(input, ctx)
	require.NoError(t, err)

	m := out.(map[string]interface{})
	assert.Equal(t, 3, m["count"])
	assert.Equal(t, "hi world", m["name"])
	assert.Equal(t, "app.bin", m["nested"].(map[string]interface{})["artifact"])
	assert.Equal(t, []interface{}{1, "world"}, m["list"])
	assert.Equal(t, map[string]interface{}{}, m["emptyM"])
}

func TestConditionSuccessFailureAlways(t *testing.T) {
	e := NewConditionEvaluator()
	ctx := newTestContext()

	ok, err := e.Evaluate("success()", ctx, Outcome{Success: true})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate("failure()", ctx, Outcome{Success: true})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Evaluate("always()", ctx, Outcome{Success: false})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionBareTruthy(t *testing.T) {
	e := NewConditionEvaluator()
	ctx := newTestContext()

	ok, err := e.Evaluate("steps.login.outputs.status", ctx, Outcome{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionEquality(t *testing.T) {
	e := NewConditionEvaluator()
	ctx := newTestContext()

	ok, err := e.Evaluate(`steps.login.outputs.status == "ok"`, ctx, Outcome{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(`steps.login.outputs.status != "ok"`, ctx, Outcome{})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 2, e.CacheSize())
}
