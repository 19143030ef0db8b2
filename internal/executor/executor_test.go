package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecraft/engine/pkg/workflow"
)

func newDef(name string, jobs map[string]workflow.Job) *workflow.Definition {
	return &workflow.Definition{Name: name, Jobs: jobs}
}

func TestExecutorRunsJobsInTopoOrderAndRecordsOutputs(t *testing.T) {
	def := newDef("order-test", map[string]workflow.Job{
		"b": {
			Name:  "b",
			Needs: []string{"a"},
			Steps: []workflow.Step{{ID: "s1", Uses: "bash/exec", With: map[string]interface{}{"command": "echo second"}}},
		},
		"a": {
			Name:  "a",
			Steps: []workflow.Step{{ID: "s1", Uses: "bash/exec", With: map[string]interface{}{"command": "echo first"}}},
		},
	})

	ex := New(def, nil, "run-1", nil, nil, nil, nil)
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Jobs["a"].Steps["s1"].Outputs["stdout"], "first")
	assert.Contains(t, result.Jobs["b"].Steps["s1"].Outputs["stdout"], "second")
}

func TestExecutorStepFailureStopsJobWithoutContinueOnError(t *testing.T) {
	def := newDef("fail-stop", map[string]workflow.Job{
		"j": {
			Name: "j",
			Steps: []workflow.Step{
				{ID: "s1", Uses: "fail/now", With: map[string]interface{}{"message": "boom"}},
				{ID: "s2", Uses: "bash/exec", With: map[string]interface{}{"command": "echo never"}},
			},
		},
	})

	ex := New(def, nil, "run-2", nil, nil, nil, nil)
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.Jobs["j"].Success)
	_, ranSecond := result.Jobs["j"].Steps["s2"]
	assert.False(t, ranSecond)
}

func TestExecutorContinueOnErrorRunsRemainingSteps(t *testing.T) {
	def := newDef("continue", map[string]workflow.Job{
		"j": {
			Name: "j",
			Steps: []workflow.Step{
				{ID: "s1", Uses: "fail/now", ContinueOnError: true, With: map[string]interface{}{"message": "boom"}},
				{ID: "s2", Uses: "bash/exec", With: map[string]interface{}{"command": "echo still-runs"}},
			},
		},
	})

	ex := New(def, nil, "run-3", nil, nil, nil, nil)
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Jobs["j"].Success)
	assert.Contains(t, result.Jobs["j"].Steps["s2"].Outputs["stdout"], "still-runs")
}

func TestExecutorDependencyFailureSkipsDependent(t *testing.T) {
	def := newDef("dep-fail", map[string]workflow.Job{
		"a": {
			Name:  "a",
			Steps: []workflow.Step{{ID: "s1", Uses: "fail/now", With: map[string]interface{}{"message": "boom"}}},
		},
		"b": {
			Name:  "b",
			Needs: []string{"a"},
			Steps: []workflow.Step{{ID: "s1", Uses: "bash/exec", With: map[string]interface{}{"command": "echo should-not-run"}}},
		},
	})

	ex := New(def, nil, "run-4", nil, nil, nil, nil)
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.Jobs["a"].Success)
	assert.False(t, result.Jobs["b"].Success)
	assert.Empty(t, result.Jobs["b"].Steps)
}

func TestExecutorJobIfFalseSkipsSilently(t *testing.T) {
	def := newDef("if-skip", map[string]workflow.Job{
		"j": {
			Name: "j",
			If:   "\"a\" == \"b\"",
			Steps: []workflow.Step{{ID: "s1", Uses: "bash/exec", With: map[string]interface{}{"command": "echo nope"}}},
		},
	})

	ex := New(def, nil, "run-5", nil, nil, nil, nil)
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	_, ran := result.Jobs["j"]
	assert.False(t, ran)
}

func TestExecutorContinueOnErrorJobRunsAfterDependencyFailure(t *testing.T) {
	def := newDef("continue-job", map[string]workflow.Job{
		"fail": {
			Name:  "fail",
			Steps: []workflow.Step{{ID: "s1", Uses: "fail/now", With: map[string]interface{}{"message": "boom"}}},
		},
		"cleanup": {
			Name:            "cleanup",
			Needs:           []string{"fail"},
			ContinueOnError: true,
			Steps:           []workflow.Step{{ID: "s1", Uses: "bash/exec", With: map[string]interface{}{"command": "echo cleaned"}}},
		},
	})

	ex := New(def, nil, "run-6", nil, nil, nil, nil)
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Jobs["cleanup"].Success)
	assert.Contains(t, result.Jobs["cleanup"].Steps["s1"].Outputs["stdout"], "cleaned")
}

func TestExecutorCircularJobDependencyReturnsError(t *testing.T) {
	def := newDef("circular", map[string]workflow.Job{
		"a": {Name: "a", Needs: []string{"a"}},
	})

	ex := New(def, nil, "run-7", nil, nil, nil, nil)
	_, err := ex.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestExecutorBeforeHookFailureAbortsRun(t *testing.T) {
	def := &workflow.Definition{
		Name:   "before-fail",
		Before: []workflow.Step{{ID: "setup", Uses: "fail/now", With: map[string]interface{}{"message": "setup failed"}}},
		Jobs: map[string]workflow.Job{
			"j": {
				Name:  "j",
				Steps: []workflow.Step{{ID: "s1", Uses: "bash/exec", With: map[string]interface{}{"command": "echo never"}}},
			},
		},
	}

	ex := New(def, nil, "run-8", nil, nil, nil, nil)
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.Jobs)
}

func TestExecutorClockSetAndForwardReflectedInOutputs(t *testing.T) {
	def := newDef("clock", map[string]workflow.Job{
		"j": {
			Name: "j",
			Steps: []workflow.Step{
				{ID: "set", Uses: "clock/set", With: map[string]interface{}{"time": "2024-01-15T10:30:00Z"}},
				{ID: "fwd", Uses: "clock/forward", With: map[string]interface{}{"duration": "1h"}},
			},
		},
	})

	ex := New(def, nil, "run-9", nil, nil, nil, nil)
	result, err := ex.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Jobs["j"].Steps["fwd"].Outputs["sync_state"])
}
