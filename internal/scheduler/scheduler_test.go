package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecraft/engine/pkg/workflow"
)

func succeedingDef(name string, needs []string, always bool) *workflow.Definition {
	d := def(name, needs, always)
	d.Jobs = map[string]workflow.Job{
		"main": {Name: "main", Steps: []workflow.Step{{ID: "s1", Uses: "bash/exec", With: map[string]interface{}{"command": "true"}}}},
	}
	return d
}

func failingDef(name string, needs []string, always bool) *workflow.Definition {
	d := def(name, needs, always)
	d.Jobs = map[string]workflow.Job{
		"main": {Name: "main", Steps: []workflow.Step{{ID: "s1", Uses: "fail/now", With: map[string]interface{}{"message": "boom"}}}},
	}
	return d
}

func TestSchedulerLinearChainAllSucceed(t *testing.T) {
	defs := []*workflow.Definition{
		succeedingDef("a", nil, false),
		succeedingDef("b", []string{"a"}, false),
		succeedingDef("c", []string{"b"}, false),
	}
	g, err := BuildGraph(defs)
	require.NoError(t, err)

	sched := New(g, RunOptions{MaxConcurrent: 4})
	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Results["a"].Success)
	assert.True(t, result.Results["b"].Success)
	assert.True(t, result.Results["c"].Success)
	assert.Empty(t, result.Skipped)
}

func TestSchedulerDiamondBottomWaitsForBoth(t *testing.T) {
	defs := []*workflow.Definition{
		succeedingDef("top", nil, false),
		succeedingDef("left", []string{"top"}, false),
		succeedingDef("right", []string{"top"}, false),
		succeedingDef("bottom", []string{"left", "right"}, false),
	}
	g, err := BuildGraph(defs)
	require.NoError(t, err)

	sched := New(g, RunOptions{MaxConcurrent: 2})
	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	for _, name := range []string{"top", "left", "right", "bottom"} {
		assert.True(t, result.Results[name].Success, name)
	}
}

func TestSchedulerFailureCascadesSkip(t *testing.T) {
	defs := []*workflow.Definition{
		failingDef("fail", nil, false),
		succeedingDef("a", []string{"fail"}, false),
		succeedingDef("b", []string{"a"}, false),
		succeedingDef("c", []string{"b"}, false),
	}
	g, err := BuildGraph(defs)
	require.NoError(t, err)

	sched := New(g, RunOptions{MaxConcurrent: 4})
	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.Results["fail"].Success)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, result.Skipped)
}

func TestSchedulerAlwaysOverrideRunsDespiteDependencyFailure(t *testing.T) {
	defs := []*workflow.Definition{
		failingDef("fail", nil, false),
		succeedingDef("cleanup", []string{"fail"}, true),
	}
	g, err := BuildGraph(defs)
	require.NoError(t, err)

	sched := New(g, RunOptions{MaxConcurrent: 4})
	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Results["fail"].Success)
	assert.True(t, result.Results["cleanup"].Success)
	assert.NotContains(t, result.Skipped, "cleanup")
}

func TestSchedulerFailFastStillRunsAlwaysNode(t *testing.T) {
	defs := []*workflow.Definition{
		failingDef("fail", nil, false),
		succeedingDef("unrelated", nil, false),
		succeedingDef("always-node", nil, true),
	}
	g, err := BuildGraph(defs)
	require.NoError(t, err)

	sched := New(g, RunOptions{MaxConcurrent: 1, FailFast: true})
	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	_, alwaysRan := result.Results["always-node"]
	assert.True(t, alwaysRan)
}

func TestSchedulerFilterExcludesNonMatchingWorkflows(t *testing.T) {
	defs := []*workflow.Definition{
		succeedingDef("smoke-login", nil, false),
		succeedingDef("regression-checkout", nil, false),
	}
	g, err := BuildGraph(defs)
	require.NoError(t, err)

	sched := New(g, RunOptions{MaxConcurrent: 4, Filter: []string{"smoke-*"}})
	result, err := sched.Run(context.Background())
	require.NoError(t, err)
	_, ranSmoke := result.Results["smoke-login"]
	assert.True(t, ranSmoke)
	assert.Empty(t, result.Results["regression-checkout"].Jobs)
}
