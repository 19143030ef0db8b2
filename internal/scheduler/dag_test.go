package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecraft/engine/pkg/workflow"
)

func def(name string, needs []string, always bool) *workflow.Definition {
	return &workflow.Definition{
		Name:      name,
		DependsOn: workflow.DependsOn{Workflows: needs, Always: always},
		Jobs:      map[string]workflow.Job{},
	}
}

func TestBuildGraphLinearChain(t *testing.T) {
	defs := []*workflow.Definition{
		def("a", nil, false),
		def("b", []string{"a"}, false),
		def("c", []string{"b"}, false),
	}
	g, err := BuildGraph(defs)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Nodes["a"].Level)
	assert.Equal(t, 1, g.Nodes["b"].Level)
	assert.Equal(t, 2, g.Nodes["c"].Level)
}

func TestBuildGraphDiamond(t *testing.T) {
	defs := []*workflow.Definition{
		def("top", nil, false),
		def("left", []string{"top"}, false),
		def("right", []string{"top"}, false),
		def("bottom", []string{"left", "right"}, false),
	}
	g, err := BuildGraph(defs)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Nodes["top"].Level)
	assert.Equal(t, 1, g.Nodes["left"].Level)
	assert.Equal(t, 1, g.Nodes["right"].Level)
	assert.Equal(t, 2, g.Nodes["bottom"].Level)
}

func TestBuildGraphIndependentNodesAllLevelZero(t *testing.T) {
	defs := []*workflow.Definition{def("a", nil, false), def("b", nil, false)}
	g, err := BuildGraph(defs)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Nodes["a"].Level)
	assert.Equal(t, 0, g.Nodes["b"].Level)
}

func TestBuildGraphRejectsDuplicateName(t *testing.T) {
	defs := []*workflow.Definition{def("a", nil, false), def("a", nil, false)}
	_, err := BuildGraph(defs)
	require.Error(t, err)
}

func TestBuildGraphRejectsMissingDependency(t *testing.T) {
	defs := []*workflow.Definition{def("a", []string{"ghost"}, false)}
	_, err := BuildGraph(defs)
	require.Error(t, err)
}

func TestBuildGraphRejectsCycle(t *testing.T) {
	defs := []*workflow.Definition{
		def("a", []string{"b"}, false),
		def("b", []string{"a"}, false),
	}
	_, err := BuildGraph(defs)
	require.Error(t, err)
}

func TestBuildGraphDeterministic(t *testing.T) {
	defs := []*workflow.Definition{
		def("c", nil, false),
		def("a", nil, false),
		def("b", []string{"a", "c"}, false),
	}
	g1, err := BuildGraph(defs)
	require.NoError(t, err)
	g2, err := BuildGraph(defs)
	require.NoError(t, err)
	assert.Equal(t, g1.Order, g2.Order)
}
