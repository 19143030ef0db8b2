// Package scheduler implements the Workflow DAG Scheduler (C8): building the
// inter-workflow dependency graph from a directory of workflows and running
// it with eager, level-unaware parallel dispatch.
package scheduler

import (
	"fmt"
	"sort"

	stageerr "github.com/stagecraft/engine/pkg/errors"
	"github.com/stagecraft/engine/pkg/workflow"
)

// Node is one workflow's position in the dependency graph.
type Node struct {
	Name      string
	Needs     []string
	Always    bool
	Level     int
	Def       *workflow.Definition
}

// Graph is the level-decomposed dependency graph of a directory of
// workflows (§4.8 "Build").
type Graph struct {
	Nodes map[string]*Node
	Order []string // topological order, levels concatenated
}

// BuildGraph rejects duplicate names and dangling dependencies, then runs
// Kahn's algorithm to produce the level decomposition: level 0 is every
// zero-in-degree node sorted by name, decrementing in-degrees of their
// dependents yields level 1, and so on. A node left unprocessed after the
// pass means the graph has a cycle.
func BuildGraph(defs []*workflow.Definition) (*Graph, error) {
	nodes := make(map[string]*Node, len(defs))
	for _, def := range defs {
		if _, dup := nodes[def.Name]; dup {
			return nil, stageerr.New(stageerr.KindGraph, stageerr.CodeDuplicateName, "scheduler.build_graph",
				fmt.Sprintf("duplicate workflow name: %q", def.Name))
		}
		nodes[def.Name] = &Node{
			Name:   def.Name,
			Needs:  append([]string{}, def.DependsOn.Workflows...),
			Always: def.DependsOn.Always,
			Def:    def,
		}
	}

	for _, n := range nodes {
		for _, need := range n.Needs {
			if _, ok := nodes[need]; !ok {
				return nil, stageerr.New(stageerr.KindGraph, stageerr.CodeMissingDependency, "scheduler.build_graph",
					fmt.Sprintf("workflow %q depends on unknown workflow %q", n.Name, need))
			}
		}
	}

	dependents := make(map[string][]string, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	for name, n := range nodes {
		inDegree[name] = len(n.Needs)
		for _, need := range n.Needs {
			dependents[need] = append(dependents[need], name)
		}
	}
	for _, deps := range dependents {
		sort.Strings(deps)
	}

	order := make([]string, 0, len(nodes))
	remaining := inDegree
	level := 0
	for len(order) < len(nodes) {
		var frontier []string
		for name, deg := range remaining {
			if deg == 0 {
				frontier = append(frontier, name)
			}
		}
		if len(frontier) == 0 {
			break // cycle: nodes remain but none are ready
		}
		sort.Strings(frontier)

		for _, name := range frontier {
			nodes[name].Level = level
			order = append(order, name)
			delete(remaining, name)
		}
		for _, name := range frontier {
			for _, dep := range dependents[name] {
				remaining[dep]--
			}
		}
		level++
	}

	if len(order) < len(nodes) {
		var stuck []string
		for name := range remaining {
			stuck = append(stuck, name)
		}
		sort.Strings(stuck)
		return nil, stageerr.New(stageerr.KindGraph, stageerr.CodeCyclicDependency, "scheduler.build_graph",
			fmt.Sprintf("cyclic dependency among workflows: %v", stuck))
	}

	return &Graph{Nodes: nodes, Order: order}, nil
}
