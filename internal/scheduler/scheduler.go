package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/stagecraft/engine/internal/executor"
	stageerr "github.com/stagecraft/engine/pkg/errors"
	"github.com/stagecraft/engine/pkg/events"
	"github.com/stagecraft/engine/pkg/workflow"
)

// RunOptions configures one directory run (§4.8 "Run").
type RunOptions struct {
	MaxConcurrent     int
	FailFast          bool
	PlatformsOverride workflow.PlatformsConfig
	// Filter restricts the run to workflows whose name matches at least one
	// of these doublestar glob patterns (e.g. "smoke-*", "checkout/**"). A
	// workflow excluded by Filter is treated as already satisfied for any
	// dependent that lists it in `needs`, so a filtered run of a subset of a
	// larger directory doesn't deadlock on excluded prerequisites.
	Filter []string

	Env     map[string]string
	Secrets map[string]string
	Emitter events.Emitter
	Logger  *slog.Logger
}

// DirectoryResult is the outcome of one directory run (§4.8 "Run" state).
type DirectoryResult struct {
	Success bool
	Results map[string]*executor.WorkflowResult
	Skipped []string
}

// Scheduler runs a graph of workflows with eager, level-unaware parallel
// dispatch (§4.8 "Scheduling loop").
type Scheduler struct {
	Graph *Graph
	Opts  RunOptions
}

// New builds a Scheduler from an already-built Graph.
func New(graph *Graph, opts RunOptions) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Emitter == nil {
		opts.Emitter = events.NoopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{Graph: graph, Opts: opts}
}

// Run drives the dispatch-pass loop to completion and returns the aggregate
// result (§4.8 "Overall success = AND of all result.successes AND
// skipped.is_empty").
func (s *Scheduler) Run(ctx context.Context) (*DirectoryResult, error) {
	included, err := s.selectIncluded()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	pending := make(map[string]bool, len(included))
	for name := range included {
		pending[name] = true
	}
	results := make(map[string]*executor.WorkflowResult)
	skipped := make(map[string]bool)
	failed := false

	for name := range s.Graph.Nodes {
		if !included[name] {
			results[name] = &executor.WorkflowResult{RunID: "", Success: true, Jobs: map[string]executor.JobResult{}}
		}
	}

	sem := make(chan struct{}, s.Opts.MaxConcurrent)

	var dispatch func()
	dispatch = func() {
		mu.Lock()
		var toLaunch []*Node
		changed := true
		for changed {
			changed = false
			for name := range pending {
				node := s.Graph.Nodes[name]
				allDone, anyBad := s.depStatus(node, results, skipped)

				ready := false
				skip := false
				switch {
				case !allDone:
					// waiting
				case !anyBad:
					ready = true
				case node.Always:
					ready = true
				default:
					skip = true
				}

				if s.Opts.FailFast && failed && !node.Always {
					ready = false
					skip = true
				}

				if skip {
					delete(pending, name)
					skipped[name] = true
					changed = true
				} else if ready {
					delete(pending, name)
					toLaunch = append(toLaunch, node)
					changed = true
				}
			}
		}
		mu.Unlock()

		for _, node := range toLaunch {
			wg.Add(1)
			go func(n *Node) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				res, runErr := s.runWorkflow(ctx, n)

				mu.Lock()
				if runErr != nil {
					s.Opts.Logger.Error("workflow run failed", "workflow", n.Name, "error", runErr)
					res = &executor.WorkflowResult{RunID: "", Success: false, Jobs: map[string]executor.JobResult{}}
				}
				results[n.Name] = res
				if !res.Success {
					failed = true
				}
				mu.Unlock()

				dispatch()
			}(node)
		}
	}

	dispatch()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	skippedNames := make([]string, 0, len(skipped))
	for name := range skipped {
		skippedNames = append(skippedNames, name)
	}

	overallSuccess := len(skipped) == 0
	for _, res := range results {
		if !res.Success {
			overallSuccess = false
		}
	}

	return &DirectoryResult{Success: overallSuccess, Results: results, Skipped: skippedNames}, nil
}

func (s *Scheduler) runWorkflow(ctx context.Context, node *Node) (*executor.WorkflowResult, error) {
	runID := uuid.NewString()
	ex := executor.New(node.Def, s.Opts.PlatformsOverride, runID, s.Opts.Env, s.Opts.Secrets, s.Opts.Emitter, s.Opts.Logger)
	return ex.Run(ctx)
}

// depStatus reports whether every dependency of node has been decided
// (present in results or skipped), and whether any of them was a failure or
// a skip.
func (s *Scheduler) depStatus(node *Node, results map[string]*executor.WorkflowResult, skipped map[string]bool) (allDone, anyBad bool) {
	allDone = true
	for _, dep := range node.Needs {
		if skipped[dep] {
			anyBad = true
			continue
		}
		res, ok := results[dep]
		if !ok {
			allDone = false
			continue
		}
		if !res.Success {
			anyBad = true
		}
	}
	return allDone, anyBad
}

// selectIncluded applies Filter, returning the set of workflow names to run.
// A workflow excluded by Filter is not added to `pending`. Left absent from
// `results`/`skipped`, it would read as "still waiting" in depStatus
// forever, so Run pre-seeds every excluded workflow in `results` as a
// synthetic success before the run starts.
func (s *Scheduler) selectIncluded() (map[string]bool, error) {
	if len(s.Opts.Filter) == 0 {
		included := make(map[string]bool, len(s.Graph.Nodes))
		for name := range s.Graph.Nodes {
			included[name] = true
		}
		return included, nil
	}

	included := make(map[string]bool)
	for name := range s.Graph.Nodes {
		matched, err := matchesAny(s.Opts.Filter, name)
		if err != nil {
			return nil, err
		}
		if matched {
			included[name] = true
		}
	}
	return included, nil
}

func matchesAny(patterns []string, name string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, stageerr.Wrap(stageerr.KindConfiguration, stageerr.CodeInvalidParameter,
				"scheduler.filter", "invalid filter glob pattern: "+pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
