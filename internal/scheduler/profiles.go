package scheduler

import (
	"context"
	"sync"

	"github.com/stagecraft/engine/pkg/workflow"
)

// ProfileResult is one named profile's directory run outcome.
type ProfileResult struct {
	Success bool
	Result  *DirectoryResult
	Err     error
}

// RunProfiles runs the directory once per named profile in parallel, each
// with its own platforms block merged over the runner-level platforms
// (§4.8 "Profiles").
func RunProfiles(ctx context.Context, graph *Graph, runnerCfg *workflow.RunnerConfig, base RunOptions) (bool, map[string]*ProfileResult) {
	results := make(map[string]*ProfileResult, len(runnerCfg.Profiles))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, profile := range runnerCfg.Profiles {
		wg.Add(1)
		go func(name string, profile workflow.Profile) {
			defer wg.Done()

			opts := base
			opts.PlatformsOverride = workflow.MergePlatforms(runnerCfg.Platforms, profile.Platforms)
			if opts.Env == nil {
				opts.Env = map[string]string{}
			}
			mergedEnv := make(map[string]string, len(opts.Env)+len(profile.Env))
			for k, v := range opts.Env {
				mergedEnv[k] = v
			}
			for k, v := range profile.Env {
				mergedEnv[k] = v
			}
			opts.Env = mergedEnv

			sched := New(graph, opts)
			dirResult, err := sched.Run(ctx)

			mu.Lock()
			results[name] = &ProfileResult{Success: err == nil && dirResult != nil && dirResult.Success, Result: dirResult, Err: err}
			mu.Unlock()
		}(name, profile)
	}

	wg.Wait()

	overall := true
	for _, r := range results {
		if !r.Success {
			overall = false
		}
	}
	return overall, results
}
