package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stagecraft/engine/internal/scheduler"
	"github.com/stagecraft/engine/pkg/workflow"
)

func newRunCommand() *cobra.Command {
	var maxConcurrent int
	var failFast bool
	var filter []string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run <directory>",
		Short: "Run every workflow in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			logger := newLogger(verbose)

			defs, err := workflow.LoadDirectory(dir)
			if err != nil {
				return err
			}
			runnerCfg, err := workflow.LoadRunnerConfig(dir)
			if err != nil {
				return err
			}

			graph, err := scheduler.BuildGraph(defs)
			if err != nil {
				return err
			}

			opts := scheduler.RunOptions{
				MaxConcurrent:     firstPositive(maxConcurrent, runnerCfg.Parallel),
				FailFast:          failFast || runnerCfg.FailFast,
				PlatformsOverride: runnerCfg.Platforms,
				Filter:            filter,
				Env:               envMap(),
				Logger:            logger,
			}

			ctx := context.Background()

			if len(runnerCfg.Profiles) > 0 {
				success, results := scheduler.RunProfiles(ctx, graph, runnerCfg, opts)
				for name, r := range results {
					reportProfile(cmd, name, r)
				}
				if !success {
					os.Exit(1)
				}
				return nil
			}

			sched := scheduler.New(graph, opts)
			result, err := sched.Run(ctx)
			if err != nil {
				return err
			}
			reportDirectory(cmd, result)
			if !result.Success {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "maximum concurrent workflow executions (default: runner.yaml's parallel, or 4)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "skip all pending non-always workflows after the first failure")
	cmd.Flags().StringSliceVar(&filter, "filter", nil, "glob pattern(s) restricting which workflows run")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable trace-level logging")

	return cmd
}

func reportDirectory(cmd *cobra.Command, result *scheduler.DirectoryResult) {
	for name, res := range result.Results {
		status := "PASS"
		if !res.Success {
			status = "FAIL"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", status, name)
	}
	for _, name := range result.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "SKIP  %s\n", name)
	}
}

func reportProfile(cmd *cobra.Command, name string, r *scheduler.ProfileResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "=== profile %s ===\n", name)
	if r.Err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "ERROR  %s: %v\n", name, r.Err)
		return
	}
	reportDirectory(cmd, r.Result)
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 4
}

func envMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			out[name] = value
		}
	}
	return out
}
