package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagecraft/engine/internal/scheduler"
	"github.com/stagecraft/engine/pkg/workflow"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <directory>",
		Short: "Parse every workflow in a directory and check the dependency graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			defs, err := workflow.LoadDirectory(dir)
			if err != nil {
				return err
			}
			if _, err := workflow.LoadRunnerConfig(dir); err != nil {
				return err
			}
			if _, err := scheduler.BuildGraph(defs); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d workflow(s) valid\n", len(defs))
			return nil
		},
	}
	return cmd
}
