package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	stagelog "github.com/stagecraft/engine/pkg/log"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "stagecraft",
		Short: "Declarative multi-workflow test orchestration",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())
	return root
}

func newLogger(verbose bool) *slog.Logger {
	cfg := stagelog.FromEnv()
	if verbose {
		cfg.Level = stagelog.LevelTrace
	}
	return stagelog.New(cfg)
}
