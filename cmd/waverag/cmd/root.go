// Package cmd provides the CLI commands for waverag.
// The CLI is host glue around the engine; the core packages never
// depend on it.
package cmd

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wavemem/waverag/internal/config"
	"github.com/wavemem/waverag/internal/logging"
	"github.com/wavemem/waverag/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the waverag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waverag",
		Short: "Tag-aware hybrid retrieval engine",
		Long: `waverag runs the three-stage WaveRAG retrieval pipeline
(Lens, Expansion, Focus) over lexical and dense result streams,
ranked by learned tag co-occurrence structure.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debugMode {
				cleanup, err := logging.SetupDefault()
				if err != nil {
					return err
				}
				loggingCleanup = cleanup
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if loggingCleanup != nil {
				loggingCleanup()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newSearchCmd())

	return cmd
}

// plainOutput reports whether stdout is not a terminal, so commands can
// drop decoration for pipes and scripts.
func plainOutput() bool {
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}
