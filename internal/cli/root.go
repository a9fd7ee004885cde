// Package cli defines the Cobra command tree for the stackmem CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "stackmem",
	Short: "Persistent, tiered working memory for AI coding assistants",
	Long: `stackmem records units of work ("frames") as an assistant session
progresses, scores their importance, and migrates less-valuable data through
cheaper storage tiers over time, while keeping the working set retrievable
with a fully audited decision trail.

Run 'stackmem init' in any project directory to get started.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		newInitCmd(),
		newPushCmd(),
		newCloseCmd(),
		newStackCmd(),
		newRecordCmd(),
		newArchiveCmd(),
		newSweepCmd(),
		newCleanupCmd(),
		newStatsCmd(),
		newQueryCmd(),
		newAuditCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stackmem %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
