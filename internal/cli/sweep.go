package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	progressbar "github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stackmem/stackmem/internal/config"
	"github.com/stackmem/stackmem/internal/sweeper"
)

func newArchiveCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive closed root frames as scored traces in the hot tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			weights, err := a.cfg.Weights()
			if err != nil {
				return err
			}
			res, err := a.archiver.Run(cmd.Context(), runID, weights, a.cfg.ToolScores())
			if err != nil {
				return err
			}
			fmt.Printf("Archived %d traces (%d already archived, %d errors)\n",
				res.Archived, res.Skipped, len(res.Errors))
			for _, e := range res.Errors {
				fmt.Fprintln(os.Stderr, "  error:", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Only archive frames from this run")

	return cmd
}

func newSweepCmd() *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Migrate aged and low-score traces down the storage tiers",
		Long: `Run one migration sweep: hot traces past their age threshold move to warm,
warm traces past theirs move to cold, and low-score traces are demoted one
tier early regardless of age. Safe to re-run; a concurrent sweep is a no-op.

With --daemon, keep running sweeps on a schedule (migrate hourly, cleanup
daily) until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			if daemon {
				return runDaemon(a)
			}

			var bar *progressbar.ProgressBar
			if term.IsTerminal(int(os.Stdout.Fd())) {
				bar = progressbar.NewOptions(-1,
					progressbar.OptionSetDescription("sweeping"),
					progressbar.OptionSpinnerType(14),
				)
				defer func() { _ = bar.Finish() }()
			}

			res, err := a.manager.Migrate(cmd.Context(), a.cfg.TierConfig())
			if err != nil {
				return err
			}
			if bar != nil {
				_ = bar.Clear()
			}
			if res.Skipped {
				fmt.Println("Another sweep is running; nothing to do.")
				return nil
			}
			fmt.Printf("Migrated %d hot->warm, %d warm->cold (%d errors)\n",
				res.HotToWarm, res.WarmToCold, len(res.Errors))
			for _, e := range res.Errors {
				fmt.Fprintln(os.Stderr, "  error (will retry next sweep):", e)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&daemon, "daemon", false, "Run sweeps on a schedule until interrupted")

	return cmd
}

// runDaemon starts the scheduled sweeper with a hot-reloading config and
// blocks until Ctrl-C.
func runDaemon(a *app) error {
	watcher, err := config.NewWatcher(a.root)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := sweeper.New(a.manager, a.frames, a.audit, watcher.Current)
	if err := sw.Start(ctx); err != nil {
		return err
	}

	fmt.Println("Sweep daemon running. Press Ctrl-C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	sw.Stop()
	fmt.Println("Stopped.")
	return nil
}

func newCleanupCmd() *cobra.Command {
	var maxAgeDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete never-accessed cold traces past the retention window",
		Long: `Permanently delete cold-tier traces older than the retention window that
have never been accessed since creation. Traces with any access are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			days := maxAgeDays
			if days <= 0 {
				days = a.cfg.Tiers.CleanupRetentionDays
			}
			deleted, err := a.manager.Cleanup(cmd.Context(), days, a.cfg.TierConfig())
			if err != nil {
				return err
			}
			for _, id := range deleted {
				if err := a.frames.DeleteSubtree(cmd.Context(), id); err != nil {
					fmt.Fprintf(os.Stderr, "  warning: frames for %s: %v\n", id, err)
				}
			}
			fmt.Printf("Deleted %d cold traces older than %d days\n", len(deleted), days)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxAgeDays, "max-age", 0, "Retention window in days (default from config)")

	return cmd
}
