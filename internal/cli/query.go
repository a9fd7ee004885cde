package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackmem/stackmem/internal/tier"
)

func newQueryCmd() *cobra.Command {
	var (
		runID string
		max   int
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Rank recorded work by relevance to a query",
		Long: `Retrieve the frames most relevant to a query. Ranking uses the configured
relevance provider when one is available and confident, and a deterministic
local heuristic otherwise. Every query writes one audit entry explaining
the decision.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			rcfg := a.cfg.RetrievalConfigValue()
			if max > 0 {
				rcfg.MaxResults = max
			}

			res, err := a.retriever.Query(cmd.Context(), strings.Join(args, " "), runID, rcfg)
			if err != nil {
				return err
			}

			fmt.Printf("Provider: %s  confidence: %.2f  complexity: %s  tokens: %d/%d\n",
				res.Provider, res.Confidence, res.Complexity, res.TokensUsed, rcfg.TokenBudget)
			if len(res.Frames) == 0 {
				fmt.Println("No relevant work found.")
				return nil
			}
			for _, f := range res.Frames {
				state := string(f.State)
				fmt.Printf("  [%.2f] %s %q (%s, id %s)\n", f.RankScore, f.Type, f.Name, state, f.ID)
			}
			fmt.Printf("Audit entry: %s\n", res.AuditID)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Session whose active path informs the analysis")
	cmd.Flags().IntVar(&max, "max", 0, "Maximum results (default from config)")

	return cmd
}

func newAuditCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent retrieval decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.audit.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No audit entries.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-9s  conf %.2f  %4d tokens  %s  %q\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Provider,
					e.Confidence, e.TokensUsed, e.Complexity, e.Query)
				if e.Reasoning != "" {
					fmt.Printf("    %s\n", e.Reasoning)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "How many entries to show")

	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report tier counts, sizes, compression, and estimated cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.manager.Stats(cmd.Context(), a.cfg.TierConfig())
			if err != nil {
				return err
			}

			fmt.Println("Tier      Traces   Original     Compressed   Ratio    Est. $/mo")
			for _, t := range []tier.Tier{tier.Hot, tier.Warm, tier.Cold} {
				ts := stats.ByTier[t]
				fmt.Printf("%-8s  %6d   %10d   %10d   %5.1f%%   %8.4f\n",
					t, ts.Count, ts.OriginalSize, ts.CompressedSize,
					ts.CompressionRatio*100, ts.MonthlyCostUSD)
			}
			fmt.Printf("\nBy age: <1d %d, 1d-7d %d, 7d-30d %d, >30d %d\n",
				stats.ByAge["<1d"], stats.ByAge["1d-7d"], stats.ByAge["7d-30d"], stats.ByAge[">30d"])
			fmt.Printf("Total: %d bytes original, %d compressed\n", stats.TotalSize, stats.CompressedSize)
			return nil
		},
	}
}
