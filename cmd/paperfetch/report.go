package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperfetch/internal/ledger"
	"github.com/pdiddy/paperfetch/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a results ledger",
	Long: `Report reads the results ledger of the last run and prints counts by
status and by winning source. With --failures it also lists the titles that
could not be retrieved, for manual follow-up.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("ledger", "", "results CSV (default download_results.csv)")
	reportCmd.Flags().Bool("failures", false, "list failed titles with their last error")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := bindFlags(viper.GetViper(), cmd, map[string]string{"batch.ledger": "ledger"}); err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	outcomes, err := ledger.ReadOutcomes(cfg.Batch.LedgerPath)
	if err != nil {
		return err
	}
	listFailures, _ := cmd.Flags().GetBool("failures")

	var stats types.Stats
	byMethod := make(map[string]int)
	var failed []types.RetrievalOutcome
	for _, o := range outcomes {
		stats.Add(o)
		switch o.Status {
		case types.StatusSuccess:
			byMethod[o.Method]++
		case types.StatusFailure:
			failed = append(failed, o)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ledger: %s (%d titles)\n", cfg.Batch.LedgerPath, stats.Total())
	fmt.Fprintf(out, "  success: %d\n  failure: %d\n  skipped: %d\n", stats.Success, stats.Fail, stats.Skipped)

	methods := make([]string, 0, len(byMethod))
	for m := range byMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	if len(methods) > 0 {
		fmt.Fprintln(out, "By source:")
		for _, m := range methods {
			fmt.Fprintf(out, "  %-18s %d\n", m, byMethod[m])
		}
	}

	if listFailures && len(failed) > 0 {
		fmt.Fprintln(out, "Failed titles:")
		for _, o := range failed {
			fmt.Fprintf(out, "  %s\n    %s\n", o.Title, o.Error)
		}
	}
	return nil
}
