package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/usage"
	"github.com/spf13/cobra"
)

var usageDays int
var usageJSON bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Summarize token usage and cost per model",
	Long: `Summarize the usage log written by tutor serve.

Examples:
  tutor usage                           # all recorded usage
  tutor usage --days 7                  # the last week
  tutor usage --json`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().IntVar(&usageDays, "days", 0, "Only the last N days (0 for everything)")
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var result usage.LoadResult
	if usageDays > 0 {
		now := time.Now()
		result = usage.LoadForDateRange(cfg.Usage.LogDir, now.AddDate(0, 0, -(usageDays-1)), now)
	} else {
		result = usage.Load(cfg.Usage.LogDir)
	}
	for _, err := range result.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	totals := usage.TotalsByModel(result.Entries)
	if usageJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(totals)
	}
	printUsage(cmd.OutOrStdout(), totals)
	return nil
}

func printUsage(w io.Writer, totals []usage.ModelTotals) {
	if len(totals) == 0 {
		fmt.Fprintln(w, "No usage recorded.")
		return
	}

	fmt.Fprintf(w, "%-36s %8s %10s %10s %10s\n", "Model", "Requests", "Input", "Output", "Cost")
	fmt.Fprintln(w, strings.Repeat("-", 78))

	var all usage.ModelTotals
	for _, t := range totals {
		printUsageRow(w, t)
		all.Requests += t.Requests
		all.InputTokens += t.InputTokens
		all.OutputTokens += t.OutputTokens
		all.CostUSD += t.CostUSD
	}
	fmt.Fprintln(w, strings.Repeat("-", 78))
	all.Model = "Total"
	printUsageRow(w, all)
}

func printUsageRow(w io.Writer, t usage.ModelTotals) {
	fmt.Fprintf(w, "%-36s %8d %10s %10s %10s\n", t.Model, t.Requests,
		tokenCount(t.InputTokens), tokenCount(t.OutputTokens), fmt.Sprintf("$%.4f", t.CostUSD))
}

func tokenCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return llm.FormatTokenCount(n)
}
