package cli

import (
	"context"
	"fmt"

	"github.com/avelar/costbook-go/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-year catalog statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := dbClient.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("catalog stats: %w", err)
	}

	if len(stats) == 0 {
		fmt.Println("Catalog is empty.")
		return nil
	}

	fmt.Printf("%-6s %10s %12s %12s\n", "YEAR", "RECORDS", "COMPOSITE", "AVG PRICE")
	fmt.Println("-------------------------------------------")
	for _, s := range stats {
		fmt.Printf("%-6d %10d %12d %11.2f€\n", s.Year, s.Records, s.Composite, s.AvgPrice)
	}
	return nil
}

// printMetrics renders the in-process metrics snapshot, used by the
// long-running commands in verbose mode.
func printMetrics(snap metrics.Snapshot) {
	fmt.Println("\nRuntime metrics:")
	printOp("extraction", snap.Extraction)
	printOp("embedding", snap.Embedding)
	printOp("decompose", snap.Decompose)
	printOp("judge", snap.Judge)
	printOp("db write", snap.DBWrite)
	printOp("db search", snap.DBSearch)
}

func printOp(name string, op *metrics.OperationSnapshot) {
	if op == nil {
		return
	}
	line := fmt.Sprintf("  %-11s %4d calls, avg %6.0fms (min %d, max %d)",
		name, op.Count, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.TotalInputTokens != nil {
		line += fmt.Sprintf(", tokens %d in / %d out", *op.TotalInputTokens, *op.TotalOutputTokens)
	}
	fmt.Println(line)
}
