package cli

import (
	"context"
	"fmt"

	"github.com/avelar/costbook-go/internal/models"
	"github.com/avelar/costbook-go/internal/service"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget <description>",
	Short: "Build a priced budget from a free-text work description",
	Long: `Decompose a work description into atomic subtasks and price each one
against the catalog. Repeated matches to the same code are merged and
naturally singular resources are capped at quantity 1.

Examples:
  costbook budget "reforma integral de baño de 5 m², con sustitución de bañera por plato de ducha"
  costbook budget "instalar ascensor en edificio de 4 plantas" --year 2025`,
	Args: cobra.ExactArgs(1),
	RunE: runBudget,
}

func runBudget(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := initLLM(); err != nil {
		return err
	}

	budget := service.NewBudgetService(newResolver(), model, rules, collector)

	sink := service.ProgressFunc(func(p service.Progress) {
		switch p.Stage {
		case "decompose":
			fmt.Println("Decomposing request...")
		case "resolve":
			fmt.Printf("  [%d/%d] %s\n", p.Index, p.Total, p.Message)
		case "aggregate":
			fmt.Println("Aggregating...")
		}
	})

	items, usage, err := budget.ResolveAll(ctx, service.DecomposeDescription{Description: args[0]}, year, sink)
	if err != nil {
		return fmt.Errorf("resolve budget: %w", err)
	}

	printLineItems(items)
	fmt.Printf("\nTokens: %d in / %d out\n", usage.InputTokens, usage.OutputTokens)

	if verbose {
		printMetrics(collector.Snapshot())
	}
	return nil
}

// truncate shortens s to at most max runes, ellipsis included. Catalog
// descriptions are Spanish text full of multi-byte characters (á, º, ²),
// so byte slicing would cut through them.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// printLineItems renders resolved items as a budget table with a total.
func printLineItems(items []models.ResolvedLineItem) {
	fmt.Printf("\n%-4s %-9s %-44s %7s %5s %10s %11s %5s\n",
		"POS", "CODE", "DESCRIPTION", "QTY", "UNIT", "UNIT €", "TOTAL €", "CONF")
	fmt.Println("--------------------------------------------------------------------------------------------------")

	var total float64
	for _, item := range items {
		code := item.Code
		if code == "" {
			code = "-"
		}
		description := truncate(item.Description, 44)
		marker := ""
		if item.IsEstimate {
			marker = " *"
		}
		fmt.Printf("%-4d %-9s %-44s %7.2f %5s %10.2f %11.2f %4d%%%s\n",
			item.Position, code, description, item.Quantity, item.Unit,
			item.UnitPrice, item.TotalPrice, item.Confidence, marker)
		if verbose {
			fmt.Printf("     %s\n", item.Reason)
		}
		total += item.TotalPrice
	}

	fmt.Println("--------------------------------------------------------------------------------------------------")
	fmt.Printf("%84s %11.2f\n", "TOTAL", total)

	for _, item := range items {
		if item.NeedsReview {
			fmt.Println("\n* estimated or unmatched items need manual review")
			break
		}
	}
}
