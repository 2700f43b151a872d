package cli

import (
	"context"
	"fmt"

	"github.com/avelar/costbook-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	resolveQuantity float64
	resolveUnit     string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <description>",
	Short: "Re-price a single line item against the catalog",
	Long: `Resolve one known line item without decomposition: vector search with
synonym expansion, similarity filtering and judge verification.

Examples:
  costbook resolve "demolición de tabique de ladrillo hueco" --quantity 12 --unit m²
  costbook resolve 0101005       # direct catalog code lookup`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().Float64VarP(&resolveQuantity, "quantity", "q", 1, "quantity of the item")
	resolveCmd.Flags().StringVarP(&resolveUnit, "unit", "u", "ud", "unit symbol (m², m³, m, ud, h, kg)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := initLLM(); err != nil {
		return err
	}

	budget := service.NewBudgetService(newResolver(), model, rules, collector)

	items, usage, err := budget.ResolveAll(ctx, service.OptimizeExistingItem{
		Description: args[0],
		Quantity:    resolveQuantity,
		Unit:        resolveUnit,
	}, year, nil)
	if err != nil {
		return fmt.Errorf("resolve item: %w", err)
	}

	printLineItems(items)
	fmt.Printf("\nTokens: %d in / %d out\n", usage.InputTokens, usage.OutputTokens)
	return nil
}
