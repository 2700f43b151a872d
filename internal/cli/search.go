package cli

import (
	"context"
	"fmt"

	"github.com/avelar/costbook-go/internal/db"
	"github.com/spf13/cobra"
)

var (
	searchLimit   int
	searchLexical bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog without judge verification",
	Long: `Search the catalog by semantic similarity (or BM25 with --lexical).

Returns raw candidates with similarity scores, without the judge step.
Use 'resolve' for verified, priced matches.

Examples:
  costbook search "demolición de tabique"
  costbook search "alicatado azulejo blanco" --limit 20
  costbook search "ladrillo hueco" --lexical`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "max results")
	searchCmd.Flags().BoolVar(&searchLexical, "lexical", false, "use BM25 full-text search instead of vector search")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := args[0]

	var results []db.ScoredRecord
	var err error
	if searchLexical {
		results, err = dbClient.LexicalSearch(ctx, query, searchLimit, year)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
	} else {
		if err := initLLM(); err != nil {
			return err
		}
		embedding, embErr := embedder.Embed(ctx, query)
		if embErr != nil {
			return fmt.Errorf("embed query: %w", embErr)
		}
		results, err = dbClient.NearestNeighbors(ctx, embedding, searchLimit, year)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results (year %d):\n\n", len(results), year)
	for i, r := range results {
		fmt.Printf("%2d. [%s] %s\n", i+1, r.Code, r.Description)
		fmt.Printf("    %.2f €/%s  score %.3f\n", r.Price, r.Unit, r.Similarity)
		if verbose && r.ContextPath() != "" {
			fmt.Printf("    %s (page %d)\n", r.ContextPath(), r.Page+1)
		}
	}
	return nil
}
