package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteYearCmd = &cobra.Command{
	Use:   "delete-year",
	Short: "Delete all catalog records for a year",
	Long: `Delete every catalog record for the selected year, e.g. before
re-ingesting a corrected catalog edition.

Examples:
  costbook delete-year --year 2024
  costbook delete-year --year 2024 --force`,
	Args: cobra.NoArgs,
	RunE: runDeleteYear,
}

func init() {
	deleteYearCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation prompt")
}

func runDeleteYear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if !deleteForce {
		fmt.Printf("Delete ALL catalog records for year %d? [y/N] ", year)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	count, err := dbClient.DeleteYear(ctx, year)
	if err != nil {
		return fmt.Errorf("delete year: %w", err)
	}

	fmt.Printf("Deleted %d records for year %d\n", count, year)
	return nil
}
