// Package cli provides the command-line interface for costbook.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/avelar/costbook-go/internal/config"
	"github.com/avelar/costbook-go/internal/db"
	"github.com/avelar/costbook-go/internal/llm"
	"github.com/avelar/costbook-go/internal/metrics"
	"github.com/avelar/costbook-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	year    int

	// Global config, db client and metrics
	cfg       config.Config
	rules     config.Rules
	dbClient  *db.Client
	collector *metrics.Collector

	// Lazy-initialized LLM components
	embedder *llm.Embedder
	model    *llm.Model
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "costbook",
	Short: "Construction price catalog ingestion and budget resolution",
	Long: `Costbook ingests scanned construction price catalogs (PDF) into a
searchable vector store and resolves free-text work descriptions into
priced budget line items.

Catalogs are keyed by (year, code); ingestion is resumable per page and
matching combines vector search, lexical expansion and an LLM judge.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, _ := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		var err error
		rules, err = config.LoadRules(cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}

		collector = metrics.NewCollector()

		// Connect to database
		ctx := context.Background()
		dbClient, err = db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
	},
}

// initLLM lazily creates the embedder and model. Commands that never
// call the LLM (jobs, stats, delete-year) skip this entirely.
func initLLM() error {
	if embedder != nil {
		return nil
	}
	var err error
	embedder, err = llm.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	model, err = llm.NewModel(cfg)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	return nil
}

// newResolver wires the matching resolver from the globals.
func newResolver() *service.ResolveService {
	return service.NewResolveService(dbClient, embedder, model, rules, collector)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().IntVarP(&year, "year", "y", 2026, "catalog year to work against")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(deleteYearCmd)
	rootCmd.AddCommand(statsCmd)
}
