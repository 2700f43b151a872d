package cli

import (
	"context"
	"fmt"

	"github.com/avelar/costbook-go/internal/extract"
	"github.com/avelar/costbook-go/internal/pdfdoc"
	"github.com/avelar/costbook-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	ingestPages     []int
	ingestBatchSize int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <catalog.pdf>",
	Short: "Ingest a PDF price catalog into the store",
	Long: `Ingest a scanned price catalog: per-page LLM extraction, embedding
enrichment and idempotent persistence keyed by (year, code).

Pages already present in the store for the target year are skipped, so
re-running after a partial failure only pays for the missing pages.

Examples:
  costbook ingest catalogo-2026.pdf --year 2026
  costbook ingest catalogo-2026.pdf --pages 10,11,12   # bounded test run
  costbook ingest catalogo-2026.pdf --batch-size 3`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntSliceVar(&ingestPages, "pages", nil, "restrict to specific 0-based page indices")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "pages extracted concurrently per batch (default from config)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := initLLM(); err != nil {
		return err
	}
	if cfg.EmbedDimension != embedder.Dimension() {
		return fmt.Errorf("embedder dimension %d does not match configured index dimension %d",
			embedder.Dimension(), cfg.EmbedDimension)
	}

	doc, err := pdfdoc.Load(args[0])
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if len(ingestPages) > 0 {
		doc, err = doc.Slice(ingestPages...)
		if err != nil {
			return fmt.Errorf("select pages: %w", err)
		}
	}

	batchSize := cfg.BatchSize
	if ingestBatchSize > 0 {
		batchSize = ingestBatchSize
	}

	jobs := service.NewJobManager(dbClient)
	enricher := service.NewEnrichService(embedder, collector)
	ingest := service.NewIngestService(dbClient, extract.NewWorker(model), enricher, jobs, collector, batchSize)

	fmt.Printf("Ingesting %s (%d pages, year %d, batch size %d)\n", args[0], doc.PageCount(), year, batchSize)

	result, err := ingest.Run(ctx, doc, year)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("\nJob %s completed:\n", result.JobID)
	fmt.Printf("  Pages processed: %d of %d\n", result.ProcessedPages, result.TotalPages)
	fmt.Printf("  Pages skipped:   %d (already ingested)\n", result.SkippedPages)
	if result.FailedPages > 0 {
		fmt.Printf("  Pages failed:    %d (re-run to retry)\n", result.FailedPages)
	}
	fmt.Printf("  Items stored:    %d\n", result.TotalItems)
	fmt.Printf("  Tokens:          %d in / %d out\n", result.Usage.InputTokens, result.Usage.OutputTokens)

	if verbose {
		printMetrics(collector.Snapshot())
	}
	return nil
}
