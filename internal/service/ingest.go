package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avelar/costbook-go/internal/extract"
	"github.com/avelar/costbook-go/internal/llm"
	"github.com/avelar/costbook-go/internal/metrics"
	"github.com/avelar/costbook-go/internal/models"
	"github.com/avelar/costbook-go/internal/pdfdoc"
	"github.com/panjf2000/ants/v2"
)

// breakerThreshold is the number of consecutive failed batches after
// which an ingestion job aborts instead of burning API calls against a
// systemic outage.
const breakerThreshold = 3

// CatalogStore is the persistence surface the orchestrator needs.
// Implemented by db.Client.
type CatalogStore interface {
	UpsertCatalogBatch(ctx context.Context, records []models.CatalogRecord) error
	RecordsByPage(ctx context.Context, page, year int) ([]models.CatalogRecord, error)
}

// PageExtractor extracts line items from one page. Implemented by
// extract.Worker.
type PageExtractor interface {
	ExtractPage(ctx context.Context, page pdfdoc.Page, prev extract.Context) extract.PageResult
}

// Enricher attaches search text and embeddings to extracted records.
// Implemented by EnrichService.
type Enricher interface {
	Enrich(ctx context.Context, records []models.CatalogRecord) error
}

// IngestService drives a catalog document through extraction,
// enrichment and persistence, batch by batch.
type IngestService struct {
	store     CatalogStore
	extractor PageExtractor
	enricher  Enricher
	jobs      *JobManager
	metrics   *metrics.Collector
	batchSize int
}

// NewIngestService creates the ingestion orchestrator. batchSize bounds
// in-flight extraction calls; values below 1 fall back to 5.
func NewIngestService(store CatalogStore, extractor PageExtractor, enricher Enricher, jobs *JobManager, collector *metrics.Collector, batchSize int) *IngestService {
	if batchSize < 1 {
		batchSize = 5
	}
	return &IngestService{
		store:     store,
		extractor: extractor,
		enricher:  enricher,
		jobs:      jobs,
		metrics:   collector,
		batchSize: batchSize,
	}
}

// IngestResult summarizes one ingestion run. ProcessedPages counts every
// accounted page, skips included; SkippedPages and FailedPages are the
// breakdown.
type IngestResult struct {
	JobID          string
	TotalPages     int
	ProcessedPages int
	SkippedPages   int
	FailedPages    int
	TotalItems     int
	Usage          llm.Usage
}

// Run ingests a whole document for one catalog year. Pages already
// present in the store for (page, year) are skipped, so re-running after
// a partial failure only pays for the missing pages.
func (s *IngestService) Run(ctx context.Context, doc *pdfdoc.Document, year int) (*IngestResult, error) {
	job, err := s.jobs.Create(ctx, doc.Source, year, doc.PageCount())
	if err != nil {
		return nil, err
	}

	s.jobs.Start(ctx, job)
	s.jobs.Log(ctx, job, "info", fmt.Sprintf("ingestion started: %d pages, batch size %d", doc.PageCount(), s.batchSize))

	pool, err := ants.NewPool(s.batchSize)
	if err != nil {
		wrapped := fmt.Errorf("create worker pool: %w", err)
		s.jobs.Fail(ctx, job, wrapped)
		return nil, wrapped
	}
	defer pool.Release()

	result := &IngestResult{JobID: job.ID, TotalPages: doc.PageCount()}
	running := extract.Context{}
	consecutiveFailures := 0

	for start := 0; start < doc.PageCount(); start += s.batchSize {
		end := min(start+s.batchSize, doc.PageCount())

		s.jobs.SetActivity(ctx, job, fmt.Sprintf("extracting pages %d-%d", start+1, end))

		// Resumability check, done before scheduling so skipped pages
		// never reach the extractor.
		var pending []pdfdoc.Page
		skipped := 0
		for i := start; i < end; i++ {
			page, err := doc.Page(i)
			if err != nil {
				wrapped := fmt.Errorf("page %d: %w", i, err)
				s.jobs.Fail(ctx, job, wrapped)
				return nil, wrapped
			}

			existing, err := s.store.RecordsByPage(ctx, i, year)
			if err != nil {
				slog.Warn("page existence check failed, extracting anyway", "page", i, "error", err)
			}
			if len(existing) > 0 {
				skipped++
				continue
			}
			pending = append(pending, page)
		}

		batchCtx := running
		began := time.Now()
		results := make([]extract.PageResult, len(pending))
		var wg sync.WaitGroup
		for idx, page := range pending {
			wg.Add(1)
			idx, page := idx, page
			if err := pool.Submit(func() {
				defer wg.Done()
				results[idx] = s.extractor.ExtractPage(ctx, page, batchCtx)
			}); err != nil {
				wg.Done()
				results[idx] = extract.PageResult{Context: batchCtx, Failed: true}
				slog.Warn("failed to submit page to pool", "page", page.Number, "error", err)
			}
		}
		wg.Wait()

		// Context updates are applied in page order after the batch
		// completes; later pages override earlier ones.
		var items []models.CatalogRecord
		var batchUsage llm.Usage
		failed := 0
		for _, res := range results {
			if res.Context != batchCtx {
				running = res.Context
			}
			batchUsage.Add(res.Usage)
			if res.Failed {
				failed++
				continue
			}
			items = append(items, res.Items...)
		}

		if s.metrics != nil && len(pending) > 0 {
			s.metrics.RecordLLMUsage(metrics.OpExtraction, time.Since(began), batchUsage.InputTokens, batchUsage.OutputTokens)
		}

		var batchErr error
		if len(items) > 0 {
			batchErr = s.persistBatch(ctx, items, year, doc.Source)
		}

		persisted := len(items)
		if batchErr != nil {
			persisted = 0
		}
		result.ProcessedPages += len(pending) + skipped
		result.SkippedPages += skipped
		result.FailedPages += failed
		result.TotalItems += persisted
		result.Usage.Add(batchUsage)
		s.jobs.RecordPages(ctx, job, len(pending), skipped, persisted, batchUsage)

		if batchErr != nil {
			if errors.Is(batchErr, llm.ErrDimensionMismatch) {
				// A wrong-dimension vector would poison the HNSW index;
				// abort without counting toward the breaker.
				s.jobs.Fail(ctx, job, batchErr)
				return nil, batchErr
			}

			consecutiveFailures++
			if extract.IsNetwork(batchErr) {
				slog.Warn("batch failed with network error", "pages", fmt.Sprintf("%d-%d", start+1, end), "error", batchErr)
			} else {
				slog.Error("batch failed", "pages", fmt.Sprintf("%d-%d", start+1, end), "error", batchErr)
			}
			s.jobs.Log(ctx, job, "error", fmt.Sprintf("batch %d-%d failed (%d consecutive): %v", start+1, end, consecutiveFailures, batchErr))

			if consecutiveFailures >= breakerThreshold {
				wrapped := fmt.Errorf("circuit breaker: %d consecutive batch failures, last: %w", consecutiveFailures, batchErr)
				s.jobs.Fail(ctx, job, wrapped)
				return nil, wrapped
			}
			continue
		}

		consecutiveFailures = 0
		s.jobs.Log(ctx, job, "info", fmt.Sprintf("batch %d-%d done: %d items, %d skipped, %d failed pages", start+1, end, len(items), skipped, failed))
	}

	s.jobs.Complete(ctx, job)
	return result, nil
}

// persistBatch enriches one batch of extracted records and writes them.
func (s *IngestService) persistBatch(ctx context.Context, items []models.CatalogRecord, year int, sourceDoc string) error {
	for i := range items {
		items[i].Year = year
		items[i].SourceDoc = sourceDoc
	}

	if err := s.enricher.Enrich(ctx, items); err != nil {
		return fmt.Errorf("enrich batch: %w", err)
	}

	began := time.Now()
	err := s.store.UpsertCatalogBatch(ctx, items)
	if s.metrics != nil {
		s.metrics.RecordTiming(metrics.OpDBWrite, time.Since(began))
	}
	if err != nil {
		return fmt.Errorf("persist batch: %w", err)
	}
	return nil
}
