package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avelar/costbook-go/internal/metrics"
	"github.com/avelar/costbook-go/internal/models"
)

// embedBatchSize bounds one embedding request.
const embedBatchSize = 100

// EmbeddingClient generates embedding vectors for batches of text.
// Implemented by llm.Embedder, which enforces the configured dimension.
type EmbeddingClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// EnrichService attaches search text and embedding vectors to extracted
// catalog records before persistence.
type EnrichService struct {
	embedder EmbeddingClient
	metrics  *metrics.Collector
}

// NewEnrichService creates an enrich service.
func NewEnrichService(embedder EmbeddingClient, collector *metrics.Collector) *EnrichService {
	return &EnrichService{embedder: embedder, metrics: collector}
}

// Enrich builds each record's search text and fills its embedding,
// mutating the slice in place. A wrong-dimension vector is a hard
// failure; persisting it would poison the vector index.
func (s *EnrichService) Enrich(ctx context.Context, records []models.CatalogRecord) error {
	if len(records) == 0 {
		return nil
	}

	for i := range records {
		r := &records[i]
		r.SearchText = models.BuildSearchText(r.ContextPath(), r.Description, r.Code, r.Unit)
	}

	for start := 0; start < len(records); start += embedBatchSize {
		end := min(start+embedBatchSize, len(records))
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.SearchText
		}

		began := time.Now()
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if s.metrics != nil {
			s.metrics.RecordTiming(metrics.OpEmbedding, time.Since(began))
		}
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(batch))
		}

		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
	}

	return nil
}
