package db

import (
	"context"
	"fmt"

	"github.com/avelar/costbook-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// MaxUpsertBatch is the size limit for one catalog write batch. Callers
// may pass larger slices; UpsertCatalogBatch chunks to stay under it.
const MaxUpsertBatch = 100

// ScoredRecord is a catalog record with its search similarity score.
type ScoredRecord struct {
	models.CatalogRecord
	Similarity float64 `json:"similarity"`
}

// UpsertCatalogBatch idempotently writes records keyed by (year, code).
// Re-ingesting the same key overwrites the previous record. Fields are
// assembled explicitly so unset optional values are omitted rather than
// written as nulls.
func (c *Client) UpsertCatalogBatch(ctx context.Context, records []models.CatalogRecord) error {
	for start := 0; start < len(records); start += MaxUpsertBatch {
		end := min(start+MaxUpsertBatch, len(records))
		if err := c.upsertChunk(ctx, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) upsertChunk(ctx context.Context, records []models.CatalogRecord) error {
	for i := range records {
		record := &records[i]
		content := map[string]any{
			"code":         record.Code,
			"year":         record.Year,
			"description":  record.Description,
			"unit":         record.Unit,
			"price":        record.Price,
			"is_composite": record.IsComposite,
			"page":         record.Page,
			"source_doc":   record.SourceDoc,
			"search_text":  record.SearchText,
			"embedding":    record.Embedding,
		}
		if record.Chapter != "" {
			content["chapter"] = record.Chapter
		}
		if record.Section != "" {
			content["section"] = record.Section
		}
		if record.LaborPrice != nil {
			content["labor_price"] = *record.LaborPrice
		}
		if record.MaterialPrice != nil {
			content["material_price"] = *record.MaterialPrice
		}
		if len(record.Breakdown) > 0 {
			content["breakdown"] = record.Breakdown
		}
		if record.InputTokens > 0 {
			content["input_tokens"] = record.InputTokens
		}
		if record.OutputTokens > 0 {
			content["output_tokens"] = record.OutputTokens
		}

		_, err := surrealdb.Query[any](ctx, c.db, `
			UPSERT type::record("catalog", $id) MERGE $content
		`, map[string]any{
			"id":      record.Key(),
			"content": content,
		})
		if err != nil {
			return fmt.Errorf("upsert catalog %s: %w", record.Key(), wrapQueryError(err))
		}
	}
	return nil
}

// RecordsByPage returns the records ingested from one (page, year). Used
// by the orchestrator's resumability check before scheduling extraction.
func (c *Client) RecordsByPage(ctx context.Context, page, year int) ([]models.CatalogRecord, error) {
	results, err := surrealdb.Query[[]models.CatalogRecord](ctx, c.db, `
		SELECT * FROM catalog WHERE page = $page AND year = $year
	`, map[string]any{"page": page, "year": year})
	if err != nil {
		return nil, fmt.Errorf("records by page: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.CatalogRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// RecordByCode returns the record for (code, year), or nil when absent.
func (c *Client) RecordByCode(ctx context.Context, code string, year int) (*models.CatalogRecord, error) {
	results, err := surrealdb.Query[[]models.CatalogRecord](ctx, c.db, `
		SELECT * FROM catalog WHERE code = $code AND year = $year LIMIT 1
	`, map[string]any{"code": code, "year": year})
	if err != nil {
		return nil, fmt.Errorf("record by code: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// NearestNeighbors returns the k records closest to the query vector for
// one catalog year, with cosine similarity in [0,1].
func (c *Client) NearestNeighbors(ctx context.Context, embedding []float32, k, year int) ([]ScoredRecord, error) {
	// HNSW with ef=40 for better recall
	sql := fmt.Sprintf(`
		SELECT *, vector::similarity::cosine(embedding, $emb) AS similarity
		FROM catalog
		WHERE embedding <|%d,40|> $emb AND year = $year
		ORDER BY similarity DESC
	`, k)

	results, err := surrealdb.Query[[]ScoredRecord](ctx, c.db, sql, map[string]any{
		"emb":  embedding,
		"year": year,
	})
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []ScoredRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// LexicalSearch is the BM25 fallback used when embedding the query fails.
// Scores are BM25 relevance, not cosine similarity; callers must not mix
// them with vector scores.
func (c *Client) LexicalSearch(ctx context.Context, query string, k, year int) ([]ScoredRecord, error) {
	results, err := surrealdb.Query[[]ScoredRecord](ctx, c.db, `
		SELECT *, search::score(0) AS similarity
		FROM catalog
		WHERE search_text @0@ $q AND year = $year
		ORDER BY similarity DESC
		LIMIT $limit
	`, map[string]any{"q": query, "year": year, "limit": k})
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []ScoredRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// YearStats summarizes the catalog contents for one year.
type YearStats struct {
	Year      int     `json:"year"`
	Records   int     `json:"records"`
	Composite int     `json:"composite"`
	AvgPrice  float64 `json:"avg_price"`
}

// Stats returns per-year catalog statistics, oldest year first.
func (c *Client) Stats(ctx context.Context) ([]YearStats, error) {
	results, err := surrealdb.Query[[]YearStats](ctx, c.db, `
		SELECT year,
			count() AS records,
			count(is_composite = true) AS composite,
			math::mean(price) AS avg_price
		FROM catalog GROUP BY year ORDER BY year
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog stats: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []YearStats{}, nil
	}
	return (*results)[0].Result, nil
}

// DeleteYear removes all catalog records for a year, returning the count.
func (c *Client) DeleteYear(ctx context.Context, year int) (int, error) {
	countResults, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, `
		SELECT count() AS count FROM catalog WHERE year = $year GROUP ALL
	`, map[string]any{"year": year})
	if err != nil {
		return 0, fmt.Errorf("count year: %w", wrapQueryError(err))
	}

	count := 0
	if countResults != nil && len(*countResults) > 0 && len((*countResults)[0].Result) > 0 {
		count = (*countResults)[0].Result[0].Count
	}

	if _, err := surrealdb.Query[any](ctx, c.db, `
		DELETE catalog WHERE year = $year
	`, map[string]any{"year": year}); err != nil {
		return 0, fmt.Errorf("delete year: %w", wrapQueryError(err))
	}

	return count, nil
}
