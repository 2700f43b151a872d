package db

import (
	"context"
	"fmt"
	"time"

	"github.com/avelar/costbook-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateIngestJob persists a new job record under the given id.
func (c *Client) CreateIngestJob(ctx context.Context, id string, job models.IngestJob) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("ingest_job", $id) CONTENT {
			status: $status,
			source_doc: $source_doc,
			year: $year,
			total_pages: $total_pages,
			processed_pages: 0,
			skipped_pages: 0,
			total_items: 0,
			input_tokens: 0,
			output_tokens: 0,
			current_activity: $activity,
			logs: [],
			started_at: $started_at
		}
	`, map[string]any{
		"id":          id,
		"status":      job.Status,
		"source_doc":  job.SourceDoc,
		"year":        job.Year,
		"total_pages": job.TotalPages,
		"activity":    job.CurrentActivity,
		"started_at":  job.StartedAt,
	})
	if err != nil {
		return fmt.Errorf("create ingest job: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateJobStatus transitions a job. Terminal statuses also stamp
// completed_at; a failed transition records the error message.
func (c *Client) UpdateJobStatus(ctx context.Context, id, status string, errMsg *string) error {
	vars := map[string]any{"id": id, "status": status}

	sql := `UPDATE type::record("ingest_job", $id) SET status = $status`
	if status == "completed" || status == "failed" {
		sql += `, completed_at = $completed_at`
		vars["completed_at"] = time.Now()
	}
	if errMsg != nil {
		sql += `, error = $error`
		vars["error"] = *errMsg
	}

	if _, err := surrealdb.Query[any](ctx, c.db, sql, vars); err != nil {
		return fmt.Errorf("update job status: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateJobCounters overwrites a job's progress counters. Called on the
// manager's debounce tick, so the values are whole snapshots rather than
// increments.
func (c *Client) UpdateJobCounters(ctx context.Context, id string, job models.IngestJob) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("ingest_job", $id) SET
			processed_pages = $processed,
			skipped_pages = $skipped,
			total_items = $items,
			input_tokens = $input_tokens,
			output_tokens = $output_tokens,
			current_activity = $activity
	`, map[string]any{
		"id":            id,
		"processed":     job.ProcessedPages,
		"skipped":       job.SkippedPages,
		"items":         job.TotalItems,
		"input_tokens":  job.InputTokens,
		"output_tokens": job.OutputTokens,
		"activity":      job.CurrentActivity,
	})
	if err != nil {
		return fmt.Errorf("update job counters: %w", wrapQueryError(err))
	}
	return nil
}

// AppendJobLog adds one entry to a job's append-only log.
func (c *Client) AppendJobLog(ctx context.Context, id string, entry models.JobLogEntry) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("ingest_job", $id) SET logs += $entry
	`, map[string]any{"id": id, "entry": entry})
	if err != nil {
		return fmt.Errorf("append job log: %w", wrapQueryError(err))
	}
	return nil
}

// GetIngestJob returns a job by id. Missing jobs return ErrNotFound.
func (c *Client) GetIngestJob(ctx context.Context, id string) (*models.IngestJob, error) {
	results, err := surrealdb.Query[[]models.IngestJob](ctx, c.db, `
		SELECT * FROM type::record("ingest_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get ingest job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	return &(*results)[0].Result[0], nil
}

// ListIngestJobs returns the most recent jobs, newest first.
func (c *Client) ListIngestJobs(ctx context.Context, limit int) ([]models.IngestJob, error) {
	results, err := surrealdb.Query[[]models.IngestJob](ctx, c.db, `
		SELECT * FROM ingest_job ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list ingest jobs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.IngestJob{}, nil
	}
	return (*results)[0].Result, nil
}
