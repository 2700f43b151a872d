package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobLogEntry is one timestamped message in a job's append-only log.
type JobLogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"` // "info", "warn", "error"
	Message string    `json:"message"`
}

// IngestJob is the persisted state of one ingestion run. Status moves
// pending -> processing -> completed|failed; completed and failed are
// terminal. ProcessedPages is monotonically non-decreasing and only
// advances after a page's work (success or explicit skip) is accounted for.
type IngestJob struct {
	ID surrealmodels.RecordID `json:"id"`

	Status    string `json:"status"`
	SourceDoc string `json:"source_doc"`
	Year      int    `json:"year"`

	TotalPages     int `json:"total_pages"`
	ProcessedPages int `json:"processed_pages"`
	SkippedPages   int `json:"skipped_pages"`
	TotalItems     int `json:"total_items"`

	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	CurrentActivity string        `json:"current_activity,omitempty"`
	Logs            []JobLogEntry `json:"logs"`
	Error           *string       `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
