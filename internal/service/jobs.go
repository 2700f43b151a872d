// Package service provides business logic for catalog ingestion and
// budget resolution.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/avelar/costbook-go/internal/llm"
	"github.com/avelar/costbook-go/internal/models"
	"github.com/google/uuid"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobStore persists job state. Implemented by db.Client.
type JobStore interface {
	CreateIngestJob(ctx context.Context, id string, job models.IngestJob) error
	UpdateJobStatus(ctx context.Context, id, status string, errMsg *string) error
	UpdateJobCounters(ctx context.Context, id string, job models.IngestJob) error
	AppendJobLog(ctx context.Context, id string, entry models.JobLogEntry) error
}

// Job is the in-memory state of one ingestion run.
type Job struct {
	ID string

	mu          sync.RWMutex
	state       models.IngestJob
	lastPersist time.Time
}

// JobManager tracks ingestion jobs and mirrors their state to the store.
// The store is a best-effort sink: after creation, persistence failures
// are logged and swallowed so a flaky job table never aborts an
// ingestion that is otherwise making progress.
type JobManager struct {
	store JobStore

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobManager creates a job manager. A nil store keeps jobs in memory
// only.
func NewJobManager(store JobStore) *JobManager {
	return &JobManager{
		store: store,
		jobs:  make(map[string]*Job),
	}
}

// Create registers a new pending job and persists its initial record.
func (m *JobManager) Create(ctx context.Context, sourceDoc string, year, totalPages int) (*Job, error) {
	job := &Job{
		ID: uuid.New().String()[:8], // Short ID for convenience
		state: models.IngestJob{
			Status:     string(JobStatusPending),
			SourceDoc:  sourceDoc,
			Year:       year,
			TotalPages: totalPages,
			StartedAt:  time.Now(),
		},
	}

	if m.store != nil {
		if err := m.store.CreateIngestJob(ctx, job.ID, job.state); err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	slog.Info("job created", "job_id", job.ID, "source", sourceDoc, "year", year, "pages", totalPages)
	return job, nil
}

// Get retrieves a job by ID, or nil.
func (m *JobManager) Get(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// List returns all in-memory jobs, most recent first.
func (m *JobManager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.Snapshot().StartedAt.Compare(a.Snapshot().StartedAt)
	})
	return jobs
}

// Start transitions a job to processing.
func (m *JobManager) Start(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.state.Status = string(JobStatusProcessing)
	job.mu.Unlock()

	if m.store != nil {
		if err := m.store.UpdateJobStatus(ctx, job.ID, string(JobStatusProcessing), nil); err != nil {
			slog.Warn("failed to persist job start", "job_id", job.ID, "error", err)
		}
	}
}

// SetActivity updates the human-readable current activity line.
func (m *JobManager) SetActivity(ctx context.Context, job *Job, activity string) {
	job.mu.Lock()
	job.state.CurrentActivity = activity
	job.mu.Unlock()
}

// RecordPages accounts for completed page work. ProcessedPages advances
// for every accounted page, whether it was extracted (including failures,
// which contribute zero items) or bypassed by the resumability check;
// SkippedPages is the breakdown of the bypassed ones. A fully resumed run
// therefore still reports full progress. Counter persistence is debounced
// to one store write every few seconds.
func (m *JobManager) RecordPages(ctx context.Context, job *Job, extracted, skipped, items int, usage llm.Usage) {
	job.mu.Lock()
	job.state.ProcessedPages += extracted + skipped
	job.state.SkippedPages += skipped
	job.state.TotalItems += items
	job.state.InputTokens += usage.InputTokens
	job.state.OutputTokens += usage.OutputTokens

	done := job.state.ProcessedPages >= job.state.TotalPages
	shouldPersist := m.store != nil && (time.Since(job.lastPersist) > 5*time.Second || done)
	if shouldPersist {
		job.lastPersist = time.Now()
	}
	state := job.state
	job.mu.Unlock()

	if shouldPersist {
		if err := m.store.UpdateJobCounters(ctx, job.ID, state); err != nil {
			slog.Warn("failed to persist job counters", "job_id", job.ID, "error", err)
		}
	}
}

// Log appends an entry to the job's append-only log.
func (m *JobManager) Log(ctx context.Context, job *Job, level, message string) {
	entry := models.JobLogEntry{Time: time.Now(), Level: level, Message: message}

	job.mu.Lock()
	job.state.Logs = append(job.state.Logs, entry)
	job.mu.Unlock()

	if m.store != nil {
		if err := m.store.AppendJobLog(ctx, job.ID, entry); err != nil {
			slog.Warn("failed to persist job log entry", "job_id", job.ID, "error", err)
		}
	}
}

// Complete marks a job as completed and flushes its final counters.
func (m *JobManager) Complete(ctx context.Context, job *Job) {
	m.finish(ctx, job, JobStatusCompleted, nil)
	slog.Info("job completed", "job_id", job.ID, "items", job.Snapshot().TotalItems)
}

// Fail marks a job as failed with the error message.
func (m *JobManager) Fail(ctx context.Context, job *Job, err error) {
	msg := err.Error()
	m.finish(ctx, job, JobStatusFailed, &msg)
	slog.Error("job failed", "job_id", job.ID, "error", err)
}

func (m *JobManager) finish(ctx context.Context, job *Job, status JobStatus, errMsg *string) {
	job.mu.Lock()
	job.state.Status = string(status)
	if errMsg != nil {
		job.state.Error = errMsg
	}
	now := time.Now()
	job.state.CompletedAt = &now
	state := job.state
	job.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.UpdateJobCounters(ctx, job.ID, state); err != nil {
		slog.Warn("failed to persist final job counters", "job_id", job.ID, "error", err)
	}
	if err := m.store.UpdateJobStatus(ctx, job.ID, string(status), errMsg); err != nil {
		slog.Warn("failed to persist job status", "job_id", job.ID, "error", err)
	}
}

// Snapshot returns a thread-safe copy of the job state.
func (j *Job) Snapshot() models.IngestJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	state := j.state
	state.Logs = slices.Clone(j.state.Logs)
	return state
}
