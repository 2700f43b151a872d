// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/avelar/costbook-go/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	// Start SurrealDB container
	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	// Get container host and port
	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	// Connect to test database
	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	// Initialize schema with test embedding dimension (384)
	if err := testDB.InitSchema(ctx, 384); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Run tests
	code := m.Run()

	// Cleanup
	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

// dummyEmbedding returns a 384-dimensional test vector. The seed shifts
// the dominant component so different records sort differently under
// cosine similarity.
func dummyEmbedding(seed int) []float32 {
	embedding := make([]float32, 384)
	for i := range embedding {
		embedding[i] = 0.01
	}
	embedding[seed%384] = 1.0
	return embedding
}

func testRecord(code string, year, page int, price float64) models.CatalogRecord {
	record := models.CatalogRecord{
		Code:        code,
		Year:        year,
		Description: "Demolición de tabique de ladrillo hueco",
		Unit:        "m²",
		Chapter:     "01 DEMOLICIONES",
		Section:     "01.01 Tabiques",
		Price:       price,
		Page:        page,
		SourceDoc:   "test.pdf",
		Embedding:   dummyEmbedding(len(code)),
	}
	record.SearchText = models.BuildSearchText(record.ContextPath(), record.Description, record.Code, record.Unit)
	return record
}

// =============================================================================
// CATALOG TESTS
// =============================================================================

func TestUpsertCatalogBatchIdempotent(t *testing.T) {
	ctx := context.Background()
	year := 3001
	defer func() { _, _ = testDB.DeleteYear(ctx, year) }()

	record := testRecord("0101001", year, 5, 12.50)
	if err := testDB.UpsertCatalogBatch(ctx, []models.CatalogRecord{record}); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	// Same (year, code) with a new price must overwrite, not duplicate
	record.Price = 14.75
	if err := testDB.UpsertCatalogBatch(ctx, []models.CatalogRecord{record}); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := testDB.RecordByCode(ctx, "0101001", year)
	if err != nil {
		t.Fatalf("RecordByCode failed: %v", err)
	}
	if got == nil {
		t.Fatal("RecordByCode returned nil after upsert")
	}
	if got.Price != 14.75 {
		t.Errorf("Expected price 14.75 after re-upsert, got %v", got.Price)
	}

	page, err := testDB.RecordsByPage(ctx, 5, year)
	if err != nil {
		t.Fatalf("RecordsByPage failed: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("Expected 1 record on page 5 after re-upsert, got %d", len(page))
	}
}

func TestRecordsByPage(t *testing.T) {
	ctx := context.Background()
	year := 3002
	defer func() { _, _ = testDB.DeleteYear(ctx, year) }()

	records := []models.CatalogRecord{
		testRecord("0101001", year, 7, 10.0),
		testRecord("0101002", year, 7, 20.0),
		testRecord("0102001", year, 8, 30.0),
	}
	if err := testDB.UpsertCatalogBatch(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	page7, err := testDB.RecordsByPage(ctx, 7, year)
	if err != nil {
		t.Fatalf("RecordsByPage failed: %v", err)
	}
	if len(page7) != 2 {
		t.Errorf("Expected 2 records on page 7, got %d", len(page7))
	}

	// Records from another year must not bleed in
	empty, err := testDB.RecordsByPage(ctx, 7, year+1)
	if err != nil {
		t.Fatalf("RecordsByPage (other year) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected 0 records for other year, got %d", len(empty))
	}
}

func TestRecordByCodeMissing(t *testing.T) {
	ctx := context.Background()

	got, err := testDB.RecordByCode(ctx, "9999999", 3003)
	if err != nil {
		t.Fatalf("RecordByCode for missing code should not error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing code, got %+v", got)
	}
}

func TestNearestNeighbors(t *testing.T) {
	ctx := context.Background()
	year := 3004
	defer func() { _, _ = testDB.DeleteYear(ctx, year) }()

	a := testRecord("0201001", year, 1, 10.0)
	a.Embedding = dummyEmbedding(10)
	b := testRecord("0201002", year, 1, 20.0)
	b.Embedding = dummyEmbedding(200)
	if err := testDB.UpsertCatalogBatch(ctx, []models.CatalogRecord{a, b}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := testDB.NearestNeighbors(ctx, dummyEmbedding(10), 5, year)
	if err != nil {
		t.Fatalf("NearestNeighbors failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("NearestNeighbors returned no results")
	}
	if results[0].Code != "0201001" {
		t.Errorf("Expected closest record 0201001, got %s", results[0].Code)
	}
	if results[0].Similarity <= results[len(results)-1].Similarity && len(results) > 1 {
		t.Error("Results should be ordered by descending similarity")
	}
}

func TestLexicalSearch(t *testing.T) {
	ctx := context.Background()
	year := 3005
	defer func() { _, _ = testDB.DeleteYear(ctx, year) }()

	record := testRecord("0301001", year, 2, 45.0)
	record.Description = "Carga manual de escombros sobre camión"
	record.SearchText = models.BuildSearchText(record.ContextPath(), record.Description, record.Code, record.Unit)
	other := testRecord("0301002", year, 2, 15.0)
	other.Description = "Pintura plástica lisa en paramentos verticales"
	other.SearchText = models.BuildSearchText(other.ContextPath(), other.Description, other.Code, other.Unit)
	if err := testDB.UpsertCatalogBatch(ctx, []models.CatalogRecord{record, other}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := testDB.LexicalSearch(ctx, "escombros", 5, year)
	if err != nil {
		t.Fatalf("LexicalSearch failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result for 'escombros', got %d", len(results))
	}
	if results[0].Code != "0301001" {
		t.Errorf("Expected record 0301001, got %s", results[0].Code)
	}
}

func TestDeleteYear(t *testing.T) {
	ctx := context.Background()
	year := 3006

	records := []models.CatalogRecord{
		testRecord("0401001", year, 1, 10.0),
		testRecord("0401002", year, 1, 20.0),
		testRecord("0401003", year+1, 1, 30.0),
	}
	if err := testDB.UpsertCatalogBatch(ctx, records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	defer func() { _, _ = testDB.DeleteYear(ctx, year+1) }()

	count, err := testDB.DeleteYear(ctx, year)
	if err != nil {
		t.Fatalf("DeleteYear failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 deleted records, got %d", count)
	}

	remaining, err := testDB.RecordsByPage(ctx, 1, year)
	if err != nil {
		t.Fatalf("RecordsByPage after delete failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Expected 0 records after DeleteYear, got %d", len(remaining))
	}

	// Neighboring year untouched
	kept, err := testDB.RecordByCode(ctx, "0401003", year+1)
	if err != nil {
		t.Fatalf("RecordByCode failed: %v", err)
	}
	if kept == nil {
		t.Error("DeleteYear must not remove records from other years")
	}
}

// =============================================================================
// JOB TESTS
// =============================================================================

func TestIngestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	jobID := "lifecycle-test-job"

	err := testDB.CreateIngestJob(ctx, jobID, models.IngestJob{
		Status:     "pending",
		SourceDoc:  "catalog-2026.pdf",
		Year:       2026,
		TotalPages: 40,
		StartedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateIngestJob failed: %v", err)
	}

	if err := testDB.UpdateJobStatus(ctx, jobID, "processing", nil); err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}

	if err := testDB.UpdateJobCounters(ctx, jobID, models.IngestJob{
		ProcessedPages:  12,
		SkippedPages:    3,
		TotalItems:      87,
		InputTokens:     15000,
		OutputTokens:    4200,
		CurrentActivity: "extracting page 13",
	}); err != nil {
		t.Fatalf("UpdateJobCounters failed: %v", err)
	}

	if err := testDB.AppendJobLog(ctx, jobID, models.JobLogEntry{
		Time:    time.Now(),
		Level:   "warn",
		Message: "page 9 extraction failed, retrying",
	}); err != nil {
		t.Fatalf("AppendJobLog failed: %v", err)
	}

	job, err := testDB.GetIngestJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetIngestJob failed: %v", err)
	}
	if job.Status != "processing" {
		t.Errorf("Expected status 'processing', got %q", job.Status)
	}
	if job.ProcessedPages != 12 || job.SkippedPages != 3 || job.TotalItems != 87 {
		t.Errorf("Counter mismatch: %+v", job)
	}
	if job.InputTokens != 15000 || job.OutputTokens != 4200 {
		t.Errorf("Token counter mismatch: in=%d out=%d", job.InputTokens, job.OutputTokens)
	}
	if len(job.Logs) != 1 || job.Logs[0].Level != "warn" {
		t.Errorf("Expected 1 warn log entry, got %+v", job.Logs)
	}

	errMsg := "circuit breaker tripped"
	if err := testDB.UpdateJobStatus(ctx, jobID, "failed", &errMsg); err != nil {
		t.Fatalf("UpdateJobStatus (failed) failed: %v", err)
	}

	job, err = testDB.GetIngestJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetIngestJob after fail failed: %v", err)
	}
	if job.Status != "failed" {
		t.Errorf("Expected status 'failed', got %q", job.Status)
	}
	if job.Error == nil || *job.Error != errMsg {
		t.Errorf("Expected error %q, got %v", errMsg, job.Error)
	}
	if job.CompletedAt == nil {
		t.Error("Terminal status must stamp completed_at")
	}
}

func TestGetIngestJobMissing(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.GetIngestJob(ctx, "no-such-job")
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListIngestJobs(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := testDB.CreateIngestJob(ctx, fmt.Sprintf("list-test-%d", i), models.IngestJob{
			Status:     "completed",
			SourceDoc:  "list.pdf",
			Year:       2025,
			TotalPages: 10,
			StartedAt:  time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("CreateIngestJob %d failed: %v", i, err)
		}
	}

	jobs, err := testDB.ListIngestJobs(ctx, 2)
	if err != nil {
		t.Fatalf("ListIngestJobs failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs with limit 2, got %d", len(jobs))
	}
	if jobs[0].StartedAt.Before(jobs[1].StartedAt) {
		t.Error("Jobs should be ordered newest first")
	}
}
