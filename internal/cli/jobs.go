package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avelar/costbook-go/internal/db"
	"github.com/spf13/cobra"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect ingestion jobs",
	Long: `List recent ingestion jobs or inspect a specific job by ID.

Examples:
  costbook jobs           # List recent jobs
  costbook jobs a1b2c3d4  # Show details and log for job a1b2c3d4`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "max jobs to list")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := dbClient.ListIngestJobs(ctx, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-12s %-6s %-12s %-8s %s\n", "ID", "STATUS", "YEAR", "PAGES", "ITEMS", "STARTED")
	fmt.Println("------------------------------------------------------------------------")
	for _, job := range jobs {
		pages := fmt.Sprintf("%d/%d", job.ProcessedPages, job.TotalPages)
		fmt.Printf("%-10s %-12s %-6d %-12s %-8d %s\n",
			job.ID.ID, job.Status, job.Year, pages, job.TotalItems,
			job.StartedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := dbClient.GetIngestJob(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("job not found: %s", id)
		}
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %v\n", job.ID.ID)
	fmt.Printf("  Status:   %s\n", job.Status)
	fmt.Printf("  Source:   %s (year %d)\n", job.SourceDoc, job.Year)
	fmt.Printf("  Pages:    %d of %d processed (%d skipped)\n", job.ProcessedPages, job.TotalPages, job.SkippedPages)
	fmt.Printf("  Items:    %d\n", job.TotalItems)
	fmt.Printf("  Tokens:   %d in / %d out\n", job.InputTokens, job.OutputTokens)
	if job.CurrentActivity != "" && job.Status == "processing" {
		fmt.Printf("  Activity: %s\n", job.CurrentActivity)
	}
	fmt.Printf("  Started:  %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Finished: %s (%s)\n", job.CompletedAt.Format(time.RFC3339),
			job.CompletedAt.Sub(job.StartedAt).Round(time.Second))
	}
	if job.Error != nil && *job.Error != "" {
		fmt.Printf("  Error:    %s\n", *job.Error)
	}

	if len(job.Logs) > 0 {
		fmt.Printf("\nLog (%d entries):\n", len(job.Logs))
		for _, entry := range job.Logs {
			fmt.Printf("  %s [%s] %s\n", entry.Time.Format("15:04:05"), entry.Level, entry.Message)
		}
	}
	return nil
}
