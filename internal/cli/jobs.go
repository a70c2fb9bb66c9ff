package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect ingestion jobs",
	Long: `List all jobs known to the server or inspect a specific job by ID.

Examples:
  dcup jobs           # List all jobs
  dcup jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// If job ID provided, show that specific job
	if len(args) == 1 {
		return showJob(ctx, args[0])
	}

	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := api.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-38s %-16s %-10s %-9s %s\n", "ID", "SERVICE", "STATUS", "ATTEMPTS", "ENQUEUED")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, job := range jobs {
		fmt.Printf("%-38s %-16s %-10s %-9d %s\n",
			job.ID, job.Service, renderStatus(job.Status), job.Attempts, job.EnqueuedAt.Format("15:04:05"))
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := api.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Service: %s\n", job.Service)
	fmt.Printf("  Status: %s\n", renderStatus(job.Status))
	fmt.Printf("  Attempts: %d\n", job.Attempts)
	fmt.Printf("  Enqueued: %s\n", job.EnqueuedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		duration := job.CompletedAt.Sub(job.EnqueuedAt)
		fmt.Printf("  Duration: %s\n", duration.Round(time.Second))
	}

	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}

	return nil
}
