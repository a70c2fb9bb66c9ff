package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <connection-id>",
	Short: "Stop the active job of a connection",
	Long: `Request cancellation of a connection's active ingestion job.

Cancellation is cooperative: the job stops between documents and pages,
keeping everything already written to the index. The command fails when
the connection has no active job.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	jobID, err := api.StopConnection(ctx, args[0])
	if err != nil {
		return fmt.Errorf("stop connection: %w", err)
	}

	fmt.Printf("Cancellation requested for job %s\n", jobID)
	fmt.Println(defaultTheme.hintStyle().Render("The job stops at the next document or page boundary."))
	return nil
}
