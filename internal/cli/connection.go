package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Inspect or delete connections",
}

var connectionShowCmd = &cobra.Command{
	Use:   "show <connection-id>",
	Short: "Show a connection and its processed files",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionShow,
}

var connectionDeleteCmd = &cobra.Command{
	Use:   "delete <connection-id>",
	Short: "Delete a connection and all its indexed chunks",
	Long: `Delete a connection, its processed-file records, and every chunk it
wrote to the vector index. A connection with an active job cannot be
deleted; stop the job first.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnectionDelete,
}

func init() {
	connectionCmd.AddCommand(connectionShowCmd)
	connectionCmd.AddCommand(connectionDeleteCmd)
}

func runConnectionShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	conn, err := api.GetConnection(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}

	fmt.Printf("Connection: %s\n", conn.ID)
	fmt.Printf("  User: %s\n", conn.UserID)
	fmt.Printf("  Service: %s\n", conn.Service)
	if conn.Identifier != "" {
		fmt.Printf("  Identifier: %s\n", conn.Identifier)
	}
	if conn.FolderName != "" {
		fmt.Printf("  Folder: %s\n", conn.FolderName)
	}
	if conn.Partition != "" {
		fmt.Printf("  Partition: %s\n", conn.Partition)
	}
	if conn.JobID != nil {
		fmt.Printf("  Active job: %s\n", defaultTheme.statusStyle().Render(*conn.JobID))
	}
	if conn.LastSynced != nil {
		fmt.Printf("  Last synced: %s\n", *conn.LastSynced)
	}

	if len(conn.Files) == 0 {
		fmt.Println("\nNo processed files")
		return nil
	}

	fmt.Printf("\nProcessed files (%d):\n", len(conn.Files))
	for _, file := range conn.Files {
		fmt.Printf("  %-40s %4d pages  %4d chunks\n", file.Name, file.TotalPages, len(file.ChunkIDs))
	}

	return nil
}

func runConnectionDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := api.DeleteConnection(ctx, args[0]); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}

	fmt.Println(defaultTheme.completedStyle().Render("✓ Connection deleted"))
	return nil
}
