package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dcup-dev/dcup-ingest/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server pipeline statistics",
	Long:  `Show in-memory timing statistics per pipeline stage. Counters reset on server restart.`,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	snap, err := api.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Printf("Uptime: %.0fs\n\n", snap.UptimeSeconds)
	fmt.Printf("%-18s %8s %12s %10s %10s %10s\n", "OPERATION", "COUNT", "TOTAL MS", "AVG MS", "MAX MS", "UNITS")
	fmt.Println("-------------------------------------------------------------------------")

	printOp("connector fetch", snap.ConnectorFetch)
	printOp("extract", snap.Extract)
	printOp("embedding", snap.Embedding)
	printOp("vector upsert", snap.VectorUpsert)
	printOp("vector delete", snap.VectorDelete)

	return nil
}

func printOp(name string, op *metrics.OperationSnapshot) {
	if op == nil {
		return
	}
	units := ""
	if op.TotalUnits != nil {
		units = fmt.Sprintf("%d", *op.TotalUnits)
	}
	fmt.Printf("%-18s %8d %12d %10.1f %10d %10s\n",
		name, op.Count, op.TotalTimeMs, op.AvgTimeMs, op.MaxTimeMs, units)
}
