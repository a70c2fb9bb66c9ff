package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dcup-dev/dcup-ingest/internal/metrics"
	"github.com/Dcup-dev/dcup-ingest/internal/models"
	"github.com/Dcup-dev/dcup-ingest/internal/queue"
	"github.com/Dcup-dev/dcup-ingest/internal/store"
)

// Deleter removes a connection together with every chunk it ever wrote to
// the vector index.
type Deleter struct {
	cfg       Config
	store     *store.Store
	index     VectorIndex
	collector *metrics.Collector
}

// NewDeleter creates the connection removal collaborator.
func NewDeleter(cfg Config, st *store.Store, index VectorIndex, collector *metrics.Collector) *Deleter {
	return &Deleter{cfg: cfg.withDefaults(), store: st, index: index, collector: collector}
}

// DeleteConnection removes the connection's index entries first and its
// relational rows second, so a partial failure leaves rows behind for a
// retried delete rather than orphaned vectors.
//
// A connection with an active job cannot be deleted; the job must finish
// or be stopped first.
func (d *Deleter) DeleteConnection(ctx context.Context, connectionID string) error {
	conn, err := d.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if conn.JobID != nil {
		return models.NewValidationError("connection %s has an active job %s", connectionID, *conn.JobID)
	}

	files, err := d.store.FilesForConnection(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("list processed files: %w", err)
	}

	for _, file := range files {
		start := time.Now()
		err := queue.RetryTransient(ctx, func() error {
			return d.index.Delete(ctx, file.Name, conn.UserID)
		}, d.cfg.MaxAttempts, d.cfg.RetryBase)
		if err != nil {
			return fmt.Errorf("delete chunks for %s: %w", file.Name, err)
		}
		if d.collector != nil {
			d.collector.RecordUnits(metrics.OpVectorDelete, time.Since(start), int64(len(file.ChunkIDs)))
		}
	}

	if err := d.store.DeleteConnection(ctx, connectionID); err != nil {
		return fmt.Errorf("delete connection rows: %w", err)
	}
	slog.Info("connection deleted", "connection_id", connectionID, "files", len(files))
	return nil
}
