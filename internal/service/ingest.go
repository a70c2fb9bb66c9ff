// Package service wires the ingestion pipeline together: connector fetch,
// chunking and embedding, idempotent index writes, relational bookkeeping
// and progress broadcast.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dcup-dev/dcup-ingest/internal/connectors"
	"github.com/Dcup-dev/dcup-ingest/internal/metrics"
	"github.com/Dcup-dev/dcup-ingest/internal/models"
	"github.com/Dcup-dev/dcup-ingest/internal/processor"
	"github.com/Dcup-dev/dcup-ingest/internal/progress"
	"github.com/Dcup-dev/dcup-ingest/internal/queue"
	"github.com/Dcup-dev/dcup-ingest/internal/store"
)

// VectorIndex is the chunk storage boundary.
type VectorIndex interface {
	Upsert(ctx context.Context, records []models.ChunkRecord) error
	Delete(ctx context.Context, documentID, userID string) error
}

// Canceller is the cooperative cancellation probe polled between units.
type Canceller interface {
	IsCancelled(jobID string) bool
}

// Config tunes per-document retry behavior.
type Config struct {
	MaxAttempts int
	RetryBase   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	return c
}

// Ingestor executes ingestion jobs. It satisfies the queue's Runner
// contract.
type Ingestor struct {
	cfg       Config
	store     *store.Store
	index     VectorIndex
	processor *processor.Processor
	factory   *connectors.Factory
	bus       *progress.Bus
	cancels   Canceller
	collector *metrics.Collector
}

// NewIngestor creates the job runner.
func NewIngestor(cfg Config, st *store.Store, index VectorIndex, proc *processor.Processor, factory *connectors.Factory, bus *progress.Bus, cancels Canceller, collector *metrics.Collector) *Ingestor {
	return &Ingestor{
		cfg:       cfg.withDefaults(),
		store:     st,
		index:     index,
		processor: proc,
		factory:   factory,
		bus:       bus,
		cancels:   cancels,
		collector: collector,
	}
}

// jobState accumulates progress across one run. Slices are copied on
// publish so events are immutable snapshots.
type jobState struct {
	connectionID   string
	filesCompleted []string
	filesFailed    []models.FileFailure
	processedPages int
}

func (s *jobState) event() models.ProgressEvent {
	completed := make([]string, len(s.filesCompleted))
	copy(completed, s.filesCompleted)
	failed := make([]models.FileFailure, len(s.filesFailed))
	copy(failed, s.filesFailed)
	return models.ProgressEvent{
		ConnectionID:   s.connectionID,
		FilesCompleted: completed,
		FilesFailed:    failed,
		ProcessedPage:  s.processedPages,
	}
}

// Run processes one job payload. Per-document failures are isolated and
// surfaced only through progress events; a nil return covers both full
// completion and a cooperatively cancelled run with partial progress.
func (ing *Ingestor) Run(ctx context.Context, jobID string, payload models.JobPayload) error {
	conn, err := ing.validate(ctx, payload)
	if err != nil {
		return err
	}

	if err := ing.store.SetJobID(ctx, conn.ID, jobID); err != nil {
		return fmt.Errorf("mark job active: %w", err)
	}
	defer func() {
		// Cleared on every terminal and retryable exit; a retrying
		// attempt re-sets it on entry.
		if err := ing.store.ClearJobID(context.WithoutCancel(ctx), conn.ID); err != nil {
			slog.Warn("failed to clear connection job id", "connection_id", conn.ID, "error", err)
		}
	}()

	var source connectors.Connector
	if payload.Service == models.ServiceDirectUpload {
		source = connectors.NewDirectUpload(payload)
	} else {
		source, err = ing.factory.ForConnection(conn, payload)
		if err != nil {
			return err
		}
	}

	state := &jobState{connectionID: conn.ID}
	meta := processor.DocumentMeta{
		UserID:       conn.UserID,
		ConnectionID: conn.ID,
		Service:      payload.Service,
		Partition:    conn.Partition,
		Metadata:     payload.Metadata,
	}
	if meta.Metadata == "" {
		meta.Metadata = conn.Metadata
	}

	fetchStart := time.Now()
	streamErr := source.Documents(ctx, func(doc connectors.Document) error {
		// Polled once per source item; a positive check stops scheduling
		// further documents and ends the job normally.
		if ing.cancels.IsCancelled(jobID) {
			slog.Info("cancellation observed, stopping job", "job_id", jobID, "connection_id", conn.ID)
			return connectors.ErrStopIteration
		}

		cancelled := ing.processDocument(ctx, jobID, doc, meta, state)
		ing.bus.Publish(state.event())
		if cancelled {
			return connectors.ErrStopIteration
		}
		return nil
	})
	if ing.collector != nil {
		ing.collector.RecordUnits(metrics.OpConnectorFetch, time.Since(fetchStart), int64(len(state.filesCompleted)))
	}
	if streamErr != nil {
		return streamErr
	}

	ing.bus.Publish(state.event())
	slog.Info("job processed",
		"job_id", jobID,
		"connection_id", conn.ID,
		"completed", len(state.filesCompleted),
		"failed", len(state.filesFailed),
		"pages", state.processedPages)
	return nil
}

// validate checks the payload and resolves its owning connection.
func (ing *Ingestor) validate(ctx context.Context, payload models.JobPayload) (*models.Connection, error) {
	if payload.ConnectionID == "" {
		return nil, models.NewValidationError("missing connection id")
	}
	if payload.Service == models.ServiceDirectUpload &&
		len(payload.Files) == 0 && len(payload.Texts) == 0 && len(payload.Links) == 0 {
		return nil, models.NewValidationError("direct upload payload carries no files, texts or links")
	}

	conn, err := ing.store.GetConnection(ctx, payload.ConnectionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NewValidationError("connection %s not found", payload.ConnectionID)
	}
	if err != nil {
		return nil, &models.TransientError{Err: err}
	}
	if conn.Service != payload.Service {
		return nil, models.NewValidationError("payload service %q does not match connection service %q", payload.Service, conn.Service)
	}
	return conn, nil
}

// processDocument runs the per-document pipeline with bounded retries.
// Failures are recorded in state and never propagated. The returned flag
// reports a cancellation observed at page granularity.
func (ing *Ingestor) processDocument(ctx context.Context, jobID string, doc connectors.Document, meta processor.DocumentMeta, state *jobState) (cancelled bool) {
	if doc.Err != nil {
		state.filesFailed = append(state.filesFailed, models.FileFailure{
			FileName:     doc.Name,
			ErrorMessage: doc.Err.Error(),
		})
		slog.Warn("document fetch failed", "job_id", jobID, "file", doc.Name, "error", doc.Err)
		return false
	}

	// The base keeps the running page count monotonic when a document
	// restarts from its first page after a transient failure.
	basePages := state.processedPages
	checkpoint := func(pages int) bool {
		state.processedPages = basePages + pages
		ing.bus.Publish(state.event())
		// Polled once per page within a paginated document.
		return !ing.cancels.IsCancelled(jobID)
	}

	var (
		records   []models.ChunkRecord
		pagesDone int
	)
	err := queue.RetryTransient(ctx, func() error {
		var procErr error
		records, pagesDone, procErr = ing.processor.Process(ctx, doc, meta, checkpoint)
		if procErr != nil {
			return procErr
		}

		upsertStart := time.Now()
		if upsertErr := ing.index.Upsert(ctx, records); upsertErr != nil {
			return upsertErr
		}
		if ing.collector != nil {
			ing.collector.RecordUnits(metrics.OpVectorUpsert, time.Since(upsertStart), int64(len(records)))
		}
		return nil
	}, ing.cfg.MaxAttempts, ing.cfg.RetryBase)
	if err != nil {
		state.filesFailed = append(state.filesFailed, models.FileFailure{
			FileName:     doc.Name,
			ErrorMessage: err.Error(),
		})
		slog.Warn("document processing failed", "job_id", jobID, "file", doc.Name, "error", err)
		return false
	}

	cancelled = ing.cancels.IsCancelled(jobID)
	if cancelled && pagesDone == 0 {
		// Nothing committed for this document; stop without recording it.
		return true
	}

	chunkIDs := make([]string, len(records))
	for i, r := range records {
		chunkIDs[i] = r.ID
	}
	file := &models.ProcessedFile{
		ConnectionID: meta.ConnectionID,
		Name:         doc.Name,
		ChunkIDs:     chunkIDs,
		TotalPages:   pagesDone,
	}
	if err := ing.store.UpsertProcessedFile(ctx, file); err != nil {
		// The vector writes already landed; losing the bookkeeping row is
		// the documented consistency gap between the two stores.
		slog.Error("failed to record processed file", "job_id", jobID, "file", doc.Name, "error", err)
		state.filesFailed = append(state.filesFailed, models.FileFailure{
			FileName:     doc.Name,
			ErrorMessage: fmt.Sprintf("record processed file: %v", err),
		})
		return cancelled
	}

	if cancelled {
		// The row mirrors what the index holds so the next run overwrites
		// both, but a document cut short mid-stream is reported neither
		// completed nor failed.
		return true
	}
	state.filesCompleted = append(state.filesCompleted, doc.Name)
	return false
}
