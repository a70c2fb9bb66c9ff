// Package queue schedules ingestion jobs onto a bounded worker pool and
// drives each job through its lifecycle: queued, active, and a terminal
// completed, failed or cancelled state.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

// Runner executes one ingestion job. A nil return is terminal success,
// including a cooperative cancellation observed mid-run.
type Runner interface {
	Run(ctx context.Context, jobID string, payload models.JobPayload) error
}

// Config tunes the queue.
type Config struct {
	// Workers bounds the number of concurrently executing jobs.
	Workers int
	// EnqueueDelay debounces rapid repeat submissions for a connection:
	// dispatch waits this long after enqueue.
	EnqueueDelay time.Duration
	// MaxAttempts bounds retries of transient job-level failures.
	MaxAttempts int
	// RetryBase is the initial backoff delay, doubled per attempt.
	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	return c
}

type job struct {
	mu          sync.Mutex
	id          string
	payload     models.JobPayload
	status      models.JobStatus
	err         string
	attempts    int
	enqueuedAt  time.Time
	completedAt *time.Time
}

func (j *job) snapshot() models.JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return models.JobSnapshot{
		ID:          j.id,
		Status:      j.status,
		Service:     j.payload.Service,
		Error:       j.err,
		Attempts:    j.attempts,
		EnqueuedAt:  j.enqueuedAt,
		CompletedAt: j.completedAt,
	}
}

// Queue owns the worker pool and the in-memory job table.
type Queue struct {
	cfg      Config
	runner   Runner
	registry *CancelRegistry
	pool     *ants.Pool

	mu   sync.RWMutex
	jobs map[string]*job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a queue with a bounded pool of workers.
func New(cfg Config, runner Runner, registry *CancelRegistry) (*Queue, error) {
	cfg = cfg.withDefaults()

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:      cfg,
		runner:   runner,
		registry: registry,
		pool:     pool,
		jobs:     make(map[string]*job),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Registry exposes the cancellation registry backing this queue.
func (q *Queue) Registry() *CancelRegistry {
	return q.registry
}

// Enqueue accepts a payload and returns an opaque, globally unique job id.
// The job starts after the configured debounce delay, when a worker slot is
// free.
func (q *Queue) Enqueue(payload models.JobPayload) (string, error) {
	if !models.KnownService(payload.Service) {
		return "", models.NewValidationError("unknown service %q", payload.Service)
	}

	j := &job{
		id:         uuid.NewString(),
		payload:    payload,
		status:     models.JobStatusQueued,
		enqueuedAt: time.Now(),
	}

	q.mu.Lock()
	q.jobs[j.id] = j
	q.mu.Unlock()

	q.wg.Add(1)
	if err := q.pool.Submit(func() {
		defer q.wg.Done()
		q.execute(j)
	}); err != nil {
		q.wg.Done()
		q.mu.Lock()
		delete(q.jobs, j.id)
		q.mu.Unlock()
		return "", fmt.Errorf("submit job: %w", err)
	}

	slog.Info("job enqueued", "job_id", j.id, "service", payload.Service, "connection_id", payload.ConnectionID)
	return j.id, nil
}

// execute drives one job to a terminal state. The cancellation entry is
// always cleared afterwards so the registry cannot grow.
func (q *Queue) execute(j *job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job_id", j.id, "panic", r)
			q.finish(j, models.JobStatusFailed, fmt.Sprintf("internal panic: %v", r))
		}
		q.registry.Clear(j.id)
	}()

	if q.cfg.EnqueueDelay > 0 {
		timer := time.NewTimer(q.cfg.EnqueueDelay)
		select {
		case <-q.ctx.Done():
			timer.Stop()
			q.finish(j, models.JobStatusCancelled, "queue shut down")
			return
		case <-timer.C:
		}
	}

	if q.ctx.Err() != nil {
		q.finish(j, models.JobStatusCancelled, "queue shut down")
		return
	}

	j.mu.Lock()
	j.status = models.JobStatusActive
	j.mu.Unlock()
	slog.Info("job started", "job_id", j.id, "service", j.payload.Service)

	err := RetryTransient(q.ctx, func() error {
		j.mu.Lock()
		j.attempts++
		j.mu.Unlock()
		return q.runner.Run(q.ctx, j.id, j.payload)
	}, q.cfg.MaxAttempts, q.cfg.RetryBase)

	switch {
	case err == nil && q.registry.IsCancelled(j.id):
		q.finish(j, models.JobStatusCancelled, "")
	case err == nil:
		q.finish(j, models.JobStatusCompleted, "")
	case q.ctx.Err() != nil:
		q.finish(j, models.JobStatusCancelled, "queue shut down")
	default:
		q.finish(j, models.JobStatusFailed, err.Error())
	}
}

func (q *Queue) finish(j *job, status models.JobStatus, errMsg string) {
	now := time.Now()
	j.mu.Lock()
	if j.completedAt != nil {
		j.mu.Unlock()
		return
	}
	j.status = status
	j.err = errMsg
	j.completedAt = &now
	j.mu.Unlock()

	if status == models.JobStatusFailed {
		slog.Error("job failed", "job_id", j.id, "error", errMsg)
	} else {
		slog.Info("job finished", "job_id", j.id, "status", status)
	}
}

// Get returns a snapshot of one job.
func (q *Queue) Get(id string) (models.JobSnapshot, bool) {
	q.mu.RLock()
	j, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return models.JobSnapshot{}, false
	}
	return j.snapshot(), true
}

// List returns snapshots of all jobs, most recent first.
func (q *Queue) List() []models.JobSnapshot {
	q.mu.RLock()
	jobs := make([]*job, 0, len(q.jobs))
	for _, j := range q.jobs {
		jobs = append(jobs, j)
	}
	q.mu.RUnlock()

	out := make([]models.JobSnapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.snapshot()
	}
	slices.SortFunc(out, func(a, b models.JobSnapshot) int {
		return b.EnqueuedAt.Compare(a.EnqueuedAt)
	})
	return out
}

// Shutdown stops accepting work and waits for running jobs to observe the
// cancelled context, up to the deadline on ctx.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		q.pool.Release()
		return ctx.Err()
	case <-done:
		q.pool.Release()
		return nil
	}
}
