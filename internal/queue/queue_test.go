package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
	"github.com/Dcup-dev/dcup-ingest/internal/queue"
)

// runnerFunc adapts a function to the Runner interface.
type runnerFunc func(ctx context.Context, jobID string, payload models.JobPayload) error

func (f runnerFunc) Run(ctx context.Context, jobID string, payload models.JobPayload) error {
	return f(ctx, jobID, payload)
}

func newTestQueue(t *testing.T, runner queue.Runner) *queue.Queue {
	t.Helper()
	q, err := queue.New(queue.Config{
		Workers:      2,
		EnqueueDelay: time.Millisecond,
		MaxAttempts:  2,
		RetryBase:    time.Millisecond,
	}, runner, queue.NewCancelRegistry())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Shutdown(ctx)
	})
	return q
}

func waitForStatus(t *testing.T, q *queue.Queue, jobID string, want models.JobStatus) models.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := q.Get(jobID)
		if ok && snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap, _ := q.Get(jobID)
	t.Fatalf("job %s never reached %s, last status %s (error %q)", jobID, want, snap.Status, snap.Error)
	return models.JobSnapshot{}
}

func TestEnqueueRejectsUnknownService(t *testing.T) {
	q := newTestQueue(t, runnerFunc(func(context.Context, string, models.JobPayload) error {
		return nil
	}))

	_, err := q.Enqueue(models.JobPayload{Service: "DROPBOX"})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestJobRunsToCompletion(t *testing.T) {
	var gotJobID atomic.Value
	q := newTestQueue(t, runnerFunc(func(_ context.Context, jobID string, payload models.JobPayload) error {
		gotJobID.Store(jobID)
		return nil
	}))

	id, err := q.Enqueue(models.JobPayload{Service: models.ServiceDirectUpload, ConnectionID: "conn-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap := waitForStatus(t, q, id, models.JobStatusCompleted)
	assert.Equal(t, 1, snap.Attempts)
	assert.NotNil(t, snap.CompletedAt)
	assert.Equal(t, id, gotJobID.Load(), "runner must receive the public job id")
}

func TestJobRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	q := newTestQueue(t, runnerFunc(func(context.Context, string, models.JobPayload) error {
		if calls.Add(1) == 1 {
			return &models.TransientError{Err: errors.New("index unavailable")}
		}
		return nil
	}))

	id, err := q.Enqueue(models.JobPayload{Service: models.ServiceAWSS3, ConnectionID: "conn-1"})
	require.NoError(t, err)

	snap := waitForStatus(t, q, id, models.JobStatusCompleted)
	assert.Equal(t, 2, snap.Attempts)
}

func TestJobFailsOnValidationError(t *testing.T) {
	var calls atomic.Int32
	q := newTestQueue(t, runnerFunc(func(context.Context, string, models.JobPayload) error {
		calls.Add(1)
		return models.NewValidationError("connection missing")
	}))

	id, err := q.Enqueue(models.JobPayload{Service: models.ServiceGoogleDrive, ConnectionID: "conn-1"})
	require.NoError(t, err)

	snap := waitForStatus(t, q, id, models.JobStatusFailed)
	assert.Contains(t, snap.Error, "connection missing")
	assert.Equal(t, int32(1), calls.Load(), "validation failures must not be retried")
}

func TestCancellationConvergesToCancelled(t *testing.T) {
	release := make(chan struct{})
	q := newTestQueue(t, runnerFunc(func(_ context.Context, jobID string, _ models.JobPayload) error {
		// Simulate a cooperative runner: block until the flag flips, then
		// return normally with partial work kept.
		<-release
		return nil
	}))

	id, err := q.Enqueue(models.JobPayload{Service: models.ServiceDirectUpload, ConnectionID: "conn-1"})
	require.NoError(t, err)
	waitForStatus(t, q, id, models.JobStatusActive)

	q.Registry().RequestCancel(id)
	close(release)

	waitForStatus(t, q, id, models.JobStatusCancelled)
	assert.False(t, q.Registry().IsCancelled(id), "flag must be cleared once the job settles")
}

func TestListReturnsNewestFirst(t *testing.T) {
	q := newTestQueue(t, runnerFunc(func(context.Context, string, models.JobPayload) error {
		return nil
	}))

	first, err := q.Enqueue(models.JobPayload{Service: models.ServiceDirectUpload, ConnectionID: "a"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := q.Enqueue(models.JobPayload{Service: models.ServiceDirectUpload, ConnectionID: "b"})
	require.NoError(t, err)

	waitForStatus(t, q, first, models.JobStatusCompleted)
	waitForStatus(t, q, second, models.JobStatusCompleted)

	jobs := q.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, second, jobs[0].ID)
	assert.Equal(t, first, jobs[1].ID)
}

func TestGetUnknownJob(t *testing.T) {
	q := newTestQueue(t, runnerFunc(func(context.Context, string, models.JobPayload) error {
		return nil
	}))

	_, ok := q.Get("nope")
	assert.False(t, ok)
}
