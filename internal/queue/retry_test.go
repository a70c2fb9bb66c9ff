package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
	"github.com/Dcup-dev/dcup-ingest/internal/queue"
)

func TestRetryTransientRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := queue.RetryTransient(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &models.TransientError{Err: errors.New("flaky")}
		}
		return nil
	}, 5, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryTransientExhaustsAttempts(t *testing.T) {
	calls := 0
	transient := &models.TransientError{Err: errors.New("down")}
	err := queue.RetryTransient(context.Background(), func() error {
		calls++
		return transient
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
	assert.Equal(t, 3, calls, "should stop after max attempts")
}

func TestRetryTransientDoesNotRetryOtherFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"validation", models.NewValidationError("bad payload")},
		{"auth", &models.AuthError{Err: errors.New("expired token")}},
		{"plain", errors.New("unclassified")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := queue.RetryTransient(context.Background(), func() error {
				calls++
				return tt.err
			}, 5, time.Millisecond)

			assert.Equal(t, tt.err, err)
			assert.Equal(t, 1, calls, "non-transient failure must not be retried")
		})
	}
}

func TestRetryTransientStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := queue.RetryTransient(ctx, func() error {
		calls++
		cancel()
		return &models.TransientError{Err: errors.New("flaky")}
	}, 5, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation during backoff must stop retrying")
}
