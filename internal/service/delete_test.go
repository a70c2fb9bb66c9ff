package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
	"github.com/Dcup-dev/dcup-ingest/internal/store"
)

func TestDeleteConnectionPurgesIndexAndRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payload := uploadPayload(
		models.SerializedFile{Name: "a.txt", Type: "text/plain", Content: encoded("alpha")},
		models.SerializedFile{Name: "b.txt", Type: "text/plain", Content: encoded("beta")},
	)
	require.NoError(t, f.ingestor.Run(ctx, "job-1", payload))
	require.Equal(t, 2, f.index.size())

	require.NoError(t, f.deleter.DeleteConnection(ctx, "conn-1"))

	assert.Equal(t, 0, f.index.size(), "every chunk of the connection is removed")
	require.Len(t, f.index.deleted, 2)
	for _, d := range f.index.deleted {
		assert.Equal(t, "user-1", d[1], "deletes are scoped to the owner")
	}

	_, err := f.store.GetConnection(ctx, "conn-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteConnectionRefusesActiveJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetJobID(ctx, "conn-1", "job-9"))

	err := f.deleter.DeleteConnection(ctx, "conn-1")
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	_, getErr := f.store.GetConnection(ctx, "conn-1")
	assert.NoError(t, getErr, "the connection must survive a refused delete")
}

func TestDeleteConnectionUnknownID(t *testing.T) {
	f := newFixture(t)

	err := f.deleter.DeleteConnection(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
