package processor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dcup-dev/dcup-ingest/internal/connectors"
	"github.com/Dcup-dev/dcup-ingest/internal/extract"
	"github.com/Dcup-dev/dcup-ingest/internal/models"
	"github.com/Dcup-dev/dcup-ingest/internal/processor"
)

// stubEmbedder returns fixed-size vectors without calling any API.
type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return vectors, nil
}

func (s *stubEmbedder) Model() string  { return "stub" }
func (s *stubEmbedder) Dimension() int { return 3 }

var meta = processor.DocumentMeta{
	UserID:       "user-1",
	ConnectionID: "conn-1",
	Service:      models.ServiceDirectUpload,
	Partition:    "default",
}

func textDoc(name, text string) connectors.Document {
	return connectors.Document{Name: name, ContentType: "text/plain", Data: []byte(text)}
}

func TestProcessProducesOrderedChunks(t *testing.T) {
	p := processor.New(extract.PlainText{}, &stubEmbedder{}, nil)

	records, pages, err := p.Process(context.Background(), textDoc("doc.txt", "first page\fsecond page"), meta, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "doc.txt", first.Payload.DocumentID)
	assert.Equal(t, "user-1", first.Payload.UserID)
	assert.Equal(t, "conn-1", first.Payload.ConnectionID)
	assert.Equal(t, "first page", first.Payload.Text)
	assert.Equal(t, 1, first.Payload.PageNumber)
	assert.Equal(t, 2, records[1].Payload.PageNumber)
	assert.Len(t, first.Vector, 3)
}

func TestProcessChunkIDsAreDeterministic(t *testing.T) {
	p := processor.New(extract.PlainText{}, &stubEmbedder{}, nil)
	doc := textDoc("report.txt", "page one\fpage two")

	first, _, err := p.Process(context.Background(), doc, meta, nil)
	require.NoError(t, err)
	second, _, err := p.Process(context.Background(), doc, meta, nil)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, "re-processing must produce the same id set")
	}
}

func TestProcessDifferentDocumentsGetDifferentIDs(t *testing.T) {
	p := processor.New(extract.PlainText{}, &stubEmbedder{}, nil)

	a, _, err := p.Process(context.Background(), textDoc("a.txt", "same text"), meta, nil)
	require.NoError(t, err)
	b, _, err := p.Process(context.Background(), textDoc("b.txt", "same text"), meta, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a[0].ID, b[0].ID, "ids are scoped by document name")
}

func TestProcessCheckpointStopsEarly(t *testing.T) {
	p := processor.New(extract.PlainText{}, &stubEmbedder{}, nil)
	doc := textDoc("big.txt", "one\ftwo\fthree")

	var seen []int
	records, pages, err := p.Process(context.Background(), doc, meta, func(processed int) bool {
		seen = append(seen, processed)
		return processed < 2
	})

	require.NoError(t, err, "a checkpoint stop is not a failure")
	assert.Equal(t, 2, pages)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Len(t, records, 2, "partial results up to the stop are kept")
}

func TestProcessPropagatesFetchError(t *testing.T) {
	p := processor.New(extract.PlainText{}, &stubEmbedder{}, nil)
	fetchErr := errors.New("download failed")

	_, _, err := p.Process(context.Background(), connectors.Document{Name: "x", Err: fetchErr}, meta, nil)
	assert.ErrorIs(t, err, fetchErr)
}

func TestProcessPropagatesEmbeddingError(t *testing.T) {
	embErr := &models.TransientError{Err: errors.New("rate limited")}
	p := processor.New(extract.PlainText{}, &stubEmbedder{err: embErr}, nil)

	_, _, err := p.Process(context.Background(), textDoc("doc.txt", "some text"), meta, nil)
	require.Error(t, err)
	assert.True(t, models.IsTransient(err), "classification must survive wrapping")
}

func TestProcessSkipsBlankPages(t *testing.T) {
	p := processor.New(extract.PlainText{}, &stubEmbedder{}, nil)

	records, pages, err := p.Process(context.Background(), textDoc("doc.txt", "content\f   \f"), meta, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pages, "blank pages are dropped at extraction")
	assert.Len(t, records, 1)
}
