// Package embedding provides text embedding generation behind a small
// provider interface.
package embedding

import (
	"context"
)

// Embedder is the external embedding provider boundary.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// More efficient than repeated Embed calls for bulk operations.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// Must match the vector collection's configured size.
	Dimension() int
}
