package models

import (
	"fmt"

	"github.com/google/uuid"
)

// chunkNamespace seeds deterministic chunk ids. Changing it would orphan
// every previously indexed chunk.
var chunkNamespace = uuid.MustParse("9a3e52de-8e1b-4b87-9d0f-6c1f1a2b3c4d")

// ChunkPayload is the metadata stored alongside a chunk's vector in the
// index. UserID scopes deletion so identical document names never collide
// across tenants.
type ChunkPayload struct {
	DocumentID   string `json:"documentId"`
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
	Text         string `json:"text"`
	PageNumber   int    `json:"pageNumber"`
	Source       string `json:"source,omitempty"`
	Partition    string `json:"partition,omitempty"`
	Metadata     string `json:"metadata,omitempty"`
}

// ChunkRecord is one embedded slice of a document, ready for an index upsert.
type ChunkRecord struct {
	ID      string
	Vector  []float32
	Payload ChunkPayload
}

// ChunkID derives the stable id for the chunk at (documentID, pageNumber,
// index). Re-processing the same document yields the same ids, so upserts
// overwrite in place instead of duplicating.
func ChunkID(documentID string, pageNumber, index int) string {
	return uuid.NewSHA1(chunkNamespace, fmt.Appendf(nil, "%s#%d#%d", documentID, pageNumber, index)).String()
}
