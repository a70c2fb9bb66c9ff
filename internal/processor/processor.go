// Package processor turns one normalized document into embedded, ordered
// chunk records ready for an index upsert.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/Dcup-dev/dcup-ingest/internal/connectors"
	"github.com/Dcup-dev/dcup-ingest/internal/embedding"
	"github.com/Dcup-dev/dcup-ingest/internal/extract"
	"github.com/Dcup-dev/dcup-ingest/internal/metrics"
	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

const (
	// chunkSize and chunkOverlap mirror the splitter configuration used for
	// the existing index; changing them shifts chunk boundaries and calls
	// for a re-sync.
	chunkSize    = 4096
	chunkOverlap = chunkSize * 15 / 100
)

// DocumentMeta carries per-job context stamped into every chunk payload.
type DocumentMeta struct {
	UserID       string
	ConnectionID string
	Service      models.Service
	Partition    string
	Metadata     string
}

// Processor splits extracted document text into chunks and embeds each one.
type Processor struct {
	extractor extract.Extractor
	embedder  embedding.Embedder
	collector *metrics.Collector
	splitter  textsplitter.RecursiveCharacter
}

// New creates a Processor around the extraction and embedding collaborators.
// The collector may be nil.
func New(extractor extract.Extractor, embedder embedding.Embedder, collector *metrics.Collector) *Processor {
	return &Processor{
		extractor: extractor,
		embedder:  embedder,
		collector: collector,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n## ", "\n\n# ", "\n\n", "\n", ". ", "! ", "? ", " "}),
		),
	}
}

// PageCheckpoint is invoked after each processed page with the running page
// count. Returning false stops processing the remaining pages; partial
// results are returned without error.
type PageCheckpoint func(processedPages int) bool

// Process extracts, splits and embeds one document. Chunk ids derive from
// (document name, page number, chunk index), so re-processing an unchanged
// document produces the identical id set.
//
// Any extraction or embedding failure is returned to the caller, who
// records it as a failed file; it must not fail the enclosing job.
func (p *Processor) Process(ctx context.Context, doc connectors.Document, meta DocumentMeta, checkpoint PageCheckpoint) ([]models.ChunkRecord, int, error) {
	if doc.Err != nil {
		return nil, 0, doc.Err
	}

	extractStart := time.Now()
	pages, err := p.extractor.Extract(ctx, doc.Name, doc.ContentType, doc.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("extract %s: %w", doc.Name, err)
	}
	if p.collector != nil {
		p.collector.RecordUnits(metrics.OpExtract, time.Since(extractStart), int64(len(pages)))
	}

	metadata := doc.Metadata
	if metadata == "" {
		metadata = meta.Metadata
	}

	var records []models.ChunkRecord
	processed := 0
	for _, page := range pages {
		chunks, err := p.splitter.SplitText(page.Text)
		if err != nil {
			return nil, processed, fmt.Errorf("split %s page %d: %w", doc.Name, page.Number, err)
		}
		if len(chunks) == 0 {
			processed++
			if checkpoint != nil && !checkpoint(processed) {
				return records, processed, nil
			}
			continue
		}

		embedStart := time.Now()
		vectors, err := p.embedder.EmbedBatch(ctx, chunks)
		if err != nil {
			return nil, processed, fmt.Errorf("embed %s page %d: %w", doc.Name, page.Number, err)
		}
		if p.collector != nil {
			p.collector.RecordUnits(metrics.OpEmbedding, time.Since(embedStart), int64(len(chunks)))
		}

		for i, chunk := range chunks {
			records = append(records, models.ChunkRecord{
				ID:     models.ChunkID(doc.Name, page.Number, i),
				Vector: vectors[i],
				Payload: models.ChunkPayload{
					DocumentID:   doc.Name,
					UserID:       meta.UserID,
					ConnectionID: meta.ConnectionID,
					Text:         chunk,
					PageNumber:   page.Number,
					Source:       string(meta.Service),
					Partition:    meta.Partition,
					Metadata:     metadata,
				},
			})
		}

		processed++
		if checkpoint != nil && !checkpoint(processed) {
			return records, processed, nil
		}
	}

	return records, processed, nil
}
