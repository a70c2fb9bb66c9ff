// Package extract defines the boundary to the document-format text
// extraction collaborator. Format-specific parsers (PDF, OCR, tables) live
// behind the Extractor interface; the core only needs pages of text.
package extract

import (
	"context"
	"strings"
)

// Page is the extracted text of one document page. Numbers start at 1.
type Page struct {
	Number int
	Text   string
}

// Extractor turns raw document bytes into ordered pages of text.
type Extractor interface {
	Extract(ctx context.Context, name, contentType string, data []byte) ([]Page, error)
}

// PlainText extracts UTF-8 text content. Form feeds delimit pages, matching
// what the PDF extraction collaborator emits for multi-page documents.
type PlainText struct{}

var _ Extractor = PlainText{}

// Extract splits data into pages on form-feed boundaries. Input with no
// form feeds yields a single page.
func (PlainText) Extract(_ context.Context, _, _ string, data []byte) ([]Page, error) {
	parts := strings.Split(string(data), "\f")
	pages := make([]Page, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pages = append(pages, Page{Number: len(pages) + 1, Text: part})
	}
	return pages, nil
}
