package connectors

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

// DirectUpload serves documents embedded in the job payload: uploaded files
// (base64), raw texts and downloadable links. No external authentication,
// no pagination.
type DirectUpload struct {
	payload    models.JobPayload
	httpClient *http.Client
}

var _ Connector = (*DirectUpload)(nil)

// NewDirectUpload creates the connector for a direct-upload payload.
func NewDirectUpload(payload models.JobPayload) *DirectUpload {
	return &DirectUpload{
		payload:    payload,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Documents yields payload files first, then raw texts, then links. A bad
// file or unreachable link is yielded as a fetch failure, not an error.
func (d *DirectUpload) Documents(ctx context.Context, fn func(Document) error) error {
	limit := 0
	if d.payload.FileLimit != nil {
		limit = *d.payload.FileLimit
	}
	yielded := 0

	emit := func(doc Document) (bool, error) {
		if limit > 0 && yielded >= limit {
			return false, nil
		}
		yielded++
		if err := fn(doc); err != nil {
			if err == ErrStopIteration {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}

	for _, file := range d.payload.Files {
		data, err := base64.StdEncoding.DecodeString(file.Content)
		var doc Document
		if err != nil {
			doc = fetchFailure(file.Name, fmt.Errorf("decode content: %w", err))
		} else {
			doc = Document{
				Name:        file.Name,
				ContentType: file.Type,
				Data:        data,
				Metadata:    d.payload.Metadata,
			}
		}
		if ok, err := emit(doc); !ok || err != nil {
			return err
		}
	}

	for i, text := range d.payload.Texts {
		doc := Document{
			Name:        fmt.Sprintf("text-%d", i+1),
			ContentType: "text/plain",
			Data:        []byte(text),
			Metadata:    d.payload.Metadata,
		}
		if ok, err := emit(doc); !ok || err != nil {
			return err
		}
	}

	for _, link := range d.payload.Links {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := d.fetchLink(ctx, link)
		if ok, err := emit(doc); !ok || err != nil {
			return err
		}
	}

	return nil
}

// fetchLink downloads one link. The link itself is the document name.
func (d *DirectUpload) fetchLink(ctx context.Context, link string) Document {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fetchFailure(link, err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fetchFailure(link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fetchFailure(link, fmt.Errorf("status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fetchFailure(link, err)
	}

	return Document{
		Name:        link,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
		Metadata:    d.payload.Metadata,
	}
}
