// Package vector provides the Qdrant-backed vector index used for chunk
// storage: idempotent id-keyed upserts and tenant-scoped deletes.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

const (
	// DefaultDimension matches the embedding model output. A collection is
	// created with this size once and never resized.
	DefaultDimension = 1536

	// DefaultCollection is the shared collection name for all documents.
	DefaultCollection = "documents"
)

// ErrDimensionMismatch signals a vector whose length does not match the
// collection. This is a deployment configuration error, never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Config holds Qdrant connection settings.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
}

// Client talks to a Qdrant server over its HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	httpClient *http.Client

	mu      sync.Mutex
	ensured bool
}

// NewClient creates a Qdrant client. The collection is created lazily on
// first use with cosine distance.
func NewClient(cfg Config) *Client {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}
	return &Client{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Dimension returns the collection's vector size.
func (c *Client) Dimension() int {
	return c.dimension
}

type point struct {
	ID      string              `json:"id"`
	Vector  []float32           `json:"vector"`
	Payload models.ChunkPayload `json:"payload"`
}

// Upsert writes chunk records in one id-keyed batch. Records whose id
// already exists are overwritten in place, so re-ingestion of an unchanged
// document never grows the index.
func (c *Client) Upsert(ctx context.Context, records []models.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) != c.dimension {
			return fmt.Errorf("%w: got %d, collection has %d", ErrDimensionMismatch, len(r.Vector), c.dimension)
		}
	}
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]point, len(records))
	for i, r := range records {
		points[i] = point{ID: r.ID, Vector: r.Vector, Payload: r.Payload}
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil)
}

// Delete removes exactly the chunks of one document owned by one user.
// Both filter conditions are required: document names are only unique per
// tenant.
func (c *Client) Delete(ctx context.Context, documentID, userID string) error {
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	filter := map[string]any{
		"must": []map[string]any{
			{"key": "documentId", "match": map[string]any{"value": documentID}},
			{"key": "userId", "match": map[string]any{"value": userID}},
		},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	return c.do(ctx, http.MethodPost, path, map[string]any{"filter": filter}, nil)
}

// Count returns the number of points stored for a document and user.
func (c *Client) Count(ctx context.Context, documentID, userID string) (int, error) {
	if err := c.ensureCollection(ctx); err != nil {
		return 0, err
	}

	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "documentId", "match": map[string]any{"value": documentID}},
				{"key": "userId", "match": map[string]any{"value": userID}},
			},
		},
		"exact": true,
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", c.collection)
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// ensureCollection creates the collection on first use. The ensured flag
// is latched only after a successful check so a failure here is retried
// on the next call instead of poisoning the client for the life of the
// process.
func (c *Client) ensureCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ensured {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/collections/"+c.collection, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.TransientError{Err: fmt.Errorf("check collection: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{"size": c.dimension, "distance": "Cosine"},
		}
		if err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, body, nil); err != nil {
			return err
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &models.TransientError{Err: fmt.Errorf("check collection: unexpected status %d", resp.StatusCode)}
	default:
		return fmt.Errorf("check collection: unexpected status %d", resp.StatusCode)
	}

	c.ensured = true
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.TransientError{Err: fmt.Errorf("qdrant request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		reqErr := fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, msg)
		// Overload and server-side failures are retryable; everything else
		// indicates a bad request.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &models.TransientError{Err: reqErr}
		}
		return reqErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
