// Package client provides a REST client for the ingestion server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Dcup-dev/dcup-ingest/internal/metrics"
	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

// Client talks to the ingestion server's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
// If baseURL is empty, uses DCUP_SERVER_URL env var or defaults to localhost:8080.
// Timeout can be configured via DCUP_CLIENT_TIMEOUT env var (default 10m for large uploads).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("DCUP_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := 10 * time.Minute
	if t := os.Getenv("DCUP_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do executes one request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, apiErr.Message)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// SubmitJob enqueues an ingestion job and returns its id.
func (c *Client) SubmitJob(ctx context.Context, payload models.JobPayload) (string, error) {
	var result struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/jobs", payload, &result); err != nil {
		return "", err
	}
	return result.JobID, nil
}

// GetJob retrieves one job by id.
func (c *Client) GetJob(ctx context.Context, id string) (*models.JobSnapshot, error) {
	var snap models.JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListJobs returns all jobs known to the server, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]models.JobSnapshot, error) {
	var jobs []models.JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Connection is the server's read model for a connection.
type Connection struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"userId"`
	Service    models.Service         `json:"service"`
	Identifier string                 `json:"identifier"`
	FolderName string                 `json:"folderName,omitempty"`
	Partition  string                 `json:"partition,omitempty"`
	JobID      *string                `json:"jobId,omitempty"`
	LastSynced *string                `json:"lastSynced,omitempty"`
	Files      []models.ProcessedFile `json:"files"`
}

// GetConnection retrieves a connection with its processed files.
func (c *Client) GetConnection(ctx context.Context, id string) (*Connection, error) {
	var conn Connection
	if err := c.do(ctx, http.MethodGet, "/api/connections/"+id, nil, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// DeleteConnection removes a connection and its indexed chunks.
func (c *Client) DeleteConnection(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/connections/"+id, nil, nil)
}

// StopConnection requests cancellation of the connection's active job and
// returns the job id being stopped.
func (c *Client) StopConnection(ctx context.Context, id string) (string, error) {
	var result struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/connections/"+id+"/stop", nil, &result); err != nil {
		return "", err
	}
	return result.JobID, nil
}

// Stats returns the server's in-memory pipeline statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// StreamProgress subscribes to the server's shared progress stream. The
// onEvent callback is invoked for each event. Return an error from onEvent
// to abort; context cancellation ends the stream with ctx.Err().
func (c *Client) StreamProgress(ctx context.Context, onEvent func(models.ProgressEvent) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/progress", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout for the long-lived stream; the context bounds it.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event models.ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			return fmt.Errorf("unmarshal event: %w", err)
		}
		if err := onEvent(event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
