package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dcup-dev/dcup-ingest/internal/metrics"
	"github.com/Dcup-dev/dcup-ingest/internal/models"
	"github.com/Dcup-dev/dcup-ingest/internal/progress"
	"github.com/Dcup-dev/dcup-ingest/internal/queue"
	"github.com/Dcup-dev/dcup-ingest/internal/server"
	"github.com/Dcup-dev/dcup-ingest/internal/service"
	"github.com/Dcup-dev/dcup-ingest/internal/store"
)

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// blockingRunner holds every job until released, so tests can observe the
// active phase deterministically.
type blockingRunner struct {
	started chan string
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(ctx context.Context, jobID string, payload models.JobPayload) error {
	r.started <- jobID
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.release:
		return nil
	}
}

type testEnv struct {
	server   *httptest.Server
	store    *store.Store
	bus      *progress.Bus
	queue    *queue.Queue
	registry *queue.CancelRegistry
	index    *fakeIndex
	runner   *blockingRunner
}

// fakeIndex satisfies the deleter's index dependency.
type fakeIndex struct {
	deleted [][2]string
}

func (f *fakeIndex) Upsert(context.Context, []models.ChunkRecord) error { return nil }

func (f *fakeIndex) Delete(_ context.Context, documentID, userID string) error {
	f.deleted = append(f.deleted, [2]string{documentID, userID})
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)

	registry := queue.NewCancelRegistry()
	runner := newBlockingRunner()
	q, err := queue.New(queue.Config{Workers: 2, EnqueueDelay: time.Millisecond}, runner, registry)
	require.NoError(t, err)
	t.Cleanup(func() {
		close(runner.release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Shutdown(ctx)
	})

	bus := progress.NewBus()
	t.Cleanup(bus.Close)

	index := &fakeIndex{}
	deleter := service.NewDeleter(service.Config{}, st, index, nil)

	srv := server.New(q, st, bus, deleter, metrics.NewCollector(), testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, store: st, bus: bus, queue: q, registry: registry, index: index, runner: runner}
}

func (e *testEnv) seedConnection(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.store.SaveConnection(context.Background(), &models.Connection{
		ID:      id,
		UserID:  "user-1",
		Service: models.ServiceDirectUpload,
	}))
}

func (e *testEnv) request(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")
}

func TestSubmitJob(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/jobs", models.JobPayload{
		ConnectionID: "conn-1",
		Service:      models.ServiceDirectUpload,
		Texts:        []string{"hello"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.NotEmpty(t, result["jobId"])
}

func TestSubmitJobUnknownService(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodPost, "/api/jobs", models.JobPayload{
		ConnectionID: "conn-1",
		Service:      "FTP",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/jobs", models.JobPayload{
		ConnectionID: "conn-1",
		Service:      models.ServiceDirectUpload,
		Texts:        []string{"hello"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var submitted map[string]string
	require.NoError(t, json.Unmarshal(body, &submitted))

	resp, body = env.request(t, http.MethodGet, "/api/jobs/"+submitted["jobId"], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap models.JobSnapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, submitted["jobId"], snap.ID)

	resp, _ = env.request(t, http.MethodGet, "/api/jobs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStopConnection(t *testing.T) {
	env := newTestEnv(t)
	env.seedConnection(t, "conn-1")

	// Without an active job the request is rejected.
	resp, _ := env.request(t, http.MethodPost, "/api/connections/conn-1/stop", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Simulate an active job and stop it.
	require.NoError(t, env.store.SetJobID(context.Background(), "conn-1", "job-7"))
	resp, body := env.request(t, http.MethodPost, "/api/connections/conn-1/stop", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, string(body), "job-7")
	assert.True(t, env.registry.IsCancelled("job-7"), "the flag must be visible to the worker")
}

func TestGetConnection(t *testing.T) {
	env := newTestEnv(t)
	env.seedConnection(t, "conn-1")
	require.NoError(t, env.store.UpsertProcessedFile(context.Background(), &models.ProcessedFile{
		ConnectionID: "conn-1",
		Name:         "a.txt",
		ChunkIDs:     []string{"c1"},
		TotalPages:   1,
	}))

	resp, body := env.request(t, http.MethodGet, "/api/connections/conn-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		ID    string                 `json:"id"`
		Files []models.ProcessedFile `json:"files"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "conn-1", view.ID)
	require.Len(t, view.Files, 1)
	assert.Equal(t, "a.txt", view.Files[0].Name)
	assert.NotContains(t, string(body), "access_token", "credentials must not leak")

	resp, _ = env.request(t, http.MethodGet, "/api/connections/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteConnection(t *testing.T) {
	env := newTestEnv(t)
	env.seedConnection(t, "conn-1")
	require.NoError(t, env.store.UpsertProcessedFile(context.Background(), &models.ProcessedFile{
		ConnectionID: "conn-1",
		Name:         "a.txt",
		ChunkIDs:     []string{"c1"},
	}))

	resp, _ := env.request(t, http.MethodDelete, "/api/connections/conn-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, env.index.deleted, 1)
	assert.Equal(t, [2]string{"a.txt", "user-1"}, env.index.deleted[0])

	_, err := env.store.GetConnection(context.Background(), "conn-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProgressStreamDeliversEvents(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/progress", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the handler to subscribe before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for env.bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotZero(t, env.bus.SubscriberCount())

	env.bus.Publish(models.ProgressEvent{
		ConnectionID:   "conn-1",
		FilesCompleted: []string{"a.txt"},
		ProcessedPage:  4,
	})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), "got line %q", line)

	var event models.ProgressEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &event))
	assert.Equal(t, "conn-1", event.ConnectionID)
	assert.Equal(t, 4, event.ProcessedPage)
}

func TestProgressStreamReleasesSubscriptionOnDisconnect(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/progress", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, env.bus.SubscriberCount())

	cancel()

	deadline = time.Now().Add(2 * time.Second)
	for env.bus.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Zero(t, env.bus.SubscriberCount(), "a dropped client must release its subscription")
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}
