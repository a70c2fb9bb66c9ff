package config_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dcup-dev/dcup-ingest/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:6333", cfg.QdrantURL)
	assert.Equal(t, "documents", cfg.QdrantCollection)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 500*time.Millisecond, cfg.EnqueueDelay)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DCUP_PORT", "9090")
	t.Setenv("QDRANT_DB_URL", "http://qdrant.internal:6333")
	t.Setenv("DCUP_WORKERS", "8")
	t.Setenv("DCUP_ENQUEUE_DELAY", "2s")
	t.Setenv("DCUP_LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "http://qdrant.internal:6333", cfg.QdrantURL)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 2*time.Second, cfg.EnqueueDelay)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadConfigFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dcup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7070\"\nqdrant_collection: archive\n"), 0o644))
	t.Setenv("DCUP_CONFIG_FILE", path)
	t.Setenv("DCUP_PORT", "9090")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port, "env overrides the config file")
	assert.Equal(t, "archive", cfg.QdrantCollection)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("DCUP_CONFIG_FILE", filepath.Join(t.TempDir(), "none.yaml"))

	_, err := config.Load()
	assert.Error(t, err)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := config.SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("job enqueued", "job_id", "abc")
	logger.Debug("suppressed")

	assert.Contains(t, stderr.String(), "job enqueued")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry), "file output is JSON")
	assert.Equal(t, "job enqueued", entry["msg"])
	assert.Equal(t, "abc", entry["job_id"])
	assert.NotContains(t, file.String(), "suppressed")
}
