// Package config loads service configuration from the environment and an
// optional YAML file, and wires up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	Port string `yaml:"port"`

	// Relational bookkeeping store (sqlite file path, ":memory:" for tests)
	DatabasePath string `yaml:"database_path"`

	// Qdrant vector index
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantAPIKey     string `yaml:"qdrant_api_key"`
	QdrantCollection string `yaml:"qdrant_collection"`

	// OpenAI-compatible embeddings
	EmbeddingHost  string `yaml:"embedding_host"`
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingKey   string `yaml:"embedding_key"`

	// Job queue
	WorkerCount  int           `yaml:"worker_count"`
	EnqueueDelay time.Duration `yaml:"enqueue_delay"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBase    time.Duration `yaml:"retry_base"`

	// Google Drive OAuth app credentials
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present; DCUP_CONFIG_FILE points to an optional
// YAML file whose values are applied before env overrides.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:             "8080",
		DatabasePath:     "dcup.db",
		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "documents",
		EmbeddingHost:    "https://api.openai.com/v1",
		EmbeddingModel:   "text-embedding-3-small",
		WorkerCount:      4,
		EnqueueDelay:     500 * time.Millisecond,
		MaxAttempts:      3,
		RetryBase:        500 * time.Millisecond,
		LogFile:          "",
		LogLevel:         slog.LevelInfo,
	}

	if path := os.Getenv("DCUP_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("DCUP_PORT", cfg.Port)
	cfg.DatabasePath = getEnv("DCUP_DATABASE_PATH", cfg.DatabasePath)
	cfg.QdrantURL = getEnv("QDRANT_DB_URL", cfg.QdrantURL)
	cfg.QdrantAPIKey = getEnv("QDRANT_DB_KEY", cfg.QdrantAPIKey)
	cfg.QdrantCollection = getEnv("QDRANT_COLLECTION", cfg.QdrantCollection)
	cfg.EmbeddingHost = getEnv("OPENAI_BASE_URL", cfg.EmbeddingHost)
	cfg.EmbeddingModel = getEnv("OPENAI_EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingKey = getEnv("OPENAI_API_KEY", cfg.EmbeddingKey)
	cfg.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", cfg.GoogleClientID)
	cfg.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret)
	cfg.LogFile = getEnv("DCUP_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = parseLogLevel(getEnv("DCUP_LOG_LEVEL", "INFO"))

	cfg.WorkerCount = getEnvInt("DCUP_WORKERS", cfg.WorkerCount)
	cfg.MaxAttempts = getEnvInt("DCUP_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.EnqueueDelay = getEnvDuration("DCUP_ENQUEUE_DELAY", cfg.EnqueueDelay)
	cfg.RetryBase = getEnvDuration("DCUP_RETRY_BASE", cfg.RetryBase)

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
