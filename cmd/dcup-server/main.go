// Package main provides the ingestion server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dcup-dev/dcup-ingest/internal/config"
	"github.com/Dcup-dev/dcup-ingest/internal/connectors"
	"github.com/Dcup-dev/dcup-ingest/internal/embedding"
	"github.com/Dcup-dev/dcup-ingest/internal/extract"
	"github.com/Dcup-dev/dcup-ingest/internal/metrics"
	"github.com/Dcup-dev/dcup-ingest/internal/processor"
	"github.com/Dcup-dev/dcup-ingest/internal/progress"
	"github.com/Dcup-dev/dcup-ingest/internal/queue"
	"github.com/Dcup-dev/dcup-ingest/internal/server"
	"github.com/Dcup-dev/dcup-ingest/internal/service"
	"github.com/Dcup-dev/dcup-ingest/internal/store"
	"github.com/Dcup-dev/dcup-ingest/internal/vector"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLogger := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	slog.SetDefault(logger)
	defer func() {
		if err := closeLogger(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()

	slog.Info("starting dcup-server", "port", cfg.Port)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	embedder, err := embedding.NewOpenAIClient(cfg.EmbeddingHost, cfg.EmbeddingKey, cfg.EmbeddingModel, embedding.DefaultOpenAIDimension)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	index := vector.NewClient(vector.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Dimension:  embedder.Dimension(),
	})

	collector := metrics.NewCollector()
	bus := progress.NewBus()
	defer bus.Close()

	factory := &connectors.Factory{
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		SaveToken:          st.SaveCredentials,
	}

	proc := processor.New(extract.PlainText{}, embedder, collector)
	registry := queue.NewCancelRegistry()

	retryCfg := service.Config{MaxAttempts: cfg.MaxAttempts, RetryBase: cfg.RetryBase}
	ingestor := service.NewIngestor(retryCfg, st, index, proc, factory, bus, registry, collector)
	deleter := service.NewDeleter(retryCfg, st, index, collector)

	q, err := queue.New(queue.Config{
		Workers:      cfg.WorkerCount,
		EnqueueDelay: cfg.EnqueueDelay,
		MaxAttempts:  cfg.MaxAttempts,
		RetryBase:    cfg.RetryBase,
	}, ingestor, registry)
	if err != nil {
		slog.Error("failed to create job queue", "error", err)
		os.Exit(1)
	}

	srv := server.New(q, st, bus, deleter, collector, logger)

	go func() {
		if err := srv.Start(":" + cfg.Port); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	if err := q.Shutdown(ctx); err != nil {
		slog.Error("queue shutdown incomplete", "error", err)
	}

	slog.Info("server stopped")
}
