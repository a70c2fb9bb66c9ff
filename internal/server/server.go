// Package server exposes the ingestion pipeline over HTTP: job submission
// and inspection, cancellation, connection management and the shared
// progress stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Dcup-dev/dcup-ingest/internal/metrics"
	"github.com/Dcup-dev/dcup-ingest/internal/models"
	"github.com/Dcup-dev/dcup-ingest/internal/progress"
	"github.com/Dcup-dev/dcup-ingest/internal/queue"
	"github.com/Dcup-dev/dcup-ingest/internal/service"
	"github.com/Dcup-dev/dcup-ingest/internal/store"
)

// Server wires the HTTP layer around the queue and its collaborators.
type Server struct {
	echo      *echo.Echo
	queue     *queue.Queue
	store     *store.Store
	bus       *progress.Bus
	deleter   *service.Deleter
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates the server and registers all routes.
func New(q *queue.Queue, st *store.Store, bus *progress.Bus, deleter *service.Deleter, collector *metrics.Collector, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		queue:     q,
		store:     st,
		bus:       bus,
		deleter:   deleter,
		collector: collector,
		logger:    logger,
	}

	e.Use(RequestLogger(logger))
	e.Use(Recover(logger))

	e.GET("/health", s.health)
	e.GET("/api/stats", s.stats)

	e.POST("/api/jobs", s.submitJob)
	e.GET("/api/jobs", s.listJobs)
	e.GET("/api/jobs/:id", s.getJob)

	e.GET("/api/progress", s.streamProgress)

	e.GET("/api/connections/:id", s.getConnection)
	e.DELETE("/api/connections/:id", s.deleteConnection)
	e.POST("/api/connections/:id/stop", s.stopConnection)

	return s
}

// Handler returns the underlying http handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.collector.Snapshot())
}

func (s *Server) submitJob(c echo.Context) error {
	var payload models.JobPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	jobID, err := s.queue.Enqueue(payload)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (s *Server) listJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, s.queue.List())
}

func (s *Server) getJob(c echo.Context) error {
	snap, ok := s.queue.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, snap)
}

// connectionView is the read model returned for a single connection. Stored
// credentials never leave the server.
type connectionView struct {
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

func (s *Server) getConnection(c echo.Context) error {
	conn, err := s.store.GetConnection(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	files, err := s.store.FilesForConnection(c.Request().Context(), conn.ID)
	if err != nil {
		return s.mapError(err)
	}

	view := connectionView{
		ID:         conn.ID,
		UserID:     conn.UserID,
		Service:    conn.Service,
		Identifier: conn.Identifier,
		FolderName: conn.FolderName,
		Partition:  conn.Partition,
		JobID:      conn.JobID,
		Files:      files,
	}
	if conn.LastSynced != nil {
		synced := conn.LastSynced.Format("2006-01-02T15:04:05Z07:00")
		view.LastSynced = &synced
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) deleteConnection(c echo.Context) error {
	if err := s.deleter.DeleteConnection(c.Request().Context(), c.Param("id")); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// stopConnection flips the cancellation flag for the connection's active
// job. The job converges on its own schedule; the response only records
// that the request was accepted.
func (s *Server) stopConnection(c echo.Context) error {
	conn, err := s.store.GetConnection(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	if conn.JobID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "connection has no active job")
	}

	s.queue.Registry().RequestCancel(*conn.JobID)
	s.logger.Info("cancellation requested", "connection_id", conn.ID, "job_id", *conn.JobID)
	return c.JSON(http.StatusAccepted, map[string]string{"jobId": *conn.JobID})
}

// streamProgress serves the shared progress channel as server-sent events.
// Every subscriber sees every event; clients filter by connectionId.
func (s *Server) streamProgress(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	events, cancel := s.bus.Subscribe()
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("failed to encode progress event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// mapError translates pipeline errors into HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case models.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case models.IsAuth(err):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
