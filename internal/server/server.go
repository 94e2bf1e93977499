// Package server exposes the collection and insights HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/touchheat/touchheat/internal/config"
	"github.com/touchheat/touchheat/internal/database"
	"github.com/touchheat/touchheat/internal/ingest"
	"github.com/touchheat/touchheat/internal/insights"
	"github.com/touchheat/touchheat/internal/metrics"
	"github.com/touchheat/touchheat/internal/models"
)

type Server struct {
	db      *database.Database
	loader  *config.Loader
	address string
	// aggregations bounds concurrent insight/heatmap runs so a burst of
	// dashboard refreshes cannot pin the process on large event sets.
	aggregations *semaphore.Weighted
	server       *http.Server
}

func NewServer(db *database.Database, loader *config.Loader, address string) *Server {
	return &Server{
		db:           db,
		loader:       loader,
		address:      address,
		aggregations: semaphore.NewWeighted(int64(loader.Config().AggregationConcurrency)),
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.IngestDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	var batch models.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		metrics.BatchesRejected.WithLabelValues("invalid_json").Inc()
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	gatekeeper := ingest.NewGatekeeper(s.db, s.db, s.loader.Config().Ingest.MaxBatchSize)
	err := gatekeeper.Ingest(r.Header.Get("Origin"), batch)
	if err == nil {
		metrics.EventsIngested.Add(float64(len(batch.Events)))
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	var schemaErr *ingest.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		metrics.BatchesRejected.WithLabelValues("invalid_schema").Inc()
		writeError(w, http.StatusBadRequest, "Invalid request body", schemaErr.Violations...)
	case errors.Is(err, ingest.ErrUnauthorized):
		metrics.BatchesRejected.WithLabelValues("unauthorized").Inc()
		writeError(w, http.StatusUnauthorized, "Invalid project_id")
	case errors.Is(err, ingest.ErrDomainRejected):
		metrics.BatchesRejected.WithLabelValues("domain_rejected").Inc()
		writeError(w, http.StatusForbidden, "Domain not allowed for this project")
	default:
		metrics.BatchesRejected.WithLabelValues("storage").Inc()
		slog.Error("ingest failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to insert events")
	}
}

// serveAggregation handles the shared shape of the insights and heatmap
// endpoints: parameter checks, project existence, concurrency capping,
// event fetch, then the derive function over the fetched set.
func (s *Server) serveAggregation(w http.ResponseWriter, r *http.Request, kind string, derive func([]models.TouchEvent) any) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "Missing project_id parameter")
		return
	}
	if _, err := s.db.LookupProject(projectID); err != nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	if !s.aggregations.TryAcquire(1) {
		writeError(w, http.StatusServiceUnavailable, "Too many concurrent aggregation requests")
		return
	}
	defer s.aggregations.Release(1)

	events, err := s.db.FetchEvents(projectID, r.URL.Query().Get("url"))
	if err != nil {
		slog.Error("event fetch failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch events")
		return
	}
	metrics.Aggregations.WithLabelValues(kind).Inc()
	writeJSON(w, http.StatusOK, derive(events))
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	s.serveAggregation(w, r, "insights", func(events []models.TouchEvent) any {
		return map[string]any{"insights": insights.Compute(events)}
	})
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	s.serveAggregation(w, r, "heatmap", func(events []models.TouchEvent) any {
		return insights.Cluster(events)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]
	if _, err := s.db.LookupProject(projectID); err != nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	status, err := s.db.Status(projectID, time.Now().UTC())
	if err != nil {
		slog.Error("status query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) setupRoutes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/ingest", s.handleIngest).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/insights", s.handleInsights).Methods(http.MethodGet)
	r.HandleFunc("/api/heatmap", s.handleHeatmap).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{projectId}/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return loggingMiddleware(corsMiddleware(r))
}

// Handler returns the fully wired HTTP handler (tests use this directly).
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)

	errChannel := make(chan error, 1)
	go func() {
		slog.Info("touchheat collector listening", "addr", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChannel <- err
		}
	}()

	select {
	case err := <-errChannel:
		return err
	case <-shutdownChannel:
	}
	slog.Info("shutting down server")

	shutdownContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownContext); err != nil {
		return err
	}
	slog.Info("server exited")
	return nil
}
