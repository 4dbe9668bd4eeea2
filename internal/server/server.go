// Package server exposes the batch API over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/invoicetools/extraction-service/internal/common"
	"github.com/invoicetools/extraction-service/internal/entity"
	"github.com/invoicetools/extraction-service/internal/pipeline"
	"github.com/invoicetools/extraction-service/internal/repository"
)

// Server wires the HTTP API around the orchestrator and repositories.
type Server struct {
	http    *http.Server
	db      *repository.DB
	batches repository.BatchRepository
	records repository.RecordRepository
	orch    *pipeline.Orchestrator
	specs   []entity.FieldSpec
	logger  *slog.Logger
}

func New(addr string, db *repository.DB, batches repository.BatchRepository,
	records repository.RecordRepository, orch *pipeline.Orchestrator,
	specs []entity.FieldSpec, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		db:      db,
		batches: batches,
		records: records,
		orch:    orch,
		specs:   specs,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/batches", func(r chi.Router) {
		r.Post("/", s.handleCreateBatch)
		r.Get("/", s.handleListBatches)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Get("/", s.handleGetBatch)
			r.Get("/records", s.handleListRecords)
			r.Get("/export", s.handleExportBatch)
		})
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context(), 2*time.Second); err != nil {
		s.respondError(w, r, common.NewAppError("UNHEALTHY", "database unreachable", err))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
