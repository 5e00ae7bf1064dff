// Package server exposes the pipeline over HTTP. All tenant routes live
// under /v1/tenants/{tenant}/; the tenant path segment is the isolation
// boundary.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DavidOlmos03/rag-base/internal/pipeline"
	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// HealthChecker reports backend connectivity; the Qdrant store implements
// it. A nil checker means no external backend to probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	orch   *pipeline.Orchestrator
	health HealthChecker
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates the server and registers routes.
func New(orch *pipeline.Orchestrator, health HealthChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		orch:   orch,
		health: health,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /v1/tenants/{tenant}/documents", s.handleIngest)
	s.mux.HandleFunc("GET /v1/tenants/{tenant}/documents", s.handleListDocuments)
	s.mux.HandleFunc("GET /v1/tenants/{tenant}/documents/{id}", s.handleGetDocument)
	s.mux.HandleFunc("DELETE /v1/tenants/{tenant}/documents/{id}", s.handleDeleteDocument)
	s.mux.HandleFunc("POST /v1/tenants/{tenant}/query", s.handleQuery)
	s.mux.HandleFunc("GET /v1/tenants/{tenant}/queries", s.handleListQueries)
	s.mux.HandleFunc("PUT /v1/tenants/{tenant}/config", s.handleSetConfig)

	return s
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logMiddleware(s.mux)
}

// ListenAndServe blocks serving HTTP until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Vectors   string `json:"vectors,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := s.health.Health(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Vectors = "disconnected"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Vectors = "connected"
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the shared error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rag.ErrInvalidRequest), errors.Is(err, rag.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, rag.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rag.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, rag.ErrAuthentication),
		errors.Is(err, rag.ErrProviderUnavailable),
		errors.Is(err, rag.ErrEmbedding),
		errors.Is(err, rag.ErrVectorStore):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
