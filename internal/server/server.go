// Package server exposes the semantic layer over HTTP.
//
// The catalog and engine are rebuilt for every request: the model
// document is re-fetched, parsed, and validated, and connections are
// opened lazily and closed when the request finishes. Nothing is
// shared across requests.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ai4data/dazense/internal/dataset"
	"github.com/ai4data/dazense/internal/document"
	"github.com/ai4data/dazense/internal/engine"
	"github.com/ai4data/dazense/internal/errs"
	"github.com/ai4data/dazense/internal/logger"
	"github.com/ai4data/dazense/internal/semantic"
)

// Server routes metric queries and model introspection.
type Server struct {
	source    document.Source
	databases []dataset.Config
	connector engine.Connector
	log       *logger.Logger
	router    chi.Router
}

// Option customizes a Server.
type Option func(*Server)

// WithConnector overrides how engines open connections. Tests use this
// to supply fakes.
func WithConnector(c Connector) Option {
	return func(s *Server) { s.connector = engine.Connector(c) }
}

// Connector aliases engine.Connector for option signatures.
type Connector = engine.Connector

// New builds a Server reading its model document from source and
// querying the given databases.
func New(source document.Source, databases []dataset.Config, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		source:    source,
		databases: databases,
		connector: dataset.Open,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/query_metrics", s.handleQueryMetrics)
	r.Get("/models", s.handleListModels)
	r.Get("/models/{name}", s.handleGetModel)

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// newEngine fetches and parses the model document, then binds a fresh
// engine to it. The caller must Close the engine.
func (s *Server) newEngine(r *http.Request) (*engine.Engine, error) {
	catalog, err := document.Catalog(r.Context(), s.source)
	if err != nil {
		return nil, err
	}
	return engine.New(catalog, s.databases,
		engine.WithConnector(s.connector),
		engine.WithLogger(s.log)), nil
}

// --- middleware ---

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.InfoWith("request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP statuses: a missing model
// document and invalid queries are the client's problem, backend
// failures are ours.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, semantic.ErrNotConfigured):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errs.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errs.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.log.ErrorWith("request failed", err, nil)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
