// Package server provides the HTTP API for the exhibition catalog.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/curator/internal/config"
	"github.com/hyperjump/curator/internal/ingest"
	"github.com/hyperjump/curator/internal/keyword"
	"github.com/hyperjump/curator/internal/metrics"
	"github.com/hyperjump/curator/internal/retrieval"
	"github.com/hyperjump/curator/internal/storage"
)

// Server is the HTTP server for the catalog API.
type Server struct {
	engine   *retrieval.Engine
	pipeline *ingest.Pipeline
	storage  storage.Storage
	index    keyword.ItemIndex
	metrics  *metrics.Metrics
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. index and m may be nil.
func NewServer(
	engine *retrieval.Engine,
	pipeline *ingest.Pipeline,
	store storage.Storage,
	index keyword.ItemIndex,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:   engine,
		pipeline: pipeline,
		storage:  store,
		index:    index,
		metrics:  m,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion can outlast the request timeout.
		r.Post("/ingest", s.handleIngest)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			r.Post("/search", s.handleSearch)
			r.Post("/retrieve", s.handleRetrieve)
			r.Get("/stats", s.handleStats)
			r.Get("/items", s.handleListItems)
			r.Get("/items/search", s.handleSearchItems)
			r.Get("/items/{id}", s.handleGetItem)
			r.Get("/runs", s.handleListRuns)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
