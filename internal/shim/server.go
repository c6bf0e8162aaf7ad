// Package shim serves an HTTP façade over an engine that only speaks stdio.
// Each prompt becomes one "<binary> exec <text>" invocation.
package shim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/mattjoyce/agentlink/internal/metrics"
	"github.com/mattjoyce/agentlink/internal/storage"
)

// DefaultVersion is reported by the health endpoint.
const DefaultVersion = "1.0.0"

// Config holds shim server configuration.
type Config struct {
	Listen  string
	Version string
}

// Server is the shim HTTP server.
type Server struct {
	config   Config
	store    *storage.SessionStore
	registry *Registry
	logger   *slog.Logger
	server   *http.Server
	newID    func() string
}

// New creates a shim server. The registry is owned by the server from here on:
// Start closes it on shutdown.
func New(config Config, store *storage.SessionStore, registry *Registry, logger *slog.Logger) *Server {
	if config.Version == "" {
		config.Version = DefaultVersion
	}
	return &Server{
		config:   config,
		store:    store,
		registry: registry,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Start serves on config.Listen until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("shim server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shim server shutting down")
		// Running executions are terminated first so in-flight prompts
		// answer promptly and Shutdown does not wait out their window.
		s.registry.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		s.registry.Close()
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type"},
		OptionsSuccessStatus: http.StatusNoContent,
	}).Handler)
	r.Use(optionsNoContent)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/global/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/session", func(r chi.Router) {
		r.Post("/create", s.handleCreateSession)
		r.Get("/list", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Delete("/{id}", s.handleDeleteSession)
		r.Get("/{id}/messages", s.handleMessages)
		r.Post("/{id}/prompt", s.handlePrompt)
		r.Post("/{id}/abort", s.handleAbort)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// optionsNoContent answers any OPTIONS request that was not a CORS preflight.
func optionsNoContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
