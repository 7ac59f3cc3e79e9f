// Package httpapi exposes internal/pipeline.Session over HTTP: a typed
// Huma/chi surface for opening, seeking, and closing sessions, plus a raw
// chi streaming endpoint that pushes init/media segments as they are
// produced (spec §6's External Interfaces, reachable as a service per
// SPEC_FULL.md's "CLI wiring... are out of scope" Non-goal carve-out).
//
// Grounded on the donor's internal/http package: the same
// chi.Mux+huma.API pairing (server.go), the same rationale for a raw chi
// handler where Huma's buffered response model cannot serve a long-lived
// stream (internal/http/handlers/relay_stream.go's "Huma's StreamResponse
// commits HTTP 200 before Body runs" comment).
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/flvtransmux/internal/config"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns sane defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8088,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0, // streaming responses must not be write-timeout capped
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is the HTTP surface over the session registry.
type Server struct {
	config     ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with a chi router and a Huma API mounted on it.
func NewServer(cfg ServerConfig, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(RequestID)
	router.Use(Logging(logger))
	router.Use(Recovery(logger))

	humaConfig := huma.DefaultConfig("flvtransmux API", version)
	humaConfig.Info.Description = "Session-oriented FLV-to-fMP4 transmuxing API"

	api := humachi.New(router, humaConfig)

	return &Server{
		config: cfg,
		router: router,
		api:    api,
		logger: logger,
	}
}

// RegisterSessions wires a fresh Registry and SessionHandler onto the
// server's router and Huma API, and returns both so cmd/flvtransmuxd can
// reach the registry directly (e.g. for a graceful-shutdown sweep).
func (s *Server) RegisterSessions(cfg config.Config) (*Registry, *SessionHandler) {
	registry := NewRegistry()
	handler := NewSessionHandler(cfg, registry, s.logger)
	handler.Register(s.api)
	handler.RegisterSSE(s.router)
	return registry, handler
}

// API returns the Huma API for registering typed operations.
func (s *Server) API() huma.API { return s.api }

// Router returns the chi router for registering raw streaming routes.
func (s *Server) Router() *chi.Mux { return s.router }

// Start begins serving; it blocks until the server stops or errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.logger.Info("starting HTTP server", "address", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
