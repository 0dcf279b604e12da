// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package server exposes the sidecar's HTTP API: turn execution, history
// access, the advertised tool list, key lifecycle, and audit queries.
// Every route except the health check requires an API key.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bastion-dev/bastion/internal/agent"
	"github.com/bastion-dev/bastion/internal/auth"
	"github.com/bastion-dev/bastion/internal/policy"
	"github.com/bastion-dev/bastion/internal/store"
	"github.com/bastion-dev/bastion/internal/tool"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TurnRunner executes one agent turn. Satisfied by *agent.Loop.
type TurnRunner interface {
	Run(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error)
}

// KeyService covers the key-lifecycle operations the server exposes.
// Satisfied by *auth.Keychain.
type KeyService interface {
	Authenticate(ctx context.Context, secret string) (string, error)
	Rotate(ctx context.Context, oldKeyID string) (*auth.IssuedKey, error)
	List(ctx context.Context) ([]*store.APIKey, error)
}

// Deps are the collaborators the route handlers delegate to.
type Deps struct {
	Loop     TurnRunner
	History  store.HistoryStore
	Audit    store.AuditStore
	Registry *tool.Registry
	Gate     *policy.Gate
	Keys     KeyService
	Logger   *slog.Logger
}

// Server wraps a chi router with a huma API and an HTTP server.
type Server struct {
	router chi.Router
	api    huma.API
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// New creates a Server with its middleware chain and all routes registered.
func New(cfg Config, deps Deps) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if deps.Loop == nil || deps.History == nil || deps.Audit == nil ||
		deps.Registry == nil || deps.Gate == nil || deps.Keys == nil {
		return nil, fmt.Errorf("all server dependencies are required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 120 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(requireAPIKey(deps.Keys, logger))

	humaConfig := huma.DefaultConfig("Bastion", "0.1.0")
	humaConfig.Info.Description = "Tool-execution sidecar API"
	api := humachi.New(r, humaConfig)

	// Health endpoint. The auth middleware leaves this path alone so
	// liveness probes work without a key.
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthBody{Status: "ok"}}, nil
	})

	srv := &Server{
		router: r,
		api:    api,
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	srv.registerRoutes()

	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr, err)
	}
	s.logger.Info("server listening", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	return <-errCh
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
