// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package server exposes the shader pipeline and gallery over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    RateLimitConfig
	Services     *Services
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Version string
}

// Server wraps a chi router with the huma API and the HTTP server.
type Server struct {
	router    chi.Router
	api       huma.API
	cfg       Config
	services  *Services
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Server with routes, CORS and rate limiting.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, vwerr.New(vwerr.CodeServerConfigInvalid, "listen address is required")
	}
	if cfg.Services == nil {
		return nil, vwerr.New(vwerr.CodeServerConfigInvalid, "services are required")
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Generation requests run up to the pipeline deadline.
		cfg.WriteTimeout = 150 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	done := make(chan struct{})
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware(cfg.RateLimit, done))

	humaConfig := huma.DefaultConfig("Visuworld Shader API", cfg.Version)
	humaConfig.Info.Description = "Retrieval-augmented GLSL shader generation"
	api := humachi.New(r, humaConfig)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	srv := &Server{
		router:   r,
		api:      api,
		cfg:      cfg,
		services: cfg.Services,
		done:     done,
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API, used to render the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops background goroutines. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Start runs the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return vwerr.Wrapf(err, vwerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

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

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return vwerr.Wrap(err, vwerr.CodeServerStartFailure, "serving http")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return vwerr.Wrap(err, vwerr.CodeServerShutdownFailure, "shutting down")
	}
	return <-errCh
}

// corsMiddleware allows every origin when none are configured.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
