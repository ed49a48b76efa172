// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address for the proxy.
	DefaultAddr = "127.0.0.1:8787"

	// DefaultChatPath is the route the chat panel posts to.
	DefaultChatPath = "/functions/v1/adtech-chat"
)

// Version is the server version reported by /health (set at build time).
var Version = "1.0.0"

// Config holds the listener settings.
type Config struct {
	Addr     string
	ChatPath string

	// CORSOrigins lists the origins allowed to call the chat route. Empty
	// allows every origin.
	CORSOrigins []string
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the chat proxy HTTP server.
type Server struct {
	cfg    Config
	chat   *ChatHandler
	router chi.Router
	logger *log.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a Server that mounts chat at cfg.ChatPath.
func NewServer(cfg Config, chat *ChatHandler) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ChatPath == "" {
		cfg.ChatPath = DefaultChatPath
	}

	s := &Server{
		cfg:    cfg,
		chat:   chat,
		logger: log.Default(),
	}
	s.setupRoutes()
	return s
}

// WithLogger sets the logger used by the middleware and lifecycle events.
func (s *Server) WithLogger(logger *log.Logger) *Server {
	if logger != nil {
		s.logger = logger
		s.setupRoutes()
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(middleware.RealIP)
	r.Use(SecurityHeadersMiddleware())
	r.Use(LoggingMiddleware(s.logger))
	r.Use(CORSMiddleware(NewCORSConfig(s.cfg.CORSOrigins)))

	r.Handle(s.cfg.ChatPath, s.chat)
	r.Get("/health", s.handleHealth)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
	})

	s.router = r
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Gateway string `json:"gateway"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:  "ok",
		Version: Version,
		Gateway: "configured",
	}
	if !s.chat.Configured() {
		health.Gateway = "not_configured"
	}
	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after a graceful Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: replies stream for as long as the gateway does.
		IdleTimeout: 120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Printf("SERVER_START | addr=%s path=%s version=%s", ln.Addr(), s.cfg.ChatPath, Version)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return srv.Shutdown(ctx)
}

// NewFunctionHandler wraps chat with the middleware a serverless deployment
// needs when there is no router in front of it. A nil cors allows every
// origin.
func NewFunctionHandler(chat *ChatHandler, cors *CORSConfig, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	if cors == nil {
		cors = DefaultCORSConfig()
	}
	return Chain(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cors),
	)(chat)
}
