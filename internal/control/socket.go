// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

// Package control provides the HTTP control socket of a running host.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/gridforge/modhost/internal/lifecycle"
	"github.com/gridforge/modhost/internal/xdg"
)

// SocketFile is the socket name inside the runtime directory.
const SocketFile = "modhost.sock"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Running       bool                `json:"running"`
	PID           int                 `json:"pid"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Mods          []lifecycle.ModInfo `json:"mods"`
}

// MessageResponse is returned by the POST endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// Hooks connect the socket to the host. Any hook may be nil.
type Hooks struct {
	// Reload requests a reload and reports false when one is already
	// pending.
	Reload   func() bool
	Shutdown func()
	Mods     func() []lifecycle.ModInfo
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server runs HTTP over a Unix socket.
type Server struct {
	socketPath string
	hooks      Hooks
	logger     *slog.Logger
	startTime  time.Time
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// DefaultSocketPath returns the socket path in the XDG runtime directory.
func DefaultSocketPath() (string, error) {
	dir, err := xdg.RuntimeDir()
	if err != nil {
		return "", oops.In("control").Wrap(err)
	}
	return filepath.Join(dir, SocketFile), nil
}

// NewServer creates a control server that will listen on socketPath.
func NewServer(socketPath string, hooks Hooks, opts ...Option) *Server {
	s := &Server{
		socketPath: socketPath,
		hooks:      hooks,
		logger:     slog.Default(),
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the socket path.
func (s *Server) Path() string { return s.socketPath }

// Handler returns the HTTP handler with every endpoint mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /reload", s.handleReload)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	return mux
}

// Start begins listening on the Unix socket. A stale socket file is replaced.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return oops.In("control").Errorf("control socket already running")
	}

	if err := xdg.EnsureDir(filepath.Dir(s.socketPath)); err != nil {
		s.running.Store(false)
		return err
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.running.Store(false)
		return oops.In("control").With("path", s.socketPath).Wrapf(err, "failed to remove existing socket")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.running.Store(false)
		return oops.In("control").With("path", s.socketPath).Wrap(err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		s.running.Store(false)
		return oops.In("control").With("path", s.socketPath).Wrapf(err, "failed to set socket permissions")
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control socket server error", "error", err)
		}
	}()

	s.logger.Info("control socket listening", "path", s.socketPath)
	return nil
}

// Stop shuts the server down and removes the socket file.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.In("control").Wrapf(err, "failed to shutdown http server")
		}
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("failed to close control socket listener", "error", err)
		}
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove control socket file", "path", s.socketPath, "error", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Running:       s.running.Load(),
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Mods:          []lifecycle.ModInfo{},
	}
	if s.hooks.Mods != nil {
		resp.Mods = s.hooks.Mods()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	switch {
	case s.hooks.Reload == nil:
		s.writeJSON(w, http.StatusNotImplemented, MessageResponse{Message: "reload not supported"})
	case s.hooks.Reload():
		s.logger.Info("reload requested via control socket")
		s.writeJSON(w, http.StatusAccepted, MessageResponse{Message: "reload requested"})
	default:
		s.writeJSON(w, http.StatusConflict, MessageResponse{Message: "reload already pending"})
	}
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: "shutdown initiated"})
	if s.hooks.Shutdown != nil {
		s.logger.Info("shutdown requested via control socket")
		go s.hooks.Shutdown()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write control response", "error", err)
	}
}
