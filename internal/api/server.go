package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pulsestack/pulse-monitor/internal/config"
)

// Server wraps the HTTP control-surface server and lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	httpServer *http.Server
	listener   net.Listener
}

// NewServer constructs an HTTP server bound to the configured address,
// serving the monitor control surface.
func NewServer(cfg config.ServerConfig, h *Handlers) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/stats", h.Stats)
		r.Get("/anomalies", h.Anomalies)
		r.Post("/checks", h.RunCheck)
	})

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		listener: lis,
	}, nil
}

// Start serves requests until Shutdown is invoked.
func (s *Server) Start() error {
	err := s.httpServer.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown attempts a graceful shutdown within the context deadline.
func (s *Server) Shutdown(ctx context.Context) {
	_ = s.httpServer.Shutdown(ctx)
}

// Address exposes the bound listener address (useful for tests).
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
