// Package server exposes the operational HTTP surface: Prometheus metrics
// and a health endpoint. The bot itself speaks only through the messaging
// transport; nothing user-facing lives here.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mediarelay/internal/config"
)

// Server wraps the ops HTTP server
type Server struct {
	logger *zap.Logger
	srv    *http.Server
}

// New creates a new server instance
func New(logger *zap.Logger, cfg *config.Config, healthHandler *HealthHandler) *Server {
	r := mux.NewRouter()

	// Add request ID middleware
	r.Use(RequestIDMiddleware)

	// Metrics endpoint with optional basic auth
	metricsHandler := promhttp.Handler()
	if cfg.MetricsUsername != "" && cfg.MetricsPassword != "" {
		authMiddleware := BasicAuth(cfg.MetricsUsername, cfg.MetricsPassword)
		r.Handle("/metrics", authMiddleware(metricsHandler))
	} else {
		r.Handle("/metrics", metricsHandler)
	}

	// Health endpoint
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")

	return &Server{
		logger: logger,
		srv:    &http.Server{Addr: ":" + cfg.MetricsPort, Handler: r},
	}
}

// Start starts the HTTP server in the background
func (s *Server) Start() {
	s.logger.Info("starting ops server", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server error", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
