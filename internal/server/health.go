package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mediarelay/internal/metrics"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// HealthHandler handles health check requests
type HealthHandler struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	checks  map[string]Check
}

// NewHealthHandler creates a health handler over the given named checks.
func NewHealthHandler(logger *zap.Logger, m *metrics.Metrics, checks map[string]Check) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		metrics: m,
		checks:  checks,
	}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// Health returns health status (checks dependencies)
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	allHealthy := true

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = "unavailable"
			allHealthy = false
			h.metrics.HealthStatus.WithLabelValues(name).Set(0)
			h.metrics.HealthChecksFailed.WithLabelValues(name).Inc()
			h.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			continue
		}
		results[name] = "ok"
		h.metrics.HealthStatus.WithLabelValues(name).Set(1)
	}

	w.Header().Set("Content-Type", "application/json")
	if !allHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(healthResponse{
		Status:  map[bool]string{true: "healthy", false: "unhealthy"}[allHealthy],
		Checks:  results,
		Version: "1.0.0",
	})
}
