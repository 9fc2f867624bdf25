package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/devrev/tempvoice/internal/coordinator"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/devrev/tempvoice/internal/store"
	"go.uber.org/zap"
)

// HealthChecker provides health check endpoints
type HealthChecker struct {
	rooms    store.RoomDirectory
	configs  store.ConfigStore
	locks    coordinator.LockTable
	platform platform.Platform
	timeout  time.Duration
	logger   *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker. Nil dependencies are skipped.
func NewHealthChecker(
	rooms store.RoomDirectory,
	configs store.ConfigStore,
	locks coordinator.LockTable,
	p platform.Platform,
	logger *zap.Logger,
) *HealthChecker {
	return &HealthChecker{
		rooms:    rooms,
		configs:  configs,
		locks:    locks,
		platform: p,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks, allHealthy := h.Check(ctx)
	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Check pings every dependency and reports per-dependency status
func (h *HealthChecker) Check(ctx context.Context) (map[string]string, bool) {
	deps := []struct {
		name string
		dep  pinger
	}{
		{"room_directory", h.rooms},
		{"config_store", h.configs},
		{"lock_table", h.locks},
		{"platform", h.platform},
	}

	checks := make(map[string]string, len(deps))
	allHealthy := true
	for _, d := range deps {
		if d.dep == nil {
			continue
		}
		if err := d.dep.Ping(ctx); err != nil {
			h.logger.Error("Health check failed",
				zap.String("dependency", d.name),
				zap.Error(err))
			checks[d.name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		checks[d.name] = "healthy"
	}
	return checks, allHealthy
}
