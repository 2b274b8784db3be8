package handlers

import (
	"net/http"

	"github.com/goclaw/recall/pkg/api/response"
	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/monitor"
	"github.com/goclaw/recall/pkg/version"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	engine *engine.Engine
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(eng *engine.Engine) *HealthHandler {
	return &HealthHandler{
		engine: eng,
	}
}

// Health handles the /health endpoint (liveness check). It reports 503
// only when the monitor grades the engine critical.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.engine.DashboardData().Health
	status := http.StatusOK
	if health == monitor.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, map[string]string{
		"status":  string(health),
		"version": version.Version,
	})
}

// Ready handles the /ready endpoint (readiness check).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine.IsRunning() {
		response.JSON(w, http.StatusOK, map[string]bool{
			"ready": true,
		})
	} else {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
	}
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	dash := h.engine.DashboardData()
	response.JSON(w, http.StatusOK, map[string]any{
		"health":     dash.Health,
		"running":    h.engine.IsRunning(),
		"strategies": h.engine.AvailableStrategies(),
		"enabled":    h.engine.EnabledStrategies(),
		"summary":    dash.Summary,
		"version":    version.Info(),
	})
}
