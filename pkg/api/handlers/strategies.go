package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/recall/pkg/api/events"
	"github.com/goclaw/recall/pkg/api/models"
	"github.com/goclaw/recall/pkg/api/response"
	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/logger"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// StrategyHandler handles strategy, monitoring and breaker endpoints.
type StrategyHandler struct {
	engine *engine.Engine
	logger logger.Logger
	events *events.Broadcaster
}

// NewStrategyHandler creates a new strategy handler.
func NewStrategyHandler(eng *engine.Engine, log logger.Logger) *StrategyHandler {
	return &StrategyHandler{
		engine: eng,
		logger: log,
	}
}

// WithEvents publishes breaker changes made through the API to b.
func (h *StrategyHandler) WithEvents(b *events.Broadcaster) *StrategyHandler {
	h.events = b
	return h
}

// ListStrategies handles GET /api/v1/strategies
func (h *StrategyHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies := h.engine.Strategies()
	enabled := h.engine.EnabledStrategies()
	if enabled == nil {
		enabled = []string{}
	}
	response.JSON(w, http.StatusOK, models.StrategyListResponse{
		Strategies: strategies,
		Enabled:    enabled,
		Total:      len(strategies),
	})
}

// GetStrategy handles GET /api/v1/strategies/{name}
func (h *StrategyHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.Strategy(chi.URLParam(r, "name"))
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}
	response.JSON(w, http.StatusOK, info)
}

// ReloadStrategy handles POST /api/v1/strategies/{name}/reload
func (h *StrategyHandler) ReloadStrategy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	if err := h.engine.ReloadStrategy(ctx, name); err != nil {
		h.logger.ErrorContext(ctx, "reload strategy failed", "strategy", name, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	info, err := h.engine.Strategy(name)
	if err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	response.JSON(w, http.StatusOK, info)
}

// Report handles GET /api/v1/report
func (h *StrategyHandler) Report(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.engine.PerformanceReport())
}

// Dashboard handles GET /api/v1/dashboard
func (h *StrategyHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.engine.DashboardData())
}

// Errors handles GET /api/v1/errors
func (h *StrategyHandler) Errors(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.engine.ErrorStatistics())
}

// ResetBreaker handles POST /api/v1/breakers/{name}/reset
func (h *StrategyHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	h.breaker(w, r, h.engine.ResetBreaker)
}

// TripBreaker handles POST /api/v1/breakers/{name}/trip
func (h *StrategyHandler) TripBreaker(w http.ResponseWriter, r *http.Request) {
	h.breaker(w, r, h.engine.TripBreaker)
}

func (h *StrategyHandler) breaker(w http.ResponseWriter, r *http.Request, op func(string) error) {
	name := chi.URLParam(r, "name")
	if err := op(name); err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}
	info, err := h.engine.Strategy(name)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}
	if h.events != nil {
		h.events.BroadcastBreakerChanged(name, string(info.Breaker.State))
	}
	response.JSON(w, http.StatusOK, info.Breaker)
}

// Audit handles GET /api/v1/audit?strategy=&limit=
func (h *StrategyHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "limit must be a non-negative integer", getRequestID(r.Context()))
			return
		}
		limit = n
	}

	entries := h.engine.AuditHistory(r.URL.Query().Get("strategy"), limit)
	if entries == nil {
		entries = []strategyconfig.AuditEntry{}
	}
	response.JSON(w, http.StatusOK, models.AuditResponse{
		Entries: entries,
		Total:   len(entries),
	})
}
