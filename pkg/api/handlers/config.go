package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/recall/pkg/api/events"
	"github.com/goclaw/recall/pkg/api/models"
	"github.com/goclaw/recall/pkg/api/response"
	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/logger"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// ConfigHandler handles strategy configuration endpoints.
type ConfigHandler struct {
	engine *engine.Engine
	logger logger.Logger
	events *events.Broadcaster
}

// NewConfigHandler creates a new configuration handler.
func NewConfigHandler(eng *engine.Engine, log logger.Logger) *ConfigHandler {
	return &ConfigHandler{
		engine: eng,
		logger: log,
	}
}

// WithEvents publishes configuration changes made through the API to b.
func (h *ConfigHandler) WithEvents(b *events.Broadcaster) *ConfigHandler {
	h.events = b
	return h
}

func (h *ConfigHandler) notify(strategy, action string) {
	if h.events != nil {
		h.events.BroadcastConfigChanged(strategy, action)
	}
}

// manager writes a 503 and returns nil when the engine runs without
// persisted configuration.
func (h *ConfigHandler) manager(w http.ResponseWriter, r *http.Request) *strategyconfig.Manager {
	m := h.engine.Configs()
	if m == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable,
			"Configuration persistence is not enabled", getRequestID(r.Context()))
	}
	return m
}

// GetConfig handles GET /api/v1/config/{name}
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.Strategy(chi.URLParam(r, "name"))
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}
	response.JSON(w, http.StatusOK, models.ConfigResponse{Config: info.Config})
}

// UpdateConfig handles PUT /api/v1/config/{name}. The body is a partial
// configuration merged over the stored one.
func (h *ConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.manager(w, r) == nil {
		return
	}
	name := chi.URLParam(r, "name")

	var overrides map[string]any
	if err := decodeJSON(w, r, &overrides); err != nil || len(overrides) == 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	cfg, err := h.engine.UpdateStrategy(ctx, name, overrides)
	if err != nil {
		h.logger.WarnContext(ctx, "update strategy configuration failed", "strategy", name, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	h.notify(name, "update")
	response.JSON(w, http.StatusOK, models.ConfigResponse{Config: cfg, Message: "Configuration updated"})
}

// CreateBackup handles POST /api/v1/config/{name}/backups
func (h *ConfigHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	name := chi.URLParam(r, "name")
	if _, err := h.engine.Strategy(name); err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	meta, err := m.Backup(name)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "backup failed", "strategy", name, "error", err)
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}
	response.JSON(w, http.StatusCreated, meta)
}

// ListBackups handles GET /api/v1/config/{name}/backups
func (h *ConfigHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	name := chi.URLParam(r, "name")
	backups, err := m.ListBackups(name)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}
	if backups == nil {
		backups = []strategyconfig.BackupMetadata{}
	}
	response.JSON(w, http.StatusOK, models.BackupListResponse{Strategy: name, Backups: backups})
}

// RestoreBackup handles POST /api/v1/config/{name}/restore/{backupID}
func (h *ConfigHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.manager(w, r) == nil {
		return
	}
	name := chi.URLParam(r, "name")
	backupID := chi.URLParam(r, "backupID")

	cfg, err := h.engine.RestoreStrategy(ctx, name, backupID)
	if err != nil {
		h.logger.WarnContext(ctx, "restore failed", "strategy", name, "backup_id", backupID, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	h.notify(name, "restore")
	response.JSON(w, http.StatusOK, models.ConfigResponse{Config: cfg, Message: "Configuration restored"})
}
