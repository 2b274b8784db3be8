// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/goclaw/recall/pkg/api/middleware"
	"github.com/goclaw/recall/pkg/api/models"
	"github.com/goclaw/recall/pkg/api/response"
	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/logger"
	"github.com/goclaw/recall/pkg/search"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// SearchHandler handles search endpoints.
type SearchHandler struct {
	engine    *engine.Engine
	logger    logger.Logger
	validator *validator.Validate
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(eng *engine.Engine, log logger.Logger) *SearchHandler {
	return &SearchHandler{
		engine:    eng,
		logger:    log,
		validator: validator.New(),
	}
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, "")
}

// SearchWithStrategy handles POST /api/v1/search/{strategy}
func (h *SearchHandler) SearchWithStrategy(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, chi.URLParam(r, "strategy"))
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request, strategy string) {
	ctx := r.Context()

	var req models.SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	start := time.Now()
	q := req.ToQuery()
	var (
		results []search.Result
		err     error
	)
	if strategy == "" {
		results, err = h.engine.Search(ctx, q)
	} else {
		results, err = h.engine.SearchWithStrategy(ctx, q, strategy)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "search failed", "strategy", strategy, "error", err)
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	if results == nil {
		results = []search.Result{}
	}

	response.JSON(w, http.StatusOK, models.SearchResponse{
		Results:  results,
		Count:    len(results),
		Strategy: strategy,
		Took:     time.Since(start),
	})
}

// ListTemplates handles GET /api/v1/templates
func (h *SearchHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := h.engine.Templates()
	response.JSON(w, http.StatusOK, models.TemplateListResponse{
		Templates: templates,
		Total:     len(templates),
	})
}

// decodeJSON decodes a bounded request body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if reqID := middleware.GetRequestID(ctx); reqID != "" {
		return reqID
	}
	return "unknown"
}
