package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/auth"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
	"github.com/forgeline-inc/forgeline-engine/pkg/services"
)

// IntegrationHandler serves the ERP call ledger: filtered listing, aggregate
// stats, manual retries and archival.
type IntegrationHandler struct {
	integrations services.IntegrationService
	logger       *zap.Logger
}

// NewIntegrationHandler creates a new integration log handler.
func NewIntegrationHandler(integrations services.IntegrationService, logger *zap.Logger) *IntegrationHandler {
	return &IntegrationHandler{integrations: integrations, logger: logger}
}

// RegisterRoutes registers the integration log routes on the given mux.
func (h *IntegrationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/integration-logs",
		authMiddleware.RequireMinRole(models.RoleAdmin)(h.List))
	mux.HandleFunc("GET /api/integration-logs/stats",
		authMiddleware.RequireMinRole(models.RoleAdmin)(h.Stats))
	mux.HandleFunc("GET /api/integration-logs/{id}",
		authMiddleware.RequireMinRole(models.RoleAdmin)(h.Get))
	mux.HandleFunc("POST /api/integration-logs/{id}/retry",
		authMiddleware.RequireMinRole(models.RoleAdmin)(h.Retry))
	mux.HandleFunc("POST /api/integration-logs/{id}/schedule-retry",
		authMiddleware.RequireMinRole(models.RoleAdmin)(h.ScheduleRetry))
	mux.HandleFunc("PATCH /api/integration-logs/{id}/archive",
		authMiddleware.RequireMinRole(models.RoleAdmin)(h.Archive))
}

// List handles GET /api/integration-logs
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	logs, total, err := h.integrations.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list integration logs", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "list_logs_failed", err.Error())
		return
	}

	payload := map[string]any{
		"logs":      logs,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: payload}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stats handles GET /api/integration-logs/stats
func (h *IntegrationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.integrations.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute integration stats", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: stats}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/integration-logs/{id}
func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.logID(w, r)
	if !ok {
		return
	}

	log, err := h.integrations.Get(r.Context(), id)
	if err != nil {
		h.respondLogError(w, id, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: log}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Retry handles POST /api/integration-logs/{id}/retry. On success the
// response carries the new attempt's log row, not the original.
func (h *IntegrationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.logID(w, r)
	if !ok {
		return
	}

	attempt, err := h.integrations.Retry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			h.respondLogError(w, id, err)
		case errors.Is(err, apperrors.ErrRetryNotAllowed):
			h.writeError(w, http.StatusConflict, "retry_not_allowed", err.Error())
		default:
			h.logger.Error("Retry dispatch failed", zap.String("log_id", id.String()), zap.Error(err))
			h.writeError(w, http.StatusBadGateway, "retry_failed", err.Error())
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: attempt}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ScheduleRetry handles POST /api/integration-logs/{id}/schedule-retry
func (h *IntegrationHandler) ScheduleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.logID(w, r)
	if !ok {
		return
	}

	if err := h.integrations.ScheduleRetry(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			h.respondLogError(w, id, err)
		case errors.Is(err, apperrors.ErrRetryNotAllowed):
			h.writeError(w, http.StatusConflict, "retry_not_allowed", err.Error())
		default:
			h.logger.Error("Failed to schedule retry", zap.String("log_id", id.String()), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "schedule_retry_failed", err.Error())
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Retry scheduled"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Archive handles PATCH /api/integration-logs/{id}/archive
func (h *IntegrationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.logID(w, r)
	if !ok {
		return
	}

	if err := h.integrations.Archive(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			h.respondLogError(w, id, err)
		case errors.Is(err, apperrors.ErrInvalidTransition):
			h.writeError(w, http.StatusConflict, "invalid_transition", err.Error())
		default:
			h.logger.Error("Failed to archive log", zap.String("log_id", id.String()), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "archive_failed", err.Error())
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Log archived"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *IntegrationHandler) parseFilter(w http.ResponseWriter, r *http.Request) (models.IntegrationLogFilter, bool) {
	q := r.URL.Query()

	filter := models.IntegrationLogFilter{
		Direction:     models.IntegrationDirection(q.Get("direction")),
		Status:        models.IntegrationStatus(q.Get("status")),
		Method:        q.Get("method"),
		Search:        q.Get("search"),
		StatusCodeMin: queryInt(r, "status_code_min", 0),
		StatusCodeMax: queryInt(r, "status_code_max", 0),
		SortDesc:      q.Get("sort") != "asc",
		Page:          queryInt(r, "page", 1),
		PageSize:      queryInt(r, "page_size", 50),
	}

	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC 3339")
			return filter, false
		}
		filter.From = &parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC 3339")
			return filter, false
		}
		filter.To = &parsed
	}

	return filter, true
}

func (h *IntegrationHandler) logID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_log_id", "Log ID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *IntegrationHandler) respondLogError(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "log_not_found", "No integration log with ID "+id.String())
		return
	}
	h.logger.Error("Integration log lookup failed", zap.String("log_id", id.String()), zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "log_lookup_failed", err.Error())
}

func (h *IntegrationHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
