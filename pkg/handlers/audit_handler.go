package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/auth"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
	"github.com/forgeline-inc/forgeline-engine/pkg/services"
)

// AuditHandler is the read-only surface over the audit ledger. There is no
// write endpoint; entries are recorded internally by the mutation pipeline.
type AuditHandler struct {
	audit  services.AuditService
	logger *zap.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(audit services.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// RegisterRoutes registers the audit handler's routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/audit",
		authMiddleware.RequireMinRole(models.RoleProductionManager)(h.Query))
	mux.HandleFunc("GET /api/audit/{entityType}/{entityID}",
		authMiddleware.RequireMinRole(models.RoleProductionManager)(h.GetByEntity))
	mux.HandleFunc("GET /api/audit/users/{userID}",
		authMiddleware.RequireMinRole(models.RoleProductionManager)(h.GetByUser))
}

// Query handles GET /api/audit. Supports from/to (RFC 3339), entity_type and
// limit query parameters. Defaults to the last 24 hours.
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC 3339")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC 3339")
			return
		}
		to = parsed
	}
	if to.Before(from) {
		h.writeError(w, http.StatusBadRequest, "invalid_range", "to must not precede from")
		return
	}

	entityType := r.URL.Query().Get("entity_type")
	limit := queryInt(r, "limit", 100)

	entries, err := h.audit.GetByDateRange(r.Context(), entityType, from, to, limit)
	if err != nil {
		h.logger.Error("Failed to query audit ledger", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "audit_query_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: entries}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetByEntity handles GET /api/audit/{entityType}/{entityID}
func (h *AuditHandler) GetByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entityType")
	entityID := r.PathValue("entityID")

	entries, err := h.audit.GetByEntity(r.Context(), entityType, entityID)
	if err != nil {
		h.logger.Error("Failed to load audit trail",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "audit_query_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: entries}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetByUser handles GET /api/audit/users/{userID}
func (h *AuditHandler) GetByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_user_id", "User ID must be a UUID")
		return
	}

	limit := queryInt(r, "limit", 100)

	entries, err := h.audit.GetByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to load user audit trail", zap.String("user_id", userID.String()), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "audit_query_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: entries}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AuditHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
