package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/auth"
	"github.com/forgeline-inc/forgeline-engine/pkg/middleware"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
	"github.com/forgeline-inc/forgeline-engine/pkg/repositories"
	"github.com/forgeline-inc/forgeline-engine/pkg/services"
)

// RecordHandler is the generic CRUD surface for metadata-defined entities.
// Every entity type shares this one pipeline: route check, schema permission
// check, validation, persistence, then a fire-and-forget audit entry.
type RecordHandler struct {
	registry    services.SchemaRegistry
	validator   services.Validator
	permissions services.PermissionEvaluator
	records     repositories.RecordRepository
	audit       services.AuditService
	logger      *zap.Logger
}

// NewRecordHandler creates a new record handler.
func NewRecordHandler(
	registry services.SchemaRegistry,
	validator services.Validator,
	permissions services.PermissionEvaluator,
	records repositories.RecordRepository,
	audit services.AuditService,
	logger *zap.Logger,
) *RecordHandler {
	return &RecordHandler{
		registry:    registry,
		validator:   validator,
		permissions: permissions,
		records:     records,
		audit:       audit,
		logger:      logger,
	}
}

// RegisterRoutes registers the record handler's routes on the given mux.
// Per-action role checks happen inside the handlers against the schema's
// permission block, so the middleware only establishes identity.
func (h *RecordHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/entities/{slug}/records",
		authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET /api/entities/{slug}/records/{id}",
		authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("POST /api/entities/{slug}/records",
		authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("PUT /api/entities/{slug}/records/{id}",
		authMiddleware.RequireAuth(h.Update))
	mux.HandleFunc("DELETE /api/entities/{slug}/records/{id}",
		authMiddleware.RequireAuth(h.Delete))
}

// authorize runs the route table check first, then the schema permission
// block. The route table wins: a caller allowed by the schema but below the
// route's required role is still denied.
func (h *RecordHandler) authorize(w http.ResponseWriter, r *http.Request, schema *models.EntitySchema, action models.EntityAction) bool {
	role := auth.RoleFromContext(r.Context())

	if !h.permissions.AuthorizeRoute(role, r.URL.Path) {
		h.writeError(w, http.StatusForbidden, "route_forbidden", "Insufficient role for this route")
		return false
	}
	if !h.permissions.Authorize(role, schema, action) {
		h.writeError(w, http.StatusForbidden, "action_forbidden", "Insufficient role for "+string(action))
		return false
	}
	return true
}

func (h *RecordHandler) resolveSchema(w http.ResponseWriter, r *http.Request) (*models.EntitySchema, bool) {
	slug := r.PathValue("slug")

	schema, err := h.registry.Resolve(r.Context(), slug)
	if err != nil {
		if errors.Is(err, apperrors.ErrSchemaNotFound) {
			h.writeError(w, http.StatusNotFound, "schema_not_found", "No schema published for slug "+slug)
		} else {
			h.logger.Error("Failed to resolve schema", zap.String("slug", slug), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "resolve_schema_failed", err.Error())
		}
		return nil, false
	}
	return schema, true
}

// List handles GET /api/entities/{slug}/records
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	schema, ok := h.resolveSchema(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, schema, models.ActionRead) {
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	records, err := h.records.List(r.Context(), schema.Slug, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list records", zap.String("slug", schema.Slug), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "list_records_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: records}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/entities/{slug}/records/{id}
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	schema, ok := h.resolveSchema(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, schema, models.ActionRead) {
		return
	}

	id, ok := h.recordID(w, r)
	if !ok {
		return
	}

	record, err := h.records.Get(r.Context(), schema.Slug, id)
	if err != nil {
		h.respondRecordError(w, schema.Slug, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: record}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/entities/{slug}/records
func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	schema, ok := h.resolveSchema(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, schema, models.ActionCreate) {
		return
	}

	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}

	violations, err := h.validator.ValidateWithUniqueness(r.Context(), schema, payload, h.records, uuid.Nil)
	if err != nil {
		h.logger.Error("Uniqueness check failed", zap.String("slug", schema.Slug), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "validation_failed", err.Error())
		return
	}
	if len(violations) > 0 {
		h.writeViolations(w, violations)
		return
	}

	record := &repositories.Record{Slug: schema.Slug, ID: uuid.New(), Data: payload}
	if err := h.records.Insert(r.Context(), record); err != nil {
		h.logger.Error("Failed to insert record", zap.String("slug", schema.Slug), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "create_record_failed", err.Error())
		return
	}

	h.recordAudit(r, models.AuditActionCreate, schema.Slug, record.ID, nil, payload, started)

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: record}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/entities/{slug}/records/{id}
func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	schema, ok := h.resolveSchema(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, schema, models.ActionUpdate) {
		return
	}

	id, ok := h.recordID(w, r)
	if !ok {
		return
	}

	existing, err := h.records.Get(r.Context(), schema.Slug, id)
	if err != nil {
		h.respondRecordError(w, schema.Slug, err)
		return
	}

	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}

	violations, err := h.validator.ValidateWithUniqueness(r.Context(), schema, payload, h.records, id)
	if err != nil {
		h.logger.Error("Uniqueness check failed", zap.String("slug", schema.Slug), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "validation_failed", err.Error())
		return
	}
	if len(violations) > 0 {
		h.writeViolations(w, violations)
		return
	}

	record := &repositories.Record{Slug: schema.Slug, ID: id, Data: payload}
	if err := h.records.Update(r.Context(), record); err != nil {
		h.respondRecordError(w, schema.Slug, err)
		return
	}

	h.recordAudit(r, models.AuditActionUpdate, schema.Slug, id, existing.Data, payload, started)

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: record}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/entities/{slug}/records/{id}
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	schema, ok := h.resolveSchema(w, r)
	if !ok {
		return
	}
	if !h.authorize(w, r, schema, models.ActionDelete) {
		return
	}

	id, ok := h.recordID(w, r)
	if !ok {
		return
	}

	existing, err := h.records.Get(r.Context(), schema.Slug, id)
	if err != nil {
		h.respondRecordError(w, schema.Slug, err)
		return
	}

	if err := h.records.Delete(r.Context(), schema.Slug, id); err != nil {
		h.respondRecordError(w, schema.Slug, err)
		return
	}

	h.recordAudit(r, models.AuditActionDelete, schema.Slug, id, existing.Data, nil, started)

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Record deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// recordAudit hands the mutation to the audit ledger. The write happens on a
// detached goroutine; a ledger failure never surfaces to the caller.
func (h *RecordHandler) recordAudit(r *http.Request, action, slug string, id uuid.UUID, before, after map[string]any, started time.Time) {
	h.audit.Record(&models.AuditEntry{
		Action:     action,
		EntityType: slug,
		EntityID:   id.String(),
		UserID:     auth.UserIDFromContext(r.Context()),
		Before:     before,
		After:      after,
		DurationMS: time.Since(started).Milliseconds(),
		ClientIP:   middleware.ClientIP(r),
		Endpoint:   r.Method + " " + r.URL.Path,
	})
}

func (h *RecordHandler) decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object")
		return nil, false
	}
	return payload, true
}

func (h *RecordHandler) recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_record_id", "Record ID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *RecordHandler) respondRecordError(w http.ResponseWriter, slug string, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "record_not_found", "No such record for "+slug)
		return
	}
	h.logger.Error("Record operation failed", zap.String("slug", slug), zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "record_operation_failed", err.Error())
}

func (h *RecordHandler) writeViolations(w http.ResponseWriter, violations []services.FieldViolation) {
	if err := WriteJSON(w, http.StatusUnprocessableEntity, ApiResponse{
		Success: false,
		Error:   "validation_failed",
		Data:    violations,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *RecordHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
