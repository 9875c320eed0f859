package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/auth"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
	"github.com/forgeline-inc/forgeline-engine/pkg/services"
)

// SchemaHandler serves entity schema documents and accepts new versions.
type SchemaHandler struct {
	registry services.SchemaRegistry
	logger   *zap.Logger
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(registry services.SchemaRegistry, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{registry: registry, logger: logger}
}

// RegisterRoutes registers the schema handler's routes on the given mux.
// Publishing is gated at admin; reads at viewer.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/schemas",
		authMiddleware.RequireMinRole(models.RoleViewer)(h.List))
	mux.HandleFunc("GET /api/schemas/{slug}",
		authMiddleware.RequireMinRole(models.RoleViewer)(h.Get))
	mux.HandleFunc("GET /api/schemas/{slug}/versions/{version}",
		authMiddleware.RequireMinRole(models.RoleViewer)(h.GetVersion))
	mux.HandleFunc("POST /api/schemas",
		authMiddleware.RequireMinRole(models.RoleAdmin)(h.Publish))
}

// List handles GET /api/schemas
func (h *SchemaHandler) List(w http.ResponseWriter, r *http.Request) {
	slugs, err := h.registry.Slugs(r.Context())
	if err != nil {
		h.logger.Error("Failed to list schema slugs", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "list_schemas_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: slugs}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/schemas/{slug}
func (h *SchemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	schema, err := h.registry.Resolve(r.Context(), slug)
	if err != nil {
		h.respondSchemaError(w, slug, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetVersion handles GET /api/schemas/{slug}/versions/{version}
func (h *SchemaHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || version < 1 {
		h.writeError(w, http.StatusBadRequest, "invalid_version", "Version must be a positive integer")
		return
	}

	schema, err := h.registry.ResolveVersion(r.Context(), slug, version)
	if err != nil {
		h.respondSchemaError(w, slug, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Publish handles POST /api/schemas
func (h *SchemaHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var schema models.EntitySchema
	if err := json.NewDecoder(r.Body).Decode(&schema); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.registry.Publish(r.Context(), &schema); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrDuplicateFieldName):
			h.writeError(w, http.StatusBadRequest, "duplicate_field_name", err.Error())
		case errors.Is(err, apperrors.ErrInvalidSchemaDocument):
			h.writeError(w, http.StatusBadRequest, "invalid_schema_document", err.Error())
		case errors.Is(err, apperrors.ErrInvalidVersionSequence):
			h.writeError(w, http.StatusConflict, "invalid_version_sequence", err.Error())
		default:
			h.logger.Error("Failed to publish schema",
				zap.String("slug", schema.Slug),
				zap.Int("version", schema.Version),
				zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "publish_schema_failed", err.Error())
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *SchemaHandler) respondSchemaError(w http.ResponseWriter, slug string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrSchemaNotFound):
		h.writeError(w, http.StatusNotFound, "schema_not_found", "No schema published for slug "+slug)
	case errors.Is(err, apperrors.ErrSchemaVersionNotFound):
		h.writeError(w, http.StatusNotFound, "schema_version_not_found", "Schema version does not exist for slug "+slug)
	default:
		h.logger.Error("Failed to resolve schema", zap.String("slug", slug), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "resolve_schema_failed", err.Error())
	}
}

func (h *SchemaHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
