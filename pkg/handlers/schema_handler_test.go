package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/auth"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
)

func setupSchemaTest(t *testing.T) (*http.ServeMux, *mockRegistry) {
	t.Helper()

	registry := &mockRegistry{schemas: map[string]*models.EntitySchema{
		"material": {
			Slug:    "material",
			Version: 2,
			Fields: []models.FieldDefinition{
				{Name: "name", Label: "Name", Type: models.FieldTypeString},
			},
		},
	}}

	mux := http.NewServeMux()
	NewSchemaHandler(registry, zap.NewNop()).
		RegisterRoutes(mux, auth.NewMiddleware(stubValidator{}, zap.NewNop()))
	return mux, registry
}

func TestSchemaGet(t *testing.T) {
	mux, _ := setupSchemaTest(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/schemas/material", "viewer", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var response ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
}

func TestSchemaGet_NotFound(t *testing.T) {
	mux, _ := setupSchemaTest(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/schemas/ghost", "viewer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchemaGetVersion(t *testing.T) {
	mux, _ := setupSchemaTest(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/schemas/material/versions/2", "viewer", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/schemas/material/versions/9", "viewer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/schemas/material/versions/zero", "viewer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemaList(t *testing.T) {
	mux, _ := setupSchemaTest(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/schemas", "viewer", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSchemaPublish_RequiresAdmin(t *testing.T) {
	mux, registry := setupSchemaTest(t)

	schema := map[string]any{
		"slug":    "batch",
		"version": 1,
		"fields":  []map[string]any{{"name": "code", "label": "Code", "type": "string"}},
	}

	rec := doJSON(t, mux, http.MethodPost, "/api/schemas", "production_manager", schema)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/schemas", "admin", schema)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, registry.schemas, "batch")
}

func TestSchemaPublish_InvalidDocument(t *testing.T) {
	// Structural rejections are client errors, not server faults.
	mux, registry := setupSchemaTest(t)
	registry.publishErr = fmt.Errorf("%w: enum field %q has no options",
		apperrors.ErrInvalidSchemaDocument, "status")

	schema := map[string]any{
		"slug":    "batch",
		"version": 1,
		"fields":  []map[string]any{{"name": "status", "label": "Status", "type": "enum"}},
	}

	rec := doJSON(t, mux, http.MethodPost, "/api/schemas", "admin", schema)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_schema_document", body["error"])
}

func TestSchemaPublish_InvalidBody(t *testing.T) {
	mux, _ := setupSchemaTest(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/schemas", "admin", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
