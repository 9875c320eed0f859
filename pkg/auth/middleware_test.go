package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/models"
)

// mockValidator returns canned claims for any token.
type mockValidator struct {
	claims *Claims
	err    error
}

func (m *mockValidator) ValidateToken(string) (*Claims, error) {
	return m.claims, m.err
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/entities/material/records", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRequireAuth_SetsClaims(t *testing.T) {
	validator := &mockValidator{claims: &Claims{Role: "operator"}}
	middleware := NewMiddleware(validator, zap.NewNop())

	var captured models.Role
	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		captured = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, authedRequest("some-token"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleOperator, captured)
}

func TestRequireAuth_MissingToken(t *testing.T) {
	middleware := NewMiddleware(&mockValidator{}, zap.NewNop())

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	})

	rec := httptest.NewRecorder()
	handler(rec, authedRequest(""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_MalformedHeader(t *testing.T) {
	middleware := NewMiddleware(&mockValidator{claims: &Claims{}}, zap.NewNop())

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	validator := &mockValidator{err: errors.New("token validation failed")}
	middleware := NewMiddleware(validator, zap.NewNop())

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	})

	rec := httptest.NewRecorder()
	handler(rec, authedRequest("bad-token"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireMinRole(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		minimum    models.Role
		wantStatus int
	}{
		{"exact role passes", "admin", models.RoleAdmin, http.StatusOK},
		{"higher role passes", "super_admin", models.RoleAdmin, http.StatusOK},
		{"peer role passes", "quality_manager", models.RoleProductionManager, http.StatusOK},
		{"lower role forbidden", "operator", models.RoleAdmin, http.StatusForbidden},
		{"unknown role forbidden", "superuser", models.RoleViewer, http.StatusForbidden},
		{"empty role forbidden", "", models.RoleViewer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := &mockValidator{claims: &Claims{Role: tt.role}}
			middleware := NewMiddleware(validator, zap.NewNop())

			handler := middleware.RequireMinRole(tt.minimum)(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			handler(rec, authedRequest("some-token"))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRoleFromContext_NoClaims(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, models.RoleNone, RoleFromContext(req.Context()))
}

func TestUserIDFromContext(t *testing.T) {
	ctx := SetClaims(httptest.NewRequest(http.MethodGet, "/", nil).Context(), &Claims{})
	assert.Nil(t, UserIDFromContext(ctx))

	claims := &Claims{}
	claims.Subject = "6f1f64fa-90a4-4a6f-b4b7-9631a0e4a9a2"
	ctx = SetClaims(ctx, claims)

	id := UserIDFromContext(ctx)
	require.NotNil(t, id)
	assert.Equal(t, claims.Subject, id.String())
}

func TestParseUnverifiedToken(t *testing.T) {
	// Development mode accepts unsigned-but-well-formed tokens.
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	require.NoError(t, err)

	const token = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
		"eyJzdWIiOiI2ZjFmNjRmYS05MGE0LTRhNmYtYjRiNy05NjMxYTBlNGE5YTIiLCJyb2xlIjoiYWRtaW4ifQ." +
		"invalid-signature"

	claims, err := client.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "6f1f64fa-90a4-4a6f-b4b7-9631a0e4a9a2", claims.Subject)
}
