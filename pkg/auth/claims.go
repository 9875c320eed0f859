// Package auth provides JWT-based authentication for forgeline-engine.
// It validates tokens against configured JWKS endpoints and exposes the
// caller's normalized role to downstream handlers.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/forgeline-inc/forgeline-engine/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
)

// Claims represents the JWT claims structure issued by the identity
// provider. RegisteredClaims carries the standard fields (sub, iss, exp).
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// SetClaims stores claims in the context for downstream handlers.
func SetClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// RoleFromContext returns the caller's normalized role. Missing claims or
// an unrecognized role string normalize to RoleNone, never to a default.
func RoleFromContext(ctx context.Context) models.Role {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return models.RoleNone
	}
	return models.NormalizeRole(claims.Role)
}

// UserIDFromContext returns the caller's user id when the subject claim
// parses as a UUID, or nil.
func UserIDFromContext(ctx context.Context) *uuid.UUID {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return nil
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil
	}
	return &id
}
