package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of mutating action captured by an audit entry.
// Reads are never audited.
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)

// FieldChange is the before/after pair for one changed field.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// AuditEntry is one row in the append-only audit ledger. Entries are never
// updated or deleted; a correction is a new compensating entry.
type AuditEntry struct {
	ID         uuid.UUID              `json:"id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	UserID     *uuid.UUID             `json:"user_id,omitempty"`
	Before     map[string]any         `json:"before,omitempty"`
	After      map[string]any         `json:"after,omitempty"`
	Changes    map[string]FieldChange `json:"changes,omitempty"`
	Metadata   map[string]any         `json:"metadata,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	ClientIP   string                 `json:"client_ip,omitempty"`
	Endpoint   string                 `json:"endpoint,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
