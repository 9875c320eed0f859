package models

import (
	"time"

	"github.com/jinzhu/inflection"
)

// EntityAction is one of the four gated operations on an entity.
type EntityAction string

const (
	ActionCreate EntityAction = "create"
	ActionRead   EntityAction = "read"
	ActionUpdate EntityAction = "update"
	ActionDelete EntityAction = "delete"
)

// SyncDirection declares which way data flows between this system and the
// external bridge for one entity mapping.
type SyncDirection string

const (
	SyncToSystem      SyncDirection = "to_system"
	SyncFromSystem    SyncDirection = "from_system"
	SyncBidirectional SyncDirection = "bidirectional"
)

// AllowsPush reports whether writes may originate from this system.
func (d SyncDirection) AllowsPush() bool {
	return d == SyncToSystem || d == SyncBidirectional
}

// AllowsPull reports whether reads from the external system are permitted.
func (d SyncDirection) AllowsPull() bool {
	return d == SyncFromSystem || d == SyncBidirectional
}

// Permissions maps each entity action to the minimum role it requires.
type Permissions struct {
	Create Role `json:"create"`
	Read   Role `json:"read"`
	Update Role `json:"update"`
	Delete Role `json:"delete"`
}

// For returns the minimum role for the given action, or RoleNone with
// ok=false when the action is unknown.
func (p Permissions) For(action EntityAction) (Role, bool) {
	switch action {
	case ActionCreate:
		return p.Create, true
	case ActionRead:
		return p.Read, true
	case ActionUpdate:
		return p.Update, true
	case ActionDelete:
		return p.Delete, true
	}
	return RoleNone, false
}

// ListViewColumn configures one grid column.
type ListViewColumn struct {
	Field string `json:"field"`
	Label string `json:"label,omitempty"`
	Width int    `json:"width,omitempty"`
}

// ListView configures the list/grid rendering for an entity.
type ListView struct {
	DefaultSort      string           `json:"default_sort,omitempty"`
	SearchableFields []string         `json:"searchable_fields,omitempty"`
	Columns          []ListViewColumn `json:"columns,omitempty"`
	Filters          []string         `json:"filters,omitempty"`
	PageSize         int              `json:"page_size,omitempty"`
}

// ERPMapping configures how an entity syncs with the external bridge.
type ERPMapping struct {
	Enabled     bool          `json:"enabled"`
	TargetTable string        `json:"target_table,omitempty"`
	Direction   SyncDirection `json:"direction,omitempty"`
	Schedule    string        `json:"schedule,omitempty"` // cron-style hint, not enforced here
}

// Table returns the external table name, defaulting to the pluralized
// entity slug when the mapping does not declare one.
func (m ERPMapping) Table(slug string) string {
	if m.TargetTable != "" {
		return m.TargetTable
	}
	return inflection.Plural(slug)
}

// EntitySchema is one published, immutable version of an entity's
// declarative definition. Corrections are published as a new version,
// never as a mutation of an existing one.
type EntitySchema struct {
	Slug        string            `json:"slug"`
	Version     int               `json:"version"`
	DisplayName string            `json:"display_name"`
	Fields      []FieldDefinition `json:"fields"`
	FieldGroups []FieldGroup      `json:"field_groups,omitempty"`
	ListView    ListView          `json:"list_view,omitempty"`
	Permissions Permissions       `json:"permissions"`
	Hooks       []string          `json:"hooks,omitempty"`
	ERP         *ERPMapping       `json:"erp,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Field returns the field definition with the given name, or nil.
func (s *EntitySchema) Field(name string) *FieldDefinition {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}
