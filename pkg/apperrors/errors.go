package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrSchemaNotFound         = errors.New("schema not found")
	ErrSchemaVersionNotFound  = errors.New("schema version not found")
	ErrDuplicateFieldName     = errors.New("duplicate field name in schema")
	ErrInvalidSchemaDocument  = errors.New("invalid schema document")
	ErrInvalidVersionSequence = errors.New("schema version must be exactly one greater than the latest")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrRetryNotAllowed        = errors.New("retry not allowed")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrSyncDirection          = errors.New("operation not permitted by sync direction")
	ErrInvalidRole            = errors.New("invalid role")
)
