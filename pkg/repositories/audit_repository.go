package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forgeline-inc/forgeline-engine/pkg/database"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
)

// AuditRepository provides data access for the append-only audit ledger.
// There is deliberately no update or delete operation.
type AuditRepository interface {
	// Create inserts a new audit entry.
	Create(ctx context.Context, entry *models.AuditEntry) error

	// GetByEntity returns all entries for a specific entity, newest first.
	GetByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error)

	// GetByDateRange returns entries created within [from, to), newest
	// first, optionally filtered by entity type.
	GetByDateRange(ctx context.Context, entityType string, from, to time.Time, limit int) ([]*models.AuditEntry, error)

	// GetByUser returns entries triggered by a specific user, newest first.
	GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditEntry, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	beforeJSON, err := marshalNullable(entry.Before)
	if err != nil {
		return fmt.Errorf("failed to marshal before state: %w", err)
	}
	afterJSON, err := marshalNullable(entry.After)
	if err != nil {
		return fmt.Errorf("failed to marshal after state: %w", err)
	}
	changesJSON, err := marshalNullable(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}
	metadataJSON, err := marshalNullable(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (
			id, action, entity_type, entity_id, user_id, before, after,
			changes, metadata, duration_ms, client_ip, endpoint, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.Exec(ctx, query,
		entry.ID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.UserID,
		beforeJSON,
		afterJSON,
		changesJSON,
		metadataJSON,
		entry.DurationMS,
		entry.ClientIP,
		entry.Endpoint,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

const auditColumns = `id, action, entity_type, entity_id, user_id, before, after,
		changes, metadata, duration_ms, client_ip, endpoint, created_at`

func (r *auditRepository) GetByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by entity: %w", err)
	}
	defer rows.Close()

	return collectAuditEntries(rows)
}

func (r *auditRepository) GetByDateRange(ctx context.Context, entityType string, from, to time.Time, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_log
		WHERE created_at >= $1 AND created_at < $2
		  AND ($3 = '' OR entity_type = $3)
		ORDER BY created_at DESC
		LIMIT $4`

	rows, err := r.db.Query(ctx, query, from, to, entityType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by date range: %w", err)
	}
	defer rows.Close()

	return collectAuditEntries(rows)
}

func (r *auditRepository) GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by user: %w", err)
	}
	defer rows.Close()

	return collectAuditEntries(rows)
}

func collectAuditEntries(rows pgx.Rows) ([]*models.AuditEntry, error) {
	var entries []*models.AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

func scanAuditEntry(row pgx.Row) (*models.AuditEntry, error) {
	var entry models.AuditEntry
	var beforeJSON, afterJSON, changesJSON, metadataJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.Action,
		&entry.EntityType,
		&entry.EntityID,
		&entry.UserID,
		&beforeJSON,
		&afterJSON,
		&changesJSON,
		&metadataJSON,
		&entry.DurationMS,
		&entry.ClientIP,
		&entry.Endpoint,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	if err := unmarshalNullable(beforeJSON, &entry.Before); err != nil {
		return nil, fmt.Errorf("failed to unmarshal before state: %w", err)
	}
	if err := unmarshalNullable(afterJSON, &entry.After); err != nil {
		return nil, fmt.Errorf("failed to unmarshal after state: %w", err)
	}
	if err := unmarshalNullable(changesJSON, &entry.Changes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
	}
	if err := unmarshalNullable(metadataJSON, &entry.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &entry, nil
}

// marshalNullable converts a map to JSON, mapping empty to SQL NULL.
func marshalNullable[T any](m map[string]T) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

// unmarshalNullable decodes JSON into dst, tolerating NULL columns.
func unmarshalNullable[T any](data []byte, dst *map[string]T) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, dst)
}
