package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/database"
)

// Record is one stored instance of a metadata-defined entity. The payload
// is schemaless at the storage layer; the validation engine interprets it
// against the entity's schema before it gets here.
type Record struct {
	Slug string         `json:"slug"`
	ID   uuid.UUID      `json:"id"`
	Data map[string]any `json:"data"`
}

// RecordRepository is the generic keyed store behind every metadata-defined
// entity. It also serves as the uniqueness collaborator for the validation
// engine via ExistsByField.
type RecordRepository interface {
	Insert(ctx context.Context, record *Record) error
	Update(ctx context.Context, record *Record) error
	Get(ctx context.Context, slug string, id uuid.UUID) (*Record, error)
	Delete(ctx context.Context, slug string, id uuid.UUID) error
	List(ctx context.Context, slug string, limit, offset int) ([]*Record, error)

	// ExistsByField reports whether any record of the slug already carries
	// the given value in the named top-level field, excluding the record
	// with excludeID (uuid.Nil excludes nothing). Values are compared by
	// their JSON serialization.
	ExistsByField(ctx context.Context, slug, field string, value any, excludeID uuid.UUID) (bool, error)
}

type recordRepository struct {
	db *database.DB
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *database.DB) RecordRepository {
	return &recordRepository{db: db}
}

var _ RecordRepository = (*recordRepository)(nil)

func (r *recordRepository) Insert(ctx context.Context, record *Record) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}

	query := `
		INSERT INTO entity_records (slug, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug, id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, record.Slug, record.ID, data)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *recordRepository) Update(ctx context.Context, record *Record) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}

	query := `
		UPDATE entity_records
		SET data = $3, updated_at = now()
		WHERE slug = $1 AND id = $2`

	tag, err := r.db.Exec(ctx, query, record.Slug, record.ID, data)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *recordRepository) Get(ctx context.Context, slug string, id uuid.UUID) (*Record, error) {
	query := `SELECT data FROM entity_records WHERE slug = $1 AND id = $2`

	var data []byte
	if err := r.db.QueryRow(ctx, query, slug, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query record: %w", err)
	}

	record := &Record{Slug: slug, ID: id}
	if err := json.Unmarshal(data, &record.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
	}
	return record, nil
}

func (r *recordRepository) Delete(ctx context.Context, slug string, id uuid.UUID) error {
	query := `DELETE FROM entity_records WHERE slug = $1 AND id = $2`

	tag, err := r.db.Exec(ctx, query, slug, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *recordRepository) List(ctx context.Context, slug string, limit, offset int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, data
		FROM entity_records
		WHERE slug = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, slug, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record := &Record{Slug: slug}
		var data []byte
		if err := rows.Scan(&record.ID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal(data, &record.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

func (r *recordRepository) ExistsByField(ctx context.Context, slug, field string, value any, excludeID uuid.UUID) (bool, error) {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal field value: %w", err)
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM entity_records
			WHERE slug = $1 AND data -> $2 = $3::jsonb AND id <> $4
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, slug, field, valueJSON, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check field uniqueness: %w", err)
	}
	return exists, nil
}
