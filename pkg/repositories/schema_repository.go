package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/database"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
)

// SchemaRepository provides data access for published entity schema versions.
// Versions are insert-only; a published version is never updated.
type SchemaRepository interface {
	// Insert stores a new schema version. Returns apperrors.ErrConflict if
	// the (slug, version) pair already exists.
	Insert(ctx context.Context, schema *models.EntitySchema) error

	// GetLatest returns the highest published version for a slug.
	GetLatest(ctx context.Context, slug string) (*models.EntitySchema, error)

	// GetVersion returns one specific published version.
	GetVersion(ctx context.Context, slug string, version int) (*models.EntitySchema, error)

	// MaxVersion returns the highest version number for a slug, or 0 when
	// the slug has no published versions.
	MaxVersion(ctx context.Context, slug string) (int, error)

	// ListSlugs returns all slugs with at least one published version.
	ListSlugs(ctx context.Context) ([]string, error)
}

type schemaRepository struct {
	db *database.DB
}

// NewSchemaRepository creates a new SchemaRepository.
func NewSchemaRepository(db *database.DB) SchemaRepository {
	return &schemaRepository{db: db}
}

var _ SchemaRepository = (*schemaRepository)(nil)

func (r *schemaRepository) Insert(ctx context.Context, schema *models.EntitySchema) error {
	if schema.CreatedAt.IsZero() {
		schema.CreatedAt = time.Now()
	}

	document, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema document: %w", err)
	}

	query := `
		INSERT INTO entity_schemas (slug, version, document, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug, version) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, schema.Slug, schema.Version, document, schema.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert schema version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	return nil
}

func (r *schemaRepository) GetLatest(ctx context.Context, slug string) (*models.EntitySchema, error) {
	query := `
		SELECT document
		FROM entity_schemas
		WHERE slug = $1
		ORDER BY version DESC
		LIMIT 1`

	return r.scanSchema(r.db.QueryRow(ctx, query, slug), apperrors.ErrSchemaNotFound)
}

func (r *schemaRepository) GetVersion(ctx context.Context, slug string, version int) (*models.EntitySchema, error) {
	query := `
		SELECT document
		FROM entity_schemas
		WHERE slug = $1 AND version = $2`

	return r.scanSchema(r.db.QueryRow(ctx, query, slug, version), apperrors.ErrSchemaVersionNotFound)
}

func (r *schemaRepository) MaxVersion(ctx context.Context, slug string) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM entity_schemas WHERE slug = $1`

	var version int
	if err := r.db.QueryRow(ctx, query, slug).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query max schema version: %w", err)
	}
	return version, nil
}

func (r *schemaRepository) ListSlugs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT slug FROM entity_schemas ORDER BY slug`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan schema slug: %w", err)
		}
		slugs = append(slugs, slug)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schema slugs: %w", err)
	}

	return slugs, nil
}

func (r *schemaRepository) scanSchema(row pgx.Row, notFound error) (*models.EntitySchema, error) {
	var document []byte
	if err := row.Scan(&document); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to scan schema document: %w", err)
	}

	var schema models.EntitySchema
	if err := json.Unmarshal(document, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema document: %w", err)
	}

	return &schema, nil
}
