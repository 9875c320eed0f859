package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
	"github.com/forgeline-inc/forgeline-engine/pkg/repositories"
)

// SchemaRegistry resolves and publishes entity schema versions. Published
// versions are immutable; a correction is always a new version.
type SchemaRegistry interface {
	// Resolve returns the latest published version for a slug.
	Resolve(ctx context.Context, slug string) (*models.EntitySchema, error)

	// ResolveVersion returns one specific published version.
	ResolveVersion(ctx context.Context, slug string, version int) (*models.EntitySchema, error)

	// Publish stores a new schema version. The submitted version must be
	// exactly one greater than the current latest for the slug (1 for a
	// new slug), and field names must be unique within the document.
	Publish(ctx context.Context, schema *models.EntitySchema) error

	// Slugs returns every slug with at least one published version.
	Slugs(ctx context.Context) ([]string, error)
}

type schemaRegistry struct {
	repo   repositories.SchemaRepository
	logger *zap.Logger

	// latest caches the newest version per slug. The cache is read-mostly:
	// it only changes on Publish, which invalidates the affected slug.
	mu     sync.RWMutex
	latest map[string]*models.EntitySchema
}

// NewSchemaRegistry creates a new SchemaRegistry.
func NewSchemaRegistry(repo repositories.SchemaRepository, logger *zap.Logger) SchemaRegistry {
	return &schemaRegistry{
		repo:   repo,
		logger: logger.Named("schema_registry"),
		latest: make(map[string]*models.EntitySchema),
	}
}

var _ SchemaRegistry = (*schemaRegistry)(nil)

func (s *schemaRegistry) Resolve(ctx context.Context, slug string) (*models.EntitySchema, error) {
	s.mu.RLock()
	cached, ok := s.latest[slug]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	schema, err := s.repo.GetLatest(ctx, slug)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.latest[slug] = schema
	s.mu.Unlock()

	return schema, nil
}

func (s *schemaRegistry) ResolveVersion(ctx context.Context, slug string, version int) (*models.EntitySchema, error) {
	// Serve the cached copy when the requested version happens to be the
	// latest; older versions always come from storage.
	s.mu.RLock()
	cached, ok := s.latest[slug]
	s.mu.RUnlock()
	if ok && cached.Version == version {
		return cached, nil
	}

	schema, err := s.repo.GetVersion(ctx, slug, version)
	if err != nil {
		return nil, err
	}
	return schema, nil
}

func (s *schemaRegistry) Publish(ctx context.Context, schema *models.EntitySchema) error {
	if schema.Slug == "" {
		return fmt.Errorf("%w: slug is required", apperrors.ErrInvalidSchemaDocument)
	}

	if err := validateSchemaDocument(schema); err != nil {
		return err
	}

	current, err := s.repo.MaxVersion(ctx, schema.Slug)
	if err != nil {
		return err
	}
	if schema.Version != current+1 {
		return fmt.Errorf("%w: got %d, latest is %d",
			apperrors.ErrInvalidVersionSequence, schema.Version, current)
	}

	if err := s.repo.Insert(ctx, schema); err != nil {
		// A concurrent publish may have claimed the version between the
		// MaxVersion read and the insert; the primary key settles the race.
		if errors.Is(err, apperrors.ErrConflict) {
			return fmt.Errorf("%w: version %d already published",
				apperrors.ErrInvalidVersionSequence, schema.Version)
		}
		return err
	}

	s.mu.Lock()
	s.latest[schema.Slug] = schema
	s.mu.Unlock()

	s.logger.Info("Published schema version",
		zap.String("slug", schema.Slug),
		zap.Int("version", schema.Version),
		zap.Int("fields", len(schema.Fields)))

	return nil
}

func (s *schemaRegistry) Slugs(ctx context.Context) ([]string, error) {
	return s.repo.ListSlugs(ctx)
}

// validateSchemaDocument enforces the structural invariants of a schema
// document: unique field names, known field types, and mandatory
// type-specific configuration.
func validateSchemaDocument(schema *models.EntitySchema) error {
	seen := make(map[string]struct{}, len(schema.Fields))
	for i := range schema.Fields {
		field := &schema.Fields[i]

		if field.Name == "" {
			return fmt.Errorf("%w: field %d has no name", apperrors.ErrInvalidSchemaDocument, i)
		}
		if _, dup := seen[field.Name]; dup {
			return fmt.Errorf("%w: %q", apperrors.ErrDuplicateFieldName, field.Name)
		}
		seen[field.Name] = struct{}{}

		if !field.Type.IsValid() {
			return fmt.Errorf("%w: field %q has unknown type %q", apperrors.ErrInvalidSchemaDocument, field.Name, field.Type)
		}
		if field.Type == models.FieldTypeEnum && len(field.EnumOptions) == 0 {
			return fmt.Errorf("%w: enum field %q has no options", apperrors.ErrInvalidSchemaDocument, field.Name)
		}
		if field.Type == models.FieldTypeRelation && (field.Relation == nil || field.Relation.TargetEntity == "") {
			return fmt.Errorf("%w: relation field %q has no relation config", apperrors.ErrInvalidSchemaDocument, field.Name)
		}
	}
	return nil
}
