package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/apperrors"
	"github.com/forgeline-inc/forgeline-engine/pkg/models"
)

// mockSchemaRepository is an in-memory SchemaRepository keyed by
// (slug, version).
type mockSchemaRepository struct {
	schemas    map[string]map[int]*models.EntitySchema
	getLatestN int
	insertErr  error
}

func newMockSchemaRepository() *mockSchemaRepository {
	return &mockSchemaRepository{schemas: make(map[string]map[int]*models.EntitySchema)}
}

func (m *mockSchemaRepository) Insert(_ context.Context, schema *models.EntitySchema) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	versions, ok := m.schemas[schema.Slug]
	if !ok {
		versions = make(map[int]*models.EntitySchema)
		m.schemas[schema.Slug] = versions
	}
	if _, exists := versions[schema.Version]; exists {
		return apperrors.ErrConflict
	}
	versions[schema.Version] = schema
	return nil
}

func (m *mockSchemaRepository) GetLatest(_ context.Context, slug string) (*models.EntitySchema, error) {
	m.getLatestN++
	versions, ok := m.schemas[slug]
	if !ok || len(versions) == 0 {
		return nil, apperrors.ErrSchemaNotFound
	}
	max := 0
	for v := range versions {
		if v > max {
			max = v
		}
	}
	return versions[max], nil
}

func (m *mockSchemaRepository) GetVersion(_ context.Context, slug string, version int) (*models.EntitySchema, error) {
	schema, ok := m.schemas[slug][version]
	if !ok {
		return nil, apperrors.ErrSchemaVersionNotFound
	}
	return schema, nil
}

func (m *mockSchemaRepository) MaxVersion(_ context.Context, slug string) (int, error) {
	max := 0
	for v := range m.schemas[slug] {
		if v > max {
			max = v
		}
	}
	return max, nil
}

func (m *mockSchemaRepository) ListSlugs(_ context.Context) ([]string, error) {
	slugs := make([]string, 0, len(m.schemas))
	for slug := range m.schemas {
		slugs = append(slugs, slug)
	}
	return slugs, nil
}

func testSchema(slug string, version int) *models.EntitySchema {
	return &models.EntitySchema{
		Slug:    slug,
		Version: version,
		Fields: []models.FieldDefinition{
			{Name: "name", Label: "Name", Type: models.FieldTypeString},
		},
	}
}

func TestSchemaRegistry_PublishAndResolve(t *testing.T) {
	repo := newMockSchemaRepository()
	registry := NewSchemaRegistry(repo, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, registry.Publish(ctx, testSchema("material", 1)))

	schema, err := registry.Resolve(ctx, "material")
	require.NoError(t, err)
	assert.Equal(t, 1, schema.Version)
}

func TestSchemaRegistry_ResolveUnknownSlug(t *testing.T) {
	registry := NewSchemaRegistry(newMockSchemaRepository(), zap.NewNop())

	_, err := registry.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrSchemaNotFound)
}

func TestSchemaRegistry_VersionSequence(t *testing.T) {
	repo := newMockSchemaRepository()
	registry := NewSchemaRegistry(repo, zap.NewNop())
	ctx := context.Background()

	// A brand new slug must start at version 1.
	err := registry.Publish(ctx, testSchema("material", 2))
	assert.ErrorIs(t, err, apperrors.ErrInvalidVersionSequence)

	require.NoError(t, registry.Publish(ctx, testSchema("material", 1)))

	// Skipping a version is rejected, as is republishing the current one.
	assert.ErrorIs(t, registry.Publish(ctx, testSchema("material", 3)), apperrors.ErrInvalidVersionSequence)
	assert.ErrorIs(t, registry.Publish(ctx, testSchema("material", 1)), apperrors.ErrInvalidVersionSequence)

	require.NoError(t, registry.Publish(ctx, testSchema("material", 2)))
}

func TestSchemaRegistry_ConcurrentPublishRace(t *testing.T) {
	// When the insert loses the race to a concurrent publisher, the
	// conflict surfaces as a version sequence error.
	repo := newMockSchemaRepository()
	registry := NewSchemaRegistry(repo, zap.NewNop())
	ctx := context.Background()

	// Simulate the slot being taken between MaxVersion and Insert.
	repo.insertErr = apperrors.ErrConflict

	err := registry.Publish(ctx, testSchema("material", 1))
	assert.ErrorIs(t, err, apperrors.ErrInvalidVersionSequence)
}

func TestSchemaRegistry_DuplicateFieldNames(t *testing.T) {
	registry := NewSchemaRegistry(newMockSchemaRepository(), zap.NewNop())

	schema := testSchema("material", 1)
	schema.Fields = append(schema.Fields, models.FieldDefinition{
		Name: "name", Label: "Name Again", Type: models.FieldTypeText,
	})

	err := registry.Publish(context.Background(), schema)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateFieldName)
}

func TestSchemaRegistry_EnumRequiresOptions(t *testing.T) {
	registry := NewSchemaRegistry(newMockSchemaRepository(), zap.NewNop())

	schema := testSchema("work_order", 1)
	schema.Fields = append(schema.Fields, models.FieldDefinition{
		Name: "status", Label: "Status", Type: models.FieldTypeEnum,
	})

	assert.ErrorIs(t, registry.Publish(context.Background(), schema), apperrors.ErrInvalidSchemaDocument)
}

func TestSchemaRegistry_RelationRequiresConfig(t *testing.T) {
	registry := NewSchemaRegistry(newMockSchemaRepository(), zap.NewNop())

	schema := testSchema("batch", 1)
	schema.Fields = append(schema.Fields, models.FieldDefinition{
		Name: "material", Label: "Material", Type: models.FieldTypeRelation,
	})

	assert.ErrorIs(t, registry.Publish(context.Background(), schema), apperrors.ErrInvalidSchemaDocument)
}

func TestSchemaRegistry_UnknownFieldType(t *testing.T) {
	registry := NewSchemaRegistry(newMockSchemaRepository(), zap.NewNop())

	schema := testSchema("material", 1)
	schema.Fields[0].Type = models.FieldType("hologram")

	assert.ErrorIs(t, registry.Publish(context.Background(), schema), apperrors.ErrInvalidSchemaDocument)
}

func TestSchemaRegistry_ResolveCaches(t *testing.T) {
	repo := newMockSchemaRepository()
	registry := NewSchemaRegistry(repo, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, registry.Publish(ctx, testSchema("material", 1)))

	for i := 0; i < 3; i++ {
		_, err := registry.Resolve(ctx, "material")
		require.NoError(t, err)
	}
	assert.Zero(t, repo.getLatestN, "Publish should prime the cache")
}

func TestSchemaRegistry_ResolveVersion(t *testing.T) {
	repo := newMockSchemaRepository()
	registry := NewSchemaRegistry(repo, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, registry.Publish(ctx, testSchema("material", 1)))
	require.NoError(t, registry.Publish(ctx, testSchema("material", 2)))

	schema, err := registry.ResolveVersion(ctx, "material", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, schema.Version)

	_, err = registry.ResolveVersion(ctx, "material", 9)
	assert.ErrorIs(t, err, apperrors.ErrSchemaVersionNotFound)
}
