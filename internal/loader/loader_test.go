package loader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/codec"
	"strata/internal/domain"
	"strata/internal/repository"
	"strata/internal/repository/sqlite"
	"strata/internal/service"
)

var session = domain.Session{Subject: "importer", DefaultAuthKeys: service.DefaultSessionAuthKeys}

const bundleYAML = `
schema:
  entityTypes:
    - name: Author
      nameField: name
      fields:
        - name: name
          type: String
          required: true
    - name: Book
      nameField: title
      fields:
        - name: title
          type: String
          required: true
        - name: author
          type: Entity
          entityTypes: [Author]
entities:
  - id: 7c9e6679-7425-40de-944b-e07fc1f90ae7
    type: Book
    fields:
      title: Dune
      author:
        id: 16fd2706-8baf-433b-82eb-8c7fada847da
  - id: 16fd2706-8baf-433b-82eb-8c7fada847da
    type: Author
    fields:
      name: Frank Herbert
  - type: Book
    fields:
      title: Orphan
      author:
        id: 00000000-0000-4000-8000-000000000000
`

func newTestLoader(t *testing.T) (*Loader, *service.Engine) {
	t.Helper()
	adapter, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	engine := service.NewEngine(repository.NewStore(adapter), service.Options{})
	return New(engine, zerolog.Nop()), engine
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportResolvesForwardReferences(t *testing.T) {
	ctx := context.Background()
	l, engine := newTestLoader(t)

	bundle, err := ReadFile(writeFile(t, "bundle.yaml", bundleYAML))
	require.NoError(t, err)

	report, err := l.Import(ctx, session, bundle, ImportOptions{Publish: true})
	require.NoError(t, err)
	assert.Equal(t, domain.EffectUpdated, report.SchemaEffect)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 2, report.Published)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "Book", report.Failed[0].Type)
	assert.Equal(t, domain.ErrorBadRequest, report.Failed[0].Error.Kind)

	book, err := engine.GetPublishedEntity(ctx, session, domain.EntityLookup{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7"})
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Info.Name)

	// A second import upserts without changes
	report, err = l.Import(ctx, session, bundle, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.EffectNone, report.SchemaEffect)
	assert.Equal(t, 2, report.Unchanged)
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLoader(t)

	bundle, err := ReadFile(writeFile(t, "bundle.yaml", bundleYAML))
	require.NoError(t, err)
	_, err = l.Import(ctx, session, bundle, ImportOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := l.Export(ctx, session, &buf, ExportOptions{Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	exported, err := codec.NewJSONCodec().Parse(&buf)
	require.NoError(t, err)
	require.NotNil(t, exported.Schema)
	assert.Len(t, exported.Schema.EntityTypes, 2)
	assert.Empty(t, exported.Schema.Migrations)
	require.Len(t, exported.Entities, 2)

	other, _ := newTestLoader(t)
	report, err := other.Import(ctx, session, exported, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Empty(t, report.Failed)
}

func TestApplySchemaFile(t *testing.T) {
	ctx := context.Background()
	l, engine := newTestLoader(t)

	path := writeFile(t, "schema.json", `{"schema":{"entityTypes":[{"name":"Tag","fields":[{"name":"label","type":"String"}]}]}}`)
	payload, err := l.ApplySchemaFile(ctx, session, path)
	require.NoError(t, err)
	assert.Equal(t, domain.EffectUpdated, payload.Effect)

	payload, err = l.ApplySchemaFile(ctx, session, path)
	require.NoError(t, err)
	assert.Equal(t, domain.EffectNone, payload.Effect)

	spec, err := engine.GetSchemaSpecification(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Version)

	_, err = l.ApplySchemaFile(ctx, session, writeFile(t, "empty.json", `{}`))
	assert.Error(t, err)
	_, err = ReadFile(writeFile(t, "schema.toml", ``))
	assert.Error(t, err)
}
