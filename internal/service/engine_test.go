package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/domain"
	"strata/internal/paging"
	"strata/internal/repository"
	"strata/internal/repository/sqlite"
	"strata/internal/schema"
)

// ============================================================================
// Test Helpers
// ============================================================================

var editor = domain.Session{Subject: "editor", DefaultAuthKeys: DefaultSessionAuthKeys}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	adapter, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	e := NewEngine(repository.NewStore(adapter), Options{})
	_, err = e.UpdateSchemaSpecification(context.Background(), editor, schema.SpecificationUpdate{
		EntityTypes: []schema.EntityTypeSpecificationUpdate{
			{
				Name:      "Article",
				NameField: strPtr("title"),
				Fields: []schema.FieldSpecification{
					{Name: "title", Type: schema.FieldTypeString, Required: true},
					{Name: "slug", Type: schema.FieldTypeString, Index: "slugs"},
					{Name: "where", Type: schema.FieldTypeLocation},
					{Name: "related", Type: schema.FieldTypeEntity, List: true, EntityTypes: []string{"Article"}},
					{Name: "notes", Type: schema.FieldTypeString, AdminOnly: true},
				},
			},
			{
				Name:           "Private",
				AuthKeyPattern: strPtr("subjectOnly"),
				Fields:         []schema.FieldSpecification{{Name: "text", Type: schema.FieldTypeString}},
			},
		},
		Patterns: []schema.PatternSpecification{{Name: "subjectOnly", Pattern: "^subject$"}},
		Indexes:  []schema.IndexSpecification{{Name: "slugs", Type: schema.IndexTypeUnique}},
	})
	require.NoError(t, err)
	return e
}

func strPtr(s string) *string { return &s }

func createArticle(t *testing.T, e *Engine, fields map[string]any, publish bool) *domain.Entity {
	t.Helper()
	payload, err := e.CreateEntity(context.Background(), editor, domain.EntityCreate{
		Info:   domain.EntityCreateInfo{Type: "Article", AuthKey: domain.AuthKeyNone},
		Fields: fields,
	}, domain.EntityMutationOptions{Publish: publish})
	require.NoError(t, err)
	return payload.Entity
}

func ref(id string) []domain.EntityVersionReference {
	return []domain.EntityVersionReference{{ID: id}}
}

func assertKind(t *testing.T, kind domain.ErrorKind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, domain.KindOf(err), err.Error())
}

// ============================================================================
// Entity Lifecycle
// ============================================================================

func TestArticleLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	created, err := e.CreateEntity(ctx, editor, domain.EntityCreate{
		Info:   domain.EntityCreateInfo{Type: "Article", AuthKey: domain.AuthKeyNone},
		Fields: map[string]any{"title": "Hello"},
	}, domain.EntityMutationOptions{Publish: true})
	require.NoError(t, err)
	assert.Equal(t, domain.EffectCreatedAndPublished, created.Effect)
	assert.Equal(t, domain.StatusPublished, created.Entity.Info.Status)
	assert.Equal(t, 1, created.Entity.Info.Version)
	assert.Equal(t, "Hello", created.Entity.Info.Name)
	id := created.Entity.ID

	updated, err := e.UpdateEntity(ctx, editor, domain.EntityUpdate{
		ID:     id,
		Fields: map[string]any{"title": "Hello v2"},
	}, domain.EntityMutationOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.EffectUpdated, updated.Effect)
	assert.Equal(t, domain.StatusModified, updated.Entity.Info.Status)
	assert.Equal(t, 2, updated.Entity.Info.Version)
	assert.Equal(t, "Hello v2", updated.Entity.Info.Name)

	published, err := e.GetPublishedEntity(ctx, editor, domain.EntityLookup{ID: id})
	require.NoError(t, err)
	assert.Equal(t, "Hello", published.Fields["title"])
	assert.Equal(t, 1, published.Info.Version)

	results, err := e.UnpublishEntities(ctx, editor, ref(id))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].IsOk(), "%v", results[0].Err)
	assert.Equal(t, domain.StatusWithdrawn, results[0].Value.Status)

	_, err = e.GetPublishedEntity(ctx, editor, domain.EntityLookup{ID: id})
	assertKind(t, domain.ErrorNotFound, err)

	archived, err := e.ArchiveEntity(ctx, editor, domain.EntityVersionReference{ID: id})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, archived.Status)
	assert.Equal(t, domain.EffectArchived, archived.Effect)

	results, err = e.DeleteEntities(ctx, editor, ref(id))
	require.NoError(t, err)
	require.True(t, results[0].IsOk(), "%v", results[0].Err)
	assert.Equal(t, domain.StatusDeleted, results[0].Value.Status)

	_, err = e.GetEntity(ctx, editor, domain.EntityLookup{ID: id})
	assertKind(t, domain.ErrorNotFound, err)

	events, err := e.GetChangelogEvents(ctx, editor, domain.ChangelogEventQuery{EntityID: ""}, paging.Request{})
	require.NoError(t, err)
	var types []domain.EventType
	for _, edge := range events.Edges {
		types = append(types, edge.Node.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventUpdateSchema,
		domain.EventCreateAndPublishEntity,
		domain.EventUpdateEntity,
		domain.EventUnpublishEntities,
		domain.EventArchiveEntity,
		domain.EventDeleteEntities,
	}, types)
}

func TestStatusGuards(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	t.Run("published entity can't be archived", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Live"}, true)
		_, err := e.ArchiveEntity(ctx, editor, domain.EntityVersionReference{ID: entity.ID})
		assertKind(t, domain.ErrorBadRequest, err)
	})

	t.Run("draft entity can't be deleted", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Draft"}, false)
		results, err := e.DeleteEntities(ctx, editor, ref(entity.ID))
		require.NoError(t, err)
		require.False(t, results[0].IsOk())
		assert.Equal(t, domain.ErrorBadRequest, results[0].Err.Kind)
	})

	t.Run("modified entity can't be archived or deleted", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Live"}, true)
		updated, err := e.UpdateEntity(ctx, editor, domain.EntityUpdate{
			ID:     entity.ID,
			Fields: map[string]any{"title": "Live v2"},
		}, domain.EntityMutationOptions{})
		require.NoError(t, err)
		require.Equal(t, domain.StatusModified, updated.Entity.Info.Status)

		_, err = e.ArchiveEntity(ctx, editor, domain.EntityVersionReference{ID: entity.ID})
		assertKind(t, domain.ErrorBadRequest, err)

		results, err := e.DeleteEntities(ctx, editor, ref(entity.ID))
		require.NoError(t, err)
		require.False(t, results[0].IsOk())
		assert.Equal(t, domain.ErrorBadRequest, results[0].Err.Kind)

		reloaded, err := e.GetEntity(ctx, editor, domain.EntityLookup{ID: entity.ID})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusModified, reloaded.Info.Status)
	})

	t.Run("published entity can't be deleted", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Still live"}, true)
		results, err := e.DeleteEntities(ctx, editor, ref(entity.ID))
		require.NoError(t, err)
		require.False(t, results[0].IsOk())
		assert.Equal(t, domain.ErrorBadRequest, results[0].Err.Kind)
	})

	t.Run("archive twice has no effect", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Old"}, false)
		_, err := e.ArchiveEntity(ctx, editor, domain.EntityVersionReference{ID: entity.ID})
		require.NoError(t, err)
		again, err := e.ArchiveEntity(ctx, editor, domain.EntityVersionReference{ID: entity.ID})
		require.NoError(t, err)
		assert.Equal(t, domain.EffectNone, again.Effect)

		restored, err := e.UnarchiveEntity(ctx, editor, domain.EntityVersionReference{ID: entity.ID})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDraft, restored.Status)
	})

	t.Run("withdrawn entity unarchives to withdrawn", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Was live"}, true)
		_, err := e.UnpublishEntities(ctx, editor, ref(entity.ID))
		require.NoError(t, err)
		_, err = e.ArchiveEntity(ctx, editor, domain.EntityVersionReference{ID: entity.ID})
		require.NoError(t, err)
		restored, err := e.UnarchiveEntity(ctx, editor, domain.EntityVersionReference{ID: entity.ID})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusWithdrawn, restored.Status)
	})
}

func TestCreateEntityValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	tests := []struct {
		name   string
		create domain.EntityCreate
		kind   domain.ErrorKind
	}{
		{
			name:   "unknown type",
			create: domain.EntityCreate{Info: domain.EntityCreateInfo{Type: "Nope", AuthKey: "none"}},
			kind:   domain.ErrorBadRequest,
		},
		{
			name:   "missing required field",
			create: domain.EntityCreate{Info: domain.EntityCreateInfo{Type: "Article", AuthKey: "none"}},
			kind:   domain.ErrorBadRequest,
		},
		{
			name: "missing reference",
			create: domain.EntityCreate{
				Info: domain.EntityCreateInfo{Type: "Article", AuthKey: "none"},
				Fields: map[string]any{
					"title":   "Dangling",
					"related": []any{domain.EntityReference{ID: "0b6f7a5e-4c1d-4e2f-9a3b-8c7d6e5f4a3b"}},
				},
			},
			kind: domain.ErrorBadRequest,
		},
		{
			name: "auth key not matching pattern",
			create: domain.EntityCreate{
				Info:   domain.EntityCreateInfo{Type: "Private", AuthKey: "none"},
				Fields: map[string]any{"text": "secret"},
			},
			kind: domain.ErrorBadRequest,
		},
		{
			name: "unsupported auth key",
			create: domain.EntityCreate{
				Info:   domain.EntityCreateInfo{Type: "Article", AuthKey: "team"},
				Fields: map[string]any{"title": "Team"},
			},
			kind: domain.ErrorNotAuthorized,
		},
		{
			name: "invalid version",
			create: domain.EntityCreate{
				Info:   domain.EntityCreateInfo{Type: "Article", AuthKey: "none", Version: 2},
				Fields: map[string]any{"title": "Future"},
			},
			kind: domain.ErrorBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateEntity(ctx, editor, tt.create, domain.EntityMutationOptions{})
			assertKind(t, tt.kind, err)
		})
	}
}

func TestSubjectAuthKey(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	created, err := e.CreateEntity(ctx, editor, domain.EntityCreate{
		Info:   domain.EntityCreateInfo{Type: "Private", AuthKey: domain.AuthKeySubject},
		Fields: map[string]any{"text": "mine"},
	}, domain.EntityMutationOptions{})
	require.NoError(t, err)

	_, err = e.GetEntity(ctx, editor, domain.EntityLookup{ID: created.Entity.ID})
	require.NoError(t, err)

	other := domain.Session{Subject: "someone-else"}
	_, err = e.GetEntity(ctx, other, domain.EntityLookup{ID: created.Entity.ID})
	assertKind(t, domain.ErrorNotAuthorized, err)

	n, err := e.GetEntitiesTotalCount(ctx, other, domain.EntityQuery{EntityTypes: []string{"Private"}, AuthKeys: []string{domain.AuthKeySubject}}, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.GetEntitiesTotalCount(ctx, editor, domain.EntityQuery{EntityTypes: []string{"Private"}}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateEntity(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	t.Run("partial update keeps omitted fields and clears nil", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Partial", "slug": "partial", "notes": "internal"}, false)
		updated, err := e.UpdateEntity(ctx, editor, domain.EntityUpdate{
			ID:     entity.ID,
			Fields: map[string]any{"notes": nil, "where": domain.Location{Lat: 59.3, Lng: 18.1}},
		}, domain.EntityMutationOptions{})
		require.NoError(t, err)
		assert.Equal(t, "partial", updated.Entity.Fields["slug"])
		assert.NotContains(t, updated.Entity.Fields, "notes")
		assert.Equal(t, domain.Location{Lat: 59.3, Lng: 18.1}, updated.Entity.Fields["where"])
	})

	t.Run("update without changes has no effect", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Same"}, false)
		again, err := e.UpdateEntity(ctx, editor, domain.EntityUpdate{
			ID:     entity.ID,
			Fields: map[string]any{"title": "Same"},
		}, domain.EntityMutationOptions{})
		require.NoError(t, err)
		assert.Equal(t, domain.EffectNone, again.Effect)
		assert.Equal(t, 1, again.Entity.Info.Version)
	})

	t.Run("update without changes can still publish", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Publish me"}, false)
		again, err := e.UpdateEntity(ctx, editor, domain.EntityUpdate{ID: entity.ID}, domain.EntityMutationOptions{Publish: true})
		require.NoError(t, err)
		assert.Equal(t, domain.EffectPublished, again.Effect)
		assert.Equal(t, domain.StatusPublished, again.Entity.Info.Status)
	})

	t.Run("type mismatch", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Typed"}, false)
		_, err := e.UpdateEntity(ctx, editor, domain.EntityUpdate{
			ID:   entity.ID,
			Info: domain.EntityUpdateInfo{Type: "Private"},
		}, domain.EntityMutationOptions{})
		assertKind(t, domain.ErrorBadRequest, err)
	})

	t.Run("stale version", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "Versioned"}, false)
		_, err := e.UpdateEntity(ctx, editor, domain.EntityUpdate{
			ID:     entity.ID,
			Info:   domain.EntityUpdateInfo{Version: 3},
			Fields: map[string]any{"title": "Versioned v2"},
		}, domain.EntityMutationOptions{})
		assertKind(t, domain.ErrorBadRequest, err)
	})

	t.Run("old versions stay readable", func(t *testing.T) {
		entity := createArticle(t, e, map[string]any{"title": "First"}, false)
		_, err := e.UpdateEntity(ctx, editor, domain.EntityUpdate{ID: entity.ID, Fields: map[string]any{"title": "Second"}}, domain.EntityMutationOptions{})
		require.NoError(t, err)

		first, err := e.GetEntity(ctx, editor, domain.EntityLookup{ID: entity.ID, Version: 1})
		require.NoError(t, err)
		assert.Equal(t, "First", first.Fields["title"])
	})
}

func TestUpsertEntity(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	id := "5d0c6b9a-2e3f-4a1b-8c7d-6e5f4a3b2c1d"

	upsert := func(title string) *domain.EntityMutationPayload {
		payload, err := e.UpsertEntity(ctx, editor, domain.EntityCreate{
			ID:     id,
			Info:   domain.EntityCreateInfo{Type: "Article", AuthKey: domain.AuthKeyNone},
			Fields: map[string]any{"title": title},
		}, domain.EntityMutationOptions{})
		require.NoError(t, err)
		return payload
	}

	assert.Equal(t, domain.EffectCreated, upsert("Upserted").Effect)
	assert.Equal(t, domain.EffectUpdated, upsert("Upserted again").Effect)
	assert.Equal(t, domain.EffectNone, upsert("Upserted again").Effect)
}

func TestEntityNames(t *testing.T) {
	e := newTestEngine(t)

	first := createArticle(t, e, map[string]any{"title": "Taken"}, false)
	second := createArticle(t, e, map[string]any{"title": "Taken"}, false)
	assert.Equal(t, "Taken", first.Info.Name)
	assert.True(t, strings.HasPrefix(second.Info.Name, "Taken#"), second.Info.Name)
	assert.Len(t, second.Info.Name, len("Taken#000000"))

	// Editing another field keeps the suffixed name
	updated, err := e.UpdateEntity(context.Background(), editor, domain.EntityUpdate{
		ID:     second.ID,
		Fields: map[string]any{"slug": "taken-2"},
	}, domain.EntityMutationOptions{})
	require.NoError(t, err)
	assert.Equal(t, second.Info.Name, updated.Entity.Info.Name)
}

func TestUniqueIndex(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	entity := createArticle(t, e, map[string]any{"title": "One", "slug": "one"}, true)

	_, err := e.CreateEntity(ctx, editor, domain.EntityCreate{
		Info:   domain.EntityCreateInfo{Type: "Article", AuthKey: domain.AuthKeyNone},
		Fields: map[string]any{"title": "Two", "slug": "one"},
	}, domain.EntityMutationOptions{})
	assertKind(t, domain.ErrorConflict, err)

	found, err := e.GetEntity(ctx, editor, domain.EntityLookup{Index: "slugs", Value: "one"})
	require.NoError(t, err)
	assert.Equal(t, entity.ID, found.ID)

	published, err := e.GetPublishedEntity(ctx, editor, domain.EntityLookup{Index: "slugs", Value: "one"})
	require.NoError(t, err)
	assert.Equal(t, entity.ID, published.ID)

	_, err = e.GetEntity(ctx, editor, domain.EntityLookup{Index: "nope", Value: "one"})
	assertKind(t, domain.ErrorBadRequest, err)
}

// ============================================================================
// Batch Operations
// ============================================================================

func TestPublishEntitiesIsolatesItems(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	good := createArticle(t, e, map[string]any{"title": "Good"}, false)
	missing := "9c8b7a6f-5e4d-4c3b-8a2f-1e0d9c8b7a6f"

	results, err := e.PublishEntities(ctx, editor, []domain.EntityVersionReference{{ID: good.ID}, {ID: missing}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsOk())
	assert.Equal(t, domain.EffectPublished, results[0].Value.Effect)
	require.False(t, results[1].IsOk())
	assert.Equal(t, domain.ErrorNotFound, results[1].Err.Kind)

	conn, err := e.GetChangelogEvents(ctx, editor, domain.ChangelogEventQuery{Types: []domain.EventType{domain.EventPublishEntities}}, paging.Request{})
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	require.Len(t, conn.Edges[0].Node.Entities, 1)
	assert.Equal(t, good.ID, conn.Edges[0].Node.Entities[0].ID)

	again, err := e.PublishEntities(ctx, editor, ref(good.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.EffectNone, again[0].Value.Effect)

	n, err := e.GetChangelogEventsTotalCount(ctx, editor, domain.ChangelogEventQuery{Types: []domain.EventType{domain.EventPublishEntities}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPublishReferences(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	target := createArticle(t, e, map[string]any{"title": "Target"}, false)
	source := createArticle(t, e, map[string]any{
		"title":   "Source",
		"related": []any{domain.EntityReference{ID: target.ID}},
	}, false)

	results, err := e.PublishEntities(ctx, editor, ref(source.ID))
	require.NoError(t, err)
	require.False(t, results[0].IsOk())
	assert.Equal(t, domain.ErrorBadRequest, results[0].Err.Kind)

	results, err = e.PublishEntities(ctx, editor, []domain.EntityVersionReference{{ID: source.ID}, {ID: target.ID}})
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.IsOk(), "%v", r.Err)
	}

	conn, err := e.GetPublishedEntities(ctx, editor, domain.EntityQuery{LinksTo: target.ID}, paging.Request{})
	require.NoError(t, err)
	require.NotNil(t, conn)
	require.Len(t, conn.Edges, 1)
	assert.Equal(t, source.ID, conn.Edges[0].Node.ID)

	// The target is still referenced by a published entity
	results, err = e.UnpublishEntities(ctx, editor, ref(target.ID))
	require.NoError(t, err)
	require.False(t, results[0].IsOk())
	assert.Equal(t, domain.ErrorBadRequest, results[0].Err.Kind)
}

func TestPublishedViewHidesAdminOnlyFields(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	entity := createArticle(t, e, map[string]any{"title": "Visible", "notes": "hidden"}, true)

	admin, err := e.GetEntity(ctx, editor, domain.EntityLookup{ID: entity.ID})
	require.NoError(t, err)
	assert.Equal(t, "hidden", admin.Fields["notes"])

	published, err := e.GetPublishedEntity(ctx, editor, domain.EntityLookup{ID: entity.ID})
	require.NoError(t, err)
	assert.NotContains(t, published.Fields, "notes")
}

// ============================================================================
// Queries
// ============================================================================

func TestGetEntitiesPaging(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	var ids []string
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, createArticle(t, e, map[string]any{"title": title}, false).ID)
	}
	query := domain.EntityQuery{EntityTypes: []string{"Article"}}

	var forward []string
	after := ""
	for {
		conn, err := e.GetEntities(ctx, editor, query, paging.First(2, after))
		require.NoError(t, err)
		if conn == nil {
			break
		}
		for _, edge := range conn.Edges {
			forward = append(forward, edge.Node.ID)
		}
		if !conn.PageInfo.HasNextPage {
			break
		}
		after = conn.PageInfo.EndCursor
	}
	assert.Equal(t, ids, forward)

	var backward []string
	before := ""
	for {
		conn, err := e.GetEntities(ctx, editor, query, paging.Last(2, before))
		require.NoError(t, err)
		if conn == nil {
			break
		}
		page := make([]string, 0, len(conn.Edges))
		for _, edge := range conn.Edges {
			page = append(page, edge.Node.ID)
		}
		backward = append(page, backward...)
		if !conn.PageInfo.HasPreviousPage {
			break
		}
		before = conn.PageInfo.StartCursor
	}
	assert.Equal(t, ids, backward)

	reversed, err := e.GetEntities(ctx, editor, domain.EntityQuery{EntityTypes: []string{"Article"}, Reverse: true}, paging.First(1, ""))
	require.NoError(t, err)
	assert.Equal(t, ids[len(ids)-1], reversed.Edges[0].Node.ID)

	text, err := e.GetEntities(ctx, editor, domain.EntityQuery{Text: "C"}, paging.Request{})
	require.NoError(t, err)
	require.NotNil(t, text)
	assert.Equal(t, ids[2], text.Edges[0].Node.ID)

	first, last := 1, 1
	_, err = e.GetEntities(ctx, editor, query, paging.Request{First: &first, Last: &last})
	assertKind(t, domain.ErrorBadRequest, err)
}

func TestSampleEntities(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	for i := 0; i < 10; i++ {
		createArticle(t, e, map[string]any{"title": "Sample"}, false)
	}

	opts := domain.EntitySamplingOptions{Seed: 42, Count: 4}
	first, err := e.SampleEntities(ctx, editor, domain.EntityQuery{}, opts, false)
	require.NoError(t, err)
	second, err := e.SampleEntities(ctx, editor, domain.EntityQuery{}, opts, false)
	require.NoError(t, err)

	assert.Equal(t, 10, first.TotalCount)
	require.Len(t, first.Items, 4)
	for i := range first.Items {
		assert.Equal(t, first.Items[i].ID, second.Items[i].ID)
	}

	random, err := e.SampleEntities(ctx, editor, domain.EntityQuery{}, domain.EntitySamplingOptions{Count: 50}, false)
	require.NoError(t, err)
	assert.NotZero(t, random.Seed)
	assert.Len(t, random.Items, 10)
}

// ============================================================================
// Schema and Reconciliation
// ============================================================================

func TestUpdateSchemaSpecification(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	unchanged, err := e.UpdateSchemaSpecification(ctx, editor, schema.SpecificationUpdate{})
	require.NoError(t, err)
	assert.Equal(t, domain.EffectNone, unchanged.Effect)
	assert.Equal(t, 1, unchanged.Schema.Version)

	entity := createArticle(t, e, map[string]any{"title": "Before"}, true)

	updated, err := e.UpdateSchemaSpecification(ctx, editor, schema.SpecificationUpdate{
		EntityTypes: []schema.EntityTypeSpecificationUpdate{{
			Name:   "Article",
			Fields: []schema.FieldSpecification{{Name: "summary", Type: schema.FieldTypeString, Required: true}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EffectUpdated, updated.Effect)
	assert.Equal(t, 2, updated.Schema.Version)

	n, err := e.DrainDirtyEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	next, err := e.ProcessNextDirtyEntity(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	reloaded, err := e.GetEntity(ctx, editor, domain.EntityLookup{ID: entity.ID})
	require.NoError(t, err)
	assert.False(t, reloaded.Info.Valid)
	require.NotNil(t, reloaded.Info.ValidPublished)
	assert.False(t, *reloaded.Info.ValidPublished)

	invalid, err := e.GetEntitiesTotalCount(ctx, editor, domain.EntityQuery{Valid: boolPtr(false)}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, invalid)
}

func TestSchemaMigrations(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	entity := createArticle(t, e, map[string]any{"title": "Migrated", "notes": "kept"}, false)

	_, err := e.UpdateSchemaSpecification(ctx, editor, schema.SpecificationUpdate{
		Migrations: []schema.Migration{{Version: 2, Actions: []schema.MigrationAction{
			{Action: schema.ActionRenameField, EntityType: "Article", Field: "notes", NewName: "remarks"},
			{Action: schema.ActionRenameType, EntityType: "Article", NewName: "Post"},
		}}},
	})
	require.NoError(t, err)

	reloaded, err := e.GetEntity(ctx, editor, domain.EntityLookup{ID: entity.ID})
	require.NoError(t, err)
	assert.Equal(t, "Post", reloaded.Info.Type)
	assert.Equal(t, "kept", reloaded.Fields["remarks"])
	assert.NotContains(t, reloaded.Fields, "notes")

	_, err = e.UpdateSchemaSpecification(ctx, editor, schema.SpecificationUpdate{
		Migrations: []schema.Migration{{Version: 3, Actions: []schema.MigrationAction{
			{Action: schema.ActionDeleteType, EntityType: "Post"},
		}}},
	})
	assertKind(t, domain.ErrorBadRequest, err)
}

func TestReconcilerWakesOnSchemaUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newTestEngine(t)
	createArticle(t, e, map[string]any{"title": "Dirty"}, false)

	r := NewReconciler(e, time.Hour, e.logger)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Give the reconciler time to subscribe before the update
	time.Sleep(50 * time.Millisecond)
	_, err := e.UpdateSchemaSpecification(ctx, editor, schema.SpecificationUpdate{
		EntityTypes: []schema.EntityTypeSpecificationUpdate{{
			Name:   "Article",
			Fields: []schema.FieldSpecification{{Name: "extra", Type: schema.FieldTypeBoolean}},
		}},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var dirty int
		err := e.Store().Adapter().QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE dirty <> 0`).Scan(&dirty)
		return err == nil && dirty == 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func boolPtr(b bool) *bool { return &b }

// ============================================================================
// Advisory Locks
// ============================================================================

func TestAdvisoryLocks(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	lock, err := e.AcquireAdvisoryLock(ctx, editor, "job", AdvisoryLockOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, lock.Handle)

	_, err = e.AcquireAdvisoryLock(ctx, editor, "job", AdvisoryLockOptions{})
	assertKind(t, domain.ErrorConflict, err)

	_, err = e.RenewAdvisoryLock(ctx, editor, "job", lock.Handle)
	require.NoError(t, err)
	_, err = e.RenewAdvisoryLock(ctx, editor, "job", "wrong-handle")
	assertKind(t, domain.ErrorNotFound, err)

	require.NoError(t, e.ReleaseAdvisoryLock(ctx, editor, "job", lock.Handle))
	require.NoError(t, e.ReleaseAdvisoryLock(ctx, editor, "job", lock.Handle))

	_, err = e.AcquireAdvisoryLock(ctx, editor, "job", AdvisoryLockOptions{})
	require.NoError(t, err)
}

func TestWithAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	t.Run("runs callback and releases", func(t *testing.T) {
		ran := false
		err := e.WithAdvisoryLock(ctx, editor, "task", WithAdvisoryLockOptions{}, func(ctx context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)

		_, err = e.AcquireAdvisoryLock(ctx, editor, "task", AdvisoryLockOptions{})
		require.NoError(t, err)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		_, err := e.AcquireAdvisoryLock(ctx, editor, "busy", AdvisoryLockOptions{})
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err = e.WithAdvisoryLock(waitCtx, editor, "busy", WithAdvisoryLockOptions{AcquireInterval: 10 * time.Millisecond}, func(ctx context.Context) error {
			t.Error("callback must not run without the lock")
			return nil
		})
		var domainErr *domain.Error
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrorGeneric, domainErr.Kind)
	})

	t.Run("waits for a taken lock", func(t *testing.T) {
		held, err := e.AcquireAdvisoryLock(ctx, editor, "queue", AdvisoryLockOptions{})
		require.NoError(t, err)
		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = e.ReleaseAdvisoryLock(ctx, editor, "queue", held.Handle)
		}()

		err = e.WithAdvisoryLock(ctx, editor, "queue", WithAdvisoryLockOptions{AcquireInterval: 20 * time.Millisecond}, func(ctx context.Context) error {
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("lost lease wins over callback result", func(t *testing.T) {
		err := e.WithAdvisoryLock(ctx, editor, "lost", WithAdvisoryLockOptions{RenewInterval: 20 * time.Millisecond}, func(lockCtx context.Context) error {
			_, err := e.Store().Adapter().ExecContext(ctx, `DELETE FROM advisory_locks WHERE name = ?`, "lost")
			require.NoError(t, err)
			<-lockCtx.Done()
			return nil
		})
		assertKind(t, domain.ErrorNotFound, err)
	})
}

// ============================================================================
// Principals
// ============================================================================

func TestPrincipals(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, _, err := e.CreateSession(ctx, "test", "alice", false)
	assertKind(t, domain.ErrorNotFound, err)

	session, created, err := e.CreateSession(ctx, "test", "alice", true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, session.Subject)
	assert.Equal(t, DefaultSessionAuthKeys, session.DefaultAuthKeys)

	again, created, err := e.CreateSession(ctx, "test", "alice", true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, session.Subject, again.Subject)

	_, err = e.CreatePrincipal(ctx, *session, "test", "alice")
	assertKind(t, domain.ErrorConflict, err)

	conn, err := e.GetPrincipals(ctx, paging.Request{})
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	assert.Equal(t, "alice", conn.Edges[0].Node.Identifier)
}

func TestEventBusReceivesCommittedEvents(t *testing.T) {
	e := newTestEngine(t)
	ch := make(chan Event, 4)
	e.EventBus().Subscribe(ch)
	defer e.EventBus().Unsubscribe(ch)

	entity := createArticle(t, e, map[string]any{"title": "Broadcast"}, false)

	select {
	case ev := <-ch:
		assert.Equal(t, domain.EventCreateEntity, ev.Type)
		require.Len(t, ev.Payload.Entities, 1)
		assert.Equal(t, entity.ID, ev.Payload.Entities[0].ID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	// Failed operations publish nothing
	_, err := e.ArchiveEntity(context.Background(), editor, domain.EntityVersionReference{ID: "missing"})
	require.Error(t, err)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}
