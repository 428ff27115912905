package client

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/domain"
	"strata/internal/paging"
	"strata/internal/repository"
	"strata/internal/repository/sqlite"
	"strata/internal/schema"
	"strata/internal/service"
)

var session = domain.Session{Subject: "client-test", DefaultAuthKeys: service.DefaultSessionAuthKeys}

func newTestClient(t *testing.T, middleware ...Middleware) *Client {
	t.Helper()
	adapter, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	engine := service.NewEngine(repository.NewStore(adapter), service.Options{})
	c := New(engine, middleware...)
	r := c.UpdateSchemaSpecification(context.Background(), session, schema.SpecificationUpdate{
		EntityTypes: []schema.EntityTypeSpecificationUpdate{{
			Name:   "Note",
			Fields: []schema.FieldSpecification{{Name: "text", Type: schema.FieldTypeString}},
		}},
	})
	require.True(t, r.IsOk(), "%v", r.Err)
	return c
}

func TestTypedOperations(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	created := c.CreateEntity(ctx, session, domain.EntityCreate{
		Info:   domain.EntityCreateInfo{Type: "Note", AuthKey: domain.AuthKeyNone, Name: "first"},
		Fields: map[string]any{"text": "hello"},
	}, domain.EntityMutationOptions{})
	require.True(t, created.IsOk(), "%v", created.Err)
	id := created.Value.Entity.ID

	got := c.GetEntity(ctx, session, domain.EntityLookup{ID: id})
	require.True(t, got.IsOk())
	assert.Equal(t, "hello", got.Value.Fields["text"])

	published := c.PublishEntities(ctx, session, []domain.EntityVersionReference{{ID: id}})
	require.True(t, published.IsOk())
	assert.Equal(t, domain.StatusPublished, published.Value[0].ValueOrPanic().Status)

	count := c.GetEntitiesTotalCount(ctx, session, domain.EntityQuery{})
	require.True(t, count.IsOk())
	assert.Equal(t, 1, count.Value)

	spec := c.GetSchemaSpecification(ctx, true)
	require.True(t, spec.IsOk())
	assert.Len(t, spec.Value.EntityTypes, 1)

	events := c.GetChangelogEvents(ctx, session, domain.ChangelogEventQuery{EntityID: id}, paging.Request{})
	require.True(t, events.IsOk())
	assert.Len(t, events.Value.Edges, 2)

	dirty := c.ProcessDirtyEntity(ctx)
	require.True(t, dirty.IsOk())
	assert.Nil(t, dirty.Value)
}

func TestErrorsAreResults(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	r := c.GetEntity(ctx, session, domain.EntityLookup{ID: "4a5b6c7d-1e2f-4a3b-9c8d-7e6f5a4b3c2d"})
	require.False(t, r.IsOk())
	assert.Equal(t, domain.ErrorNotFound, r.Err.Kind)
	assert.Panics(t, func() { r.ValueOrPanic() })

	bad := c.Execute(ctx, &Operation{Name: OpGetEntity, Args: &AdvisoryLockArgs{}})
	require.False(t, bad.IsOk())
	assert.Equal(t, domain.ErrorBadRequest, bad.Err.Kind)
}

func TestLocksThroughClient(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	lock := c.AcquireAdvisoryLock(ctx, session, "import", 1000)
	require.True(t, lock.IsOk(), "%v", lock.Err)

	again := c.AcquireAdvisoryLock(ctx, session, "import", 1000)
	require.False(t, again.IsOk())
	assert.Equal(t, domain.ErrorConflict, again.Err.Kind)

	renewed := c.RenewAdvisoryLock(ctx, session, "import", lock.Value.Handle)
	require.True(t, renewed.IsOk())

	released := c.ReleaseAdvisoryLock(ctx, session, "import", lock.Value.Handle)
	assert.True(t, released.IsOk())
}

func TestMiddlewareOrder(t *testing.T) {
	var calls []string
	trace := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, op *Operation) (any, error) {
				calls = append(calls, name+":"+string(op.Name))
				return next(ctx, op)
			}
		}
	}
	c := newTestClient(t, trace("outer"), trace("inner"), Logging(zerolog.Nop()))
	calls = nil

	r := c.GetEntitiesTotalCount(context.Background(), session, domain.EntityQuery{})
	require.True(t, r.IsOk())
	assert.Equal(t, []string{"outer:getEntitiesTotalCount", "inner:getEntitiesTotalCount"}, calls)
}

func TestMiddlewareCanShortCircuit(t *testing.T) {
	ctx := context.Background()
	readOnly := New(nil, ReadOnly(), func(next Handler) Handler {
		return func(ctx context.Context, op *Operation) (any, error) { return 42, nil }
	})

	r := readOnly.GetEntitiesTotalCount(ctx, session, domain.EntityQuery{})
	require.True(t, r.IsOk())
	assert.Equal(t, 42, r.Value)

	w := readOnly.CreateEntity(ctx, session, domain.EntityCreate{}, domain.EntityMutationOptions{})
	require.False(t, w.IsOk())
	assert.Equal(t, domain.ErrorNotAuthorized, w.Err.Kind)
}

func TestExecuteRecoversPanics(t *testing.T) {
	c := New(nil, func(next Handler) Handler {
		return func(ctx context.Context, op *Operation) (any, error) { panic("boom") }
	})
	r := c.Execute(context.Background(), &Operation{Name: OpGetEntity})
	require.False(t, r.IsOk())
	assert.Equal(t, domain.ErrorGeneric, r.Err.Kind)
}

func TestDecodeArgs(t *testing.T) {
	for _, name := range Operations {
		args, err := DecodeArgs(name, nil)
		require.NoError(t, err, name)
		assert.NotNil(t, args, name)
	}

	args, err := DecodeArgs(OpPublishEntities, []byte(`{"references":[{"id":"a"},{"id":"b","version":2}]}`))
	require.NoError(t, err)
	refs := args.(*EntityReferencesArgs).References
	require.Len(t, refs, 2)
	assert.Equal(t, 2, refs[1].Version)

	_, err = DecodeArgs("dropEverything", nil)
	assert.Equal(t, domain.ErrorBadRequest, domain.KindOf(err))

	_, err = DecodeArgs(OpGetEntity, []byte(`{"lookup":`))
	assert.Equal(t, domain.ErrorBadRequest, domain.KindOf(err))
}
