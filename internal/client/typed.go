package client

import (
	"context"
	"fmt"

	"strata/internal/domain"
	"strata/internal/paging"
	"strata/internal/schema"
	"strata/internal/service"
)

// typed narrows an untyped result to T
func typed[T any](r domain.Result[any]) domain.Result[T] {
	if !r.IsOk() {
		return domain.Result[T]{Err: r.Err}
	}
	if r.Value == nil {
		var zero T
		return domain.Ok(zero)
	}
	v, ok := r.Value.(T)
	if !ok {
		return domain.Fail[T](fmt.Errorf("unexpected result type %T", r.Value))
	}
	return domain.Ok(v)
}

func (c *Client) run(ctx context.Context, session domain.Session, name OperationName, args any) domain.Result[any] {
	return c.Execute(ctx, &Operation{Name: name, Session: session, Args: args})
}

func (c *Client) GetEntity(ctx context.Context, session domain.Session, lookup domain.EntityLookup) domain.Result[*domain.Entity] {
	return typed[*domain.Entity](c.run(ctx, session, OpGetEntity, &GetEntityArgs{Lookup: lookup}))
}

func (c *Client) GetPublishedEntity(ctx context.Context, session domain.Session, lookup domain.EntityLookup) domain.Result[*domain.Entity] {
	return typed[*domain.Entity](c.run(ctx, session, OpGetEntity, &GetEntityArgs{Lookup: lookup, Published: true}))
}

func (c *Client) GetEntities(ctx context.Context, session domain.Session, query domain.EntityQuery, req paging.Request) domain.Result[*paging.Connection[*domain.Entity]] {
	return typed[*paging.Connection[*domain.Entity]](c.run(ctx, session, OpGetEntities, &GetEntitiesArgs{Query: query, Paging: req}))
}

func (c *Client) GetEntitiesTotalCount(ctx context.Context, session domain.Session, query domain.EntityQuery) domain.Result[int] {
	return typed[int](c.run(ctx, session, OpGetEntitiesTotalCount, &GetEntitiesTotalCountArgs{Query: query}))
}

func (c *Client) SampleEntities(ctx context.Context, session domain.Session, query domain.EntityQuery, opts domain.EntitySamplingOptions) domain.Result[*domain.EntitySamplingPayload] {
	return typed[*domain.EntitySamplingPayload](c.run(ctx, session, OpSampleEntities, &SampleEntitiesArgs{Query: query, Options: opts}))
}

func (c *Client) CreateEntity(ctx context.Context, session domain.Session, create domain.EntityCreate, opts domain.EntityMutationOptions) domain.Result[*domain.EntityMutationPayload] {
	return typed[*domain.EntityMutationPayload](c.run(ctx, session, OpCreateEntity, &CreateEntityArgs{Entity: create, Options: opts}))
}

func (c *Client) UpdateEntity(ctx context.Context, session domain.Session, update domain.EntityUpdate, opts domain.EntityMutationOptions) domain.Result[*domain.EntityMutationPayload] {
	return typed[*domain.EntityMutationPayload](c.run(ctx, session, OpUpdateEntity, &UpdateEntityArgs{Entity: update, Options: opts}))
}

func (c *Client) UpsertEntity(ctx context.Context, session domain.Session, create domain.EntityCreate, opts domain.EntityMutationOptions) domain.Result[*domain.EntityMutationPayload] {
	return typed[*domain.EntityMutationPayload](c.run(ctx, session, OpUpsertEntity, &CreateEntityArgs{Entity: create, Options: opts}))
}

func (c *Client) PublishEntities(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference) domain.Result[[]domain.EntityBatchResult] {
	return typed[[]domain.EntityBatchResult](c.run(ctx, session, OpPublishEntities, &EntityReferencesArgs{References: refs}))
}

func (c *Client) UnpublishEntities(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference) domain.Result[[]domain.EntityBatchResult] {
	return typed[[]domain.EntityBatchResult](c.run(ctx, session, OpUnpublishEntities, &EntityReferencesArgs{References: refs}))
}

func (c *Client) DeleteEntities(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference) domain.Result[[]domain.EntityBatchResult] {
	return typed[[]domain.EntityBatchResult](c.run(ctx, session, OpDeleteEntities, &EntityReferencesArgs{References: refs}))
}

func (c *Client) ArchiveEntity(ctx context.Context, session domain.Session, ref domain.EntityVersionReference) domain.Result[*domain.EntityStatusPayload] {
	return typed[*domain.EntityStatusPayload](c.run(ctx, session, OpArchiveEntity, &EntityReferenceArgs{Reference: ref}))
}

func (c *Client) UnarchiveEntity(ctx context.Context, session domain.Session, ref domain.EntityVersionReference) domain.Result[*domain.EntityStatusPayload] {
	return typed[*domain.EntityStatusPayload](c.run(ctx, session, OpUnarchiveEntity, &EntityReferenceArgs{Reference: ref}))
}

func (c *Client) GetSchemaSpecification(ctx context.Context, published bool) domain.Result[schema.Specification] {
	return typed[schema.Specification](c.run(ctx, domain.Session{}, OpGetSchemaSpecification, &GetSchemaSpecificationArgs{Published: published}))
}

func (c *Client) UpdateSchemaSpecification(ctx context.Context, session domain.Session, update schema.SpecificationUpdate) domain.Result[*service.SchemaUpdatePayload] {
	return typed[*service.SchemaUpdatePayload](c.run(ctx, session, OpUpdateSchemaSpecification, &UpdateSchemaSpecificationArgs{Update: update}))
}

func (c *Client) GetChangelogEvents(ctx context.Context, session domain.Session, query domain.ChangelogEventQuery, req paging.Request) domain.Result[*paging.Connection[*domain.ChangelogEvent]] {
	return typed[*paging.Connection[*domain.ChangelogEvent]](c.run(ctx, session, OpGetChangelogEvents, &GetChangelogEventsArgs{Query: query, Paging: req}))
}

func (c *Client) AcquireAdvisoryLock(ctx context.Context, session domain.Session, name string, leaseMillis int64) domain.Result[*domain.AdvisoryLock] {
	return typed[*domain.AdvisoryLock](c.run(ctx, session, OpAcquireAdvisoryLock, &AcquireAdvisoryLockArgs{Name: name, LeaseDuration: leaseMillis}))
}

func (c *Client) RenewAdvisoryLock(ctx context.Context, session domain.Session, name, handle string) domain.Result[*domain.AdvisoryLock] {
	return typed[*domain.AdvisoryLock](c.run(ctx, session, OpRenewAdvisoryLock, &AdvisoryLockArgs{Name: name, Handle: handle}))
}

func (c *Client) ReleaseAdvisoryLock(ctx context.Context, session domain.Session, name, handle string) domain.Result[struct{}] {
	r := c.run(ctx, session, OpReleaseAdvisoryLock, &AdvisoryLockArgs{Name: name, Handle: handle})
	return domain.Result[struct{}]{Err: r.Err}
}

func (c *Client) ProcessDirtyEntity(ctx context.Context) domain.Result[*service.DirtyEntityResult] {
	return typed[*service.DirtyEntityResult](c.run(ctx, domain.Session{}, OpProcessDirtyEntity, &ProcessDirtyEntityArgs{}))
}
