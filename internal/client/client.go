package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"strata/internal/domain"
	"strata/internal/paging"
	"strata/internal/schema"
	"strata/internal/service"
)

// Engine is the set of engine operations the client resolves against.
// *service.Engine implements it.
type Engine interface {
	GetEntity(ctx context.Context, session domain.Session, lookup domain.EntityLookup) (*domain.Entity, error)
	GetPublishedEntity(ctx context.Context, session domain.Session, lookup domain.EntityLookup) (*domain.Entity, error)
	GetEntities(ctx context.Context, session domain.Session, query domain.EntityQuery, req paging.Request) (*paging.Connection[*domain.Entity], error)
	GetPublishedEntities(ctx context.Context, session domain.Session, query domain.EntityQuery, req paging.Request) (*paging.Connection[*domain.Entity], error)
	GetEntitiesTotalCount(ctx context.Context, session domain.Session, query domain.EntityQuery, published bool) (int, error)
	SampleEntities(ctx context.Context, session domain.Session, query domain.EntityQuery, opts domain.EntitySamplingOptions, published bool) (*domain.EntitySamplingPayload, error)
	CreateEntity(ctx context.Context, session domain.Session, create domain.EntityCreate, opts domain.EntityMutationOptions) (*domain.EntityMutationPayload, error)
	UpdateEntity(ctx context.Context, session domain.Session, update domain.EntityUpdate, opts domain.EntityMutationOptions) (*domain.EntityMutationPayload, error)
	UpsertEntity(ctx context.Context, session domain.Session, create domain.EntityCreate, opts domain.EntityMutationOptions) (*domain.EntityMutationPayload, error)
	PublishEntities(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference) ([]domain.EntityBatchResult, error)
	UnpublishEntities(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference) ([]domain.EntityBatchResult, error)
	DeleteEntities(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference) ([]domain.EntityBatchResult, error)
	ArchiveEntity(ctx context.Context, session domain.Session, ref domain.EntityVersionReference) (*domain.EntityStatusPayload, error)
	UnarchiveEntity(ctx context.Context, session domain.Session, ref domain.EntityVersionReference) (*domain.EntityStatusPayload, error)
	GetSchemaSpecification(ctx context.Context) (schema.Specification, error)
	GetPublishedSchemaSpecification(ctx context.Context) (schema.Specification, error)
	UpdateSchemaSpecification(ctx context.Context, session domain.Session, update schema.SpecificationUpdate) (*service.SchemaUpdatePayload, error)
	GetChangelogEvents(ctx context.Context, session domain.Session, query domain.ChangelogEventQuery, req paging.Request) (*paging.Connection[*domain.ChangelogEvent], error)
	AcquireAdvisoryLock(ctx context.Context, session domain.Session, name string, opts service.AdvisoryLockOptions) (*domain.AdvisoryLock, error)
	RenewAdvisoryLock(ctx context.Context, session domain.Session, name, handle string) (*domain.AdvisoryLock, error)
	ReleaseAdvisoryLock(ctx context.Context, session domain.Session, name, handle string) error
	ProcessNextDirtyEntity(ctx context.Context) (*service.DirtyEntityResult, error)
}

var _ Engine = (*service.Engine)(nil)

// Operation is one call through the client
type Operation struct {
	Name    OperationName
	Session domain.Session
	Args    any // Pointer to the operation's args struct
}

// Handler resolves an operation to its value
type Handler func(ctx context.Context, op *Operation) (any, error)

// Middleware wraps a handler. Middleware may short-circuit by not calling
// next.
type Middleware func(next Handler) Handler

// Client executes operations through a middleware chain ending at the engine
type Client struct {
	handler Handler
}

// New creates a client. Middleware runs in the order given, the first one
// outermost.
func New(engine Engine, middleware ...Middleware) *Client {
	h := Terminal(engine)
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return &Client{handler: h}
}

// Execute runs an operation. Failures, including panics in middleware,
// are returned as the result's error, never as a panic.
func (c *Client) Execute(ctx context.Context, op *Operation) (result domain.Result[any]) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.Fail[any](fmt.Errorf("panic in operation %s: %v", op.Name, r))
		}
	}()
	value, err := c.handler(ctx, op)
	if err != nil {
		return domain.Fail[any](err)
	}
	return domain.Ok(value)
}

// Terminal returns the handler that resolves operations against the engine
func Terminal(engine Engine) Handler {
	return func(ctx context.Context, op *Operation) (any, error) {
		s := op.Session
		switch args := op.Args.(type) {
		case *GetEntityArgs:
			if args.Published {
				return engine.GetPublishedEntity(ctx, s, args.Lookup)
			}
			return engine.GetEntity(ctx, s, args.Lookup)
		case *GetEntitiesArgs:
			if args.Published {
				return engine.GetPublishedEntities(ctx, s, args.Query, args.Paging)
			}
			return engine.GetEntities(ctx, s, args.Query, args.Paging)
		case *GetEntitiesTotalCountArgs:
			return engine.GetEntitiesTotalCount(ctx, s, args.Query, args.Published)
		case *SampleEntitiesArgs:
			return engine.SampleEntities(ctx, s, args.Query, args.Options, args.Published)
		case *CreateEntityArgs:
			if op.Name == OpUpsertEntity {
				return engine.UpsertEntity(ctx, s, args.Entity, args.Options)
			}
			return engine.CreateEntity(ctx, s, args.Entity, args.Options)
		case *UpdateEntityArgs:
			return engine.UpdateEntity(ctx, s, args.Entity, args.Options)
		case *EntityReferencesArgs:
			switch op.Name {
			case OpPublishEntities:
				return engine.PublishEntities(ctx, s, args.References)
			case OpUnpublishEntities:
				return engine.UnpublishEntities(ctx, s, args.References)
			case OpDeleteEntities:
				return engine.DeleteEntities(ctx, s, args.References)
			}
		case *EntityReferenceArgs:
			switch op.Name {
			case OpArchiveEntity:
				return engine.ArchiveEntity(ctx, s, args.Reference)
			case OpUnarchiveEntity:
				return engine.UnarchiveEntity(ctx, s, args.Reference)
			}
		case *GetSchemaSpecificationArgs:
			if args.Published {
				return engine.GetPublishedSchemaSpecification(ctx)
			}
			return engine.GetSchemaSpecification(ctx)
		case *UpdateSchemaSpecificationArgs:
			return engine.UpdateSchemaSpecification(ctx, s, args.Update)
		case *GetChangelogEventsArgs:
			return engine.GetChangelogEvents(ctx, s, args.Query, args.Paging)
		case *AcquireAdvisoryLockArgs:
			return engine.AcquireAdvisoryLock(ctx, s, args.Name, service.AdvisoryLockOptions{
				LeaseDuration: time.Duration(args.LeaseDuration) * time.Millisecond,
			})
		case *AdvisoryLockArgs:
			switch op.Name {
			case OpRenewAdvisoryLock:
				return engine.RenewAdvisoryLock(ctx, s, args.Name, args.Handle)
			case OpReleaseAdvisoryLock:
				return nil, engine.ReleaseAdvisoryLock(ctx, s, args.Name, args.Handle)
			}
		case *ProcessDirtyEntityArgs:
			return engine.ProcessNextDirtyEntity(ctx)
		}
		return nil, domain.BadRequest("invalid arguments %T for operation %s", op.Args, op.Name)
	}
}

// Logging logs every operation with its duration and outcome
func Logging(logger zerolog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op *Operation) (any, error) {
			start := time.Now()
			value, err := next(ctx, op)
			ev := logger.Debug()
			if err != nil {
				if domain.KindOf(err) == domain.ErrorGeneric {
					ev = logger.Error()
				} else {
					ev = logger.Info()
				}
				ev = ev.Err(err)
			}
			ev.Str("operation", string(op.Name)).
				Str("subject", op.Session.Subject).
				Dur("duration", time.Since(start)).
				Msg("operation")
			return value, err
		}
	}
}

// ReadOnly rejects mutating operations
func ReadOnly() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op *Operation) (any, error) {
			if op.Name.IsMutation() {
				return nil, domain.NotAuthorized("operation %s is not allowed on a read-only client", op.Name)
			}
			return next(ctx, op)
		}
	}
}
