package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"strata/internal/codec"
	"strata/internal/domain"
	"strata/internal/repository"
	"strata/internal/schema"
)

// Options configure an Engine. Nil fields get defaults.
type Options struct {
	Authorization AuthorizationAdapter
	EventBus      *EventBus
	Logger        *zerolog.Logger
}

// Engine implements the repository operations on top of a storage adapter
type Engine struct {
	store  *repository.Store
	authz  AuthorizationAdapter
	bus    *EventBus
	logger zerolog.Logger

	// schema caches the latest stored admin schema
	schema atomic.Pointer[schema.AdminSchema]
}

// NewEngine creates an engine
func NewEngine(store *repository.Store, opts Options) *Engine {
	e := &Engine{
		store:  store,
		authz:  opts.Authorization,
		bus:    opts.EventBus,
		logger: zerolog.Nop(),
	}
	if e.authz == nil {
		e.authz = SubjectAuthorizationAdapter{}
	}
	if e.bus == nil {
		e.bus = NewEventBus()
	}
	if opts.Logger != nil {
		e.logger = opts.Logger.With().Str("component", "engine").Logger()
	}
	return e
}

// EventBus returns the bus committed changelog events are published on
func (e *Engine) EventBus() *EventBus {
	return e.bus
}

// Store returns the underlying store
func (e *Engine) Store() *repository.Store {
	return e.store
}

// txn is the state of one engine transaction
type txn struct {
	*repository.Store
	schema  *schema.AdminSchema
	session domain.Session
	now     time.Time
	events  []*domain.ChangelogEvent
}

// inTx runs fn in a transaction with the current schema loaded. Events
// recorded by fn are broadcast after commit. Errors leaving the transaction
// are always *domain.Error.
func (e *Engine) inTx(ctx context.Context, session domain.Session, fn func(tx *txn) error) error {
	var committed []*domain.ChangelogEvent
	err := e.store.WithTx(ctx, func(store *repository.Store) error {
		s, err := e.loadSchema(ctx, store)
		if err != nil {
			return err
		}
		tx := &txn{Store: store, schema: s, session: session, now: repository.Now()}
		if err := fn(tx); err != nil {
			return err
		}
		committed = tx.events
		return nil
	})
	if err != nil {
		return domain.AsError(err)
	}

	for _, ev := range committed {
		e.bus.Publish(Event{Type: ev.Type, Payload: ev})
	}
	return nil
}

// loadSchema returns the latest stored schema, reusing the cached instance
// while the stored version is unchanged
func (e *Engine) loadSchema(ctx context.Context, store *repository.Store) (*schema.AdminSchema, error) {
	version, err := store.GetLatestSchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	cached := e.schema.Load()
	if cached != nil && cached.Version() == version {
		return cached, nil
	}
	s, err := store.GetLatestSchema(ctx)
	if err != nil {
		return nil, err
	}
	e.schema.CompareAndSwap(cached, s)
	return s, nil
}

// recordEvent appends a changelog event to the transaction
func (tx *txn) recordEvent(ctx context.Context, typ domain.EventType, entities []eventEntity, schemaVersion int) error {
	return tx.recordEventBy(ctx, tx.session.Subject, typ, entities, schemaVersion)
}

// recordEventBy appends a changelog event created by a given subject
func (tx *txn) recordEventBy(ctx context.Context, createdBy string, typ domain.EventType, entities []eventEntity, schemaVersion int) error {
	ev := &domain.ChangelogEvent{
		ID:            tx.RandomUUID(),
		Type:          typ,
		CreatedAt:     tx.now,
		CreatedBy:     createdBy,
		SchemaVersion: schemaVersion,
	}
	versionIDs := make([]int64, len(entities))
	for i, ent := range entities {
		versionIDs[i] = ent.version.ID
		ev.Entities = append(ev.Entities, domain.EventEntityVersion{
			ID:      ent.row.UUID,
			Version: ent.version.Version,
			Type:    ent.row.Type,
			Name:    ent.row.Name,
		})
	}
	if err := tx.InsertEvent(ctx, ev, versionIDs); err != nil {
		return err
	}
	tx.events = append(tx.events, ev)
	return nil
}

// eventEntity is an entity version referenced by a changelog event
type eventEntity struct {
	row     *repository.EntityRow
	version *repository.VersionRow
}

// loadEntity loads a live entity and checks the session may access it
func (e *Engine) loadEntity(ctx context.Context, tx *txn, id string) (*repository.EntityRow, error) {
	row, err := tx.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Status == domain.StatusDeleted {
		return nil, domain.NotFound("no such entity (%s)", id)
	}
	if err := e.authorize(ctx, tx.session, row.AuthKey, row.ResolvedAuthKey); err != nil {
		return nil, err
	}
	return row, nil
}

// toEntity decodes a version row into an entity for the given view
func toEntity(s *schema.AdminSchema, row *repository.EntityRow, version *repository.VersionRow, view codec.View) *domain.Entity {
	decoded := decodeVersion(s, row, version, view)
	return &domain.Entity{
		ID: row.UUID,
		Info: domain.EntityInfo{
			Type:           row.Type,
			Name:           row.Name,
			AuthKey:        row.AuthKey,
			Status:         row.Status,
			Version:        version.Version,
			Valid:          row.Valid,
			ValidPublished: row.ValidPublished,
			CreatedAt:      row.CreatedAt,
			UpdatedAt:      row.UpdatedAt,
		},
		Fields: decoded.Fields,
	}
}

// decodeVersion decodes a stored version of an entity
func decodeVersion(s *schema.AdminSchema, row *repository.EntityRow, version *repository.VersionRow, view codec.View) *codec.DecodedEntity {
	return codec.Decode(s, codec.StoredEntity{
		Type:          row.Type,
		SchemaVersion: version.SchemaVersion,
		EncodeVersion: version.EncodeVersion,
		Fields:        version.Fields,
	}, view)
}
