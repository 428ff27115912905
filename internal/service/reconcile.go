package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"strata/internal/codec"
	"strata/internal/domain"
	"strata/internal/repository"
)

// DirtyEntityResult describes one entity processed by the reconciler
type DirtyEntityResult struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Valid          bool              `json:"valid"`
	ValidPublished *bool             `json:"validPublished,omitempty"`
	Processed      domain.DirtyFlags `json:"processed"`
}

// ProcessNextDirtyEntity validates and re-indexes one entity with pending
// dirty flags. It returns nil when no dirty entities remain.
func (e *Engine) ProcessNextDirtyEntity(ctx context.Context) (*DirtyEntityResult, error) {
	var result *DirtyEntityResult
	err := e.inTx(ctx, domain.Session{}, func(tx *txn) error {
		row, err := tx.NextDirtyEntity(ctx)
		if err != nil || row == nil {
			return err
		}

		flags := row.Dirty
		valid, validPublished := row.Valid, row.ValidPublished

		if flags.Has(domain.DirtyValidateLatest) || flags.Has(domain.DirtyIndexLatest) {
			version, err := tx.GetEntityVersion(ctx, row.LatestVersionID)
			if err != nil {
				return err
			}
			ok, err := tx.reconcileSide(ctx, row, version, false, flags)
			if err != nil {
				return err
			}
			if flags.Has(domain.DirtyValidateLatest) || !ok {
				valid = ok
			}
		}

		if row.PublishedVersionID != 0 && (flags.Has(domain.DirtyValidatePublished) || flags.Has(domain.DirtyIndexPublished)) {
			version, err := tx.GetEntityVersion(ctx, row.PublishedVersionID)
			if err != nil {
				return err
			}
			ok, err := tx.reconcileSide(ctx, row, version, true, flags)
			if err != nil {
				return err
			}
			if flags.Has(domain.DirtyValidatePublished) || !ok {
				validPublished = &ok
			}
		}

		if err := tx.UpdateEntityValidity(ctx, row.InternalID, valid, validPublished, flags); err != nil {
			return err
		}
		result = &DirtyEntityResult{
			ID:             row.UUID,
			Type:           row.Type,
			Valid:          valid,
			ValidPublished: validPublished,
			Processed:      flags,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reconcileSide decodes one side of an entity against the current schema and
// rebuilds its index values when requested. It reports whether the version
// is valid. A unique value taken by another entity makes the version invalid.
func (tx *txn) reconcileSide(ctx context.Context, row *repository.EntityRow, version *repository.VersionRow, published bool, flags domain.DirtyFlags) (bool, error) {
	view, indexFlag := codec.ViewAdmin, domain.DirtyIndexLatest
	if published {
		view, indexFlag = codec.ViewPublished, domain.DirtyIndexPublished
	}
	decoded := decodeVersion(tx.schema, row, version, view)
	if !flags.Has(indexFlag) {
		return decoded.Valid, nil
	}

	err := tx.Savepoint(ctx, "reindex_entity", func() error {
		return tx.UpdateIndexes(ctx, row.InternalID, published, &decoded.Artifacts)
	})
	if domain.KindOf(err) == domain.ErrorConflict {
		if err := tx.ClearIndexes(ctx, row.InternalID, published); err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return decoded.Valid, nil
}

// DrainDirtyEntities processes dirty entities until none remain or ctx is
// done, and returns the number processed
func (e *Engine) DrainDirtyEntities(ctx context.Context) (int, error) {
	n := 0
	for ctx.Err() == nil {
		result, err := e.ProcessNextDirtyEntity(ctx)
		if err != nil {
			return n, err
		}
		if result == nil {
			return n, nil
		}
		n++
		if !result.Valid {
			e.logger.Warn().Str("id", result.ID).Str("type", result.Type).Msg("entity is invalid under the current schema")
		}
	}
	return n, ctx.Err()
}

// Reconciler drains dirty entities in the background. It runs on a fixed
// interval and right after every schema update.
type Reconciler struct {
	engine   *Engine
	interval time.Duration
	logger   zerolog.Logger
	events   chan Event
	wake     chan struct{}
}

// NewReconciler creates a reconciler polling every interval
func NewReconciler(engine *Engine, interval time.Duration, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		engine:   engine,
		interval: interval,
		logger:   logger.With().Str("component", "reconciler").Logger(),
		events:   make(chan Event, 16),
		wake:     make(chan struct{}, 1),
	}
}

// Name implements worker.Worker
func (r *Reconciler) Name() string { return "reconciler" }

// Interval implements worker.Worker
func (r *Reconciler) Interval() time.Duration { return r.interval }

// Wake implements worker.Waker. A value is sent after schema updates.
func (r *Reconciler) Wake() <-chan struct{} { return r.wake }

// Start subscribes to schema updates
func (r *Reconciler) Start(ctx context.Context) error {
	r.engine.EventBus().Subscribe(r.events)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-r.events:
				if ev.Type != domain.EventUpdateSchema {
					continue
				}
				select {
				case r.wake <- struct{}{}:
				default:
				}
			}
		}
	}()
	return nil
}

// Stop unsubscribes from the event bus
func (r *Reconciler) Stop() error {
	r.engine.EventBus().Unsubscribe(r.events)
	return nil
}

// RunOnce implements worker.Worker
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	n, err := r.engine.DrainDirtyEntities(ctx)
	if n > 0 {
		r.logger.Info().Int("entities", n).Msg("reconciled dirty entities")
	}
	return n, err
}

// Run drains the queue and keeps polling until ctx is cancelled
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer r.Stop()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("reconcile failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
	}
}
