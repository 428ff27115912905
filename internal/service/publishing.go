package service

import (
	"context"

	"strata/internal/codec"
	"strata/internal/domain"
	"strata/internal/repository"
)

// batchItem processes one reference of a batch operation. It returns the
// version to record in the changelog, or nil when nothing changed.
type batchItem func(tx *txn, ref domain.EntityVersionReference, batch map[string]bool) (*eventEntity, domain.EntityStatusPayload, error)

// runBatch runs fn for every reference inside its own savepoint. A failing
// item is rolled back and reported without affecting the others. One event
// is recorded for all items that changed.
func (e *Engine) runBatch(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference, eventType domain.EventType, fn batchItem) ([]domain.EntityBatchResult, error) {
	if len(refs) == 0 {
		return nil, domain.BadRequest("no entities provided")
	}
	batch := make(map[string]bool, len(refs))
	for _, ref := range refs {
		batch[ref.ID] = true
	}

	var results []domain.EntityBatchResult
	err := e.inTx(ctx, session, func(tx *txn) error {
		results = make([]domain.EntityBatchResult, 0, len(refs))
		var changed []eventEntity
		for _, ref := range refs {
			var (
				ev      *eventEntity
				payload domain.EntityStatusPayload
			)
			err := tx.Savepoint(ctx, "batch_item", func() error {
				var err error
				ev, payload, err = fn(tx, ref, batch)
				return err
			})
			if err != nil {
				results = append(results, domain.Fail[domain.EntityStatusPayload](err))
				continue
			}
			if ev != nil {
				changed = append(changed, *ev)
			}
			results = append(results, domain.Ok(payload))
		}
		if len(changed) == 0 {
			return nil
		}
		return tx.recordEvent(ctx, eventType, changed, 0)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// PublishEntities publishes the referenced versions, the latest one when no
// version is given. Each entity succeeds or fails independently.
func (e *Engine) PublishEntities(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference) ([]domain.EntityBatchResult, error) {
	return e.runBatch(ctx, session, refs, domain.EventPublishEntities, func(tx *txn, ref domain.EntityVersionReference, batch map[string]bool) (*eventEntity, domain.EntityStatusPayload, error) {
		row, err := e.loadEntity(ctx, tx, ref.ID)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		version, err := tx.versionOf(ctx, row, ref.Version)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		effect, err := e.publishVersion(ctx, tx, row, version, batch)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		payload := statusPayload(row, effect)
		if effect == domain.EffectNone {
			return nil, payload, nil
		}
		if err := tx.UpdateEntity(ctx, row); err != nil {
			return nil, payload, err
		}
		return &eventEntity{row, version}, payload, nil
	})
}

// UnpublishEntities withdraws the published versions of entities. An entity
// still referenced by other published entities can't be unpublished.
func (e *Engine) UnpublishEntities(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference) ([]domain.EntityBatchResult, error) {
	return e.runBatch(ctx, session, refs, domain.EventUnpublishEntities, func(tx *txn, ref domain.EntityVersionReference, _ map[string]bool) (*eventEntity, domain.EntityStatusPayload, error) {
		row, err := e.loadEntity(ctx, tx, ref.ID)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		status, err := domain.StatusAfterUnpublish(row.Status)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		n, err := tx.ReferencingEntityCount(ctx, row.InternalID, true)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		if n > 0 {
			return nil, domain.EntityStatusPayload{}, domain.BadRequest("entity (%s) is referenced by %d published entities", row.UUID, n)
		}
		version, err := tx.GetEntityVersion(ctx, row.PublishedVersionID)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		if err := tx.ClearIndexes(ctx, row.InternalID, true); err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}

		row.Status = status
		row.PublishedVersionID = 0
		row.Dirty = row.Dirty.Clear(domain.DirtyValidatePublished | domain.DirtyIndexPublished)
		row.UpdatedAt = tx.now
		if err := tx.UpdateEntity(ctx, row); err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		return &eventEntity{row, version}, statusPayload(row, domain.EffectUnpublished), nil
	})
}

// DeleteEntities tombstones archived entities. The field data of every
// version is removed and the entity can't be loaded again.
func (e *Engine) DeleteEntities(ctx context.Context, session domain.Session, refs []domain.EntityVersionReference) ([]domain.EntityBatchResult, error) {
	return e.runBatch(ctx, session, refs, domain.EventDeleteEntities, func(tx *txn, ref domain.EntityVersionReference, _ map[string]bool) (*eventEntity, domain.EntityStatusPayload, error) {
		row, err := e.loadEntity(ctx, tx, ref.ID)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		status, err := domain.StatusAfterDelete(row.Status)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		n, err := tx.ReferencingEntityCount(ctx, row.InternalID, false)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		if n > 0 {
			return nil, domain.EntityStatusPayload{}, domain.BadRequest("entity (%s) is referenced by %d entities", row.UUID, n)
		}
		version, err := tx.GetEntityVersion(ctx, row.LatestVersionID)
		if err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		before := *row

		if err := tx.TombstoneEntityVersions(ctx, row.InternalID); err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		for _, published := range []bool{false, true} {
			if err := tx.ClearIndexes(ctx, row.InternalID, published); err != nil {
				return nil, domain.EntityStatusPayload{}, err
			}
		}
		if err := tx.setName(ctx, row, ""); err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}

		deletedAt := tx.now
		row.Status = status
		row.Dirty = 0
		row.UpdatedAt = tx.now
		row.DeletedAt = &deletedAt
		if err := tx.UpdateEntity(ctx, row); err != nil {
			return nil, domain.EntityStatusPayload{}, err
		}
		return &eventEntity{&before, version}, statusPayload(row, domain.EffectDeleted), nil
	})
}

// ArchiveEntity archives a draft or withdrawn entity. Archiving an archived
// entity has effect none.
func (e *Engine) ArchiveEntity(ctx context.Context, session domain.Session, ref domain.EntityVersionReference) (*domain.EntityStatusPayload, error) {
	return e.changeStatus(ctx, session, ref, domain.EventArchiveEntity, func(row *repository.EntityRow) (domain.EntityStatus, domain.Effect, error) {
		if row.Status == domain.StatusArchived {
			return row.Status, domain.EffectNone, nil
		}
		status, err := domain.StatusAfterArchive(row.Status)
		return status, domain.EffectArchived, err
	})
}

// UnarchiveEntity restores an archived entity to draft, or to withdrawn if it
// was ever published
func (e *Engine) UnarchiveEntity(ctx context.Context, session domain.Session, ref domain.EntityVersionReference) (*domain.EntityStatusPayload, error) {
	return e.changeStatus(ctx, session, ref, domain.EventUnarchiveEntity, func(row *repository.EntityRow) (domain.EntityStatus, domain.Effect, error) {
		if row.Status != domain.StatusArchived {
			return row.Status, domain.EffectNone, nil
		}
		status, err := domain.StatusAfterUnarchive(row.Status, row.NeverPublished)
		return status, domain.EffectUnarchived, err
	})
}

func (e *Engine) changeStatus(ctx context.Context, session domain.Session, ref domain.EntityVersionReference, eventType domain.EventType, next func(row *repository.EntityRow) (domain.EntityStatus, domain.Effect, error)) (*domain.EntityStatusPayload, error) {
	var payload domain.EntityStatusPayload
	err := e.inTx(ctx, session, func(tx *txn) error {
		row, err := e.loadEntity(ctx, tx, ref.ID)
		if err != nil {
			return err
		}
		status, effect, err := next(row)
		if err != nil {
			return err
		}
		if effect == domain.EffectNone {
			payload = statusPayload(row, effect)
			return nil
		}

		version, err := tx.GetEntityVersion(ctx, row.LatestVersionID)
		if err != nil {
			return err
		}
		row.Status = status
		row.UpdatedAt = tx.now
		if err := tx.UpdateEntity(ctx, row); err != nil {
			return err
		}
		payload = statusPayload(row, effect)
		return tx.recordEvent(ctx, eventType, []eventEntity{{row, version}}, 0)
	})
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// publishVersion makes version the published version of the entity. The
// version must be valid against the published schema and may only reference
// published entities, or entities in batch. The row is updated in memory.
func (e *Engine) publishVersion(ctx context.Context, tx *txn, row *repository.EntityRow, version *repository.VersionRow, batch map[string]bool) (domain.Effect, error) {
	status, err := domain.StatusAfterPublish(row.Status, version.ID == row.LatestVersionID)
	if err != nil {
		return "", err
	}
	if row.PublishedVersionID == version.ID && row.Status == status {
		return domain.EffectNone, nil
	}

	decoded := decodeVersion(tx.schema, row, version, codec.ViewPublished)
	if !decoded.Valid {
		return "", domain.BadRequest("entity (%s) is not valid for publishing: %v", row.UUID, codec.IssuesError(decoded.Issues))
	}
	if batch == nil {
		batch = map[string]bool{row.UUID: true}
	}
	if err := checkReferences(ctx, tx, decoded.References, true, batch); err != nil {
		return "", err
	}
	if err := tx.UpdateIndexes(ctx, row.InternalID, true, &decoded.Artifacts); err != nil {
		return "", err
	}

	valid := true
	row.Status = status
	row.PublishedVersionID = version.ID
	row.NeverPublished = false
	row.ValidPublished = &valid
	row.Dirty = row.Dirty.Clear(domain.DirtyValidatePublished | domain.DirtyIndexPublished)
	row.UpdatedAt = tx.now
	return domain.EffectPublished, nil
}

// versionOf returns the numbered version of an entity, the latest for 0
func (tx *txn) versionOf(ctx context.Context, row *repository.EntityRow, number int) (*repository.VersionRow, error) {
	if number == 0 {
		return tx.GetEntityVersion(ctx, row.LatestVersionID)
	}
	return tx.GetEntityVersionByNumber(ctx, row.InternalID, number)
}

func statusPayload(row *repository.EntityRow, effect domain.Effect) domain.EntityStatusPayload {
	return domain.EntityStatusPayload{ID: row.UUID, Status: row.Status, Effect: effect, UpdatedAt: row.UpdatedAt}
}
