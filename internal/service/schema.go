package service

import (
	"context"

	"strata/internal/domain"
	"strata/internal/schema"
)

// SchemaUpdatePayload is the outcome of a schema update
type SchemaUpdatePayload struct {
	Effect domain.Effect        `json:"effect"`
	Schema schema.Specification `json:"schemaSpecification"`
}

// GetSchemaSpecification returns the latest admin schema
func (e *Engine) GetSchemaSpecification(ctx context.Context) (schema.Specification, error) {
	var spec schema.Specification
	err := e.inTx(ctx, domain.Session{}, func(tx *txn) error {
		spec = tx.schema.Specification()
		return nil
	})
	return spec, err
}

// GetPublishedSchemaSpecification returns the schema derived for published
// consumers
func (e *Engine) GetPublishedSchemaSpecification(ctx context.Context) (schema.Specification, error) {
	var spec schema.Specification
	err := e.inTx(ctx, domain.Session{}, func(tx *txn) error {
		spec = tx.schema.ToPublishedSchema().Specification()
		return nil
	})
	return spec, err
}

// UpdateSchemaSpecification merges update into the latest schema and stores
// the result as a new version. Entity type renames are applied to stored
// entities right away. Entities whose type may validate or index differently
// are marked dirty for the reconciler.
func (e *Engine) UpdateSchemaSpecification(ctx context.Context, session domain.Session, update schema.SpecificationUpdate) (*SchemaUpdatePayload, error) {
	var (
		payload *SchemaUpdatePayload
		dirty   int64
	)
	err := e.inTx(ctx, session, func(tx *txn) error {
		next, err := tx.schema.UpdateAndValidate(update)
		if err != nil {
			return err
		}
		if next == tx.schema {
			payload = &SchemaUpdatePayload{Effect: domain.EffectNone, Schema: next.Specification()}
			return nil
		}

		for _, m := range update.Migrations {
			for _, action := range m.Actions {
				if err := tx.applyEntityAction(ctx, action); err != nil {
					return err
				}
			}
		}

		if err := tx.InsertSchemaVersion(ctx, next.Specification()); err != nil {
			return err
		}
		if changed := schema.ChangedEntityTypes(tx.schema, next); len(changed) > 0 {
			if dirty, err = tx.MarkEntitiesDirty(ctx, changed, domain.DirtyAll); err != nil {
				return err
			}
		}
		if err := tx.recordEvent(ctx, domain.EventUpdateSchema, nil, next.Version()); err != nil {
			return err
		}
		payload = &SchemaUpdatePayload{Effect: domain.EffectUpdated, Schema: next.Specification()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if payload.Effect == domain.EffectUpdated {
		e.logger.Info().Int("version", payload.Schema.Version).Int64("dirty", dirty).Msg("schema updated")
	}
	return payload, nil
}

// applyEntityAction applies the stored row part of a migration action
func (tx *txn) applyEntityAction(ctx context.Context, action schema.MigrationAction) error {
	if !action.IsEntityAction() {
		return nil
	}
	switch action.Action {
	case schema.ActionRenameType:
		_, err := tx.RenameEntityType(ctx, action.EntityType, action.NewName)
		return err
	case schema.ActionDeleteType:
		n, err := tx.CountLiveEntitiesOfType(ctx, action.EntityType)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.BadRequest("can't delete entity type %s, %d entities of the type exist", action.EntityType, n)
		}
	}
	return nil
}
