package service

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/google/uuid"

	"strata/internal/codec"
	"strata/internal/domain"
	"strata/internal/repository"
	"strata/internal/schema"
)

// nameSuffix matches the "#NNNNNN" suffix added to colliding names
var nameSuffix = regexp.MustCompile(`#[0-9]{6}$`)

// CreateEntity creates an entity with its first version, optionally publishing it
func (e *Engine) CreateEntity(ctx context.Context, session domain.Session, create domain.EntityCreate, opts domain.EntityMutationOptions) (*domain.EntityMutationPayload, error) {
	var payload *domain.EntityMutationPayload
	err := e.inTx(ctx, session, func(tx *txn) error {
		var err error
		payload, err = e.createEntity(ctx, tx, create, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Str("id", payload.Entity.ID).Str("effect", string(payload.Effect)).Msg("entity created")
	return payload, nil
}

// UpdateEntity writes a new version of an entity. Omitted fields keep their
// values and nil values clear them. An update that changes nothing has
// effect none.
func (e *Engine) UpdateEntity(ctx context.Context, session domain.Session, update domain.EntityUpdate, opts domain.EntityMutationOptions) (*domain.EntityMutationPayload, error) {
	var payload *domain.EntityMutationPayload
	err := e.inTx(ctx, session, func(tx *txn) error {
		row, err := e.loadEntity(ctx, tx, update.ID)
		if err != nil {
			return err
		}
		payload, err = e.updateEntity(ctx, tx, row, update, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// UpsertEntity creates the entity if no entity with the id exists, and
// updates it otherwise
func (e *Engine) UpsertEntity(ctx context.Context, session domain.Session, create domain.EntityCreate, opts domain.EntityMutationOptions) (*domain.EntityMutationPayload, error) {
	if create.ID == "" {
		return nil, domain.BadRequest("entity.id: upsert requires an id")
	}
	var payload *domain.EntityMutationPayload
	err := e.inTx(ctx, session, func(tx *txn) error {
		row, err := tx.GetEntity(ctx, create.ID)
		if domain.KindOf(err) == domain.ErrorNotFound {
			payload, err = e.createEntity(ctx, tx, create, opts)
			return err
		}
		if err != nil {
			return err
		}
		if row.Status == domain.StatusDeleted {
			return domain.NotFound("no such entity (%s)", create.ID)
		}
		if err := e.authorize(ctx, tx.session, row.AuthKey, row.ResolvedAuthKey); err != nil {
			return err
		}
		payload, err = e.updateEntity(ctx, tx, row, domain.EntityUpdate{
			ID:     create.ID,
			Info:   domain.EntityUpdateInfo{Type: create.Info.Type, AuthKey: create.Info.AuthKey, Name: create.Info.Name},
			Fields: create.Fields,
		}, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (e *Engine) createEntity(ctx context.Context, tx *txn, create domain.EntityCreate, opts domain.EntityMutationOptions) (*domain.EntityMutationPayload, error) {
	info := create.Info
	if info.Version != 0 && info.Version != 1 {
		return nil, domain.BadRequest("entity.info.version: version must be 1 for new entities (%d)", info.Version)
	}
	t := tx.schema.EntityType(info.Type)
	if t == nil {
		return nil, domain.BadRequest("entity.info.type: entity type %s doesn't exist", info.Type)
	}
	if info.AuthKey == "" {
		return nil, domain.BadRequest("entity.info.authKey: auth key is required")
	}
	if err := checkAuthKeyPattern(tx.schema, t, info.AuthKey); err != nil {
		return nil, err
	}

	id := create.ID
	if id == "" {
		id = tx.RandomUUID()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, domain.BadRequest("entity.id: invalid entity id %q", id)
	}

	resolved, err := e.resolveAuthKey(ctx, tx.session, info.AuthKey)
	if err != nil {
		return nil, err
	}

	encoded, err := codec.Encode(tx.schema, info.Type, create.Fields)
	if err != nil {
		return nil, err
	}
	if err := checkReferences(ctx, tx, encoded.References, false, nil); err != nil {
		return nil, err
	}

	row := &repository.EntityRow{
		UUID:            id,
		Type:            info.Type,
		AuthKey:         info.AuthKey,
		ResolvedAuthKey: resolved,
		Status:          domain.StatusDraft,
		NeverPublished:  true,
		Valid:           true,
		CreatedAt:       tx.now,
		UpdatedAt:       tx.now,
	}
	if err := tx.InsertEntity(ctx, row); err != nil {
		return nil, err
	}

	version, err := tx.writeVersion(ctx, row, 1, encoded)
	if err != nil {
		return nil, err
	}
	if err := tx.setName(ctx, row, entityName(info.Name, encoded)); err != nil {
		return nil, err
	}
	if err := tx.UpdateIndexes(ctx, row.InternalID, false, &encoded.Artifacts); err != nil {
		return nil, err
	}

	effect, eventType := domain.EffectCreated, domain.EventCreateEntity
	if opts.Publish {
		if _, err := e.publishVersion(ctx, tx, row, version, nil); err != nil {
			return nil, err
		}
		effect, eventType = domain.EffectCreatedAndPublished, domain.EventCreateAndPublishEntity
	}
	if err := tx.UpdateEntity(ctx, row); err != nil {
		return nil, err
	}
	if err := tx.recordEvent(ctx, eventType, []eventEntity{{row, version}}, 0); err != nil {
		return nil, err
	}

	return &domain.EntityMutationPayload{Effect: effect, Entity: toEntity(tx.schema, row, version, codec.ViewAdmin)}, nil
}

func (e *Engine) updateEntity(ctx context.Context, tx *txn, row *repository.EntityRow, update domain.EntityUpdate, opts domain.EntityMutationOptions) (*domain.EntityMutationPayload, error) {
	info := update.Info
	if info.Type != "" && info.Type != row.Type {
		return nil, domain.BadRequest("entity.info.type: new type %s doesn't match existing type %s", info.Type, row.Type)
	}
	if info.AuthKey != "" && info.AuthKey != row.AuthKey {
		return nil, domain.BadRequest("entity.info.authKey: new authKey %s doesn't match existing authKey %s", info.AuthKey, row.AuthKey)
	}

	latest, err := tx.GetEntityVersion(ctx, row.LatestVersionID)
	if err != nil {
		return nil, err
	}
	if info.Version != 0 && info.Version != latest.Version+1 {
		return nil, domain.BadRequest("entity.info.version: expected version %d, got %d", latest.Version+1, info.Version)
	}

	current := decodeVersion(tx.schema, row, latest, codec.ViewAdmin)
	merged := current.Fields.Clone()
	for k, v := range update.Fields {
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}

	encoded, err := codec.Encode(tx.schema, row.Type, merged)
	if err != nil {
		return nil, err
	}
	name := entityName(info.Name, encoded)

	renamed := nameChanged(row.Name, name)
	unchanged := !renamed && latest.SchemaVersion == tx.schema.Version() && sameTree(encoded.Fields, latest.Fields)
	if unchanged {
		return e.publishUnchanged(ctx, tx, row, latest, opts)
	}

	if err := checkReferences(ctx, tx, encoded.References, false, nil); err != nil {
		return nil, err
	}
	status, err := domain.StatusAfterEdit(row.Status, row.NeverPublished)
	if err != nil {
		return nil, err
	}

	version, err := tx.writeVersion(ctx, row, latest.Version+1, encoded)
	if err != nil {
		return nil, err
	}
	if renamed {
		if err := tx.setName(ctx, row, name); err != nil {
			return nil, err
		}
	}
	if err := tx.UpdateIndexes(ctx, row.InternalID, false, &encoded.Artifacts); err != nil {
		return nil, err
	}
	row.Status = status
	row.Valid = true
	row.Dirty = row.Dirty.Clear(domain.DirtyValidateLatest | domain.DirtyIndexLatest)
	row.UpdatedAt = tx.now

	effect, eventType := domain.EffectUpdated, domain.EventUpdateEntity
	if opts.Publish {
		if _, err := e.publishVersion(ctx, tx, row, version, nil); err != nil {
			return nil, err
		}
		effect, eventType = domain.EffectUpdatedAndPublished, domain.EventUpdateAndPublishEntity
	}
	if err := tx.UpdateEntity(ctx, row); err != nil {
		return nil, err
	}
	if err := tx.recordEvent(ctx, eventType, []eventEntity{{row, version}}, 0); err != nil {
		return nil, err
	}

	return &domain.EntityMutationPayload{Effect: effect, Entity: toEntity(tx.schema, row, version, codec.ViewAdmin)}, nil
}

// publishUnchanged handles an update without changes. With publish set an
// unpublished latest version is still published.
func (e *Engine) publishUnchanged(ctx context.Context, tx *txn, row *repository.EntityRow, latest *repository.VersionRow, opts domain.EntityMutationOptions) (*domain.EntityMutationPayload, error) {
	if !opts.Publish || (row.PublishedVersionID == latest.ID && row.Status == domain.StatusPublished) {
		return &domain.EntityMutationPayload{Effect: domain.EffectNone, Entity: toEntity(tx.schema, row, latest, codec.ViewAdmin)}, nil
	}
	if _, err := e.publishVersion(ctx, tx, row, latest, nil); err != nil {
		return nil, err
	}
	if err := tx.UpdateEntity(ctx, row); err != nil {
		return nil, err
	}
	if err := tx.recordEvent(ctx, domain.EventPublishEntities, []eventEntity{{row, latest}}, 0); err != nil {
		return nil, err
	}
	return &domain.EntityMutationPayload{Effect: domain.EffectPublished, Entity: toEntity(tx.schema, row, latest, codec.ViewAdmin)}, nil
}

// writeVersion inserts a version row and points the entity at it
func (tx *txn) writeVersion(ctx context.Context, row *repository.EntityRow, number int, encoded *codec.EncodedEntity) (*repository.VersionRow, error) {
	version := &repository.VersionRow{
		EntityID:      row.InternalID,
		Version:       number,
		SchemaVersion: tx.schema.Version(),
		EncodeVersion: codec.CurrentEncodeVersion,
		Name:          encoded.Name,
		Fields:        encoded.Fields,
		CreatedAt:     tx.now,
		CreatedBy:     tx.session.Subject,
	}
	if err := tx.InsertEntityVersion(ctx, version); err != nil {
		return nil, err
	}
	row.LatestVersionID = version.ID
	return version, nil
}

// setName stores a unique entity name
func (tx *txn) setName(ctx context.Context, row *repository.EntityRow, name string) error {
	stored, err := tx.SetEntityName(ctx, row.InternalID, name)
	if err != nil {
		return err
	}
	row.Name = stored
	return nil
}

// nameChanged reports if name differs from the stored name, ignoring a
// collision suffix added when it was stored
func nameChanged(stored, name string) bool {
	return stored != name && nameSuffix.ReplaceAllString(stored, "") != name
}

func entityName(override string, encoded *codec.EncodedEntity) string {
	if override != "" {
		return override
	}
	return encoded.Name
}

func checkAuthKeyPattern(s schema.Schema, t *schema.EntityTypeSpecification, authKey string) error {
	if t.AuthKeyPattern == "" {
		return nil
	}
	re := s.PatternRegexp(t.AuthKeyPattern)
	if re == nil || !re.MatchString(authKey) {
		return domain.BadRequest("entity.info.authKey: authKey %s does not match pattern %s", authKey, t.AuthKeyPattern)
	}
	return nil
}

// checkReferences verifies that referenced entities exist and have an
// allowed type. With published set the targets must be published, or be
// part of the same batch.
func checkReferences(ctx context.Context, tx *txn, refs []codec.Reference, published bool, batch map[string]bool) error {
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	types, err := tx.GetEntityTypes(ctx, ids, published)
	if err != nil {
		return err
	}
	var pending map[string]string
	if published && len(batch) > 0 {
		if pending, err = tx.GetEntityTypes(ctx, ids, false); err != nil {
			return err
		}
	}

	for _, r := range refs {
		typ, ok := types[r.ID]
		if !ok && batch[r.ID] {
			typ, ok = pending[r.ID]
		}
		if !ok {
			if published {
				return domain.BadRequest("%s: references unpublished entity (%s)", r.Path, r.ID)
			}
			return domain.BadRequest("%s: referenced entity (%s) doesn't exist", r.Path, r.ID)
		}
		if len(r.EntityTypes) > 0 && !contains(r.EntityTypes, typ) {
			return domain.BadRequest("%s: referenced entity (%s) has an invalid type %s", r.Path, r.ID, typ)
		}
	}
	return nil
}

// sameTree compares two canonical field trees
func sameTree(a, b map[string]any) bool {
	da, err := json.Marshal(a)
	if err != nil {
		return false
	}
	db, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(da) == string(db)
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
