package service

import (
	"context"
	"math/rand/v2"

	"strata/internal/codec"
	"strata/internal/domain"
	"strata/internal/paging"
	"strata/internal/repository"
	"strata/internal/schema"
)

// GetEntity loads an entity by id, optionally at a version, or by a unique
// index value
func (e *Engine) GetEntity(ctx context.Context, session domain.Session, lookup domain.EntityLookup) (*domain.Entity, error) {
	var entity *domain.Entity
	err := e.inTx(ctx, session, func(tx *txn) error {
		row, err := e.lookupEntity(ctx, tx, lookup, false)
		if err != nil {
			return err
		}
		version, err := tx.versionOf(ctx, row, lookup.Version)
		if err != nil {
			return err
		}
		entity = toEntity(tx.schema, row, version, codec.ViewAdmin)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// GetPublishedEntity loads the published version of an entity, decoded
// against the published schema
func (e *Engine) GetPublishedEntity(ctx context.Context, session domain.Session, lookup domain.EntityLookup) (*domain.Entity, error) {
	if lookup.Version != 0 {
		return nil, domain.BadRequest("published entities can't be loaded by version")
	}
	var entity *domain.Entity
	err := e.inTx(ctx, session, func(tx *txn) error {
		row, err := e.lookupEntity(ctx, tx, lookup, true)
		if err != nil {
			return err
		}
		if row.PublishedVersionID == 0 {
			return domain.NotFound("entity (%s) is not published", row.UUID)
		}
		version, err := tx.GetEntityVersion(ctx, row.PublishedVersionID)
		if err != nil {
			return err
		}
		entity = toPublishedEntity(tx.schema, row, version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (e *Engine) lookupEntity(ctx context.Context, tx *txn, lookup domain.EntityLookup, published bool) (*repository.EntityRow, error) {
	if lookup.Index == "" {
		if lookup.ID == "" {
			return nil, domain.BadRequest("entity lookup requires an id or an index")
		}
		return e.loadEntity(ctx, tx, lookup.ID)
	}

	var s schema.Schema = tx.schema
	if published {
		s = tx.schema.ToPublishedSchema()
	}
	if s.Index(lookup.Index) == nil {
		return nil, domain.BadRequest("no such index (%s)", lookup.Index)
	}
	row, err := tx.GetEntityByUniqueValue(ctx, lookup.Index, lookup.Value, published)
	if err != nil {
		return nil, err
	}
	if row.Status == domain.StatusDeleted {
		return nil, domain.NotFound("no entity with value %q in index %s", lookup.Value, lookup.Index)
	}
	if err := e.authorize(ctx, tx.session, row.AuthKey, row.ResolvedAuthKey); err != nil {
		return nil, err
	}
	return row, nil
}

// GetEntities returns one page of the entities matching query. The page is
// nil when nothing matches.
func (e *Engine) GetEntities(ctx context.Context, session domain.Session, query domain.EntityQuery, req paging.Request) (*paging.Connection[*domain.Entity], error) {
	return e.queryEntities(ctx, session, query, req, false)
}

// GetPublishedEntities is GetEntities over the published versions
func (e *Engine) GetPublishedEntities(ctx context.Context, session domain.Session, query domain.EntityQuery, req paging.Request) (*paging.Connection[*domain.Entity], error) {
	return e.queryEntities(ctx, session, query, req, true)
}

func (e *Engine) queryEntities(ctx context.Context, session domain.Session, query domain.EntityQuery, req paging.Request, published bool) (*paging.Connection[*domain.Entity], error) {
	var conn *paging.Connection[*domain.Entity]
	err := e.inTx(ctx, session, func(tx *txn) error {
		filter, err := e.entityFilter(ctx, tx, query, published)
		if err != nil {
			return err
		}
		page, err := paging.Page[*repository.EntityWithVersion](ctx, req, tx, query.Reverse, func(ctx context.Context, q *paging.Query) ([]paging.Row[*repository.EntityWithVersion], error) {
			return tx.QueryEntities(ctx, filter, q)
		})
		if err != nil {
			return err
		}
		conn = paging.Map(page, func(ev *repository.EntityWithVersion) *domain.Entity {
			return tx.decodeNode(ev, published)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// GetEntitiesTotalCount counts the entities matching query
func (e *Engine) GetEntitiesTotalCount(ctx context.Context, session domain.Session, query domain.EntityQuery, published bool) (int, error) {
	var n int
	err := e.inTx(ctx, session, func(tx *txn) error {
		filter, err := e.entityFilter(ctx, tx, query, published)
		if err != nil {
			return err
		}
		n, err = tx.CountEntities(ctx, filter)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SampleEntities picks a random selection of the entities matching query.
// The same seed over the same data gives the same selection.
func (e *Engine) SampleEntities(ctx context.Context, session domain.Session, query domain.EntityQuery, opts domain.EntitySamplingOptions, published bool) (*domain.EntitySamplingPayload, error) {
	count := opts.Count
	switch {
	case count < 0:
		return nil, domain.BadRequest("sampling: count must not be negative (%d)", count)
	case count == 0:
		count = paging.DefaultCount
	case count > paging.MaxCount:
		count = paging.MaxCount
	}
	seed := opts.Seed
	for seed == 0 {
		seed = rand.Int64()
	}

	payload := &domain.EntitySamplingPayload{Seed: seed, Items: []*domain.Entity{}}
	err := e.inTx(ctx, session, func(tx *txn) error {
		filter, err := e.entityFilter(ctx, tx, query, published)
		if err != nil {
			return err
		}
		total, err := tx.CountEntities(ctx, filter)
		if err != nil {
			return err
		}
		payload.TotalCount = total

		rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1))
		for _, offset := range sampleOffsets(rng, total, count) {
			ev, err := tx.GetEntityAtOffset(ctx, filter, offset)
			if err != nil {
				return err
			}
			payload.Items = append(payload.Items, tx.decodeNode(ev, published))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// sampleOffsets picks up to count distinct offsets in [0, total)
func sampleOffsets(rng *rand.Rand, total, count int) []int {
	if count >= total {
		return rng.Perm(total)
	}
	seen := make(map[int]bool, count)
	offsets := make([]int, 0, count)
	for len(offsets) < count {
		o := rng.IntN(total)
		if !seen[o] {
			seen[o] = true
			offsets = append(offsets, o)
		}
	}
	return offsets
}

// entityFilter turns a client query into a store filter
func (e *Engine) entityFilter(ctx context.Context, tx *txn, query domain.EntityQuery, published bool) (*repository.EntityFilter, error) {
	var s schema.Schema = tx.schema
	if published {
		s = tx.schema.ToPublishedSchema()
	}
	for _, t := range query.EntityTypes {
		if s.EntityType(t) == nil {
			return nil, domain.BadRequest("query.entityTypes: entity type %s doesn't exist", t)
		}
	}
	keys, err := e.resolveQueryAuthKeys(ctx, tx.session, query.AuthKeys)
	if err != nil {
		return nil, err
	}
	if b := query.BoundingBox; b != nil && (b.MinLat > b.MaxLat || b.MinLng > b.MaxLng) {
		return nil, domain.BadRequest("query.boundingBox: min must not exceed max")
	}
	filter := &repository.EntityFilter{
		Published:        published,
		EntityTypes:      query.EntityTypes,
		ResolvedAuthKeys: keys,
		Valid:            query.Valid,
		LinksTo:          query.LinksTo,
		LinksFrom:        query.LinksFrom,
		Text:             query.Text,
		BoundingBox:      query.BoundingBox,
	}
	if !published {
		filter.Status = query.Status
	}
	return filter, nil
}

func (tx *txn) decodeNode(ev *repository.EntityWithVersion, published bool) *domain.Entity {
	if published {
		return toPublishedEntity(tx.schema, ev.Entity, ev.Version)
	}
	return toEntity(tx.schema, ev.Entity, ev.Version, codec.ViewAdmin)
}

// toPublishedEntity decodes the published version of an entity. Status and
// validity describe the published side.
func toPublishedEntity(s *schema.AdminSchema, row *repository.EntityRow, version *repository.VersionRow) *domain.Entity {
	entity := toEntity(s, row, version, codec.ViewPublished)
	entity.Info.Status = domain.StatusPublished
	if row.ValidPublished != nil {
		entity.Info.Valid = *row.ValidPublished
	}
	return entity
}
