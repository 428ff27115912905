package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"strata/internal/domain"
	"strata/internal/paging"
)

const maxNameAttempts = 10

// GetEntity loads an entity by uuid. Deleted entities are returned too;
// callers decide how to treat tombstones.
func (s *Store) GetEntity(ctx context.Context, uuid string) (*EntityRow, error) {
	var r entityScan
	err := s.q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities e WHERE e.uuid = ?`, uuid).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("no such entity (%s)", uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity: %w", err)
	}
	return r.toRow(), nil
}

// GetEntityByInternalID loads an entity by its internal id
func (s *Store) GetEntityByInternalID(ctx context.Context, id int64) (*EntityRow, error) {
	var r entityScan
	err := s.q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities e WHERE e.id = ?`, id).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("no such entity (internal id %d)", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity: %w", err)
	}
	return r.toRow(), nil
}

// GetEntityByUniqueValue finds the entity holding a unique index value
func (s *Store) GetEntityByUniqueValue(ctx context.Context, index, value string, published bool) (*EntityRow, error) {
	var r entityScan
	err := s.q.QueryRowContext(ctx, `
		SELECT `+entityColumns+`
		FROM entities e JOIN unique_index_values u ON u.entities_id = e.id
		WHERE u.index_name = ? AND u.value = ? AND u.published = ?
	`, index, value, boolToInt(published)).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("no entity with value %q in index %s", value, index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query unique index value: %w", err)
	}
	return r.toRow(), nil
}

// GetEntityTypes returns the type of every live entity among uuids. With
// published set only entities with a published version are returned.
func (s *Store) GetEntityTypes(ctx context.Context, uuids []string, published bool) (map[string]string, error) {
	types := make(map[string]string, len(uuids))
	if len(uuids) == 0 {
		return types, nil
	}
	query := `SELECT uuid, type FROM entities WHERE uuid IN ` + inClause(len(uuids)) + ` AND status <> ?`
	if published {
		query += ` AND published_entity_versions_id IS NOT NULL`
	}
	args := append(stringArgs(uuids), string(domain.StatusDeleted))
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uuid, typ string
		if err := rows.Scan(&uuid, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan entity type: %w", err)
		}
		types[uuid] = typ
	}
	return types, rows.Err()
}

// InsertEntity inserts a new entity row without a name and sets InternalID
func (s *Store) InsertEntity(ctx context.Context, e *EntityRow) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO entities (uuid, type, auth_key, resolved_auth_key, status, never_published,
			valid, valid_published, dirty, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		e.UUID, e.Type, e.AuthKey, e.ResolvedAuthKey, string(e.Status), boolToInt(e.NeverPublished),
		boolToInt(e.Valid), boolPtrToNull(e.ValidPublished), int64(e.Dirty), toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
	).Scan(&e.InternalID)
	if err != nil {
		if s.adapter.IsUniqueViolation(err, ConstraintEntityUUID) {
			return domain.Conflict("entity with id (%s) already exists", e.UUID)
		}
		return fmt.Errorf("failed to insert entity: %w", err)
	}
	return nil
}

// SetEntityName stores a unique name for the entity. On collision a random
// "#NNNNNN" suffix is appended. The stored name is returned.
func (s *Store) SetEntityName(ctx context.Context, id int64, name string) (string, error) {
	if name == "" {
		_, err := s.q.ExecContext(ctx, `UPDATE entities SET name = NULL WHERE id = ?`, id)
		if err != nil {
			return "", fmt.Errorf("failed to clear entity name: %w", err)
		}
		return "", nil
	}

	candidate := name
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		err := s.Savepoint(ctx, "entity_name", func() error {
			_, err := s.q.ExecContext(ctx, `UPDATE entities SET name = ? WHERE id = ?`, candidate, id)
			return err
		})
		if err == nil {
			return candidate, nil
		}
		if !s.adapter.IsUniqueViolation(err, ConstraintEntityName) {
			return "", fmt.Errorf("failed to set entity name: %w", err)
		}
		candidate = fmt.Sprintf("%s#%06d", name, rand.IntN(1000000))
	}
	return "", domain.Conflict("failed to find a unique name for %q", name)
}

// UpdateEntity writes the mutable columns of an entity row. The name is
// managed by SetEntityName.
func (s *Store) UpdateEntity(ctx context.Context, e *EntityRow) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE entities SET
			status = ?, never_published = ?, latest_entity_versions_id = ?, published_entity_versions_id = ?,
			valid = ?, valid_published = ?, dirty = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`,
		string(e.Status), boolToInt(e.NeverPublished), idToNull(e.LatestVersionID), idToNull(e.PublishedVersionID),
		boolToInt(e.Valid), boolPtrToNull(e.ValidPublished), int64(e.Dirty), toMillis(e.UpdatedAt), timePtrToNull(e.DeletedAt),
		e.InternalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	return nil
}

// InsertEntityVersion appends an immutable version row and sets its ID
func (s *Store) InsertEntityVersion(ctx context.Context, v *VersionRow) error {
	fieldsJSON, err := marshalToNull(v.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO entity_versions (entities_id, version, schema_version, encode_version, name, fields, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		v.EntityID, v.Version, v.SchemaVersion, v.EncodeVersion, stringToNull(v.Name), fieldsJSON,
		toMillis(v.CreatedAt), stringToNull(v.CreatedBy),
	).Scan(&v.ID)
	if err != nil {
		if s.adapter.IsUniqueViolation(err, ConstraintEntityVersion) {
			return domain.Conflict("version %d already exists", v.Version)
		}
		return fmt.Errorf("failed to insert entity version: %w", err)
	}
	return nil
}

// GetEntityVersion loads a version row by id
func (s *Store) GetEntityVersion(ctx context.Context, id int64) (*VersionRow, error) {
	var r versionScan
	err := s.q.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM entity_versions v WHERE v.id = ?`, id).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("no such entity version")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity version: %w", err)
	}
	return r.toRow()
}

// GetEntityVersionByNumber loads a specific version of an entity
func (s *Store) GetEntityVersionByNumber(ctx context.Context, entityID int64, version int) (*VersionRow, error) {
	var r versionScan
	err := s.q.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM entity_versions v WHERE v.entities_id = ? AND v.version = ?
	`, entityID, version).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("no such version (%d)", version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity version: %w", err)
	}
	return r.toRow()
}

// TombstoneEntityVersions nulls the name and field data of every version of an entity
func (s *Store) TombstoneEntityVersions(ctx context.Context, entityID int64) error {
	_, err := s.q.ExecContext(ctx, `UPDATE entity_versions SET name = NULL, fields = NULL WHERE entities_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("failed to tombstone entity versions: %w", err)
	}
	return nil
}

// ============================================================================
// Entity Queries
// ============================================================================

// EntityFilter selects entities for listing, counting and sampling
type EntityFilter struct {
	Published        bool // Query the published versions only
	EntityTypes      []string
	ResolvedAuthKeys []string // Required, an empty list matches nothing
	Status           []domain.EntityStatus
	Valid            *bool
	LinksTo          string // Entities referencing this uuid
	LinksFrom        string // Entities referenced by this uuid
	Text             string
	BoundingBox      *domain.BoundingBox
}

// EntityWithVersion is an entity row with the version a query selected
type EntityWithVersion struct {
	Entity  *EntityRow
	Version *VersionRow
}

func (f *EntityFilter) where() (string, []any) {
	published := boolToInt(f.Published)
	conds := []string{"e.status <> ?", "e.resolved_auth_key IN " + inClause(len(f.ResolvedAuthKeys))}
	args := []any{string(domain.StatusDeleted)}
	args = append(args, stringArgs(f.ResolvedAuthKeys)...)

	if f.Published {
		conds = append(conds, "e.published_entity_versions_id IS NOT NULL")
	}
	if len(f.EntityTypes) > 0 {
		conds = append(conds, "e.type IN "+inClause(len(f.EntityTypes)))
		args = append(args, stringArgs(f.EntityTypes)...)
	}
	if len(f.Status) > 0 {
		conds = append(conds, "e.status IN "+inClause(len(f.Status)))
		for _, st := range f.Status {
			args = append(args, string(st))
		}
	}
	if f.Valid != nil {
		if f.Published {
			conds = append(conds, "e.valid_published = ?")
		} else {
			conds = append(conds, "e.valid = ?")
		}
		args = append(args, boolToInt(*f.Valid))
	}
	if f.LinksTo != "" {
		conds = append(conds, `e.id IN (
			SELECT r.from_entities_id FROM entity_references r JOIN entities t ON t.id = r.to_entities_id
			WHERE t.uuid = ? AND r.published = ?)`)
		args = append(args, f.LinksTo, published)
	}
	if f.LinksFrom != "" {
		conds = append(conds, `e.id IN (
			SELECT r.to_entities_id FROM entity_references r JOIN entities o ON o.id = r.from_entities_id
			WHERE o.uuid = ? AND r.published = ?)`)
		args = append(args, f.LinksFrom, published)
	}
	if f.Text != "" {
		conds = append(conds, `e.id IN (
			SELECT x.entities_id FROM entity_texts x WHERE x.published = ? AND x.text LIKE ? ESCAPE '\')`)
		args = append(args, published, "%"+escapeLike(strings.ToLower(f.Text))+"%")
	}
	if b := f.BoundingBox; b != nil {
		conds = append(conds, `e.id IN (
			SELECT l.entities_id FROM entity_locations l
			WHERE l.published = ? AND l.lat >= ? AND l.lat <= ? AND l.lng >= ? AND l.lng <= ?)`)
		args = append(args, published, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	}
	return strings.Join(conds, " AND "), args
}

func (f *EntityFilter) versionJoin() string {
	if f.Published {
		return "JOIN entity_versions v ON v.id = e.published_entity_versions_id"
	}
	return "JOIN entity_versions v ON v.id = e.latest_entity_versions_id"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// QueryEntities returns one page of entities in internal id order
func (s *Store) QueryEntities(ctx context.Context, f *EntityFilter, q *paging.Query) ([]paging.Row[*EntityWithVersion], error) {
	where, args := f.where()
	conds, pageArgs := q.Where("e.id")
	if len(conds) > 0 {
		where += " AND " + strings.Join(conds, " AND ")
		args = append(args, pageArgs...)
	}
	args = append(args, q.Limit())

	return s.queryEntitiesWithVersion(ctx, `
		SELECT `+entityColumns+`, `+versionColumns+`
		FROM entities e `+f.versionJoin()+`
		WHERE `+where+`
		`+q.OrderBy("e.id")+`
		LIMIT ?
	`, args...)
}

// CountEntities counts the entities matching the filter
func (s *Store) CountEntities(ctx context.Context, f *EntityFilter) (int, error) {
	where, args := f.where()
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities e WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return n, nil
}

// GetEntityAtOffset returns the entity at a zero based offset in id order
func (s *Store) GetEntityAtOffset(ctx context.Context, f *EntityFilter, offset int) (*EntityWithVersion, error) {
	where, args := f.where()
	args = append(args, offset)
	rows, err := s.queryEntitiesWithVersion(ctx, `
		SELECT `+entityColumns+`, `+versionColumns+`
		FROM entities e `+f.versionJoin()+`
		WHERE `+where+`
		ORDER BY e.id ASC
		LIMIT 1 OFFSET ?
	`, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NotFound("no entity at offset %d", offset)
	}
	return rows[0].Node, nil
}

func (s *Store) queryEntitiesWithVersion(ctx context.Context, query string, args ...any) ([]paging.Row[*EntityWithVersion], error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var result []paging.Row[*EntityWithVersion]
	for rows.Next() {
		var e entityScan
		var v versionScan
		if err := rows.Scan(append(e.scanArgs(), v.scanArgs()...)...); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		version, err := v.toRow()
		if err != nil {
			return nil, err
		}
		result = append(result, paging.Row[*EntityWithVersion]{
			ID:   e.ID,
			Node: &EntityWithVersion{Entity: e.toRow(), Version: version},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return result, nil
}

// ============================================================================
// Schema Change Support
// ============================================================================

// CountLiveEntitiesOfType counts entities of a type that are not deleted
func (s *Store) CountLiveEntitiesOfType(ctx context.Context, typeName string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE type = ? AND status <> ?`,
		typeName, string(domain.StatusDeleted)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return n, nil
}

// RenameEntityType moves every entity of a type to a new type name
func (s *Store) RenameEntityType(ctx context.Context, from, to string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `UPDATE entities SET type = ? WHERE type = ?`, to, from)
	if err != nil {
		return 0, fmt.Errorf("failed to rename entity type: %w", err)
	}
	return res.RowsAffected()
}

// MarkEntitiesDirty sets dirty flags on the live entities of the given types
func (s *Store) MarkEntitiesDirty(ctx context.Context, types []string, flags domain.DirtyFlags) (int64, error) {
	if len(types) == 0 || flags.IsZero() {
		return 0, nil
	}
	args := []any{int64(flags)}
	args = append(args, stringArgs(types)...)
	args = append(args, string(domain.StatusDeleted))
	res, err := s.q.ExecContext(ctx, `
		UPDATE entities SET dirty = dirty | ?
		WHERE type IN `+inClause(len(types))+` AND status <> ?
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark entities dirty: %w", err)
	}
	return res.RowsAffected()
}

// NextDirtyEntity returns a live entity with pending dirty flags, nil when none remain
func (s *Store) NextDirtyEntity(ctx context.Context) (*EntityRow, error) {
	var r entityScan
	err := s.q.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities e
		WHERE e.dirty <> 0
		ORDER BY e.id
		LIMIT 1
	`).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dirty entity: %w", err)
	}
	return r.toRow(), nil
}

// UpdateEntityValidity stores validation results and clears the processed dirty flags
func (s *Store) UpdateEntityValidity(ctx context.Context, id int64, valid bool, validPublished *bool, processed domain.DirtyFlags) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE entities SET valid = ?, valid_published = ?, dirty = dirty - (dirty & ?)
		WHERE id = ?
	`, boolToInt(valid), boolPtrToNull(validPublished), int64(processed), id)
	if err != nil {
		return fmt.Errorf("failed to update entity validity: %w", err)
	}
	return nil
}

// now is the store clock, truncated to the stored precision
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Now returns the current time at the precision timestamps are stored with
func Now() time.Time {
	return now()
}
