package repository

import (
	"context"
	"fmt"
	"strings"

	"strata/internal/codec"
	"strata/internal/domain"
)

// indexTables hold one side (latest or published) of an entity's index values
var indexTables = []string{"entity_references", "entity_locations", "unique_index_values", "entity_texts"}

// ClearIndexes removes one side of the index values of an entity
func (s *Store) ClearIndexes(ctx context.Context, entityID int64, published bool) error {
	for _, table := range indexTables {
		column := "entities_id"
		if table == "entity_references" {
			column = "from_entities_id"
		}
		_, err := s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+column+` = ? AND published = ?`,
			entityID, boolToInt(published))
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// UpdateIndexes replaces one side of the index values of an entity with the
// values extracted by the codec. A unique value held by another entity is a
// Conflict.
func (s *Store) UpdateIndexes(ctx context.Context, entityID int64, published bool, a *codec.Artifacts) error {
	if err := s.ClearIndexes(ctx, entityID, published); err != nil {
		return err
	}
	side := boolToInt(published)

	if ids := a.ReferencedIDs(); len(ids) > 0 {
		args := []any{entityID, side}
		args = append(args, stringArgs(ids)...)
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO entity_references (from_entities_id, to_entities_id, published)
			SELECT CAST(? AS BIGINT), id, CAST(? AS BIGINT) FROM entities WHERE uuid IN `+inClause(len(ids))+`
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to insert references: %w", err)
		}
	}

	for _, loc := range a.Locations {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO entity_locations (entities_id, lat, lng, published) VALUES (?, ?, ?, ?)
		`, entityID, loc.Lat, loc.Lng, side)
		if err != nil {
			return fmt.Errorf("failed to insert location: %w", err)
		}
	}

	for i, uv := range a.UniqueValues {
		err := s.Savepoint(ctx, fmt.Sprintf("unique_value_%d", i), func() error {
			_, err := s.q.ExecContext(ctx, `
				INSERT INTO unique_index_values (entities_id, index_name, value, published) VALUES (?, ?, ?, ?)
			`, entityID, uv.Index, uv.Value, side)
			return err
		})
		if err != nil {
			if s.adapter.IsUniqueViolation(err, ConstraintUniqueIndexValue) {
				return domain.Conflict("value %q is already used in index %s", uv.Value, uv.Index)
			}
			return fmt.Errorf("failed to insert unique value: %w", err)
		}
	}

	if a.FullText != "" {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO entity_texts (entities_id, published, text) VALUES (?, ?, ?)
		`, entityID, side, strings.ToLower(a.FullText))
		if err != nil {
			return fmt.Errorf("failed to insert text: %w", err)
		}
	}
	return nil
}

// ReferencingEntityCount counts live entities whose latest version references the entity
func (s *Store) ReferencingEntityCount(ctx context.Context, entityID int64, published bool) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT r.from_entities_id)
		FROM entity_references r JOIN entities e ON e.id = r.from_entities_id
		WHERE r.to_entities_id = ? AND r.published = ? AND e.id <> ? AND e.status <> ?
	`, entityID, boolToInt(published), entityID, string(domain.StatusDeleted)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count references: %w", err)
	}
	return n, nil
}
