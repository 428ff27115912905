package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"strata/internal/domain"
	"strata/internal/paging"
)

// InsertEvent appends a changelog event and links the entity versions it
// references. versionIDs are entity_versions ids in event order.
func (s *Store) InsertEvent(ctx context.Context, e *domain.ChangelogEvent, versionIDs []int64) error {
	var schemaVersion sql.NullInt64
	if e.Type == domain.EventUpdateSchema {
		schemaVersion = sql.NullInt64{Int64: int64(e.SchemaVersion), Valid: true}
	}

	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO events (uuid, type, created_by, created_at, schema_version)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, e.ID, string(e.Type), e.CreatedBy, toMillis(e.CreatedAt), schemaVersion).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	for _, vid := range versionIDs {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO event_entity_versions (events_id, entity_versions_id) VALUES (?, ?)
		`, id, vid)
		if err != nil {
			return fmt.Errorf("failed to link event entity version: %w", err)
		}
	}
	return nil
}

func eventWhere(f *domain.ChangelogEventQuery) ([]string, []any) {
	var conds []string
	var args []any
	if f.CreatedBy != "" {
		conds = append(conds, "ev.created_by = ?")
		args = append(args, f.CreatedBy)
	}
	if len(f.Types) > 0 {
		conds = append(conds, "ev.type IN "+inClause(len(f.Types)))
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if f.EntityID != "" {
		conds = append(conds, `ev.id IN (
			SELECT eev.events_id FROM event_entity_versions eev
			JOIN entity_versions v ON v.id = eev.entity_versions_id
			JOIN entities e ON e.id = v.entities_id
			WHERE e.uuid = ?)`)
		args = append(args, f.EntityID)
	}
	return conds, args
}

// QueryEvents returns one page of changelog events in id order
func (s *Store) QueryEvents(ctx context.Context, f *domain.ChangelogEventQuery, q *paging.Query) ([]paging.Row[*domain.ChangelogEvent], error) {
	conds, args := eventWhere(f)
	pageConds, pageArgs := q.Where("ev.id")
	conds = append(conds, pageConds...)
	args = append(args, pageArgs...)

	query := `SELECT ev.id, ev.uuid, ev.type, ev.created_by, ev.created_at, ev.schema_version FROM events ev`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " " + q.OrderBy("ev.id") + " LIMIT ?"
	args = append(args, q.Limit())

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []paging.Row[*domain.ChangelogEvent]
	for rows.Next() {
		var (
			id            int64
			e             domain.ChangelogEvent
			typ           string
			createdAt     int64
			schemaVersion sql.NullInt64
		)
		if err := rows.Scan(&id, &e.ID, &typ, &e.CreatedBy, &createdAt, &schemaVersion); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = domain.EventType(typ)
		e.CreatedAt = fromMillis(createdAt)
		e.SchemaVersion = int(schemaVersion.Int64)
		result = append(result, paging.Row[*domain.ChangelogEvent]{ID: id, Node: &e})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	rows.Close()

	for _, r := range result {
		if !r.Node.Type.IsEntityEvent() {
			continue
		}
		if r.Node.Entities, err = s.eventEntities(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) eventEntities(ctx context.Context, eventID int64) ([]domain.EventEntityVersion, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT e.uuid, v.version, e.type, v.name
		FROM event_entity_versions eev
		JOIN entity_versions v ON v.id = eev.entity_versions_id
		JOIN entities e ON e.id = v.entities_id
		WHERE eev.events_id = ?
		ORDER BY eev.entity_versions_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query event entities: %w", err)
	}
	defer rows.Close()

	var entities []domain.EventEntityVersion
	for rows.Next() {
		var ev domain.EventEntityVersion
		var name sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Version, &ev.Type, &name); err != nil {
			return nil, fmt.Errorf("failed to scan event entity: %w", err)
		}
		ev.Name = nullToString(name)
		entities = append(entities, ev)
	}
	return entities, rows.Err()
}

// CountEvents counts the changelog events matching the query
func (s *Store) CountEvents(ctx context.Context, f *domain.ChangelogEventQuery) (int, error) {
	conds, args := eventWhere(f)
	query := `SELECT COUNT(*) FROM events ev`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	var n int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
