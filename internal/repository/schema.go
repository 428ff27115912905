package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"strata/internal/domain"
	"strata/internal/schema"
)

// GetLatestSchema returns the newest stored schema, or the empty schema when
// none has been stored
func (s *Store) GetLatestSchema(ctx context.Context) (*schema.AdminSchema, error) {
	var data string
	err := s.q.QueryRowContext(ctx, `
		SELECT specification FROM schema_versions ORDER BY version DESC LIMIT 1
	`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schema: %w", err)
	}

	var spec schema.Specification
	if err := json.Unmarshal([]byte(data), &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return schema.NewAdminSchema(spec), nil
}

// GetLatestSchemaVersion returns the newest stored schema version, 0 when none
func (s *Store) GetLatestSchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.q.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_versions`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}
	return int(version.Int64), nil
}

// InsertSchemaVersion stores a new schema version. A version stored
// concurrently by someone else is a Conflict.
func (s *Store) InsertSchemaVersion(ctx context.Context, spec schema.Specification) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO schema_versions (version, specification, updated_at) VALUES (?, ?, ?)
	`, spec.Version, string(data), toMillis(now()))
	if err != nil {
		if s.adapter.IsUniqueViolation(err, ConstraintSchemaVersion) {
			return domain.Conflict("schema version %d already exists", spec.Version)
		}
		return fmt.Errorf("failed to insert schema version: %w", err)
	}
	return nil
}
