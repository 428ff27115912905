package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"strata/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// nullToBoolPtr converts sql.NullInt64 to *bool, nil when NULL
func nullToBoolPtr(ni sql.NullInt64) *bool {
	if !ni.Valid {
		return nil
	}
	b := ni.Int64 != 0
	return &b
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// idToNull converts an internal id to sql.NullInt64, 0 is NULL
func idToNull(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

// boolPtrToNull converts *bool to a nullable integer
func boolPtrToNull(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: boolToInt(*b), Valid: true}
}

// boolToInt stores booleans as integers on every backend
func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// ============================================================================
// Time Helpers
// ============================================================================
//
// Timestamps are stored as unix milliseconds so every backend compares and
// orders them the same way.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullFromMillis(ni sql.NullInt64) *time.Time {
	if !ni.Valid {
		return nil
	}
	t := fromMillis(ni.Int64)
	return &t
}

func timePtrToNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals v to a nullable JSON string, nil stays NULL
func marshalToNull(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a column to the entities table:
// 1. Add the field to EntityRow and entityScan (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update entityColumns - APPEND to end
// 4. Update toRow() to map the new field
// 5. Add the column to every adapter's DDL
// 6. Update relevant tests
//
// CRITICAL: Column order must match between:
// - entityColumns constant
// - scanArgs() return slice
// - All SELECT queries using entityColumns
//
// Same pattern applies to entity versions, events and locks.

// ============================================================================
// Entity Row Scanner
// ============================================================================

// EntityRow is a row of the entities table
type EntityRow struct {
	InternalID         int64
	UUID               string
	Type               string
	Name               string
	AuthKey            string
	ResolvedAuthKey    string
	Status             domain.EntityStatus
	NeverPublished     bool
	LatestVersionID    int64
	PublishedVersionID int64 // 0 when never published or withdrawn
	Valid              bool
	ValidPublished     *bool
	Dirty              domain.DirtyFlags
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

type entityScan struct {
	ID                 int64
	UUID               string
	Type               string
	Name               sql.NullString
	AuthKey            string
	ResolvedAuthKey    string
	Status             string
	NeverPublished     sql.NullInt64
	LatestVersionID    sql.NullInt64
	PublishedVersionID sql.NullInt64
	Valid              sql.NullInt64
	ValidPublished     sql.NullInt64
	Dirty              int64
	CreatedAt          int64
	UpdatedAt          int64
	DeletedAt          sql.NullInt64
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match entityColumns order exactly
func (r *entityScan) scanArgs() []any {
	return []any{
		&r.ID,                 // 1
		&r.UUID,               // 2
		&r.Type,               // 3
		&r.Name,               // 4
		&r.AuthKey,            // 5
		&r.ResolvedAuthKey,    // 6
		&r.Status,             // 7
		&r.NeverPublished,     // 8
		&r.LatestVersionID,    // 9
		&r.PublishedVersionID, // 10
		&r.Valid,              // 11
		&r.ValidPublished,     // 12
		&r.Dirty,              // 13
		&r.CreatedAt,          // 14
		&r.UpdatedAt,          // 15
		&r.DeletedAt,          // 16
	}
}

func (r *entityScan) toRow() *EntityRow {
	return &EntityRow{
		InternalID:         r.ID,
		UUID:               r.UUID,
		Type:               r.Type,
		Name:               nullToString(r.Name),
		AuthKey:            r.AuthKey,
		ResolvedAuthKey:    r.ResolvedAuthKey,
		Status:             domain.EntityStatus(r.Status),
		NeverPublished:     nullToBool(r.NeverPublished),
		LatestVersionID:    r.LatestVersionID.Int64,
		PublishedVersionID: r.PublishedVersionID.Int64,
		Valid:              nullToBool(r.Valid),
		ValidPublished:     nullToBoolPtr(r.ValidPublished),
		Dirty:              domain.DirtyFlags(r.Dirty),
		CreatedAt:          fromMillis(r.CreatedAt),
		UpdatedAt:          fromMillis(r.UpdatedAt),
		DeletedAt:          nullFromMillis(r.DeletedAt),
	}
}

// entityColumns is the SELECT column list for entity queries, aliased e
const entityColumns = `e.id, e.uuid, e.type, e.name, e.auth_key, e.resolved_auth_key, e.status,
	e.never_published, e.latest_entity_versions_id, e.published_entity_versions_id,
	e.valid, e.valid_published, e.dirty, e.created_at, e.updated_at, e.deleted_at`

// ============================================================================
// Entity Version Row Scanner
// ============================================================================

// VersionRow is an immutable row of the entity_versions table
type VersionRow struct {
	ID            int64
	EntityID      int64
	Version       int
	SchemaVersion int
	EncodeVersion int
	Name          string
	Fields        map[string]any // nil for tombstoned versions
	CreatedAt     time.Time
	CreatedBy     string
}

type versionScan struct {
	ID            int64
	EntityID      int64
	Version       int
	SchemaVersion int
	EncodeVersion int
	Name          sql.NullString
	FieldsJSON    sql.NullString
	CreatedAt     int64
	CreatedBy     sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match versionColumns order exactly
func (r *versionScan) scanArgs() []any {
	return []any{
		&r.ID,            // 1
		&r.EntityID,      // 2
		&r.Version,       // 3
		&r.SchemaVersion, // 4
		&r.EncodeVersion, // 5
		&r.Name,          // 6
		&r.FieldsJSON,    // 7
		&r.CreatedAt,     // 8
		&r.CreatedBy,     // 9
	}
}

func (r *versionScan) toRow() (*VersionRow, error) {
	v := &VersionRow{
		ID:            r.ID,
		EntityID:      r.EntityID,
		Version:       r.Version,
		SchemaVersion: r.SchemaVersion,
		EncodeVersion: r.EncodeVersion,
		Name:          nullToString(r.Name),
		CreatedAt:     fromMillis(r.CreatedAt),
		CreatedBy:     nullToString(r.CreatedBy),
	}
	if err := unmarshalJSONField(r.FieldsJSON, &v.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return v, nil
}

// versionColumns is the SELECT column list for entity version queries, aliased v
const versionColumns = `v.id, v.entities_id, v.version, v.schema_version, v.encode_version,
	v.name, v.fields, v.created_at, v.created_by`

// ============================================================================
// Advisory Lock Row Scanner
// ============================================================================

type lockScan struct {
	Name          string
	Handle        string
	AcquiredAt    int64
	RenewedAt     int64
	LeaseDuration int64
}

func (r *lockScan) scanArgs() []any {
	return []any{&r.Name, &r.Handle, &r.AcquiredAt, &r.RenewedAt, &r.LeaseDuration}
}

func (r *lockScan) toDomain() *domain.AdvisoryLock {
	return &domain.AdvisoryLock{
		Name:          r.Name,
		Handle:        r.Handle,
		AcquiredAt:    fromMillis(r.AcquiredAt),
		RenewedAt:     fromMillis(r.RenewedAt),
		LeaseDuration: time.Duration(r.LeaseDuration) * time.Millisecond,
	}
}

const lockColumns = `name, handle, acquired_at, renewed_at, lease_duration`
