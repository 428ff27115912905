package sqlite

import "strata/internal/repository"

// ddl creates every table the engine uses. Booleans and timestamps are
// integers (unix milliseconds), JSON documents are TEXT.
const ddl = `
CREATE TABLE IF NOT EXISTS schema_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	version INTEGER NOT NULL,
	specification TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	CONSTRAINT schema_versions_version_key UNIQUE (version)
);

CREATE TABLE IF NOT EXISTS principals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	identifier TEXT NOT NULL,
	uuid TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	CONSTRAINT principals_provider_identifier_key UNIQUE (provider, identifier)
);

CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL,
	type TEXT NOT NULL,
	name TEXT,
	auth_key TEXT NOT NULL,
	resolved_auth_key TEXT NOT NULL,
	status TEXT NOT NULL,
	never_published INTEGER NOT NULL DEFAULT 1,
	latest_entity_versions_id INTEGER,
	published_entity_versions_id INTEGER,
	valid INTEGER NOT NULL DEFAULT 1,
	valid_published INTEGER,
	dirty INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER,
	CONSTRAINT entities_uuid_key UNIQUE (uuid),
	CONSTRAINT entities_name_key UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS entity_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entities_id INTEGER NOT NULL REFERENCES entities(id),
	version INTEGER NOT NULL,
	schema_version INTEGER NOT NULL,
	encode_version INTEGER NOT NULL,
	name TEXT,
	fields TEXT,
	created_at INTEGER NOT NULL,
	created_by TEXT,
	CONSTRAINT entity_versions_entities_id_version_key UNIQUE (entities_id, version)
);

CREATE TABLE IF NOT EXISTS entity_references (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_entities_id INTEGER NOT NULL REFERENCES entities(id),
	to_entities_id INTEGER NOT NULL REFERENCES entities(id),
	published INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_locations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entities_id INTEGER NOT NULL REFERENCES entities(id),
	lat REAL NOT NULL,
	lng REAL NOT NULL,
	published INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS unique_index_values (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entities_id INTEGER NOT NULL REFERENCES entities(id),
	index_name TEXT NOT NULL,
	value TEXT NOT NULL,
	published INTEGER NOT NULL,
	CONSTRAINT unique_index_values_index_name_value_published_key UNIQUE (index_name, value, published)
);

CREATE TABLE IF NOT EXISTS entity_texts (
	entities_id INTEGER NOT NULL REFERENCES entities(id),
	published INTEGER NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (entities_id, published)
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	schema_version INTEGER
);

CREATE TABLE IF NOT EXISTS event_entity_versions (
	events_id INTEGER NOT NULL REFERENCES events(id),
	entity_versions_id INTEGER NOT NULL REFERENCES entity_versions(id),
	PRIMARY KEY (events_id, entity_versions_id)
);

CREATE TABLE IF NOT EXISTS advisory_locks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	handle TEXT NOT NULL,
	acquired_at INTEGER NOT NULL,
	renewed_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	lease_duration INTEGER NOT NULL,
	CONSTRAINT advisory_locks_name_key UNIQUE (name)
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_dirty ON entities(dirty) WHERE dirty <> 0;
CREATE INDEX IF NOT EXISTS idx_entity_references_from ON entity_references(from_entities_id, published);
CREATE INDEX IF NOT EXISTS idx_entity_references_to ON entity_references(to_entities_id, published);
CREATE INDEX IF NOT EXISTS idx_entity_locations_entity ON entity_locations(entities_id, published);
CREATE INDEX IF NOT EXISTS idx_unique_index_values_entity ON unique_index_values(entities_id, published);
CREATE INDEX IF NOT EXISTS idx_event_entity_versions_version ON event_entity_versions(entity_versions_id);
`

// uniqueColumns maps constraint names to the column list SQLite reports in
// "UNIQUE constraint failed: ..." errors
var uniqueColumns = map[string]string{
	repository.ConstraintSchemaVersion:    "schema_versions.version",
	repository.ConstraintPrincipal:        "principals.provider, principals.identifier",
	repository.ConstraintEntityUUID:       "entities.uuid",
	repository.ConstraintEntityName:       "entities.name",
	repository.ConstraintEntityVersion:    "entity_versions.entities_id, entity_versions.version",
	repository.ConstraintUniqueIndexValue: "unique_index_values.index_name, unique_index_values.value, unique_index_values.published",
	repository.ConstraintAdvisoryLockName: "advisory_locks.name",
}
