package postgres

// ddl mirrors the SQLite tables. Constraint names are the ones
// repository.Constraint* refer to.
const ddl = `
CREATE TABLE IF NOT EXISTS schema_versions (
	id BIGSERIAL PRIMARY KEY,
	version INTEGER NOT NULL,
	specification TEXT NOT NULL,
	updated_at BIGINT NOT NULL,
	CONSTRAINT schema_versions_version_key UNIQUE (version)
);

CREATE TABLE IF NOT EXISTS principals (
	id BIGSERIAL PRIMARY KEY,
	provider TEXT NOT NULL,
	identifier TEXT NOT NULL,
	uuid TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	CONSTRAINT principals_provider_identifier_key UNIQUE (provider, identifier)
);

CREATE TABLE IF NOT EXISTS entities (
	id BIGSERIAL PRIMARY KEY,
	uuid TEXT NOT NULL,
	type TEXT NOT NULL,
	name TEXT,
	auth_key TEXT NOT NULL,
	resolved_auth_key TEXT NOT NULL,
	status TEXT NOT NULL,
	never_published INTEGER NOT NULL DEFAULT 1,
	latest_entity_versions_id BIGINT,
	published_entity_versions_id BIGINT,
	valid INTEGER NOT NULL DEFAULT 1,
	valid_published INTEGER,
	dirty INTEGER NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	deleted_at BIGINT,
	CONSTRAINT entities_uuid_key UNIQUE (uuid),
	CONSTRAINT entities_name_key UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS entity_versions (
	id BIGSERIAL PRIMARY KEY,
	entities_id BIGINT NOT NULL REFERENCES entities(id),
	version INTEGER NOT NULL,
	schema_version INTEGER NOT NULL,
	encode_version INTEGER NOT NULL,
	name TEXT,
	fields TEXT,
	created_at BIGINT NOT NULL,
	created_by TEXT,
	CONSTRAINT entity_versions_entities_id_version_key UNIQUE (entities_id, version)
);

CREATE TABLE IF NOT EXISTS entity_references (
	id BIGSERIAL PRIMARY KEY,
	from_entities_id BIGINT NOT NULL REFERENCES entities(id),
	to_entities_id BIGINT NOT NULL REFERENCES entities(id),
	published INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_locations (
	id BIGSERIAL PRIMARY KEY,
	entities_id BIGINT NOT NULL REFERENCES entities(id),
	lat DOUBLE PRECISION NOT NULL,
	lng DOUBLE PRECISION NOT NULL,
	published INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS unique_index_values (
	id BIGSERIAL PRIMARY KEY,
	entities_id BIGINT NOT NULL REFERENCES entities(id),
	index_name TEXT NOT NULL,
	value TEXT NOT NULL,
	published INTEGER NOT NULL,
	CONSTRAINT unique_index_values_index_name_value_published_key UNIQUE (index_name, value, published)
);

CREATE TABLE IF NOT EXISTS entity_texts (
	entities_id BIGINT NOT NULL REFERENCES entities(id),
	published INTEGER NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (entities_id, published)
);

CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	uuid TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	schema_version INTEGER
);

CREATE TABLE IF NOT EXISTS event_entity_versions (
	events_id BIGINT NOT NULL REFERENCES events(id),
	entity_versions_id BIGINT NOT NULL REFERENCES entity_versions(id),
	PRIMARY KEY (events_id, entity_versions_id)
);

CREATE TABLE IF NOT EXISTS advisory_locks (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	handle TEXT NOT NULL,
	acquired_at BIGINT NOT NULL,
	renewed_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL,
	lease_duration BIGINT NOT NULL,
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
