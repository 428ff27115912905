// Package schema holds the versioned content schema of a strata repository.
//
// An AdminSchema is the complete schema: entity types, component types,
// named patterns, unique indexes and the migration log. It is immutable;
// UpdateAndValidate merges a SpecificationUpdate into a new instance and
// returns the receiver itself when the update changes nothing.
//
// The PublishedSchema is derived from the admin schema by removing admin-only
// types and fields. It is what public readers of published entities see.
//
// # Migrations
//
// Schema updates may carry migration actions (renameField, deleteField,
// renameType, deleteType). They are applied to the specification when the
// update is merged and recorded so the codec can rewrite stored entity data
// written under older versions, see CollectMigrationActionsSinceVersion.
package schema
