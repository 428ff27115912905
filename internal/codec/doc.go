// Package codec converts entity field trees between their caller, storage
// and read representations.
//
// Encode validates caller supplied fields against an entity type and produces
// the canonical storage tree plus the values extracted for indexing (name,
// references, locations, unique index values and full text).
//
// Decode is the read path. It migrates a stored tree from the schema version
// it was written under (see Migrate), upgrades older encode versions and
// converts the result to typed values for the admin or published view. It
// never fails; problems are reported as issues and mark the entity invalid.
//
// Bundles are portable snapshots of a schema and its entities, with JSON and
// YAML importers and exporters.
package codec
