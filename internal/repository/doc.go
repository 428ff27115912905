// Package repository holds the storage contract and the portable SQL of
// strata.
//
// # Adapter
//
// An Adapter runs queries with ? placeholders inside transactions, encodes
// pagination cursors, recognizes unique violations by constraint name and
// generates UUIDs. The sqlite and postgres subpackages implement it and own
// their DDL.
//
// # Store
//
// Store implements every query the engine needs on top of an Adapter:
// entities and their versions, index values, schema versions, changelog
// events, principals and advisory locks. Inside WithTx the store is bound to
// the open transaction. Savepoint isolates work that may fail without
// aborting the transaction, such as unique value inserts and batch items.
//
// # Portability
//
// The SQL sticks to what SQLite and Postgres share: booleans are stored as
// 0/1 integers, timestamps as unix milliseconds and JSON documents as text.
// Flags are updated with bit operators and new ids are read with RETURNING.
//
// # Testing
//
// The store is tested against in-memory SQLite databases through both SQLite
// drivers.
package repository
