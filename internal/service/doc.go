// Package service implements the operations of the strata content repository.
//
// The Engine coordinates the schema, the entity codec and the repository
// store. Every operation runs in one storage transaction with the latest
// schema loaded, and every successful mutation records exactly one changelog
// event in that transaction.
//
// # Operations
//
// Entities are created, updated and upserted as drafts, then published,
// unpublished, archived, unarchived and deleted following the status state
// machine in the domain package. Batch operations (publish, unpublish,
// delete) isolate each item in a savepoint: a failing item is reported in
// its result and the others still apply.
//
// Schema updates store a new schema version and mark the entities it may
// affect dirty. The Reconciler validates and re-indexes dirty entities in the
// background.
//
// Advisory locks give cooperative exclusivity to long running jobs.
// WithAdvisoryLock retries acquisition, renews the lease while the callback
// runs and reports a lost lease as the result.
//
// # Event System
//
// Committed changelog events are published on the EventBus. The HTTP hub
// streams them to Server-Sent Events clients and the Reconciler wakes up on
// schema updates.
//
// # Design Principles
//
// - The engine owns business rules and authorization
// - The repository store owns the portable SQL
// - All errors leaving the engine are *domain.Error
// - Context-aware for cancellation and timeouts
package service
