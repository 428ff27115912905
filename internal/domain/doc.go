// Package domain defines the core types of the strata content repository.
//
// This package contains the values shared by every layer: entities and their
// field trees, the entity status state machine, dirty flags, changelog events,
// advisory locks, principals and sessions, and the typed error kinds every
// engine operation reports.
//
// # Entities
//
// Entity is a schema-typed content record. Its Fields tree holds scalars,
// Location, EntityReference, Component and RichText values, or lists of those.
//
// # Status
//
// The status transition functions (StatusAfterPublish, StatusAfterArchive, ...)
// are the single source of truth for which lifecycle moves are allowed.
//
// # Errors
//
// Every engine failure is an *Error carrying an ErrorKind. Result wraps a
// value or an error for batch operations that report items independently.
//
// # Design Principles
//
// - No database or external dependencies
// - Pure domain logic without infrastructure concerns
package domain
