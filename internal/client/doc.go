// Package client exposes the repository engine as a closed set of named
// operations.
//
// Each operation takes a typed args struct and resolves to a
// domain.Result. Calls run through a middleware chain whose terminal
// handler always resolves against the engine, so transports (the HTTP
// handler, the CLI) and cross-cutting concerns (logging, read-only
// clients) compose without touching engine code.
//
// # Design Principles
//
//   - Total: Execute never panics and never returns a bare error
//   - Closed: unknown operation names are BadRequest
//   - Transport neutral: DecodeArgs builds args from JSON for any transport
package client
