// Package handler serves the repository's client operations over HTTP.
//
// # Routes
//
//	GET  /health                   liveness
//	GET  /api/operations           operation names
//	POST /api/operations/{name}    run an operation, JSON args in the body
//	GET  /api/schema               admin schema (?published=true)
//	GET  /api/entities/{id}        one entity (?version=, ?published=true)
//	GET  /api/changelog            changelog page (?entity=, ?first=, ?after=)
//	GET  /api/workers              background worker state
//	GET  /events                   changelog stream (SSE)
//
// # Response Format
//
// Successful operations return {"value": ...} with status 200. Failures
// return {"error": {"kind", "message"}} with the status of the error kind:
// BadRequest 400, NotAuthorized 401, NotFound 404, Conflict 409 and
// Generic 500. Batch operations succeed as a whole and report per-item
// errors inside the value.
//
// # Sessions
//
// Requests carrying X-Strata-Provider and X-Strata-Identifier run as that
// principal, which is created on first use. Other requests are anonymous
// and can only access entities with the "none" auth key.
package handler
