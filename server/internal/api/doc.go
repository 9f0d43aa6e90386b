// Package api implements the HTTP REST API for the livelist server.
//
// New(store, hub, guard) returns an http.Handler that serves:
//
//	GET    /api/v1/health        status, record/subscriber counts, diagnostics
//	GET    /api/v1/records       all records in insertion order
//	GET    /api/v1/records/{id}  single record; 404 if unknown
//	GET    /api/v1/snapshot      version + records + generated_at
//	POST   /api/v1/records       Upsert a JSON array of records
//	PUT    /api/v1/records       ReplaceAll with a JSON array of records
//	DELETE /api/v1/records       DeleteAll
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for unsupported methods
//   - Return 400 when a mutation batch fails validation
//
// Mutating requests pass through guard (see package auth) before they reach
// the store. JSON types are defined in types.go. No external HTTP framework
// is used.
package api
