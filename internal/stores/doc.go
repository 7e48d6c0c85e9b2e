// Package stores holds the short-lived server-side state the engine keeps
// outside the relational database: single-use CSRF tokens bound to a
// session. Two implementations share one contract — an in-memory store for
// single-instance deployments and a Redis store for fleets, where the
// compare-and-delete consume step runs as a Lua script so concurrent
// submissions of the same token cannot both succeed.
//
// # Architecture boundaries
//
// This package stores opaque token strings and the session they belong to.
// Token generation, request extraction, and policy (TTLs, header names)
// belong to the engine.
//
// # What this package must NOT do
//
//   - Interpret or generate token values.
//   - Import the root authcore package.
package stores
