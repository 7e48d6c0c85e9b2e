// Package postgres implements the engine's UserStore and RefreshTokenStore
// contracts on PostgreSQL via database/sql and the pgx stdlib driver.
// Schema management runs through goose with the migrations embedded in the
// binary, so a deployment needs no external migration tooling.
//
// # Architecture boundaries
//
// This package owns SQL, schema, and driver error translation. It returns
// the sentinel errors the engine contracts name (ErrUserNotFound,
// ErrEmailExists, ErrRefreshInvalid) and nothing driver-specific.
//
// # What this package must NOT do
//
//   - Hash passwords, tokens, or backup codes; it stores what it is given.
//   - Apply authentication policy of any kind.
package postgres
