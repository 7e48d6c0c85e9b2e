// Package jwt mints and verifies the two bearer token types used by the
// engine: short-lived access tokens and longer-lived refresh tokens. Both
// are HS256-signed with the server secret and carry the subject's user ID;
// refresh tokens additionally carry a "typ" discriminator so an access
// token can never be used where a refresh token is required.
//
// # Architecture boundaries
//
// This package owns claim layout, signing, and verification. Refresh-token
// persistence, rotation, and reuse detection are handled by the Engine and
// its RefreshTokenStore.
//
// # What this package must NOT do
//
//   - Perform any I/O.
//   - Import the root authcore package.
//   - Surface distinct verification failures: callers see one error class
//     for signature, expiry, and type mismatches alike.
package jwt
