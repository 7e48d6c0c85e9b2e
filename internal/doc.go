// Package internal holds cryptographic helpers shared by the root engine:
// opaque token generation and the one-way hashes used for refresh tokens,
// verification challenges, and backup codes.
//
// Nothing here performs I/O or imports the root package.
package internal
