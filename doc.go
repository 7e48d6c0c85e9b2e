// Package authcore implements an authentication and session-security core:
// credential verification with account lockout, JWT access tokens with
// hash-stored rotating refresh tokens, TOTP and single-use backup codes,
// sliding-window rate limiting, and single-use anti-forgery tokens.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the store contracts ([UserStore], [RefreshTokenStore]), and value types
// (LoginResult, AuthResult, TOTPSetup, etc.). Rate-limit bookkeeping and
// anti-forgery token storage live under internal/ and are never exported;
// a ready-made relational implementation of the store contracts lives in
// the postgres subpackage.
//
// # What this package must NOT do
//
//   - Expose SQL, Redis clients, or token encoding details in its public API.
//   - Render UI, route HTTP, or deliver email. Verification and reset tokens
//     are returned to the caller; delivery is the caller's concern.
//   - Distinguish missing accounts from wrong passwords in any caller-visible
//     way (account enumeration resistance).
//
// # Clock dependency
//
// Lockout windows, token expiry, and TOTP verification all assume the host
// clock is NTP-synchronized. TOTP tolerates one time step of drift; nothing
// else compensates for a skewed clock.
//
// # Multi-instance deployments
//
// The default in-memory rate-limit buckets and anti-forgery token store are
// process-local. They are correct for a single instance; deployments running
// several instances behind a load balancer should back both with Redis via
// [Builder.WithRedis] so counters and tokens are shared.
package authcore
