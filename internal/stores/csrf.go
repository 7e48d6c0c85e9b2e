package stores

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCSRFNotFound is an exported constant or variable used by the authentication engine.
	ErrCSRFNotFound = errors.New("csrf token not found")
	// ErrCSRFMismatch is an exported constant or variable used by the authentication engine.
	ErrCSRFMismatch = errors.New("csrf session mismatch")
	// ErrCSRFRedisUnavailable is an exported constant or variable used by the authentication engine.
	ErrCSRFRedisUnavailable = errors.New("csrf redis unavailable")
)

// CSRFStore persists single-use CSRF tokens keyed by token value, each
// bound to the session it was issued for.
//
// Validate is non-mutating and may be called any number of times. Consume
// is the spend step: it deletes the token only when the session matches and
// the token is live, and that check-and-delete must be atomic per token so
// two concurrent consumers cannot both succeed.
type CSRFStore interface {
	Save(ctx context.Context, token, sessionID string, ttl time.Duration, now time.Time) error
	Validate(ctx context.Context, token, sessionID string, now time.Time) error
	Consume(ctx context.Context, token, sessionID string, now time.Time) error
	Sweep(ctx context.Context, now time.Time) error
}
