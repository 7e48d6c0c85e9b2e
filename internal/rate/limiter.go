package rate

import (
	"context"
	"time"
)

// Class names an operation family with its own preset.
type Class string

const (
	// ClassAuth is an exported constant or variable used by the authentication engine.
	ClassAuth Class = "auth"
	// ClassAPI is an exported constant or variable used by the authentication engine.
	ClassAPI Class = "api"
	// ClassSensitive is an exported constant or variable used by the authentication engine.
	ClassSensitive Class = "sensitive"
	// ClassMFA is an exported constant or variable used by the authentication engine.
	ClassMFA Class = "mfa"
)

// Preset is the limit/window pair applied to one class.
type Preset struct {
	Limit  int
	Window time.Duration
}

// Result reports the outcome of one admission check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// BucketStore records request timestamps per key. Take must prune entries
// older than now-window, and, when fewer than limit remain, append now —
// prune, count, and append are one atomic step per key.
type BucketStore interface {
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Limiter applies per-class presets over a [BucketStore].
type Limiter struct {
	store   BucketStore
	presets map[Class]Preset
	now     func() time.Time
}

// New creates a Limiter with the given store and presets. Classes without a
// preset are never throttled.
func New(store BucketStore, presets map[Class]Preset) *Limiter {
	copied := make(map[Class]Preset, len(presets))
	for class, preset := range presets {
		copied[class] = preset
	}
	return &Limiter{
		store:   store,
		presets: copied,
		now:     time.Now,
	}
}

// SetClock overrides the limiter's time source. Test use only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Check admits or rejects one request for (class, id). The limiter fails
// open: a nil store, missing preset, or store error all admit the request
// so an internal bug can never block all traffic.
func (l *Limiter) Check(ctx context.Context, class Class, id string) Result {
	if l == nil || l.store == nil || id == "" {
		return Result{Allowed: true}
	}
	preset, ok := l.presets[class]
	if !ok || preset.Limit <= 0 || preset.Window <= 0 {
		return Result{Allowed: true}
	}

	result, err := l.store.Take(ctx, string(class)+":"+id, preset.Limit, preset.Window, l.now())
	if err != nil {
		return Result{Allowed: true}
	}
	return result
}
