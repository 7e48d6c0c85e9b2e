// Package rate implements sliding-window request throttling keyed by
// (operation class, client identifier). Buckets hold the timestamps of
// requests inside the window; the oldest timestamp's expiry yields the
// retry-after hint on rejection.
//
// Bookkeeping lives behind the [BucketStore] interface: the in-memory store
// is process-local, the Redis store (sorted sets) shares buckets across
// instances. The limiter fails open — a store error never blocks traffic.
//
// The identifier decides what a bucket actually contains. Per-source
// throttling needs a per-source identifier (the client address); keying on
// a request target, such as the account email, only bounds attempts against
// that one target. Callers should prefer the source identifier whenever the
// transport can supply one.
package rate
