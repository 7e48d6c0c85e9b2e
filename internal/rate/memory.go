package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local [BucketStore]. Each bucket is the slice of
// request timestamps still inside the window, oldest first.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewMemoryStore describes the newmemorystore operation and its observable behavior.
//
// NewMemoryStore may return an error when input validation, dependency calls, or security checks fail.
// NewMemoryStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string][]time.Time),
	}
}

// Take describes the take operation and its observable behavior.
//
// Take may return an error when input validation, dependency calls, or security checks fail.
// Take does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryStore) Take(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	bucket := s.buckets[key]

	kept := bucket[:0]
	for _, ts := range bucket {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		s.buckets[key] = kept
		retryAfter := kept[0].Add(window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	kept = append(kept, now)
	s.buckets[key] = kept
	return Result{Allowed: true, Remaining: limit - len(kept)}, nil
}

// Sweep drops buckets whose entries have all aged out of the window.
// Callers run it periodically to bound memory on churn-heavy key spaces.
func (s *MemoryStore) Sweep(window time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	for key, bucket := range s.buckets {
		if len(bucket) == 0 || !bucket[len(bucket)-1].After(cutoff) {
			delete(s.buckets, key)
		}
	}
}
