package stores

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type csrfRecord struct {
	sessionID string
	expiresAt time.Time
}

// MemoryCSRFStore is a process-local [CSRFStore]. Expired tokens are
// rejected on read and reclaimed by Sweep.
type MemoryCSRFStore struct {
	mu     sync.Mutex
	tokens map[string]csrfRecord
}

// NewMemoryCSRFStore describes the newmemorycsrfstore operation and its observable behavior.
//
// NewMemoryCSRFStore may return an error when input validation, dependency calls, or security checks fail.
// NewMemoryCSRFStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryCSRFStore() *MemoryCSRFStore {
	return &MemoryCSRFStore{
		tokens: make(map[string]csrfRecord),
	}
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryCSRFStore) Save(_ context.Context, token, sessionID string, ttl time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token] = csrfRecord{
		sessionID: sessionID,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryCSRFStore) Validate(_ context.Context, token, sessionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok || !record.expiresAt.After(now) {
		return ErrCSRFNotFound
	}
	if subtle.ConstantTimeCompare([]byte(record.sessionID), []byte(sessionID)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

// Consume describes the consume operation and its observable behavior.
//
// Consume may return an error when input validation, dependency calls, or security checks fail.
// Consume does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryCSRFStore) Consume(_ context.Context, token, sessionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok || !record.expiresAt.After(now) {
		return ErrCSRFNotFound
	}
	if subtle.ConstantTimeCompare([]byte(record.sessionID), []byte(sessionID)) != 1 {
		// Mismatch does not spend the token; the legitimate session can
		// still use it.
		return ErrCSRFMismatch
	}

	delete(s.tokens, token)
	return nil
}

// Sweep describes the sweep operation and its observable behavior.
//
// Sweep may return an error when input validation, dependency calls, or security checks fail.
// Sweep does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryCSRFStore) Sweep(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, record := range s.tokens {
		if !record.expiresAt.After(now) {
			delete(s.tokens, token)
		}
	}
	return nil
}
