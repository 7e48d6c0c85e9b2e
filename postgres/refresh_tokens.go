package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	authcore "github.com/NLyne/authcore"
)

// RefreshTokenStore implements authcore.RefreshTokenStore on PostgreSQL.
// Only token hashes ever touch the table.
type RefreshTokenStore struct {
	db *sql.DB
}

// NewRefreshTokenStore describes the newrefreshtokenstore operation and its observable behavior.
//
// NewRefreshTokenStore may return an error when input validation, dependency calls, or security checks fail.
// NewRefreshTokenStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRefreshTokenStore(db *sql.DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db}
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RefreshTokenStore) Save(ctx context.Context, record authcore.RefreshTokenRecord) error {
	query := `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, record.TokenHash[:], record.UserID, record.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Find describes the find operation and its observable behavior.
//
// Find may return an error when input validation, dependency calls, or security checks fail.
// Find does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RefreshTokenStore) Find(ctx context.Context, tokenHash [32]byte) (authcore.RefreshTokenRecord, error) {
	query := `
		SELECT user_id, expires_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	record := authcore.RefreshTokenRecord{TokenHash: tokenHash}
	if err := s.db.QueryRowContext(ctx, query, tokenHash[:]).Scan(&record.UserID, &record.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.RefreshTokenRecord{}, authcore.ErrRefreshInvalid
		}
		return authcore.RefreshTokenRecord{}, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RefreshTokenStore) Delete(ctx context.Context, tokenHash [32]byte) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = $1`,
		tokenHash[:]); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteAllForUser describes the deleteallforuser operation and its observable behavior.
//
// DeleteAllForUser may return an error when input validation, dependency calls, or security checks fail.
// DeleteAllForUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RefreshTokenStore) DeleteAllForUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`,
		userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpired describes the deleteexpired operation and its observable behavior.
//
// DeleteExpired may return an error when input validation, dependency calls, or security checks fail.
// DeleteExpired does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`,
		now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
