package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	authcore "github.com/NLyne/authcore"
)

const pgUniqueViolation = "23505"

const userColumns = `
	id, email, name, password_hash, role, active, email_verified,
	failed_logins, lockout_until, totp_enabled, totp_secret,
	verification_expires, reset_expires
`

// UserStore implements authcore.UserStore on PostgreSQL.
type UserStore struct {
	db *sql.DB
}

// NewUserStore describes the newuserstore operation and its observable behavior.
//
// NewUserStore may return an error when input validation, dependency calls, or security checks fail.
// NewUserStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row *sql.Row) (authcore.UserRecord, error) {
	var (
		user       authcore.UserRecord
		totpSecret []byte
	)
	err := row.Scan(
		&user.UserID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.Active,
		&user.EmailVerified,
		&user.FailedLogins,
		&user.LockoutUntil,
		&user.TOTPEnabled,
		&totpSecret,
		&user.VerificationExpires,
		&user.ResetExpires,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.UserRecord{}, authcore.ErrUserNotFound
		}
		return authcore.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	user.TOTPSecret = totpSecret
	return user, nil
}

// GetUserByEmail describes the getuserbyemail operation and its observable behavior.
//
// GetUserByEmail may return an error when input validation, dependency calls, or security checks fail.
// GetUserByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

// GetUserByID describes the getuserbyid operation and its observable behavior.
//
// GetUserByID may return an error when input validation, dependency calls, or security checks fail.
// GetUserByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) GetUserByID(ctx context.Context, userID string) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// CreateUser describes the createuser operation and its observable behavior.
//
// CreateUser may return an error when input validation, dependency calls, or security checks fail.
// CreateUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) CreateUser(ctx context.Context, input authcore.CreateUserInput) (authcore.UserRecord, error) {
	id := uuid.NewString()

	query := `
		INSERT INTO users (id, email, name, password_hash, role, verification_hash, verification_expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		id,
		input.Email,
		input.Name,
		input.PasswordHash,
		input.Role,
		input.VerificationHash[:],
		input.VerificationExpires,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return authcore.UserRecord{}, authcore.ErrEmailExists
		}
		return authcore.UserRecord{}, fmt.Errorf("db error: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return s.execOne(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		userID, newHash)
}

// IncrementFailedLogins describes the incrementfailedlogins operation and its observable behavior.
//
// IncrementFailedLogins may return an error when input validation, dependency calls, or security checks fail.
// IncrementFailedLogins does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) IncrementFailedLogins(ctx context.Context, userID string) (int, error) {
	// Increment-and-return in one statement so concurrent failures
	// against the same account serialize on the row.
	query := `
		UPDATE users
		SET failed_logins = failed_logins + 1, updated_at = now()
		WHERE id = $1
		RETURNING failed_logins
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, authcore.ErrUserNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

// SetLockout describes the setlockout operation and its observable behavior.
//
// SetLockout may return an error when input validation, dependency calls, or security checks fail.
// SetLockout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) SetLockout(ctx context.Context, userID string, until time.Time) error {
	return s.execOne(ctx,
		`UPDATE users SET lockout_until = $2, updated_at = now() WHERE id = $1`,
		userID, until)
}

// ClearLockout describes the clearlockout operation and its observable behavior.
//
// ClearLockout may return an error when input validation, dependency calls, or security checks fail.
// ClearLockout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) ClearLockout(ctx context.Context, userID string) error {
	return s.execOne(ctx,
		`UPDATE users SET failed_logins = 0, lockout_until = NULL, updated_at = now() WHERE id = $1`,
		userID)
}

// GetUserByVerificationHash describes the getuserbyverificationhash operation and its observable behavior.
//
// GetUserByVerificationHash may return an error when input validation, dependency calls, or security checks fail.
// GetUserByVerificationHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) GetUserByVerificationHash(ctx context.Context, hash [32]byte) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE verification_hash = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, hash[:]))
}

// SetEmailVerified describes the setemailverified operation and its observable behavior.
//
// SetEmailVerified may return an error when input validation, dependency calls, or security checks fail.
// SetEmailVerified does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) SetEmailVerified(ctx context.Context, userID string) error {
	return s.execOne(ctx,
		`UPDATE users SET email_verified = TRUE, verification_hash = NULL, verification_expires = NULL, updated_at = now() WHERE id = $1`,
		userID)
}

// SetResetToken describes the setresettoken operation and its observable behavior.
//
// SetResetToken may return an error when input validation, dependency calls, or security checks fail.
// SetResetToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) SetResetToken(ctx context.Context, userID string, hash [32]byte, expires time.Time) error {
	return s.execOne(ctx,
		`UPDATE users SET reset_hash = $2, reset_expires = $3, updated_at = now() WHERE id = $1`,
		userID, hash[:], expires)
}

// GetUserByResetHash describes the getuserbyresethash operation and its observable behavior.
//
// GetUserByResetHash may return an error when input validation, dependency calls, or security checks fail.
// GetUserByResetHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) GetUserByResetHash(ctx context.Context, hash [32]byte) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_hash = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, hash[:]))
}

// ClearResetToken describes the clearresettoken operation and its observable behavior.
//
// ClearResetToken may return an error when input validation, dependency calls, or security checks fail.
// ClearResetToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) ClearResetToken(ctx context.Context, userID string) error {
	return s.execOne(ctx,
		`UPDATE users SET reset_hash = NULL, reset_expires = NULL, updated_at = now() WHERE id = $1`,
		userID)
}

// SetTOTPSecret describes the settotpsecret operation and its observable behavior.
//
// SetTOTPSecret may return an error when input validation, dependency calls, or security checks fail.
// SetTOTPSecret does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) SetTOTPSecret(ctx context.Context, userID string, secret []byte) error {
	return s.execOne(ctx,
		`UPDATE users SET totp_secret = $2, totp_enabled = FALSE, updated_at = now() WHERE id = $1`,
		userID, secret)
}

// EnableTOTP describes the enabletotp operation and its observable behavior.
//
// EnableTOTP may return an error when input validation, dependency calls, or security checks fail.
// EnableTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) EnableTOTP(ctx context.Context, userID string) error {
	return s.execOne(ctx,
		`UPDATE users SET totp_enabled = TRUE, updated_at = now() WHERE id = $1 AND totp_secret IS NOT NULL`,
		userID)
}

// DisableTOTP describes the disabletotp operation and its observable behavior.
//
// DisableTOTP may return an error when input validation, dependency calls, or security checks fail.
// DisableTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) DisableTOTP(ctx context.Context, userID string) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET totp_enabled = FALSE, totp_secret = NULL, updated_at = now() WHERE id = $1`,
			userID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM backup_codes WHERE user_id = $1`,
			userID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

// ReplaceBackupCodes describes the replacebackupcodes operation and its observable behavior.
//
// ReplaceBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// ReplaceBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) ReplaceBackupCodes(ctx context.Context, userID string, codes []authcore.BackupCodeRecord) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM backup_codes WHERE user_id = $1`,
			userID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		for _, code := range codes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO backup_codes (user_id, code_hash) VALUES ($1, $2)`,
				userID, code.Hash[:]); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
}

// ConsumeBackupCode describes the consumebackupcode operation and its observable behavior.
//
// ConsumeBackupCode may return an error when input validation, dependency calls, or security checks fail.
// ConsumeBackupCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *UserStore) ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	// DELETE reports the row count, making match-and-remove one atomic
	// statement: a code presented twice concurrently is consumed once.
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = $1 AND code_hash = $2`,
		userID, hash[:])
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected > 0, nil
}

func (s *UserStore) execOne(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
