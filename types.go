package authcore

import (
	"context"
	"time"
)

// UserRecord is the full account record exchanged with [UserStore]. It
// carries the credential hash, lockout state, MFA state, and the hashed
// verification/reset challenges.
type UserRecord struct {
	UserID        string
	Email         string
	Name          string
	PasswordHash  string
	Role          string
	Active        bool
	EmailVerified bool

	FailedLogins int
	LockoutUntil *time.Time

	TOTPEnabled bool
	TOTPSecret  []byte

	VerificationExpires *time.Time
	ResetExpires        *time.Time
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// RefreshTokenRecord is the persisted form of a refresh token: the SHA-256
// hash of the signed token string, the owning user, and the expiry. The raw
// token value is never persisted.
type RefreshTokenRecord struct {
	TokenHash [32]byte
	UserID    string
	ExpiresAt time.Time
}

// CreateUserInput is the input for [UserStore.CreateUser].
type CreateUserInput struct {
	Email               string
	Name                string
	PasswordHash        string
	Role                string
	VerificationHash    [32]byte
	VerificationExpires time.Time
}

// UserStore is the contract the engine holds against the external relational
// user store. Implementations must use parameterized queries, honor context
// deadlines, and return [ErrUserNotFound] / [ErrEmailExists] where noted.
// The postgres subpackage provides a ready-made implementation.
type UserStore interface {
	// GetUserByEmail looks an account up by case-insensitive email.
	// Returns ErrUserNotFound when absent.
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)

	// GetUserByID returns ErrUserNotFound when absent.
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)

	// CreateUser inserts a new unverified account with MFA disabled.
	// Returns ErrEmailExists on a duplicate email.
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)

	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// IncrementFailedLogins atomically increments the failure counter and
	// returns the post-increment value, closing the race window between
	// concurrent failed attempts against the same account.
	IncrementFailedLogins(ctx context.Context, userID string) (int, error)

	// SetLockout records the lockout expiry set when the failure counter
	// reaches the configured threshold.
	SetLockout(ctx context.Context, userID string, until time.Time) error

	// ClearLockout zeroes the failure counter and clears the lockout expiry
	// in a single state transition.
	ClearLockout(ctx context.Context, userID string) error

	// GetUserByVerificationHash resolves the account owning an unexpired
	// email-verification challenge. Returns ErrUserNotFound when absent.
	GetUserByVerificationHash(ctx context.Context, hash [32]byte) (UserRecord, error)

	// SetEmailVerified marks the account verified and discards the
	// verification challenge.
	SetEmailVerified(ctx context.Context, userID string) error

	// SetResetToken stores the hashed password-reset challenge and expiry,
	// replacing any previous one.
	SetResetToken(ctx context.Context, userID string, hash [32]byte, expires time.Time) error

	// GetUserByResetHash resolves the account owning an unexpired reset
	// challenge. Returns ErrUserNotFound when absent.
	GetUserByResetHash(ctx context.Context, hash [32]byte) (UserRecord, error)

	// ClearResetToken discards the reset challenge after use.
	ClearResetToken(ctx context.Context, userID string) error

	// SetTOTPSecret stores a pending secret; the MFA-enabled flag stays
	// false until EnableTOTP.
	SetTOTPSecret(ctx context.Context, userID string, secret []byte) error

	// EnableTOTP flips the MFA-enabled flag for the pending secret.
	EnableTOTP(ctx context.Context, userID string) error

	// DisableTOTP clears the secret, disables the flag, and discards all
	// backup codes.
	DisableTOTP(ctx context.Context, userID string) error

	// ReplaceBackupCodes atomically replaces the whole backup-code set.
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error

	// ConsumeBackupCode removes exactly the matching hash from the set and
	// reports whether it was present. Removal and match must be atomic.
	ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error)
}

// RefreshTokenStore is the contract for refresh-token records in the
// external relational store.
type RefreshTokenStore interface {
	Save(ctx context.Context, record RefreshTokenRecord) error

	// Find returns ErrRefreshInvalid when the hash is unknown.
	Find(ctx context.Context, tokenHash [32]byte) (RefreshTokenRecord, error)

	// Delete is idempotent; deleting an absent hash is not an error.
	Delete(ctx context.Context, tokenHash [32]byte) error

	DeleteAllForUser(ctx context.Context, userID string) error

	// DeleteExpired prunes records whose expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) error
}

// RegisterInput is the input for [Engine.Register].
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// RegisterResult is returned by [Engine.Register]. VerificationToken is
// handed to the caller for external delivery; the store holds only its hash.
type RegisterResult struct {
	UserID            string
	VerificationToken string
}

// LoginInput is the input for [Engine.Login]. TOTPCode and BackupCode are
// alternatives; at most one is consulted when the account has MFA enabled.
type LoginInput struct {
	Email      string
	Password   string
	TOTPCode   string
	BackupCode string
	RememberMe bool
}

// SessionUser is the caller-visible slice of the account returned on login.
type SessionUser struct {
	UserID        string
	Email         string
	Name          string
	Role          string
	EmailVerified bool
	TOTPEnabled   bool
}

// TokenPair bundles a short-lived access token and a longer-lived rotating
// refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by [Engine.Login] on success.
type LoginResult struct {
	TokenPair
	User SessionUser
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID string
	Role   string
}

// TOTPSetup holds the base32-encoded pending secret and the otpauth://
// provisioning URI an authenticator app renders as a QR code.
type TOTPSetup struct {
	Secret string
	URI    string
}
