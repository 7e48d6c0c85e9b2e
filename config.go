package authcore

import (
	"errors"
	"time"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	TOTP          TOTPConfig
	RateLimit     RateLimitConfig
	CSRF          CSRFConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by authcore APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	// Secret signs both token types (HS256).
	Secret []byte
	Issuer string

	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RememberMeAccessTTL  time.Duration
	RememberMeRefreshTTL time.Duration

	// Leeway tolerated when validating exp/iat claims.
	Leeway time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authcore APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// LockoutConfig defines a public type used by authcore APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// TOTPConfig defines a public type used by authcore APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int

	BackupCodeCount  int
	BackupCodeLength int
}

// RatePreset is one limit/window pair applied to an operation class.
type RatePreset struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig defines a public type used by authcore APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	Enabled   bool
	Auth      RatePreset
	API       RatePreset
	Sensitive RatePreset
	// MFA is a dedicated, stricter bucket for second-factor attempts:
	// six-digit codes brute-force faster than passwords.
	MFA RatePreset
}

// CSRFConfig defines a public type used by authcore APIs.
//
// CSRFConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CSRFConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	HeaderName    string
	FieldName     string
	QueryName     string
}

// VerificationConfig defines a public type used by authcore APIs.
//
// VerificationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type VerificationConfig struct {
	TTL time.Duration
}

// PasswordResetConfig defines a public type used by authcore APIs.
//
// PasswordResetConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordResetConfig struct {
	TTL time.Duration
}

// AuditConfig defines a public type used by authcore APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:               "authcore",
			AccessTTL:            7 * 24 * time.Hour,
			RefreshTTL:           30 * 24 * time.Hour,
			RememberMeAccessTTL:  30 * 24 * time.Hour,
			RememberMeRefreshTTL: 90 * 24 * time.Hour,
			Leeway:               30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:           "authcore",
			Digits:           6,
			Period:           30,
			Algorithm:        "SHA1",
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			Auth:      RatePreset{Limit: 10, Window: time.Minute},
			API:       RatePreset{Limit: 100, Window: time.Minute},
			Sensitive: RatePreset{Limit: 5, Window: time.Minute},
			MFA:       RatePreset{Limit: 5, Window: 5 * time.Minute},
		},
		CSRF: CSRFConfig{
			TTL:           time.Hour,
			SweepInterval: 5 * time.Minute,
			HeaderName:    "X-CSRF-Token",
			FieldName:     "csrf_token",
			QueryName:     "csrf_token",
		},
		Verification: VerificationConfig{
			TTL: 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TTL: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("jwt secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("invalid token TTL configuration")
	}
	if c.JWT.RememberMeAccessTTL < c.JWT.AccessTTL {
		return errors.New("remember-me access TTL below default access TTL")
	}
	if c.JWT.RememberMeRefreshTTL < c.JWT.RefreshTTL {
		return errors.New("remember-me refresh TTL below default refresh TTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("lockout threshold must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("totp digits must be 6-8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("totp skew must be 0-2 steps")
	}
	if c.TOTP.BackupCodeCount <= 0 || c.TOTP.BackupCodeLength < 8 {
		return errors.New("invalid backup code configuration")
	}
	if c.RateLimit.Enabled {
		for _, preset := range []RatePreset{c.RateLimit.Auth, c.RateLimit.API, c.RateLimit.Sensitive, c.RateLimit.MFA} {
			if preset.Limit <= 0 || preset.Window <= 0 {
				return errors.New("invalid rate limit preset")
			}
		}
	}
	if c.CSRF.TTL <= 0 || c.CSRF.SweepInterval <= 0 {
		return errors.New("invalid csrf configuration")
	}
	if c.Verification.TTL <= 0 || c.PasswordReset.TTL <= 0 {
		return errors.New("invalid challenge TTL configuration")
	}
	return nil
}
