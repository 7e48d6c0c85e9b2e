package authcore

import (
	"os"
	"strconv"
	"time"
)

// ConfigFromEnv builds a Config by applying defaults and overlaying
// AUTHCORE_* environment variables. Unset or malformed variables keep the
// default value; the caller should still run [Config.Validate] via Build.
//
// Recognized variables: AUTHCORE_JWT_SECRET, AUTHCORE_JWT_ISSUER,
// AUTHCORE_ACCESS_TTL, AUTHCORE_REFRESH_TTL, AUTHCORE_REMEMBER_ACCESS_TTL,
// AUTHCORE_REMEMBER_REFRESH_TTL, AUTHCORE_ARGON2_MEMORY_KB,
// AUTHCORE_ARGON2_TIME, AUTHCORE_LOCKOUT_THRESHOLD,
// AUTHCORE_LOCKOUT_DURATION, AUTHCORE_RATE_AUTH_LIMIT,
// AUTHCORE_RATE_API_LIMIT, AUTHCORE_RATE_SENSITIVE_LIMIT,
// AUTHCORE_RATE_MFA_LIMIT, AUTHCORE_CSRF_TTL.
func ConfigFromEnv() Config {
	cfg := defaultConfig()

	if v := os.Getenv("AUTHCORE_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = []byte(v)
	}
	if v := os.Getenv("AUTHCORE_JWT_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	overlayDuration(&cfg.JWT.AccessTTL, "AUTHCORE_ACCESS_TTL")
	overlayDuration(&cfg.JWT.RefreshTTL, "AUTHCORE_REFRESH_TTL")
	overlayDuration(&cfg.JWT.RememberMeAccessTTL, "AUTHCORE_REMEMBER_ACCESS_TTL")
	overlayDuration(&cfg.JWT.RememberMeRefreshTTL, "AUTHCORE_REMEMBER_REFRESH_TTL")

	overlayUint32(&cfg.Password.Memory, "AUTHCORE_ARGON2_MEMORY_KB")
	overlayUint32(&cfg.Password.Time, "AUTHCORE_ARGON2_TIME")

	overlayInt(&cfg.Lockout.Threshold, "AUTHCORE_LOCKOUT_THRESHOLD")
	overlayDuration(&cfg.Lockout.Duration, "AUTHCORE_LOCKOUT_DURATION")

	overlayInt(&cfg.RateLimit.Auth.Limit, "AUTHCORE_RATE_AUTH_LIMIT")
	overlayInt(&cfg.RateLimit.API.Limit, "AUTHCORE_RATE_API_LIMIT")
	overlayInt(&cfg.RateLimit.Sensitive.Limit, "AUTHCORE_RATE_SENSITIVE_LIMIT")
	overlayInt(&cfg.RateLimit.MFA.Limit, "AUTHCORE_RATE_MFA_LIMIT")

	overlayDuration(&cfg.CSRF.TTL, "AUTHCORE_CSRF_TTL")

	return cfg
}

func overlayDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}

func overlayInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}

func overlayUint32(dst *uint32, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
		*dst = uint32(n)
	}
}
