package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TypeAccess is an exported constant or variable used by the authentication engine.
	TypeAccess = "access"
	// TypeRefresh is an exported constant or variable used by the authentication engine.
	TypeRefresh = "refresh"
)

// ErrTokenInvalid collapses every verification failure — bad signature,
// expiry, malformed claims, wrong token type — into one outcome so callers
// cannot distinguish cryptographic state.
var ErrTokenInvalid = errors.New("invalid token")

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret []byte
	Issuer string

	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RememberMeAccessTTL  time.Duration
	RememberMeRefreshTTL time.Duration

	Leeway time.Duration
}

// Claims is the claim set carried by both token types. TokenType is the
// discriminator; RememberMe is carried on refresh tokens so rotation
// preserves the extended lifetimes the client asked for at login.
type Claims struct {
	TokenType  string `json:"typ"`
	Role       string `json:"role,omitempty"`
	RememberMe bool   `json:"rm,omitempty"`
	jwt.RegisteredClaims
}

// Manager defines a public type used by authcore APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("hs256 secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RememberMeAccessTTL <= 0 {
		cfg.RememberMeAccessTTL = cfg.AccessTTL
	}
	if cfg.RememberMeRefreshTTL <= 0 {
		cfg.RememberMeRefreshTTL = cfg.RefreshTTL
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// CreateAccess mints an access token for the user. The remember-me flag
// selects the extended lifetime.
func (m *Manager) CreateAccess(userID, role string, rememberMe bool) (string, error) {
	ttl := m.config.AccessTTL
	if rememberMe {
		ttl = m.config.RememberMeAccessTTL
	}
	return m.sign(Claims{
		TokenType:  TypeAccess,
		Role:       role,
		RememberMe: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
}

// CreateRefresh mints a refresh token and returns it with its expiry, which
// the caller persists alongside the token hash.
func (m *Manager) CreateRefresh(userID string, rememberMe bool) (string, time.Time, error) {
	ttl := m.config.RefreshTTL
	if rememberMe {
		ttl = m.config.RememberMeRefreshTTL
	}
	expiresAt := time.Now().Add(ttl)
	token, err := m.sign(Claims{
		TokenType:  TypeRefresh,
		RememberMe: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ParseAccess verifies signature, expiry, and the access discriminator.
// Every failure is ErrTokenInvalid.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, TypeAccess)
}

// ParseRefresh verifies signature, expiry, and the refresh discriminator.
// Every failure is ErrTokenInvalid.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, TypeRefresh)
}

func (m *Manager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Secret)
}

func (m *Manager) parse(tokenStr, wantType string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	}, options...)
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != wantType {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
