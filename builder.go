package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/NLyne/authcore/internal/rate"
	"github.com/NLyne/authcore/internal/stores"
	"github.com/NLyne/authcore/jwt"
	"github.com/NLyne/authcore/password"
)

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore    UserStore
	refreshStore RefreshTokenStore
	bucketStore  rate.BucketStore
	csrfStore    stores.CSRFStore
	hasher       password.Hasher
	auditSink    AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserStore describes the withuserstore operation and its observable behavior.
//
// WithUserStore may return an error when input validation, dependency calls, or security checks fail.
// WithUserStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithRefreshTokenStore describes the withrefreshtokenstore operation and its observable behavior.
//
// WithRefreshTokenStore may return an error when input validation, dependency calls, or security checks fail.
// WithRefreshTokenStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRefreshTokenStore(store RefreshTokenStore) *Builder {
	b.refreshStore = store
	return b
}

// WithRedis moves rate-limit buckets and CSRF tokens to Redis so every
// engine instance behind a load balancer shares one view of both.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRateLimitStore overrides the rate-limit bucket store. Takes
// precedence over WithRedis for the limiter.
func (b *Builder) WithRateLimitStore(store rate.BucketStore) *Builder {
	b.bucketStore = store
	return b
}

// WithCSRFStore overrides the CSRF token store. Takes precedence over
// WithRedis for CSRF state.
func (b *Builder) WithCSRFStore(store stores.CSRFStore) *Builder {
	b.csrfStore = store
	return b
}

// WithHasher describes the withhasher operation and its observable behavior.
//
// WithHasher may return an error when input validation, dependency calls, or security checks fail.
// WithHasher does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userStore == nil {
		return nil, errors.New("user store required")
	}
	if b.refreshStore == nil {
		return nil, errors.New("refresh token store required")
	}

	engine := &Engine{
		config:        cfg,
		users:         b.userStore,
		refreshTokens: b.refreshStore,
		now:           time.Now,
	}

	// -------- PASSWORD HASHER --------
	if b.hasher != nil {
		engine.passwordHash = b.hasher
	} else {
		ph, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		engine.passwordHash = ph
	}

	dummy, err := engine.passwordHash.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	// -------- TOKEN MANAGER --------
	jm, err := jwt.NewManager(jwt.Config{
		Secret:               cloneBytes(cfg.JWT.Secret),
		Issuer:               cfg.JWT.Issuer,
		AccessTTL:            cfg.JWT.AccessTTL,
		RefreshTTL:           cfg.JWT.RefreshTTL,
		RememberMeAccessTTL:  cfg.JWT.RememberMeAccessTTL,
		RememberMeRefreshTTL: cfg.JWT.RememberMeRefreshTTL,
		Leeway:               cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.totp = newTOTPManager(cfg.TOTP)

	// -------- RATE LIMITER --------
	bucketStore := b.bucketStore
	if bucketStore == nil {
		if b.redis != nil {
			bucketStore = rate.NewRedisStore(b.redis, "arl")
		} else {
			bucketStore = rate.NewMemoryStore()
		}
	}
	engine.rateLimiter = rate.New(bucketStore, map[rate.Class]rate.Preset{
		rate.ClassAuth:      {Limit: cfg.RateLimit.Auth.Limit, Window: cfg.RateLimit.Auth.Window},
		rate.ClassAPI:       {Limit: cfg.RateLimit.API.Limit, Window: cfg.RateLimit.API.Window},
		rate.ClassSensitive: {Limit: cfg.RateLimit.Sensitive.Limit, Window: cfg.RateLimit.Sensitive.Window},
		rate.ClassMFA:       {Limit: cfg.RateLimit.MFA.Limit, Window: cfg.RateLimit.MFA.Window},
	})

	// -------- CSRF STORE --------
	csrfStore := b.csrfStore
	if csrfStore == nil {
		if b.redis != nil {
			csrfStore = stores.NewRedisCSRFStore(b.redis, "acsrf")
		} else {
			csrfStore = stores.NewMemoryCSRFStore()
		}
	}
	engine.csrfStore = csrfStore

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.sweepDone = make(chan struct{})
	engine.sweepWG.Add(1)
	go engine.runCSRFSweeper()

	b.built = true

	return engine, nil
}

func (e *Engine) runCSRFSweeper() {
	defer e.sweepWG.Done()

	ticker := time.NewTicker(e.config.CSRF.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = e.csrfStore.Sweep(context.Background(), e.now())
		case <-e.sweepDone:
			return
		}
	}
}
