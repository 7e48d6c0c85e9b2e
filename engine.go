package authcore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NLyne/authcore/internal"
	"github.com/NLyne/authcore/internal/rate"
	"github.com/NLyne/authcore/internal/stores"
	"github.com/NLyne/authcore/jwt"
	"github.com/NLyne/authcore/password"
)

// Engine is the authentication core. All state lives in the injected
// stores; the Engine itself is safe for concurrent use and a single
// instance is meant to be shared across the whole process.
type Engine struct {
	config Config

	users         UserStore
	refreshTokens RefreshTokenStore

	passwordHash password.Hasher
	jwtManager   *jwt.Manager
	totp         *totpManager
	rateLimiter  *rate.Limiter
	csrfStore    stores.CSRFStore

	audit   *auditDispatcher
	metrics *Metrics

	// dummyHash is verified against on unknown-account logins so the
	// response time does not reveal whether the email exists.
	dummyHash string

	now func() time.Time

	sweepDone chan struct{}
	sweepWG   sync.WaitGroup
	closeOnce sync.Once
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// Metrics describes the metrics operation and its observable behavior.
//
// Metrics may return an error when input validation, dependency calls, or security checks fail.
// Metrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events the dispatcher discarded
// under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close stops the CSRF sweeper and drains the audit dispatcher. The engine
// must not be used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.sweepDone != nil {
			close(e.sweepDone)
			e.sweepWG.Wait()
		}
		e.audit.Close()
	})
}

// checkRate applies the preset for class to the given identifier and
// returns a RateLimitError when the budget is exhausted.
func (e *Engine) checkRate(ctx context.Context, class rate.Class, id, scope string) error {
	if !e.config.RateLimit.Enabled {
		return nil
	}
	result := e.rateLimiter.Check(ctx, class, id)
	if result.Allowed {
		return nil
	}
	e.emitRateLimit(ctx, scope, result.RetryAfter)
	return &RateLimitError{RetryAfter: result.RetryAfter}
}

// rateIdentifier keys auth-class buckets: the client IP when the transport
// provided one, otherwise the normalized email so the limit still applies.
// The fallback throttles per target account, not per source, so a caller
// spreading attempts across many emails is only contained when transports
// attach the peer address via [WithClientIP].
func rateIdentifier(ctx context.Context, email string) string {
	if ip := clientIPFromContext(ctx); ip != "" {
		return ip
	}
	return email
}

/*
====================================
LOGIN
====================================
*/

// Login verifies the credential pair, enforces lockout and the second
// factor, and on success issues a fresh token pair.
//
// Every credential failure surfaces as [ErrInvalidCredentials] regardless
// of whether the account exists; a locked account short-circuits before the
// password is even checked.
func (e *Engine) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	if err := e.checkRate(ctx, rate.ClassAuth, rateIdentifier(ctx, email), "login"); err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	now := e.now()

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a hash verification so unknown accounts cost the same
			// as a wrong password.
			_, _ = e.passwordHash.Verify(input.Password, e.dummyHash)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, nil)
			return nil, &CredentialsError{AttemptsRemaining: e.config.Lockout.Threshold - 1}
		}
		return nil, err
	}

	if user.LockoutUntil != nil && user.LockoutUntil.After(now) {
		retryAfter := user.LockoutUntil.Sub(now)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, ErrAccountLocked, nil)
		return nil, &LockoutError{RetryAfter: retryAfter}
	}

	ok, err := e.passwordHash.Verify(input.Password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.recordFailedLogin(ctx, user)
	}

	if !user.Active {
		// Deactivated accounts answer exactly like a bad password so
		// callers cannot probe account status. The audit trail keeps the
		// real reason; the failure counter is left untouched.
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, ErrAccountInactive, nil)
		remaining := e.config.Lockout.Threshold - user.FailedLogins - 1
		if remaining < 0 {
			remaining = 0
		}
		return nil, &CredentialsError{AttemptsRemaining: remaining}
	}

	if user.TOTPEnabled {
		if err := e.verifySecondFactor(ctx, user, input, now); err != nil {
			return nil, err
		}
	}

	// Successful authentication resets the failure counter.
	if user.FailedLogins > 0 || user.LockoutUntil != nil {
		if err := e.users.ClearLockout(ctx, user.UserID); err != nil {
			return nil, err
		}
	}

	e.maybeUpgradeHash(ctx, user, input.Password)

	pair, err := e.issueTokens(ctx, user, input.RememberMe)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, nil, nil)

	return &LoginResult{
		TokenPair: *pair,
		User: SessionUser{
			UserID:        user.UserID,
			Email:         user.Email,
			Name:          user.Name,
			Role:          user.Role,
			EmailVerified: user.EmailVerified,
			TOTPEnabled:   user.TOTPEnabled,
		},
	}, nil
}

// recordFailedLogin increments the failure counter and, when the threshold
// is reached, arms the lockout. The increment is atomic in the store, so
// concurrent failures against one account cannot skip the threshold.
func (e *Engine) recordFailedLogin(ctx context.Context, user UserRecord) error {
	e.metricInc(MetricLoginFailure)

	count, err := e.users.IncrementFailedLogins(ctx, user.UserID)
	if err != nil {
		return err
	}

	if count >= e.config.Lockout.Threshold {
		until := e.now().Add(e.config.Lockout.Duration)
		if err := e.users.SetLockout(ctx, user.UserID, until); err != nil {
			return err
		}
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, false, user.UserID, ErrAccountLocked, func() map[string]string {
			return map[string]string{"until": until.UTC().Format(time.RFC3339)}
		})
		return &LockoutError{RetryAfter: e.config.Lockout.Duration}
	}

	e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, ErrInvalidCredentials, nil)
	return &CredentialsError{AttemptsRemaining: e.config.Lockout.Threshold - count}
}

// maybeUpgradeHash transparently re-hashes the password when parameters
// have been strengthened since the stored hash was computed. Failures are
// ignored: the login already succeeded.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user UserRecord, plaintext string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.passwordHash.NeedsRehash(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.passwordHash.Hash(plaintext)
	if err != nil {
		return
	}
	_ = e.users.UpdatePasswordHash(ctx, user.UserID, newHash)
}

func (e *Engine) issueTokens(ctx context.Context, user UserRecord, rememberMe bool) (*TokenPair, error) {
	access, err := e.jwtManager.CreateAccess(user.UserID, user.Role, rememberMe)
	if err != nil {
		return nil, err
	}

	refresh, expiresAt, err := e.jwtManager.CreateRefresh(user.UserID, rememberMe)
	if err != nil {
		return nil, err
	}

	if err := e.refreshTokens.Save(ctx, RefreshTokenRecord{
		TokenHash: internal.HashToken(refresh),
		UserID:    user.UserID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

/*
====================================
REFRESH / LOGOUT
====================================
*/

// Refresh rotates a refresh token: the presented token is deleted and a
// new pair minted in one pass, so every refresh token is single-use.
//
// A token that verifies cryptographically but is absent from the store has
// already been spent; that is treated as reuse and every session of the
// subject is revoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	hash := internal.HashToken(refreshToken)
	record, err := e.refreshTokens.Find(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrRefreshInvalid) {
			// Signed, unexpired, but already spent: rotation reuse.
			_ = e.refreshTokens.DeleteAllForUser(ctx, claims.Subject)
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, claims.Subject, ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	now := e.now()
	if record.UserID != claims.Subject || !record.ExpiresAt.After(now) {
		_ = e.refreshTokens.Delete(ctx, hash)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, ErrRefreshInvalid, nil)
		return nil, ErrRefreshInvalid
	}

	// Spend the old token before minting the new one.
	if err := e.refreshTokens.Delete(ctx, hash); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}
	if !user.Active {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.UserID, ErrAccountInactive, nil)
		return nil, ErrRefreshInvalid
	}
	if user.LockoutUntil != nil && user.LockoutUntil.After(now) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.UserID, ErrAccountLocked, nil)
		return nil, ErrRefreshInvalid
	}

	pair, err := e.issueTokens(ctx, user, claims.RememberMe)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.UserID, nil, nil)
	return pair, nil
}

// Logout revokes the session behind the presented refresh token. It always
// succeeds from the caller's point of view: an invalid, expired, or
// already-revoked token leaves nothing to revoke. Expired records of other
// sessions are pruned opportunistically on the way.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	_ = e.refreshTokens.DeleteExpired(ctx, e.now())

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		return nil
	}

	_ = e.refreshTokens.Delete(ctx, internal.HashToken(refreshToken))
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.Subject, nil, nil)
	return nil
}

// LogoutAll revokes every refresh token the user holds.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.refreshTokens.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, nil, nil)
	return nil
}

/*
====================================
ACCESS VALIDATION
====================================
*/

// ValidateAccess verifies an access token and returns the authenticated
// subject. It is a pure token check: no store round-trip, so a disabled
// account keeps validating until its access token expires.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(ctx, rate.ClassAPI, clientIPFromContext(ctx), "validate"); err != nil {
		return nil, err
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenInvalid
	}

	e.metricInc(MetricValidateSuccess)
	return &AuthResult{
		UserID: claims.Subject,
		Role:   claims.Role,
	}, nil
}
