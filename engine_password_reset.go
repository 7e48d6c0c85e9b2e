package authcore

import (
	"context"
	"errors"

	"github.com/NLyne/authcore/internal"
	"github.com/NLyne/authcore/internal/rate"
)

const resetTokenBytes = 32

// ForgotPassword starts a password reset. For a known account it returns
// the plaintext reset token for out-of-band delivery; for an unknown email
// it returns an empty token and no error, so the response never reveals
// whether an account exists.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	normalized := normalizeEmail(email)
	if err := e.checkRate(ctx, rate.ClassSensitive, rateIdentifier(ctx, normalized), "forgot_password"); err != nil {
		return "", err
	}

	user, err := e.users.GetUserByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}

	token, err := internal.NewOpaqueToken(resetTokenBytes)
	if err != nil {
		return "", err
	}

	// A new request replaces any outstanding challenge.
	expires := e.now().Add(e.config.PasswordReset.TTL)
	if err := e.users.SetResetToken(ctx, user.UserID, internal.HashToken(token), expires); err != nil {
		return "", err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.UserID, nil, nil)
	return token, nil
}

// ResetPassword consumes a reset token and installs the new password. On
// success the challenge is discarded, every refresh token the account holds
// is revoked, and any lockout is cleared.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrResetInvalid
	}

	if err := e.checkRate(ctx, rate.ClassSensitive, rateIdentifier(ctx, internal.HashTokenHex(token)), "reset_password"); err != nil {
		return err
	}

	user, err := e.users.GetUserByResetHash(ctx, internal.HashToken(token))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", ErrResetInvalid, nil)
			return ErrResetInvalid
		}
		return err
	}

	if user.ResetExpires == nil || !user.ResetExpires.After(e.now()) {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.UserID, ErrResetInvalid, nil)
		return ErrResetInvalid
	}

	if err := e.installNewPassword(ctx, user, newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.UserID, err, nil)
		return err
	}

	if err := e.users.ClearResetToken(ctx, user.UserID); err != nil {
		return err
	}
	if err := e.users.ClearLockout(ctx, user.UserID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetConfirm)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.UserID, nil, nil)
	return nil
}

// ChangePassword rotates the password of an authenticated user after
// re-verifying the current one. All other sessions are revoked.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.checkRate(ctx, rate.ClassSensitive, userID, "change_password"); err != nil {
		return err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.passwordHash.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, auditEventPasswordChange, false, userID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.installNewPassword(ctx, user, newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordChange, false, userID, err, nil)
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, userID, nil, nil)
	return nil
}

// installNewPassword validates policy and reuse, persists the hash, and
// revokes every outstanding session.
func (e *Engine) installNewPassword(ctx context.Context, user UserRecord, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	same, err := e.passwordHash.Verify(newPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if same {
		return ErrPasswordReuse
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		return err
	}

	// A credential change invalidates every session built on the old one.
	return e.refreshTokens.DeleteAllForUser(ctx, user.UserID)
}
