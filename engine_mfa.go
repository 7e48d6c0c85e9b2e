package authcore

import (
	"context"
	"time"

	"github.com/NLyne/authcore/internal"
	"github.com/NLyne/authcore/internal/rate"
)

// verifySecondFactor checks the TOTP code or backup code supplied at login
// for an MFA-enabled account. Second-factor attempts draw from their own,
// stricter rate bucket keyed by user: six-digit codes brute-force orders of
// magnitude faster than passwords.
func (e *Engine) verifySecondFactor(ctx context.Context, user UserRecord, input LoginInput, now time.Time) error {
	if input.TOTPCode == "" && input.BackupCode == "" {
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, false, user.UserID, ErrMFARequired, nil)
		return ErrMFARequired
	}

	if err := e.checkRate(ctx, rate.ClassMFA, user.UserID, "mfa"); err != nil {
		return err
	}

	if input.TOTPCode != "" {
		ok, _, err := e.totp.VerifyCode(user.TOTPSecret, input.TOTPCode, now)
		if err != nil {
			return err
		}
		if !ok {
			e.metricInc(MetricTOTPFailure)
			e.emitAudit(ctx, auditEventTOTPFailure, false, user.UserID, ErrTOTPInvalid, nil)
			return ErrTOTPInvalid
		}
		e.metricInc(MetricTOTPSuccess)
		e.emitAudit(ctx, auditEventTOTPSuccess, true, user.UserID, nil, nil)
		return nil
	}

	canonical := internal.CanonicalizeBackupCode(input.BackupCode)
	hash := internal.BackupCodeHash(user.UserID, canonical)
	consumed, err := e.users.ConsumeBackupCode(ctx, user.UserID, hash)
	if err != nil {
		return err
	}
	if !consumed {
		e.metricInc(MetricBackupCodeFailed)
		e.emitAudit(ctx, auditEventBackupCodeFailed, false, user.UserID, ErrBackupCodeInvalid, nil)
		return ErrBackupCodeInvalid
	}

	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, auditEventBackupCodeUsed, true, user.UserID, nil, nil)
	return nil
}

/*
====================================
TOTP LIFECYCLE
====================================
*/

// SetupTOTP generates a pending secret for the user and returns it with
// the otpauth:// provisioning URI. MFA stays disabled until the user
// proves possession via [Engine.EnableTOTP].
func (e *Engine) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(ctx, rate.ClassSensitive, userID, "totp_setup"); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	if err := e.users.SetTOTPSecret(ctx, user.UserID, raw); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, user.UserID, nil, nil)

	return &TOTPSetup{
		Secret: encoded,
		URI:    e.totp.ProvisionURI(encoded, user.Email),
	}, nil
}

// EnableTOTP confirms the pending secret with a live code, flips the MFA
// flag, and returns the freshly generated backup codes. The plaintext codes
// are shown exactly once; only their hashes are stored.
func (e *Engine) EnableTOTP(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(ctx, rate.ClassMFA, userID, "totp_enable"); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.TOTPSecret) == 0 {
		return nil, ErrTOTPNotConfigured
	}

	ok, _, err := e.totp.VerifyCode(user.TOTPSecret, code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, user.UserID, ErrTOTPInvalid, nil)
		return nil, ErrTOTPInvalid
	}

	if err := e.users.EnableTOTP(ctx, user.UserID); err != nil {
		return nil, err
	}

	codes, err := e.replaceBackupCodes(ctx, user.UserID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, user.UserID, nil, nil)
	return codes, nil
}

// DisableTOTP turns MFA off after re-verifying the account password. The
// secret and every backup code are discarded.
func (e *Engine) DisableTOTP(ctx context.Context, userID, currentPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.checkRate(ctx, rate.ClassSensitive, userID, "totp_disable"); err != nil {
		return err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return ErrTOTPNotConfigured
	}

	ok, err := e.passwordHash.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := e.users.DisableTOTP(ctx, user.UserID); err != nil {
		return err
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, user.UserID, nil, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole backup-code set after
// re-verifying the account password. Unused codes from the previous set
// stop working.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, currentPassword string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.checkRate(ctx, rate.ClassSensitive, userID, "backup_regenerate"); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TOTPEnabled {
		return nil, ErrTOTPNotConfigured
	}

	ok, err := e.passwordHash.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	codes, err := e.replaceBackupCodes(ctx, user.UserID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricBackupCodesRegenerated)
	return codes, nil
}

func (e *Engine) replaceBackupCodes(ctx context.Context, userID string) ([]string, error) {
	count := e.config.TOTP.BackupCodeCount
	length := e.config.TOTP.BackupCodeLength

	codes := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		records = append(records, BackupCodeRecord{
			Hash: internal.BackupCodeHash(userID, code),
		})
	}

	if err := e.users.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, userID, nil, nil)
	return codes, nil
}
