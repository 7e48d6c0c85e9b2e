package authcore

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/NLyne/authcore/internal"
	"github.com/NLyne/authcore/internal/rate"
)

const (
	verificationTokenBytes = 32
	defaultRole            = "user"
	maxEmailLength         = 254
)

// Register creates an unverified account and returns the plaintext
// verification token for out-of-band delivery. Only the token's hash is
// persisted, so a store dump cannot verify accounts.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	if !validEmail(email) {
		return nil, ErrEmailInvalid
	}

	if err := e.checkRate(ctx, rate.ClassSensitive, rateIdentifier(ctx, email), "register"); err != nil {
		return nil, err
	}

	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := e.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	token, err := internal.NewOpaqueToken(verificationTokenBytes)
	if err != nil {
		return nil, err
	}

	user, err := e.users.CreateUser(ctx, CreateUserInput{
		Email:               email,
		Name:                strings.TrimSpace(input.Name),
		PasswordHash:        hash,
		Role:                defaultRole,
		VerificationHash:    internal.HashToken(token),
		VerificationExpires: e.now().Add(e.config.Verification.TTL),
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventAccountDuplicate, false, "", ErrEmailExists, nil)
		}
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventAccountCreated, true, user.UserID, nil, nil)

	return &RegisterResult{
		UserID:            user.UserID,
		VerificationToken: token,
	}, nil
}

// VerifyEmail consumes a verification token. Unknown and expired tokens
// are indistinguishable to the caller.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrVerificationInvalid
	}

	user, err := e.users.GetUserByVerificationHash(ctx, internal.HashToken(token))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrVerificationInvalid
		}
		return err
	}

	if user.VerificationExpires == nil || !user.VerificationExpires.After(e.now()) {
		return ErrVerificationInvalid
	}

	if err := e.users.SetEmailVerified(ctx, user.UserID); err != nil {
		return err
	}

	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, auditEventEmailVerified, true, user.UserID, nil, nil)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.IndexByte(email[at+1:], '@') >= 0 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}

// validatePassword enforces the composition policy: at least eight
// characters with an upper-case letter, a lower-case letter, a digit, and
// a symbol.
func validatePassword(plaintext string) error {
	if len(plaintext) < 8 {
		return ErrPasswordPolicy
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return ErrPasswordPolicy
	}
	return nil
}
