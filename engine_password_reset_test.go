package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

const newPassword = "Xyz98765?"

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	token, err := engine.ForgotPassword(context.Background(), "nobody@x.com")
	if err != nil {
		t.Fatalf("expected no error for unknown email, got %v", err)
	}
	if token != "" {
		t.Fatal("expected empty token for unknown email")
	}
}

func TestResetPasswordRoundTrip(t *testing.T) {
	engine, _, refresh := newTestEngine(t, nil)
	registerVerifiedUser(t, engine, "a@x.com")
	loginUser(t, engine, "a@x.com", false)

	token, err := engine.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected reset token for known email")
	}

	if err := engine.ResetPassword(context.Background(), token, newPassword); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Every session built on the old credential is gone.
	if refresh.count() != 0 {
		t.Fatalf("expected sessions revoked after reset, got %d", refresh.count())
	}

	if _, err := engine.Login(context.Background(), LoginInput{
		Email:    "a@x.com",
		Password: testPassword,
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := engine.Login(context.Background(), LoginInput{
		Email:    "a@x.com",
		Password: newPassword,
	}); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
}

func TestResetTokenSingleUse(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	registerVerifiedUser(t, engine, "a@x.com")

	token, err := engine.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if err := engine.ResetPassword(context.Background(), token, newPassword); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if err := engine.ResetPassword(context.Background(), token, "Other123?"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid on second use, got %v", err)
	}
}

func TestResetTokenExpired(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	registerVerifiedUser(t, engine, "a@x.com")
	clock := setEngineClock(engine, time.Now())

	token, err := engine.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}

	*clock = clock.Add(2 * time.Hour)

	if err := engine.ResetPassword(context.Background(), token, newPassword); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid for expired token, got %v", err)
	}
}

func TestResetTokenReplacedByNewRequest(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	registerVerifiedUser(t, engine, "a@x.com")

	first, err := engine.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	second, err := engine.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}

	if err := engine.ResetPassword(context.Background(), first, newPassword); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected superseded token rejected, got %v", err)
	}
	if err := engine.ResetPassword(context.Background(), second, newPassword); err != nil {
		t.Fatalf("expected latest token accepted, got %v", err)
	}
}

func TestResetPasswordRejectsReuse(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	registerVerifiedUser(t, engine, "a@x.com")

	token, err := engine.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}

	if err := engine.ResetPassword(context.Background(), token, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}

func TestResetPasswordClearsLockout(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	registerVerifiedUser(t, engine, "a@x.com")

	for i := 0; i < 5; i++ {
		_, _ = engine.Login(context.Background(), LoginInput{
			Email:    "a@x.com",
			Password: "WrongPass1!",
		})
	}

	token, err := engine.ForgotPassword(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if err := engine.ResetPassword(context.Background(), token, newPassword); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := engine.Login(context.Background(), LoginInput{
		Email:    "a@x.com",
		Password: newPassword,
	}); err != nil {
		t.Fatalf("expected login after reset clears lockout, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	engine, _, refresh := newTestEngine(t, nil)
	userID := registerVerifiedUser(t, engine, "a@x.com")
	loginUser(t, engine, "a@x.com", false)

	if err := engine.ChangePassword(context.Background(), userID, "WrongPass1!", newPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong current password, got %v", err)
	}
	if err := engine.ChangePassword(context.Background(), userID, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := engine.ChangePassword(context.Background(), userID, testPassword, "weak"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	if err := engine.ChangePassword(context.Background(), userID, testPassword, newPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if refresh.count() != 0 {
		t.Fatalf("expected sessions revoked after change, got %d", refresh.count())
	}
	if _, err := engine.Login(context.Background(), LoginInput{
		Email:    "a@x.com",
		Password: newPassword,
	}); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
}
