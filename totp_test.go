package authcore

import (
	"testing"
	"time"
)

// RFC 4226 appendix D vectors, secret "12345678901234567890".
func TestHOTPReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")
	want := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}

	for counter, expected := range want {
		code, err := hotpCode(secret, int64(counter), 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode counter %d failed: %v", counter, err)
		}
		if code != expected {
			t.Fatalf("counter %d: expected %s, got %s", counter, expected, code)
		}
	}
}

// RFC 6238 appendix B vectors (SHA1, 8 digits, 30s step).
func TestTOTPReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")
	cases := []struct {
		unix int64
		want string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
	}

	for _, tc := range cases {
		code, err := hotpCode(secret, tc.unix/30, 8, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode at %d failed: %v", tc.unix, err)
		}
		if code != tc.want {
			t.Fatalf("time %d: expected %s, got %s", tc.unix, tc.want, code)
		}
	}
}

func TestVerifyCodeSkewWindow(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})
	secret := []byte("12345678901234567890")
	now := time.Unix(3000, 0) // counter 100

	codeAt := func(counter int64) string {
		code, err := hotpCode(secret, counter, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode failed: %v", err)
		}
		return code
	}

	for _, counter := range []int64{99, 100, 101} {
		ok, matched, err := m.VerifyCode(secret, codeAt(counter), now)
		if err != nil {
			t.Fatalf("VerifyCode failed: %v", err)
		}
		if !ok {
			t.Fatalf("expected counter %d inside skew window", counter)
		}
		if matched != counter {
			t.Fatalf("expected matched counter %d, got %d", counter, matched)
		}
	}

	for _, counter := range []int64{98, 102} {
		ok, _, err := m.VerifyCode(secret, codeAt(counter), now)
		if err != nil {
			t.Fatalf("VerifyCode failed: %v", err)
		}
		if ok {
			t.Fatalf("expected counter %d outside skew window", counter)
		}
	}
}

func TestVerifyCodeZeroSkew(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 0})
	secret := []byte("12345678901234567890")
	now := time.Unix(3000, 0)

	prev, err := hotpCode(secret, 99, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	ok, _, err := m.VerifyCode(secret, prev, now)
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if ok {
		t.Fatal("expected previous step rejected with zero skew")
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})
	secret := []byte("12345678901234567890")
	now := time.Unix(3000, 0)

	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		ok, _, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("code %q: unexpected error %v", code, err)
		}
		if ok {
			t.Fatalf("code %q: expected rejection", code)
		}
	}
}

func TestVerifyCodeEmptySecret(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})

	if _, _, err := m.VerifyCode(nil, "123456", time.Unix(3000, 0)); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestHOTPUnsupportedAlgorithm(t *testing.T) {
	if _, err := hotpCode([]byte("secret"), 0, 6, "MD5"); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestGenerateSecretIsUnique(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})

	raw1, enc1, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	raw2, enc2, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if len(raw1) != 20 || len(raw2) != 20 {
		t.Fatalf("expected 20-byte secrets, got %d and %d", len(raw1), len(raw2))
	}
	if enc1 == enc2 {
		t.Fatal("expected distinct secrets")
	}
}
