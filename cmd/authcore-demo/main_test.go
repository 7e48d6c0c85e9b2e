package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authcore "github.com/NLyne/authcore"
)

func TestWriteAuthErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", &authcore.RateLimitError{RetryAfter: time.Minute}, http.StatusTooManyRequests},
		{"bad credentials", &authcore.CredentialsError{AttemptsRemaining: 4}, http.StatusUnauthorized},
		{"locked", &authcore.LockoutError{RetryAfter: 15 * time.Minute}, http.StatusUnauthorized},
		{"mfa required", authcore.ErrMFARequired, http.StatusUnauthorized},
		{"refresh invalid", authcore.ErrRefreshInvalid, http.StatusUnauthorized},
		{"duplicate email", authcore.ErrEmailExists, http.StatusConflict},
		{"weak password", authcore.ErrPasswordPolicy, http.StatusBadRequest},
		{"malformed email", authcore.ErrEmailInvalid, http.StatusBadRequest},
		{"unexpected", errors.New("store exploded"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAuthError(rec, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
