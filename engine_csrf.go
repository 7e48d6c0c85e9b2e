package authcore

import (
	"context"
	"errors"
	"net/http"

	"github.com/NLyne/authcore/internal"
	"github.com/NLyne/authcore/internal/stores"
)

const csrfTokenBytes = 32

// IssueCSRFToken mints a single-use anti-forgery token bound to the given
// session. The token is opaque; all state lives server-side.
func (e *Engine) IssueCSRFToken(ctx context.Context, sessionID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if sessionID == "" {
		return "", ErrCSRFInvalid
	}

	token, err := internal.NewOpaqueToken(csrfTokenBytes)
	if err != nil {
		return "", err
	}

	if err := e.csrfStore.Save(ctx, token, sessionID, e.config.CSRF.TTL, e.now()); err != nil {
		return "", err
	}

	e.metricInc(MetricCSRFIssued)
	return token, nil
}

// ValidateCSRFToken checks that the token exists, is unexpired, and belongs
// to the session — without spending it. Use it for idempotent requests; the
// mutating request must go through [Engine.ConsumeCSRFToken].
func (e *Engine) ValidateCSRFToken(ctx context.Context, token, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" || sessionID == "" {
		return ErrCSRFInvalid
	}

	if err := e.csrfStore.Validate(ctx, token, sessionID, e.now()); err != nil {
		return e.csrfFailure(ctx, sessionID, err)
	}
	return nil
}

// ConsumeCSRFToken spends the token: it is deleted if and only if it is
// live and bound to the session, and a second consume of the same token
// fails. Wrong-session attempts leave the token intact.
func (e *Engine) ConsumeCSRFToken(ctx context.Context, token, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" || sessionID == "" {
		return ErrCSRFInvalid
	}

	if err := e.csrfStore.Consume(ctx, token, sessionID, e.now()); err != nil {
		return e.csrfFailure(ctx, sessionID, err)
	}
	return nil
}

// csrfFailure collapses store-level outcomes into the single caller-visible
// error so a forger cannot distinguish "unknown token" from "wrong session".
func (e *Engine) csrfFailure(ctx context.Context, sessionID string, err error) error {
	if !errors.Is(err, stores.ErrCSRFNotFound) && !errors.Is(err, stores.ErrCSRFMismatch) {
		return err
	}

	e.metricInc(MetricCSRFRejected)
	e.emitAudit(ctx, auditEventCSRFRejected, false, "", ErrCSRFInvalid, func() map[string]string {
		return map[string]string{"session_id": sessionID}
	})
	return ErrCSRFInvalid
}

// CSRFTokenFromRequest extracts the anti-forgery token from an HTTP
// request, checking the configured header first, then the form field, then
// the query parameter.
func (e *Engine) CSRFTokenFromRequest(r *http.Request) string {
	if e == nil || r == nil {
		return ""
	}

	if token := r.Header.Get(e.config.CSRF.HeaderName); token != "" {
		return token
	}
	if token := r.PostFormValue(e.config.CSRF.FieldName); token != "" {
		return token
	}
	return r.URL.Query().Get(e.config.CSRF.QueryName)
}
