package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	authcore "github.com/NLyne/authcore"
)

var (
	// ErrNilMeter is an exported constant or variable used by the authentication engine.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is an exported constant or variable used by the authentication engine.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	id   authcore.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{authcore.MetricLoginSuccess, "authcore_login_success_total", "Successful login attempts."},
	{authcore.MetricLoginFailure, "authcore_login_failure_total", "Failed login attempts."},
	{authcore.MetricAccountLocked, "authcore_account_locked_total", "Accounts locked by the failure threshold."},
	{authcore.MetricRefreshSuccess, "authcore_refresh_success_total", "Successful refresh rotations."},
	{authcore.MetricRefreshFailure, "authcore_refresh_failure_total", "Rejected refresh attempts."},
	{authcore.MetricLogout, "authcore_logout_total", "Logout operations."},
	{authcore.MetricValidateSuccess, "authcore_validate_success_total", "Accepted access tokens."},
	{authcore.MetricValidateFailure, "authcore_validate_failure_total", "Rejected access tokens."},
	{authcore.MetricRegisterSuccess, "authcore_register_success_total", "Created accounts."},
	{authcore.MetricRegisterDuplicate, "authcore_register_duplicate_total", "Registrations rejected as duplicate."},
	{authcore.MetricEmailVerified, "authcore_email_verified_total", "Completed email verifications."},
	{authcore.MetricPasswordResetRequest, "authcore_password_reset_request_total", "Password reset requests."},
	{authcore.MetricPasswordResetConfirm, "authcore_password_reset_confirm_total", "Completed password resets."},
	{authcore.MetricPasswordChangeSuccess, "authcore_password_change_success_total", "Completed password changes."},
	{authcore.MetricMFARequired, "authcore_mfa_required_total", "Logins halted awaiting a second factor."},
	{authcore.MetricTOTPSuccess, "authcore_totp_success_total", "Successful TOTP verifications."},
	{authcore.MetricTOTPFailure, "authcore_totp_failure_total", "Failed TOTP verifications."},
	{authcore.MetricTOTPEnabled, "authcore_totp_enabled_total", "TOTP enablements."},
	{authcore.MetricTOTPDisabled, "authcore_totp_disabled_total", "TOTP disablements."},
	{authcore.MetricBackupCodeUsed, "authcore_backup_code_used_total", "Successful backup-code authentications."},
	{authcore.MetricBackupCodeFailed, "authcore_backup_code_failed_total", "Failed backup-code authentications."},
	{authcore.MetricBackupCodesRegenerated, "authcore_backup_codes_regenerated_total", "Backup-code set regenerations."},
	{authcore.MetricRateLimitHit, "authcore_rate_limit_hit_total", "Requests denied by rate limiting."},
	{authcore.MetricCSRFIssued, "authcore_csrf_issued_total", "Issued anti-forgery tokens."},
	{authcore.MetricCSRFRejected, "authcore_csrf_rejected_total", "Rejected anti-forgery tokens."},
}

type observedCounter struct {
	id         authcore.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter defines a public type used by authcore APIs.
//
// Exporter instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	auditDropped metric.Int64ObservableCounter
}

// NewExporter describes the newexporter operation and its observable behavior.
//
// NewExporter may return an error when input validation, dependency calls, or security checks fail.
// NewExporter does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewExporter(meter metric.Meter, engine *authcore.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource describes the newexporterfromsource operation and its observable behavior.
//
// NewExporterFromSource may return an error when input validation, dependency calls, or security checks fail.
// NewExporterFromSource does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(counterDefs)),
	}

	observables := make([]metric.Observable, 0, len(counterDefs)+1)

	for _, def := range counterDefs {
		ins, err := meter.Int64ObservableCounter(def.name, metric.WithDescription(def.help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.id, instrument: ins})
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"authcore_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
