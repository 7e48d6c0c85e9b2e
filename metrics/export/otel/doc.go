// Package otel bridges the engine's internal counters to OpenTelemetry as
// observable counters. The engine stays metrics-system-agnostic; this
// package polls MetricsSnapshot on each collection cycle via a registered
// callback, so there is no per-operation overhead beyond the engine's own
// atomic increments.
package otel
