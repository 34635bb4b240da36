// Package observability provides production-grade observability features
// for the agent runtime: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Observability is a pass-through side effect: failures here must never
// alter control flow or error semantics in the components that call in.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds dispatch context to a logger.
// Returns a new logger with event_id, event_type, and depth fields.
func EnrichLogger(logger *slog.Logger, eventID, eventType string, depth int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.Int("depth", depth),
	)
}

// LogDispatchStart logs the start of a top-level event dispatch.
func LogDispatchStart(logger *slog.Logger, eventID, eventType, correlationID string) {
	if logger == nil {
		return
	}
	logger.Debug("event dispatch starting",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("correlation_id", correlationID),
	)
}

// LogDispatchComplete logs successful event dispatch completion.
func LogDispatchComplete(logger *slog.Logger, eventID string, durationMs float64, handlers int) {
	if logger == nil {
		return
	}
	logger.Debug("event dispatch completed",
		slog.String("event_id", eventID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("handlers_invoked", handlers),
	)
}

// LogDispatchError logs event dispatch failure.
func LogDispatchError(logger *slog.Logger, eventID, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Error("event dispatch failed",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogHandlerError logs an isolated handler failure (batch mode).
func LogHandlerError(logger *slog.Logger, eventType, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler failed",
		slog.String("event_type", eventType),
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// LogStatusTransition logs a lifecycle status transition.
func LogStatusTransition(logger *slog.Logger, tenantID, agentName, from, to, reason string) {
	if logger == nil {
		return
	}
	logger.Info("agent status transition",
		slog.String("tenant_id", tenantID),
		slog.String("agent_name", agentName),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("reason", reason),
	)
}

// LogBreakerTransition logs a circuit breaker state change.
func LogBreakerTransition(logger *slog.Logger, name, from, to string) {
	if logger == nil {
		return
	}
	logger.Warn("circuit breaker state change",
		slog.String("breaker", name),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogSnapshotError logs a snapshot save/load failure (non-fatal).
func LogSnapshotError(logger *slog.Logger, tenantID, agentName, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("snapshot operation failed",
		slog.String("tenant_id", tenantID),
		slog.String("agent_name", agentName),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
