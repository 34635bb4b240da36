package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records agent runtime metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records a top-level event dispatch with its duration
	// and error status.
	RecordDispatch(ctx context.Context, eventType string, duration time.Duration, err error)

	// RecordHandler records a single handler invocation.
	RecordHandler(ctx context.Context, eventType string, duration time.Duration, err error)

	// RecordRetry records a retry attempt for an event type.
	RecordRetry(ctx context.Context, eventType string)

	// RecordBreakerState records a circuit breaker state transition.
	RecordBreakerState(ctx context.Context, name, state string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	dispatches      metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	dispatchErrors  metric.Int64Counter
	handlerCalls    metric.Int64Counter
	handlerLatency  metric.Float64Histogram
	retries         metric.Int64Counter
	breakerChanges  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("agentruntime")

	dispatches, err := meter.Int64Counter("runtime.event.dispatches",
		metric.WithDescription("Number of top-level event dispatches"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("runtime.event.dispatch_latency_ms",
		metric.WithDescription("Event dispatch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	dispatchErrors, err := meter.Int64Counter("runtime.event.dispatch_errors",
		metric.WithDescription("Number of failed event dispatches"),
	)
	if err != nil {
		return nil, err
	}

	handlerCalls, err := meter.Int64Counter("runtime.handler.invocations",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("runtime.handler.latency_ms",
		metric.WithDescription("Handler invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("runtime.retry.attempts",
		metric.WithDescription("Number of retry attempts"),
	)
	if err != nil {
		return nil, err
	}

	breakerChanges, err := meter.Int64Counter("runtime.breaker.transitions",
		metric.WithDescription("Number of circuit breaker state transitions"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		dispatches:      dispatches,
		dispatchLatency: dispatchLatency,
		dispatchErrors:  dispatchErrors,
		handlerCalls:    handlerCalls,
		handlerLatency:  handlerLatency,
		retries:         retries,
		breakerChanges:  breakerChanges,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordDispatch records a top-level event dispatch.
func (m *otelMetrics) RecordDispatch(ctx context.Context, eventType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
	}

	m.dispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.dispatchLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.dispatchErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordHandler records a single handler invocation.
func (m *otelMetrics) RecordHandler(ctx context.Context, eventType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
		attribute.Bool("success", err == nil),
	}
	m.handlerCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.handlerLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordRetry records a retry attempt.
func (m *otelMetrics) RecordRetry(ctx context.Context, eventType string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordBreakerState records a circuit breaker state transition.
func (m *otelMetrics) RecordBreakerState(ctx context.Context, name, state string) {
	m.breakerChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("state", state),
	))
}
