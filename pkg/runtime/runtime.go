// Package runtime assembles the agent runtime: the event processor, circuit
// breakers, retry middleware, the concurrent state store, and the agent
// lifecycle state machine, sharing one logger and one set of observability
// sinks. A Runtime is constructed once at process start and passed by
// reference to everything that needs it; there are no package-level
// singletons.
package runtime

import (
	"context"
	"log/slog"

	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/breaker"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/config"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/event"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/lifecycle"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/observability"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/retry"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/snapshot"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/state"
)

// Options configures a Runtime. Zero-value fields fall back to defaults:
// no logging, noop observability, in-memory snapshots.
type Options struct {
	// Logger is shared by every component. Nil disables logging.
	Logger *slog.Logger

	// Config supplies component configs by section: "processor", "retry",
	// "breaker", "state". Missing sections use defaults.
	Config config.Config

	// Snapshots persists lifecycle pause/resume snapshots.
	// Nil means an in-memory store.
	Snapshots snapshot.Store

	// EnableObservability turns on OTel spans and metrics. Off, the
	// runtime uses noop sinks.
	EnableObservability bool

	// Notifier receives lifecycle status-changed notifications.
	Notifier lifecycle.Notifier

	// PipelineMiddleware wraps every handler invocation.
	PipelineMiddleware []event.Middleware

	// HandlerMiddleware is baked into handlers at registration.
	HandlerMiddleware []event.Middleware
}

// Runtime owns the wired components. Construct with New, dispose with Close.
type Runtime struct {
	logger  *slog.Logger
	spans   observability.SpanManager
	metrics observability.MetricsRecorder

	processor *event.Processor
	breakers  *breaker.Registry
	store     *state.NamespacedStore
	snapshots snapshot.Store
	lifecycle *lifecycle.Manager
	retryCfg  retry.Config
}

// New constructs a Runtime from options.
func New(opts Options) *Runtime {
	spans := observability.SpanManager(observability.NoopSpanManager{})
	metrics := observability.MetricsRecorder(observability.NoopMetrics{})
	if opts.EnableObservability {
		spans = observability.NewSpanManager()
		metrics = observability.NewMetricsRecorder()
	}

	snapshots := opts.Snapshots
	if snapshots == nil {
		snapshots = snapshot.NewMemoryStore()
	}

	processorCfg := opts.Config.Section("processor").ProcessorConfig()
	processorCfg.EnableObservability = opts.EnableObservability
	processorCfg.PipelineMiddleware = opts.PipelineMiddleware
	processorCfg.HandlerMiddleware = opts.HandlerMiddleware
	processorCfg.Logger = opts.Logger
	processorCfg.Spans = spans
	processorCfg.Metrics = metrics

	breakerCfg := opts.Config.Section("breaker").BreakerConfig()
	breakerCfg.Logger = opts.Logger
	breakerCfg.Metrics = metrics

	retryCfg := opts.Config.Section("retry").RetryConfig()
	retryCfg.Metrics = metrics

	return &Runtime{
		logger:    opts.Logger,
		spans:     spans,
		metrics:   metrics,
		processor: event.NewProcessor(processorCfg),
		breakers:  breaker.NewRegistry(breakerCfg),
		store:     state.NewNamespacedStore(opts.Config.Section("state").StateConfig()),
		snapshots: snapshots,
		lifecycle: lifecycle.NewManager(lifecycle.Config{
			Snapshots: snapshots,
			Logger:    opts.Logger,
			Notifier:  opts.Notifier,
		}),
		retryCfg: retryCfg,
	}
}

// Processor returns the event processor.
func (r *Runtime) Processor() *event.Processor {
	return r.processor
}

// Breakers returns the circuit breaker registry.
func (r *Runtime) Breakers() *breaker.Registry {
	return r.breakers
}

// State returns the namespaced state store.
func (r *Runtime) State() *state.NamespacedStore {
	return r.store
}

// Snapshots returns the snapshot store.
func (r *Runtime) Snapshots() snapshot.Store {
	return r.snapshots
}

// Lifecycle returns the agent lifecycle manager.
func (r *Runtime) Lifecycle() *lifecycle.Manager {
	return r.lifecycle
}

// RetryConfig returns the runtime's retry configuration, for building
// retry middleware or direct retry.Do calls.
func (r *Runtime) RetryConfig() retry.Config {
	return r.retryCfg
}

// Logger returns the shared logger, which may be nil.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// Close disposes the runtime: stops all lifecycle entries, halts background
// sweeps, and releases store resources. Errors from individual components
// are logged, and the first one is returned.
func (r *Runtime) Close(ctx context.Context) error {
	r.lifecycle.Dispose(ctx)

	var firstErr error
	for _, close := range []func() error{
		r.processor.Close,
		r.store.Close,
		r.snapshots.Close,
	} {
		if err := close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if r.logger != nil {
				r.logger.Warn("runtime close", "error", err.Error())
			}
		}
	}
	return firstErr
}
