package event

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/observability"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/retry"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/task"
)

// Config configures the event processor.
type Config struct {
	// MaxDepth bounds re-entrant dispatch recursion.
	// Default: 10
	MaxDepth int

	// MaxChainLength bounds the event-chain tracker.
	// Default: 20
	MaxChainLength int

	// BatchSize is the threshold above which matched handlers are chunked
	// and each chunk executed concurrently. At or below the threshold,
	// handlers run strictly sequentially in registration order.
	// Default: 100
	BatchSize int

	// HandlerTimeout bounds each handler invocation. Zero disables.
	HandlerTimeout time.Duration

	// CleanupInterval is how often inactive and stale handlers are swept.
	// Zero disables the sweep.
	CleanupInterval time.Duration

	// StaleThreshold is how long an unused handler survives sweeps.
	// Default: 30m
	StaleThreshold time.Duration

	// HistorySize is the capacity of the dispatch history ring.
	// Default: 256
	HistorySize int

	// EnableObservability wraps each dispatch in a trace span. The span is
	// a pass-through side effect and never alters control flow.
	EnableObservability bool

	// PipelineMiddleware is composed once per handler invocation
	// (e.g., retry, circuit breaker).
	PipelineMiddleware []Middleware

	// HandlerMiddleware is composed once at registration time and baked
	// into the stored handler, so it applies uniformly to all invocations.
	HandlerMiddleware []Middleware

	// Logger for dispatch events. Nil disables logging.
	Logger *slog.Logger

	// Spans manages trace spans when EnableObservability is set.
	Spans observability.SpanManager

	// Metrics records dispatch and handler metrics. Nil disables.
	Metrics observability.MetricsRecorder

	// OnError is called for isolated handler failures in batch mode.
	OnError func(evt Event, handlerID string, err error)
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	MaxDepth:       10,
	MaxChainLength: 20,
	BatchSize:      100,
	StaleThreshold: 30 * time.Minute,
	HistorySize:    256,
}

// Registration is the handle returned when a handler is registered.
type Registration struct {
	id       string
	handler  Handler
	active   atomic.Bool
	lastUsed atomic.Int64 // unix nanos
}

// ID returns the registration's identity.
func (r *Registration) ID() string {
	return r.id
}

// Deactivate flags the handler for removal by the next cleanup sweep.
// A deactivated handler no longer matches events.
func (r *Registration) Deactivate() {
	r.active.Store(false)
}

// patternEntry pairs a compiled pattern with its registration.
type patternEntry struct {
	pattern *regexp.Regexp
	reg     *Registration
}

// Processor dispatches events to registered handlers.
type Processor struct {
	cfg Config

	mu        sync.RWMutex
	exact     map[string][]*Registration
	wildcards []*Registration
	patterns  []*patternEntry

	history *history
	sweeper *task.Ticker
	closed  atomic.Bool
}

// NewProcessor creates an event processor and starts its cleanup sweep if
// configured.
func NewProcessor(cfg Config) *Processor {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig.MaxDepth
	}
	if cfg.MaxChainLength <= 0 {
		cfg.MaxChainLength = DefaultConfig.MaxChainLength
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultConfig.StaleThreshold
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig.HistorySize
	}

	p := &Processor{
		cfg:     cfg,
		exact:   make(map[string][]*Registration),
		history: newHistory(cfg.HistorySize),
	}
	if cfg.CleanupInterval > 0 {
		p.sweeper = task.Every(cfg.CleanupInterval, p.cleanup)
	}
	return p
}

// newRegistration wraps a handler with the registration-time middleware.
func (p *Processor) newRegistration(h Handler) *Registration {
	reg := &Registration{
		id:      uuid.New().String(),
		handler: Chain(h, p.cfg.HandlerMiddleware...),
	}
	reg.active.Store(true)
	reg.lastUsed.Store(time.Now().UnixNano())
	return reg
}

// RegisterHandler registers a handler for an exact event type.
// Handlers for one type run in registration order.
func (p *Processor) RegisterHandler(eventType string, h Handler) *Registration {
	reg := p.newRegistration(h)
	p.mu.Lock()
	p.exact[eventType] = append(p.exact[eventType], reg)
	p.mu.Unlock()
	return reg
}

// RegisterWildcardHandler registers a handler that matches every event type.
func (p *Processor) RegisterWildcardHandler(h Handler) *Registration {
	reg := p.newRegistration(h)
	p.mu.Lock()
	p.wildcards = append(p.wildcards, reg)
	p.mu.Unlock()
	return reg
}

// RegisterPatternHandler registers a handler for event types matching the
// pattern.
func (p *Processor) RegisterPatternHandler(pattern *regexp.Regexp, h Handler) *Registration {
	reg := p.newRegistration(h)
	p.mu.Lock()
	p.patterns = append(p.patterns, &patternEntry{pattern: pattern, reg: reg})
	p.mu.Unlock()
	return reg
}

// HandlerCount returns the number of live registrations across all indices.
func (p *Processor) HandlerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := len(p.wildcards) + len(p.patterns)
	for _, regs := range p.exact {
		count += len(regs)
	}
	return count
}

// History returns the most recent dispatched events, oldest first.
func (p *Processor) History() []HistoryEntry {
	return p.history.list()
}

// dispatchState tracks one branch of a re-entrant dispatch chain. States are
// derived, never mutated, so concurrently batched handlers branch safely.
type dispatchState struct {
	depth         int
	chain         chainRing
	correlationID string
	start         time.Time
}

// advance derives the state for dispatching evt, enforcing depth, chain
// capacity, and loop invariants before any middleware runs.
func (p *Processor) advance(parent *dispatchState, evt Event) (*dispatchState, error) {
	if parent == nil {
		chain, _ := newChainRing(p.cfg.MaxChainLength).push(evt.Type)
		return &dispatchState{
			depth:         1,
			chain:         chain,
			correlationID: evt.Metadata.CorrelationID,
			start:         time.Now(),
		}, nil
	}

	if parent.depth+1 > p.cfg.MaxDepth {
		return nil, &DepthError{EventType: evt.Type, Depth: parent.depth + 1, Max: p.cfg.MaxDepth}
	}
	// A repeated type anywhere in the chain is a loop. The initial event
	// alone (chain length 1) is exempt by construction: it cannot repeat.
	if parent.chain.contains(evt.Type) {
		return nil, &LoopError{EventType: evt.Type, Chain: parent.chain.snapshot()}
	}
	chain, ok := parent.chain.push(evt.Type)
	if !ok {
		return nil, &ChainLengthError{EventType: evt.Type, Length: parent.chain.len() + 1, Max: p.cfg.MaxChainLength}
	}
	return &dispatchState{
		depth:         parent.depth + 1,
		chain:         chain,
		correlationID: parent.correlationID,
		start:         parent.start,
	}, nil
}

// ProcessEvent dispatches an event to all matching handlers. Follow-up
// events returned by handlers are dispatched recursively before this call
// returns, so their side effects are visible to the caller.
func (p *Processor) ProcessEvent(ctx context.Context, evt Event) error {
	if retry.CostFromContext(ctx) == nil {
		ctx = retry.WithCostTracker(ctx, &retry.CostTracker{})
	}
	return p.dispatch(ctx, evt, nil)
}

// dispatch runs one branch of the chain.
func (p *Processor) dispatch(ctx context.Context, evt Event, parent *dispatchState) error {
	st, err := p.advance(parent, evt)
	if err != nil {
		observability.LogDispatchError(p.cfg.Logger, evt.ID, evt.Type, err)
		return err
	}

	p.history.record(evt)
	observability.LogDispatchStart(p.cfg.Logger, evt.ID, evt.Type, st.correlationID)

	var span trace.Span
	if p.cfg.EnableObservability && p.cfg.Spans != nil {
		ctx, span = p.cfg.Spans.StartDispatchSpan(ctx, evt.Type, evt.ID)
	}

	start := time.Now()
	matched := p.match(evt.Type)
	err = p.runHandlers(ctx, evt, st, matched)

	if span != nil {
		p.cfg.Spans.EndSpanWithError(span, err)
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordDispatch(ctx, evt.Type, time.Since(start), err)
	}
	if err != nil {
		observability.LogDispatchError(p.cfg.Logger, evt.ID, evt.Type, err)
		return err
	}
	observability.LogDispatchComplete(p.cfg.Logger, evt.ID,
		float64(time.Since(start).Milliseconds()), len(matched))
	return nil
}

// match resolves handlers for an event type: exact-type handlers first, then
// wildcards, then matching pattern handlers. All matched handlers run
// (fan-out), not first-match-wins. The returned slice is a snapshot: index
// mutation after this call does not affect the current dispatch.
func (p *Processor) match(eventType string) []*Registration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := time.Now().UnixNano()
	matched := make([]*Registration, 0, len(p.exact[eventType])+len(p.wildcards))

	for _, reg := range p.exact[eventType] {
		if reg.active.Load() {
			reg.lastUsed.Store(now)
			matched = append(matched, reg)
		}
	}
	for _, reg := range p.wildcards {
		if reg.active.Load() {
			reg.lastUsed.Store(now)
			matched = append(matched, reg)
		}
	}
	for _, entry := range p.patterns {
		if entry.reg.active.Load() && entry.pattern.MatchString(eventType) {
			entry.reg.lastUsed.Store(now)
			matched = append(matched, entry.reg)
		}
	}
	return matched
}

// runHandlers executes matched handlers sequentially below the batch
// threshold, or in concurrently executed chunks above it. Sequential
// failures propagate and stop subsequent handlers; batched failures are
// isolated and only logged.
func (p *Processor) runHandlers(ctx context.Context, evt Event, st *dispatchState, matched []*Registration) error {
	if len(matched) == 0 {
		return nil
	}

	if len(matched) <= p.cfg.BatchSize {
		for _, reg := range matched {
			if err := p.invoke(ctx, evt, st, reg); err != nil {
				return &HandlerError{
					EventID:   evt.ID,
					EventType: evt.Type,
					HandlerID: reg.id,
					Err:       err,
					Timestamp: time.Now(),
				}
			}
		}
		return nil
	}

	for offset := 0; offset < len(matched); offset += p.cfg.BatchSize {
		end := offset + p.cfg.BatchSize
		if end > len(matched) {
			end = len(matched)
		}

		var g errgroup.Group
		for _, reg := range matched[offset:end] {
			g.Go(func() error {
				if err := p.invoke(ctx, evt, st, reg); err != nil {
					observability.LogHandlerError(p.cfg.Logger, evt.Type, reg.id, err)
					if p.cfg.OnError != nil {
						p.cfg.OnError(evt, reg.id, err)
					}
				}
				return nil
			})
		}
		// Each chunk completes before the next starts.
		_ = g.Wait()
	}
	return nil
}

// invoke runs one handler wrapped in the per-call pipeline middleware, then
// recursively dispatches any follow-up event through the same chain state.
func (p *Processor) invoke(ctx context.Context, evt Event, st *dispatchState, reg *Registration) error {
	handler := Chain(reg.handler, p.cfg.PipelineMiddleware...)

	if p.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.HandlerTimeout)
		defer cancel()
	}

	var span trace.Span
	if p.cfg.EnableObservability && p.cfg.Spans != nil {
		ctx, span = p.cfg.Spans.StartHandlerSpan(ctx, reg.id)
	}

	start := time.Now()
	result, err := handler.Handle(ctx, evt)

	if span != nil {
		p.cfg.Spans.EndSpanWithError(span, err)
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordHandler(ctx, evt.Type, time.Since(start), err)
	}
	if err != nil {
		return err
	}

	if next, ok := result.Next(); ok {
		if logger := observability.EnrichLogger(p.cfg.Logger, evt.ID, evt.Type, st.depth); logger != nil {
			logger.Debug("handler re-emitted follow-up", slog.String("next_type", next.Type))
		}
		if p.cfg.EnableObservability && p.cfg.Spans != nil {
			p.cfg.Spans.AddSpanEvent(ctx, "re-emit", attribute.String("event.type", next.Type))
		}
		return p.dispatch(ctx, next, st)
	}
	return nil
}

// cleanup removes deactivated and stale registrations from all three
// indices independently.
func (p *Processor) cleanup() {
	cutoff := time.Now().Add(-p.cfg.StaleThreshold).UnixNano()
	live := func(reg *Registration) bool {
		return reg.active.Load() && reg.lastUsed.Load() >= cutoff
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for eventType, regs := range p.exact {
		kept := regs[:0]
		for _, reg := range regs {
			if live(reg) {
				kept = append(kept, reg)
			}
		}
		if len(kept) == 0 {
			delete(p.exact, eventType)
		} else {
			p.exact[eventType] = kept
		}
	}

	keptWildcards := p.wildcards[:0]
	for _, reg := range p.wildcards {
		if live(reg) {
			keptWildcards = append(keptWildcards, reg)
		}
	}
	p.wildcards = keptWildcards

	keptPatterns := p.patterns[:0]
	for _, entry := range p.patterns {
		if live(entry.reg) {
			keptPatterns = append(keptPatterns, entry)
		}
	}
	p.patterns = keptPatterns
}

// Close stops the cleanup sweep. Dispatch remains possible after Close.
func (p *Processor) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}
	if p.sweeper != nil {
		p.sweeper.Cancel()
	}
	return nil
}
