// Package breaker implements the circuit breaker pattern for isolating
// failing operations. A breaker tracks CLOSED/OPEN/HALF_OPEN state from
// failure and success counters; while OPEN it rejects calls immediately
// without executing the wrapped operation.
//
// Execute never panics and never returns a bare error for rejections:
// failures and rejections are represented in the Outcome so callers can
// branch without exception-style handling.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rterrors "github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/errors"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/observability"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed allows all calls; consecutive failures are counted.
	StateClosed State = iota

	// StateOpen rejects all calls without executing the operation.
	StateOpen

	// StateHalfOpen allows calls through to probe for recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures a circuit breaker.
type Config struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that opens
	// the breaker while CLOSED.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays OPEN before the next
	// call probes HALF_OPEN. Evaluated lazily on the next call attempt,
	// not by a background timer.
	// Default: 30s
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive successes in
	// HALF_OPEN required to close the breaker.
	// Default: 2
	SuccessThreshold int

	// OperationTimeout bounds each execution. A timeout counts as a
	// failure for threshold purposes.
	// Default: 30s
	OperationTimeout time.Duration

	// OnStateChange is called after every state transition.
	OnStateChange func(name string, from, to State)

	// OnSuccess is called after every successful execution.
	OnSuccess func(name string)

	// OnFailure is called after every failed execution.
	OnFailure func(name string, err error)

	// Logger for state transitions. Nil disables logging.
	Logger *slog.Logger

	// Metrics records state transitions. Nil disables metrics.
	Metrics observability.MetricsRecorder
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	FailureThreshold: 5,
	RecoveryTimeout:  30 * time.Second,
	SuccessThreshold: 2,
	OperationTimeout: 30 * time.Second,
}

// Operation is a unit of work protected by the breaker.
type Operation func(ctx context.Context) (any, error)

// Outcome is the structured result of an Execute call.
type Outcome struct {
	// Executed is true if the operation ran.
	Executed bool

	// Rejected is true if the breaker refused the call while OPEN.
	Rejected bool

	// Value is the operation result when it ran successfully.
	Value any

	// Err is the operation error, if any.
	Err error

	// State is the breaker state after the call.
	State State
}

// Stats exposes breaker metrics. All counters are cumulative and
// monotonically non-decreasing; TimeInState resets on every transition.
type Stats struct {
	State                State
	TotalCalls           int64
	Successes            int64
	Failures             int64
	Rejected             int64
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	SuccessRate          float64
	FailureRate          float64
	TimeInState          time.Duration
	LastFailure          time.Time
	LastSuccess          time.Time
	LastTransition       time.Time
}

// Breaker is a process-local circuit breaker.
type Breaker struct {
	cfg Config

	mu             sync.Mutex
	state          State
	consecFails    int
	consecSuccess  int
	totalCalls     int64
	successes      int64
	failures       int64
	rejected       int64
	lastFailure    time.Time
	lastSuccess    time.Time
	lastTransition time.Time
}

// New creates a circuit breaker in the CLOSED state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig.RecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultConfig.OperationTimeout
	}

	return &Breaker{
		cfg:            cfg,
		state:          StateClosed,
		lastTransition: time.Now(),
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// State returns the current state without triggering lazy recovery.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op under the breaker's protection.
//
// While OPEN (and before RecoveryTimeout elapses) the call is rejected
// without side effects. A timed-out operation counts as a failure. A
// caller-cancelled context surfaces the cancellation without counting
// against the failure threshold.
func (b *Breaker) Execute(ctx context.Context, op Operation) Outcome {
	b.mu.Lock()
	b.totalCalls++

	// Lazy OPEN -> HALF_OPEN once the recovery timeout has elapsed.
	if b.state == StateOpen {
		if time.Since(b.lastTransition) >= b.cfg.RecoveryTimeout {
			b.transition(StateHalfOpen)
		} else {
			b.rejected++
			state := b.state
			b.mu.Unlock()
			return Outcome{Rejected: true, State: state}
		}
	}
	b.mu.Unlock()

	value, err := b.run(ctx, op)

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Caller cancellation, not an operation failure.
		return Outcome{Executed: true, Err: err, State: b.State()}
	}

	if err != nil {
		b.recordFailure(err)
		return Outcome{Executed: true, Err: err, State: b.State()}
	}

	b.recordSuccess()
	return Outcome{Executed: true, Value: value, State: b.State()}
}

// run executes op raced against the operation timeout and the caller context.
func (b *Breaker) run(ctx context.Context, op Operation) (any, error) {
	type result struct {
		value any
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := op(ctx)
		done <- result{value, err}
	}()

	timer := time.NewTimer(b.cfg.OperationTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		return nil, &rterrors.TimeoutError{
			Operation: b.cfg.Name,
			Duration:  b.cfg.OperationTimeout.String(),
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recordFailure updates counters and may open the breaker.
func (b *Breaker) recordFailure(err error) {
	b.mu.Lock()
	b.failures++
	b.consecFails++
	b.consecSuccess = 0
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.consecFails >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// Any failure while probing reopens immediately.
		b.transition(StateOpen)
	}
	b.mu.Unlock()

	if b.cfg.OnFailure != nil {
		b.cfg.OnFailure(b.cfg.Name, err)
	}
}

// recordSuccess updates counters and may close the breaker.
func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	b.successes++
	b.consecFails = 0
	b.lastSuccess = time.Now()

	if b.state == StateHalfOpen {
		b.consecSuccess++
		if b.consecSuccess >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
	b.mu.Unlock()

	if b.cfg.OnSuccess != nil {
		b.cfg.OnSuccess(b.cfg.Name)
	}
}

// transition moves to a new state. Caller must hold b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.lastTransition = time.Now()
	b.consecFails = 0
	b.consecSuccess = 0

	observability.LogBreakerTransition(b.cfg.Logger, b.cfg.Name, from.String(), to.String())
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.RecordBreakerState(context.Background(), b.cfg.Name, to.String())
	}
	if b.cfg.OnStateChange != nil {
		// Callbacks are best-effort; a panic here must not corrupt state.
		func() {
			defer func() { _ = recover() }()
			b.cfg.OnStateChange(b.cfg.Name, from, to)
		}()
	}
}

// ForceOpen manually opens the breaker.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateOpen)
}

// ForceClose manually closes the breaker.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

// Reset closes the breaker and clears all counters and metrics.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	// transition no-ops when already CLOSED, so clear the consecutive
	// counters here rather than relying on it.
	b.consecFails = 0
	b.consecSuccess = 0
	b.totalCalls = 0
	b.successes = 0
	b.failures = 0
	b.rejected = 0
	b.lastFailure = time.Time{}
	b.lastSuccess = time.Time{}
}

// Metrics returns a snapshot of breaker statistics.
func (b *Breaker) Metrics() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		State:                b.state,
		TotalCalls:           b.totalCalls,
		Successes:            b.successes,
		Failures:             b.failures,
		Rejected:             b.rejected,
		ConsecutiveFailures:  b.consecFails,
		ConsecutiveSuccesses: b.consecSuccess,
		TimeInState:          time.Since(b.lastTransition),
		LastFailure:          b.lastFailure,
		LastSuccess:          b.lastSuccess,
		LastTransition:       b.lastTransition,
	}
	executed := b.successes + b.failures
	if executed > 0 {
		stats.SuccessRate = float64(b.successes) / float64(executed)
		stats.FailureRate = float64(b.failures) / float64(executed)
	}
	return stats
}

// String describes the breaker for debugging.
func (b *Breaker) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("breaker(%s, %s)", b.cfg.Name, b.state)
}
