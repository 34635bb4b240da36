// Package retry provides bounded exponential backoff with full jitter for
// transient failures. It wraps handler invocations in the event processor's
// pipeline and is also usable standalone via Do.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	rterrors "github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/errors"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/observability"
)

// Config configures retry behavior.
type Config struct {
	// MaxRetries is the maximum number of retries after the initial attempt.
	MaxRetries int

	// MaxElapsed bounds total wall-clock time from the first attempt.
	// Zero means no wall-clock budget.
	MaxElapsed time.Duration

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// BackoffFactor is the multiplier applied per retry.
	BackoffFactor float64

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// Jitter enables full jitter: the actual delay is sampled uniformly
	// from [0, computed delay].
	Jitter bool

	// RetryableCodes is an allow-list of error codes considered transient.
	RetryableCodes []string

	// RetryableStatusCodes is an allow-list of HTTP status codes
	// considered transient.
	RetryableStatusCodes []int

	// Predicate optionally overrides all other classification. When set,
	// its verdict alone decides retryability.
	Predicate func(error) bool

	// Metrics records each retry attempt. Nil disables.
	Metrics observability.MetricsRecorder
}

// DefaultConfig is the standard retry configuration.
var DefaultConfig = Config{
	MaxRetries:           3,
	MaxElapsed:           30 * time.Second,
	InitialDelay:         100 * time.Millisecond,
	BackoffFactor:        2.0,
	MaxDelay:             5 * time.Second,
	Jitter:               true,
	RetryableCodes:       []string{"RATE_LIMITED", "TIMEOUT", "UNAVAILABLE"},
	RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
}

// Disabled is a configuration with retries turned off.
var Disabled = Config{MaxRetries: 0}

// Delay returns the backoff for the given retry (0-indexed), before jitter:
// min(InitialDelay * BackoffFactor^attempt, MaxDelay).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// Jittered returns the actual wait for the given retry. With Jitter enabled
// it is sampled uniformly from [0, Delay(attempt)]; otherwise it equals
// Delay(attempt).
func (c Config) Jittered(attempt int) time.Duration {
	d := c.Delay(attempt)
	if !c.Jitter || d <= 0 {
		return d
	}
	return time.Duration(rand.Float64() * float64(d))
}

// Retryable classifies an error. Classification order: custom predicate,
// error-code allow-list, HTTP-status allow-list. When no rule matches and no
// lists are configured, it falls back to category-based classification.
func (c Config) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if c.Predicate != nil {
		return c.Predicate(err)
	}

	var coded *rterrors.CodedError
	if errors.As(err, &coded) {
		for _, code := range c.RetryableCodes {
			if coded.Code == code {
				return true
			}
		}
	}

	var httpErr *rterrors.HTTPError
	if errors.As(err, &httpErr) {
		for _, status := range c.RetryableStatusCodes {
			if httpErr.StatusCode == status {
				return true
			}
		}
	}

	if len(c.RetryableCodes) == 0 && len(c.RetryableStatusCodes) == 0 {
		return rterrors.IsRetryable(err)
	}
	return false
}

// ExceededError indicates the retry budget was exhausted.
// It wraps the last underlying error.
type ExceededError struct {
	// Op names the retried operation (the event type when used as
	// processor middleware).
	Op string

	// Attempts is the total number of attempts made, including the first.
	Attempts int

	// Elapsed is the wall-clock time spent.
	Elapsed time.Duration

	// Err is the last underlying error.
	Err error
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("retry exceeded for %s after %d attempts (%s): %v",
		e.Op, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

// Unwrap returns the last underlying error.
func (e *ExceededError) Unwrap() error {
	return e.Err
}

// Do executes fn with retries according to cfg. op names the operation for
// error reporting. Non-retryable errors propagate immediately and unmodified.
// A cancelled context aborts a pending backoff wait promptly.
func Do[T any](ctx context.Context, cfg Config, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !cfg.Retryable(err) {
			return zero, err
		}

		// Budget checks: attempt count, then wall clock. The backoff wait
		// counts against the wall clock, so an attempt never begins after
		// the budget has expired.
		if attempt >= cfg.MaxRetries {
			return zero, &ExceededError{
				Op:       op,
				Attempts: attempt + 1,
				Elapsed:  time.Since(start),
				Err:      lastErr,
			}
		}
		wait := cfg.Jittered(attempt)
		if cfg.MaxElapsed > 0 && time.Since(start)+wait >= cfg.MaxElapsed {
			return zero, &ExceededError{
				Op:       op,
				Attempts: attempt + 1,
				Elapsed:  time.Since(start),
				Err:      lastErr,
			}
		}

		if tracker := CostFromContext(ctx); tracker != nil {
			tracker.Retries.Add(1)
		}
		if cfg.Metrics != nil {
			cfg.Metrics.RecordRetry(ctx, op)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}
}
