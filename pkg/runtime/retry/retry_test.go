package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	rterrors "github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/errors"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/observability"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/retry"
)

func transientErr() error {
	return rterrors.Transient(errors.New("busy"), "test")
}

func fastConfig(maxRetries int) retry.Config {
	return retry.Config{
		MaxRetries:    maxRetries,
		MaxElapsed:    time.Second,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      5 * time.Millisecond,
	}
}

func TestDelayFormula(t *testing.T) {
	cfg := retry.Config{
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      5 * time.Second,
	}

	// Without jitter the n-th backoff is exactly
	// min(initial * factor^n, max).
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		5 * time.Second, // capped
		5 * time.Second,
	}
	for n, expected := range want {
		if got := cfg.Delay(n); got != expected {
			t.Errorf("Delay(%d): expected %s, got %s", n, expected, got)
		}
	}
}

func TestJitterBounds(t *testing.T) {
	cfg := retry.Config{
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      time.Second,
		Jitter:        true,
	}

	// Full jitter samples uniformly from [0, computed delay].
	base := cfg.Delay(2)
	for i := 0; i < 100; i++ {
		if d := cfg.Jittered(2); d < 0 || d > base {
			t.Fatalf("jittered delay %s outside [0, %s]", d, base)
		}
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	result, err := retry.Do(context.Background(), fastConfig(5), "op",
		func(ctx context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", transientErr()
			}
			return "done", nil
		})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Errorf("expected result %q, got %q", "done", result)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	attempts := 0
	_, err := retry.Do(context.Background(), fastConfig(2), "flaky",
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, transientErr()
		})

	var exceeded *retry.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", err)
	}
	// MaxRetries=2 means 1 initial attempt + 2 retries.
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if exceeded.Attempts != 3 {
		t.Errorf("expected Attempts=3, got %d", exceeded.Attempts)
	}
	if exceeded.Op != "flaky" {
		t.Errorf("expected op name, got %q", exceeded.Op)
	}
	if !errors.Is(err, exceeded.Err) {
		t.Error("expected last error to be wrapped")
	}
}

func TestDoNonRetryablePropagatesUnmodified(t *testing.T) {
	permanent := rterrors.Permanent(errors.New("bad request"), "test")
	attempts := 0

	_, err := retry.Do(context.Background(), fastConfig(5), "op",
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, permanent
		})

	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error unmodified, got %v", err)
	}
	var exceeded *retry.ExceededError
	if errors.As(err, &exceeded) {
		t.Error("non-retryable errors must not be wrapped in ExceededError")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts)
	}
}

func TestDoCodeAllowList(t *testing.T) {
	cfg := fastConfig(2)
	cfg.RetryableCodes = []string{"RATE_LIMITED"}

	attempts := 0
	retry.Do(context.Background(), cfg, "op",
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, &rterrors.CodedError{Code: "RATE_LIMITED"}
		})
	if attempts != 3 {
		t.Errorf("expected listed code to retry, got %d attempts", attempts)
	}

	// An unlisted code is not retried once allow-lists are configured.
	attempts = 0
	retry.Do(context.Background(), cfg, "op",
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, &rterrors.CodedError{Code: "FORBIDDEN"}
		})
	if attempts != 1 {
		t.Errorf("expected unlisted code not to retry, got %d attempts", attempts)
	}
}

func TestDoStatusAllowList(t *testing.T) {
	cfg := fastConfig(1)
	cfg.RetryableStatusCodes = []int{503}

	attempts := 0
	retry.Do(context.Background(), cfg, "op",
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, &rterrors.HTTPError{StatusCode: 503}
		})
	if attempts != 2 {
		t.Errorf("expected 503 to retry, got %d attempts", attempts)
	}
}

func TestDoPredicateOverrides(t *testing.T) {
	cfg := fastConfig(1)
	cfg.Predicate = func(err error) bool { return false }

	attempts := 0
	retry.Do(context.Background(), cfg, "op",
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, transientErr()
		})
	if attempts != 1 {
		t.Errorf("expected predicate to veto retries, got %d attempts", attempts)
	}
}

func TestDoCancellationAbortsWait(t *testing.T) {
	cfg := retry.Config{
		MaxRetries:    5,
		InitialDelay:  10 * time.Second, // would block without cancellation
		BackoffFactor: 2.0,
		MaxDelay:      10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := retry.Do(ctx, cfg, "op",
		func(ctx context.Context) (int, error) {
			return 0, transientErr()
		})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation did not abort the backoff wait promptly (%s)", elapsed)
	}
}

func TestDoWallClockBudget(t *testing.T) {
	cfg := retry.Config{
		MaxRetries:    1000,
		MaxElapsed:    30 * time.Millisecond,
		InitialDelay:  10 * time.Millisecond,
		BackoffFactor: 1.0,
		MaxDelay:      10 * time.Millisecond,
	}

	_, err := retry.Do(context.Background(), cfg, "op",
		func(ctx context.Context) (int, error) {
			return 0, transientErr()
		})

	var exceeded *retry.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError from wall-clock budget, got %v", err)
	}
	if exceeded.Attempts >= 1000 {
		t.Errorf("expected wall clock to cut retries short, got %d attempts", exceeded.Attempts)
	}
}

func TestDoBackoffNeverOutlivesWallClockBudget(t *testing.T) {
	cfg := retry.Config{
		MaxRetries:    5,
		MaxElapsed:    50 * time.Millisecond,
		InitialDelay:  10 * time.Second, // would sleep far past the budget
		BackoffFactor: 2.0,
		MaxDelay:      10 * time.Second,
	}

	attempts := 0
	start := time.Now()
	_, err := retry.Do(context.Background(), cfg, "op",
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, transientErr()
		})

	var exceeded *retry.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", err)
	}
	// The backoff would not fit in the remaining budget, so no retry runs
	// and Do returns without sleeping out the delay.
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("backoff wait outlived the wall-clock budget (%s)", elapsed)
	}
}

// retryRecorder counts RecordRetry calls; everything else is a no-op.
type retryRecorder struct {
	observability.NoopMetrics
	retries atomic.Int64
}

func (r *retryRecorder) RecordRetry(ctx context.Context, eventType string) {
	r.retries.Add(1)
}

func TestDoRecordsRetryMetrics(t *testing.T) {
	recorder := &retryRecorder{}
	cfg := fastConfig(5)
	cfg.Metrics = recorder

	attempts := 0
	retry.Do(context.Background(), cfg, "op",
		func(ctx context.Context) (int, error) {
			attempts++
			if attempts < 3 {
				return 0, transientErr()
			}
			return 1, nil
		})

	if got := recorder.retries.Load(); got != 2 {
		t.Errorf("expected 2 recorded retries, got %d", got)
	}
}

func TestCostTracker(t *testing.T) {
	tracker := &retry.CostTracker{}
	ctx := retry.WithCostTracker(context.Background(), tracker)

	if got := retry.CostFromContext(ctx); got != tracker {
		t.Fatal("expected tracker roundtrip through context")
	}

	attempts := 0
	retry.Do(ctx, fastConfig(5), "op",
		func(ctx context.Context) (int, error) {
			attempts++
			if attempts < 4 {
				return 0, transientErr()
			}
			return 1, nil
		})

	if got := tracker.Retries.Load(); got != 3 {
		t.Errorf("expected 3 recorded retries, got %d", got)
	}
}
