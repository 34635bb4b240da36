package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/breaker"
)

var errBoom = errors.New("boom")

func failing(ctx context.Context) (any, error) { return nil, errBoom }
func succeeding(ctx context.Context) (any, error) { return "ok", nil }

func newTestBreaker(failures, successes int, recovery time.Duration) *breaker.Breaker {
	return breaker.New(breaker.Config{
		Name:             "test",
		FailureThreshold: failures,
		SuccessThreshold: successes,
		RecoveryTimeout:  recovery,
		OperationTimeout: time.Second,
	})
}

func TestBreakerOpensOnThreshold(t *testing.T) {
	cb := newTestBreaker(3, 1, time.Hour)
	ctx := context.Background()

	// First two failures: still CLOSED.
	for i := 0; i < 2; i++ {
		cb.Execute(ctx, failing)
		if cb.State() != breaker.StateClosed {
			t.Fatalf("opened after %d failures, want 3", i+1)
		}
	}

	// Exactly the 3rd consecutive failure opens.
	cb.Execute(ctx, failing)
	if cb.State() != breaker.StateOpen {
		t.Fatalf("expected OPEN after 3rd failure, got %s", cb.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(3, 1, time.Hour)
	ctx := context.Background()

	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	cb.Execute(ctx, succeeding) // resets the consecutive counter
	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)

	if cb.State() != breaker.StateClosed {
		t.Fatalf("expected CLOSED after interleaved success, got %s", cb.State())
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	cb := newTestBreaker(1, 1, time.Hour)
	ctx := context.Background()

	cb.Execute(ctx, failing)
	if cb.State() != breaker.StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	executed := false
	outcome := cb.Execute(ctx, func(ctx context.Context) (any, error) {
		executed = true
		return nil, nil
	})

	if !outcome.Rejected {
		t.Error("expected rejection while OPEN")
	}
	if outcome.Executed || executed {
		t.Error("operation must not run while OPEN")
	}
	if outcome.Err != nil {
		t.Errorf("rejection is a structured result, not an error: %v", outcome.Err)
	}

	stats := cb.Metrics()
	if stats.Rejected != 1 {
		t.Errorf("expected 1 rejected call, got %d", stats.Rejected)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := newTestBreaker(1, 2, 20*time.Millisecond)
	ctx := context.Background()

	cb.Execute(ctx, failing)
	if cb.State() != breaker.StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	// Recovery is evaluated lazily on the next call, not by a timer.
	time.Sleep(30 * time.Millisecond)
	if cb.State() != breaker.StateOpen {
		t.Fatalf("state must not change without a call, got %s", cb.State())
	}

	outcome := cb.Execute(ctx, succeeding)
	if !outcome.Executed {
		t.Fatal("expected probe call to execute after recovery timeout")
	}
	if cb.State() != breaker.StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after first probe success, got %s", cb.State())
	}

	// Second consecutive success closes (SuccessThreshold=2).
	cb.Execute(ctx, succeeding)
	if cb.State() != breaker.StateClosed {
		t.Fatalf("expected CLOSED after success threshold, got %s", cb.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(1, 2, 10*time.Millisecond)
	ctx := context.Background()

	cb.Execute(ctx, failing)
	time.Sleep(20 * time.Millisecond)

	// Probe fails: reopen immediately regardless of failure threshold.
	cb.Execute(ctx, failing)
	if cb.State() != breaker.StateOpen {
		t.Fatalf("expected OPEN after half-open failure, got %s", cb.State())
	}
}

func TestBreakerOperationTimeout(t *testing.T) {
	cb := breaker.New(breaker.Config{
		Name:             "slow",
		FailureThreshold: 1,
		OperationTimeout: 10 * time.Millisecond,
	})

	outcome := cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})

	if outcome.Err == nil {
		t.Fatal("expected timeout error")
	}
	// Timeout counts as a failure.
	if cb.State() != breaker.StateOpen {
		t.Fatalf("expected timeout to open the breaker, got %s", cb.State())
	}
}

func TestBreakerCallerCancellationNotCounted(t *testing.T) {
	cb := newTestBreaker(1, 1, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := cb.Execute(ctx, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if outcome.Err == nil {
		t.Fatal("expected cancellation to surface")
	}
	if cb.State() != breaker.StateClosed {
		t.Fatalf("caller cancellation must not count as failure, got %s", cb.State())
	}
}

func TestBreakerStateChangeCallback(t *testing.T) {
	type change struct{ from, to breaker.State }
	var changes []change

	cb := breaker.New(breaker.Config{
		Name:             "observed",
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to breaker.State) {
			changes = append(changes, change{from, to})
		},
	})

	cb.Execute(context.Background(), failing)

	if len(changes) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(changes))
	}
	if changes[0].from != breaker.StateClosed || changes[0].to != breaker.StateOpen {
		t.Errorf("expected CLOSED->OPEN, got %s->%s", changes[0].from, changes[0].to)
	}
}

func TestBreakerReset(t *testing.T) {
	cb := newTestBreaker(1, 1, time.Hour)
	ctx := context.Background()

	cb.Execute(ctx, failing)
	cb.Execute(ctx, succeeding) // rejected while OPEN
	cb.Reset()

	if cb.State() != breaker.StateClosed {
		t.Fatalf("expected CLOSED after reset, got %s", cb.State())
	}
	stats := cb.Metrics()
	if stats.TotalCalls != 0 || stats.Failures != 0 || stats.Rejected != 0 {
		t.Errorf("expected cleared counters, got %+v", stats)
	}
}

func TestBreakerResetWhileClosedClearsConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(3, 1, time.Hour)
	ctx := context.Background()

	// Two failures short of the threshold; the breaker is still CLOSED.
	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	cb.Reset()

	if got := cb.Metrics().ConsecutiveFailures; got != 0 {
		t.Fatalf("expected reset to clear consecutive failures, got %d", got)
	}

	// A fresh failure after reset must not inherit the pre-reset streak.
	cb.Execute(ctx, failing)
	if cb.State() != breaker.StateClosed {
		t.Fatalf("expected CLOSED after 1 post-reset failure (threshold 3), got %s", cb.State())
	}
	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	if cb.State() != breaker.StateOpen {
		t.Fatalf("expected OPEN after 3 post-reset failures, got %s", cb.State())
	}
}

func TestBreakerStats(t *testing.T) {
	cb := newTestBreaker(5, 1, time.Hour)
	ctx := context.Background()

	cb.Execute(ctx, succeeding)
	cb.Execute(ctx, succeeding)
	cb.Execute(ctx, succeeding)
	cb.Execute(ctx, failing)

	stats := cb.Metrics()
	if stats.TotalCalls != 4 {
		t.Errorf("expected 4 calls, got %d", stats.TotalCalls)
	}
	if stats.SuccessRate != 0.75 {
		t.Errorf("expected success rate 0.75, got %f", stats.SuccessRate)
	}
	if stats.ConsecutiveFailures != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", stats.ConsecutiveFailures)
	}
}

func TestRegistryReturnsSameInstance(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 1})

	a := reg.Get("github")
	b := reg.Get("github")
	if a != b {
		t.Fatal("expected the same breaker instance for one name")
	}
	if a.Name() != "github" {
		t.Errorf("expected breaker named after registry key, got %q", a.Name())
	}

	reg.Get("jira")
	if len(reg.Names()) != 2 {
		t.Errorf("expected 2 breakers, got %d", len(reg.Names()))
	}

	a.Execute(context.Background(), failing)
	reg.ResetAll()
	if a.State() != breaker.StateClosed {
		t.Errorf("expected reset to close all breakers, got %s", a.State())
	}
}
