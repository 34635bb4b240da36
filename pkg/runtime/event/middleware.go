package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/breaker"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/observability"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/retry"
)

// RetryMiddleware retries the wrapped handler on transient failures using
// bounded exponential backoff. The event type names the operation in the
// exhaustion error.
func RetryMiddleware(cfg retry.Config) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, evt Event) (Result, error) {
			return retry.Do(ctx, cfg, evt.Type, func(ctx context.Context) (Result, error) {
				return next.Handle(ctx, evt)
			})
		})
	}
}

// RejectedError is returned when a circuit breaker rejects an invocation
// without running the handler.
type RejectedError struct {
	Breaker string
	State   breaker.State
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("circuit breaker %q rejected call (state %s)", e.Breaker, e.State)
}

// BreakerMiddleware runs the wrapped handler through a circuit breaker.
// Rejections surface as RejectedError so pipelines can tell a fast-failed
// call from a handler failure.
func BreakerMiddleware(b *breaker.Breaker) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, evt Event) (Result, error) {
			outcome := b.Execute(ctx, func(ctx context.Context) (any, error) {
				return next.Handle(ctx, evt)
			})
			if outcome.Rejected {
				return Done(), &RejectedError{Breaker: b.Name(), State: outcome.State}
			}
			if outcome.Err != nil {
				return Done(), outcome.Err
			}
			result, _ := outcome.Value.(Result)
			return result, nil
		})
	}
}

// RecoveryMiddleware converts handler panics into errors so a single
// misbehaving handler cannot take down the dispatch loop.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, evt Event) (result Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					result = Done()
					err = fmt.Errorf("handler panic processing %q: %v", evt.Type, r)
				}
			}()
			return next.Handle(ctx, evt)
		})
	}
}

// LoggingMiddleware logs each handler invocation with its duration and
// outcome. A nil logger disables it.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, evt Event) (Result, error) {
			if logger == nil {
				return next.Handle(ctx, evt)
			}
			elapsedMs := observability.TimedOperation()
			result, err := next.Handle(ctx, evt)
			if err != nil {
				logger.Error("handler failed",
					"event_id", evt.ID,
					"event_type", evt.Type,
					"error", err.Error(),
				)
			} else {
				logger.Debug("handler complete",
					"event_id", evt.ID,
					"event_type", evt.Type,
					"duration_ms", elapsedMs(),
				)
			}
			return result, err
		})
	}
}
