package retry

import (
	"context"
	"sync/atomic"
)

// CostTracker accumulates retry overhead for a dispatch chain so downstream
// consumers can observe it without re-deriving counts.
type CostTracker struct {
	// Retries is the number of retry attempts made under this tracker.
	Retries atomic.Int64
}

type costKey struct{}

// WithCostTracker attaches a tracker to the context.
func WithCostTracker(ctx context.Context, tracker *CostTracker) context.Context {
	return context.WithValue(ctx, costKey{}, tracker)
}

// CostFromContext returns the tracker attached to the context, or nil.
func CostFromContext(ctx context.Context) *CostTracker {
	tracker, _ := ctx.Value(costKey{}).(*CostTracker)
	return tracker
}
