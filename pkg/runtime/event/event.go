// Package event provides the event processor at the heart of the agent
// runtime: handler registration with exact, wildcard, and pattern matching,
// pipeline and handler middleware composition, re-entrant dispatch with depth
// and loop tracking, batched handler execution, and a bounded dispatch
// history for introspection.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable unit of work flowing through the processor.
// Once dispatched it must not be modified; a handler that needs to continue
// the chain returns a new event via ReEmit.
type Event struct {
	// ID uniquely identifies this event.
	ID string

	// Type routes the event to handlers (e.g., "review.requested").
	Type string

	// Data is the opaque payload.
	Data any

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Metadata carries correlation fields.
	Metadata Metadata
}

// Metadata contains correlation fields for an event.
type Metadata struct {
	// CorrelationID groups related events across a dispatch chain.
	CorrelationID string `json:"correlationId,omitempty"`

	// TraceID links the event to a distributed trace.
	TraceID string `json:"traceId,omitempty"`

	// Extra holds additional string metadata.
	Extra map[string]string `json:"extra,omitempty"`
}

// wireEvent is the JSON wire/log form:
// {id, type, data, ts: epoch-ms, metadata}.
type wireEvent struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Data     any      `json:"data,omitempty"`
	TS       int64    `json:"ts"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// MarshalJSON implements json.Marshaler using the wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		ID:       e.ID,
		Type:     e.Type,
		Data:     e.Data,
		TS:       e.Timestamp.UnixMilli(),
		Metadata: e.Metadata,
	})
}

// UnmarshalJSON implements json.Unmarshaler using the wire form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.Type = w.Type
	e.Data = w.Data
	e.Timestamp = time.UnixMilli(w.TS)
	e.Metadata = w.Metadata
	return nil
}

// Option configures event creation.
type Option func(*Event)

// WithID sets a specific event ID (default: auto-generated UUID).
func WithID(id string) Option {
	return func(e *Event) {
		e.ID = id
	}
}

// WithCorrelationID sets the correlation ID.
func WithCorrelationID(id string) Option {
	return func(e *Event) {
		e.Metadata.CorrelationID = id
	}
}

// WithTraceID sets the trace ID.
func WithTraceID(id string) Option {
	return func(e *Event) {
		e.Metadata.TraceID = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) {
		e.Timestamp = t
	}
}

// New creates a new event with the given type and payload.
// If no correlation ID is provided, the event ID is used as the root.
func New(eventType string, data any, opts ...Option) Event {
	e := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.Metadata.CorrelationID == "" {
		e.Metadata.CorrelationID = e.ID
	}
	return e
}

// NewFromParent creates a new event caused by a parent event.
// It inherits the parent's correlation and trace IDs.
func NewFromParent(parent Event, eventType string, data any, opts ...Option) Event {
	base := []Option{
		WithCorrelationID(parent.Metadata.CorrelationID),
		WithTraceID(parent.Metadata.TraceID),
	}
	return New(eventType, data, append(base, opts...)...)
}

// Result is what a handler returns: either Done (nothing further) or
// ReEmit (a follow-up event to dispatch through the same depth and loop
// tracking machinery). The explicit tagged branch replaces duck-typed
// inspection of handler return values.
type Result struct {
	next *Event
}

// Done indicates the handler produced no follow-up event.
func Done() Result {
	return Result{}
}

// ReEmit indicates the handler produced a follow-up event to dispatch.
func ReEmit(evt Event) Result {
	return Result{next: &evt}
}

// Next returns the follow-up event and whether one exists.
func (r Result) Next() (Event, bool) {
	if r.next == nil {
		return Event{}, false
	}
	return *r.next, true
}

// Handler processes events.
type Handler interface {
	// Handle processes an event and returns Done or ReEmit.
	Handle(ctx context.Context, evt Event) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) (Result, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) (Result, error) {
	return f(ctx, evt)
}

// Middleware wraps handlers to add cross-cutting concerns.
//
// Two disjoint kinds are configured on the processor: handler middleware is
// composed once at registration time and baked into the stored handler;
// pipeline middleware is composed once per invocation and may vary with
// per-call context.
type Middleware func(next Handler) Handler

// Chain applies middleware in order, with the first middleware outermost.
func Chain(handler Handler, middleware ...Middleware) Handler {
	// Apply in reverse order so first middleware is outermost
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}
