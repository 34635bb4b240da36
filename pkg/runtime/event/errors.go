package event

import (
	"fmt"
	"time"
)

// DepthError indicates the maximum re-entrant dispatch depth was exceeded.
// It aborts that event's processing branch.
type DepthError struct {
	EventType string
	Depth     int
	Max       int
}

// Error implements the error interface.
func (e *DepthError) Error() string {
	return fmt.Sprintf("max event depth exceeded dispatching %q (depth %d, max %d)",
		e.EventType, e.Depth, e.Max)
}

// ChainLengthError indicates the event chain grew past its capacity.
type ChainLengthError struct {
	EventType string
	Length    int
	Max       int
}

// Error implements the error interface.
func (e *ChainLengthError) Error() string {
	return fmt.Sprintf("event chain length exceeded dispatching %q (length %d, max %d)",
		e.EventType, e.Length, e.Max)
}

// LoopError indicates a dispatch chain revisited an event type, which would
// recurse forever.
type LoopError struct {
	EventType string
	Chain     []string
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	return fmt.Sprintf("event loop detected: type %q already in chain %v", e.EventType, e.Chain)
}

// HandlerError wraps a handler failure with dispatch context.
type HandlerError struct {
	EventID   string
	EventType string
	HandlerID string
	Err       error
	Timestamp time.Time
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed for event %s (%s): %v",
		e.HandlerID, e.EventID, e.EventType, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
