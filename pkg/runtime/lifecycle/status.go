// Package lifecycle implements the per-(tenant, agent) state machine that
// drives agent start/stop/pause/resume/schedule transitions, validated
// against an allowed-transition table.
package lifecycle

import "fmt"

// Status is an agent's lifecycle state.
type Status string

// Agent lifecycle states. Stopped is terminal until a new start or schedule;
// Error is reachable from any transitional state when its work fails.
const (
	StatusStopped   Status = "stopped"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusPausing   Status = "pausing"
	StatusPaused    Status = "paused"
	StatusResuming  Status = "resuming"
	StatusStopping  Status = "stopping"
	StatusScheduled Status = "scheduled"
	StatusError     Status = "error"
)

// allowedTransitions is the full transition table. A transition absent here
// is invalid and rejected without mutating the entry.
var allowedTransitions = map[Status][]Status{
	StatusStopped:   {StatusStarting, StatusScheduled},
	StatusStarting:  {StatusRunning, StatusError},
	StatusRunning:   {StatusPausing, StatusStopping},
	StatusPausing:   {StatusPaused, StatusError},
	StatusPaused:    {StatusResuming, StatusStopping},
	StatusResuming:  {StatusRunning, StatusError},
	StatusStopping:  {StatusStopped, StatusError},
	StatusScheduled: {StatusStarting, StatusStopping, StatusScheduled},
	StatusError:     {StatusStarting, StatusStopping},
}

// CanTransition reports whether from→to is an allowed transition.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError indicates an invalid lifecycle transition was attempted.
// The entry's status is unchanged.
type TransitionError struct {
	TenantID  string
	AgentName string
	From      Status
	To        Status
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid lifecycle transition %s -> %s for agent %s/%s",
		e.From, e.To, e.TenantID, e.AgentName)
}

// ConflictError indicates a start was attempted while the agent is already
// active.
type ConflictError struct {
	TenantID  string
	AgentName string
	Status    Status
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("agent %s/%s already active (status %s)",
		e.TenantID, e.AgentName, e.Status)
}
