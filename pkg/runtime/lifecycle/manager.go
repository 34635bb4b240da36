package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/observability"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/registry"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/snapshot"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/task"
)

// Notification is the structured status-changed event emitted on every
// transition.
type Notification struct {
	TenantID  string
	AgentName string
	From      Status
	To        Status
	Reason    string
	Timestamp time.Time
}

// Notifier receives status-changed notifications. A panicking or failing
// notifier is logged and never rolls back the transition.
type Notifier func(Notification)

// Config configures a lifecycle manager.
type Config struct {
	// Snapshots persists pause/resume snapshots. Nil disables snapshotting.
	Snapshots snapshot.Store

	// Logger for status transitions. Nil disables logging.
	Logger *slog.Logger

	// Notifier receives structured status-changed notifications.
	Notifier Notifier
}

// ScheduleSpec describes when an agent should start.
type ScheduleSpec struct {
	// At is an absolute start time. Takes precedence over Cron.
	At time.Time

	// Cron is a cron-like expression. Parsing is a placeholder: any
	// non-empty expression resolves to one minute from now. Full cron
	// support is a future extension point.
	Cron string

	// Repeat re-arms the schedule after each firing.
	Repeat bool
}

// nextRun resolves the spec to a concrete firing time.
func (s ScheduleSpec) nextRun(now time.Time) (time.Time, error) {
	if !s.At.IsZero() {
		return s.At, nil
	}
	if s.Cron != "" {
		// Placeholder cron resolution: one minute from now.
		return now.Add(time.Minute), nil
	}
	return time.Time{}, fmt.Errorf("schedule requires an absolute time or cron expression")
}

// StopResult reports the outcome of a stop command.
type StopResult struct {
	// Stopped is false when the agent was not running to begin with.
	Stopped bool

	// Reason is "stopped" or "already stopped".
	Reason string
}

// ResumeOptions configures a resume command.
type ResumeOptions struct {
	// SnapshotID names the snapshot to restore. Empty means the snapshot
	// captured by the most recent pause, if any.
	SnapshotID string

	// Context is merged into the entry's context on resume.
	Context map[string]any
}

// EntryInfo is a read-only view of a registry entry.
type EntryInfo struct {
	TenantID    string
	AgentName   string
	Status      Status
	ExecutionID string
	SnapshotID  string
	NextRun     time.Time
}

// agentKey identifies a registry entry.
type agentKey struct {
	tenantID  string
	agentName string
}

// entry is the per-agent record: current status and associated resources.
type entry struct {
	status      Status
	executionID string
	snapshotID  string
	schedule    ScheduleSpec
	nextRun     time.Time
	timer       *task.Timer
	context     map[string]any
}

// Manager drives agent lifecycle transitions. All commands are serialized by
// a single mutex so every transition observes a consistent registry.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	entries *registry.Registry[agentKey, *entry]
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:     cfg,
		entries: registry.New[agentKey, *entry](),
	}
}

// transition validates and applies a status change, then logs and notifies.
// Notification failures never roll back the transition.
func (m *Manager) transition(k agentKey, e *entry, to Status, reason string) error {
	from := e.status
	if !CanTransition(from, to) {
		return &TransitionError{TenantID: k.tenantID, AgentName: k.agentName, From: from, To: to}
	}
	e.status = to

	observability.LogStatusTransition(m.cfg.Logger, k.tenantID, k.agentName,
		string(from), string(to), reason)
	m.notify(Notification{
		TenantID:  k.tenantID,
		AgentName: k.agentName,
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	return nil
}

func (m *Manager) notify(n Notification) {
	if m.cfg.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && m.cfg.Logger != nil {
			m.cfg.Logger.Warn("status notifier panicked",
				"tenant_id", n.TenantID,
				"agent_name", n.AgentName,
				"to", string(n.To),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	m.cfg.Notifier(n)
}

// Start creates or reactivates an entry and transitions it to running,
// returning the new execution ID. It rejects with ConflictError if the
// agent is already in running, starting, pausing, or resuming.
func (m *Manager) Start(ctx context.Context, tenantID, agentName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx, agentKey{tenantID, agentName})
}

func (m *Manager) startLocked(ctx context.Context, k agentKey) (string, error) {
	e, ok := m.entries.Get(k)
	if ok {
		switch e.status {
		case StatusRunning, StatusStarting, StatusPausing, StatusResuming:
			return "", &ConflictError{TenantID: k.tenantID, AgentName: k.agentName, Status: e.status}
		}
		if e.timer != nil {
			e.timer.Cancel()
			e.timer = nil
		}
	} else {
		e = &entry{status: StatusStopped, context: make(map[string]any)}
		m.entries.Register(k, e)
	}

	if err := m.transition(k, e, StatusStarting, "start requested"); err != nil {
		return "", err
	}
	e.executionID = uuid.New().String()
	if err := m.transition(k, e, StatusRunning, "started"); err != nil {
		return "", err
	}
	return e.executionID, nil
}

// Stop halts an agent, clears its timer and execution ID, and removes its
// registry entry. Stopping an unknown or already-stopped agent succeeds and
// reports "already stopped".
func (m *Manager) Stop(ctx context.Context, tenantID, agentName string) (StopResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx, agentKey{tenantID, agentName})
}

func (m *Manager) stopLocked(ctx context.Context, k agentKey) (StopResult, error) {
	e, ok := m.entries.Get(k)
	if !ok || e.status == StatusStopped {
		return StopResult{Stopped: false, Reason: "already stopped"}, nil
	}

	if err := m.transition(k, e, StatusStopping, "stop requested"); err != nil {
		return StopResult{}, err
	}
	if e.timer != nil {
		e.timer.Cancel()
		e.timer = nil
	}
	e.executionID = ""
	if err := m.transition(k, e, StatusStopped, "stopped"); err != nil {
		return StopResult{}, err
	}
	m.entries.Delete(k)
	return StopResult{Stopped: true, Reason: "stopped"}, nil
}

// Pause suspends a running agent, capturing a snapshot when data is provided
// and a store is configured. Returns the snapshot ID, or empty when no
// snapshot was taken.
func (m *Manager) Pause(ctx context.Context, tenantID, agentName string, snapshotData []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := agentKey{tenantID, agentName}
	e, ok := m.entries.Get(k)
	if !ok {
		return "", &TransitionError{TenantID: tenantID, AgentName: agentName, From: StatusStopped, To: StatusPausing}
	}
	if err := m.transition(k, e, StatusPausing, "pause requested"); err != nil {
		return "", err
	}

	var snapshotID string
	if snapshotData != nil && m.cfg.Snapshots != nil {
		snapshotID = uuid.New().String()
		if err := m.cfg.Snapshots.Save(tenantID, agentName, snapshotID, snapshotData); err != nil {
			observability.LogSnapshotError(m.cfg.Logger, tenantID, agentName, "save", err)
			_ = m.transition(k, e, StatusError, "snapshot save failed")
			return "", fmt.Errorf("pause snapshot for %s/%s: %w", tenantID, agentName, err)
		}
		e.snapshotID = snapshotID
	}

	if err := m.transition(k, e, StatusPaused, "paused"); err != nil {
		return "", err
	}
	return snapshotID, nil
}

// Resume returns a paused agent to running, optionally restoring a snapshot
// and merging new context. The restored snapshot blob is returned, or nil
// when none was loaded.
func (m *Manager) Resume(ctx context.Context, tenantID, agentName string, opts ResumeOptions) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := agentKey{tenantID, agentName}
	e, ok := m.entries.Get(k)
	if !ok {
		return nil, &TransitionError{TenantID: tenantID, AgentName: agentName, From: StatusStopped, To: StatusResuming}
	}
	if err := m.transition(k, e, StatusResuming, "resume requested"); err != nil {
		return nil, err
	}

	snapshotID := opts.SnapshotID
	if snapshotID == "" {
		snapshotID = e.snapshotID
	}
	var data []byte
	if snapshotID != "" && m.cfg.Snapshots != nil {
		var err error
		data, err = m.cfg.Snapshots.Load(tenantID, agentName, snapshotID)
		if err != nil {
			observability.LogSnapshotError(m.cfg.Logger, tenantID, agentName, "load", err)
			_ = m.transition(k, e, StatusError, "snapshot load failed")
			return nil, fmt.Errorf("resume snapshot for %s/%s: %w", tenantID, agentName, err)
		}
	}

	for key, value := range opts.Context {
		e.context[key] = value
	}
	if err := m.transition(k, e, StatusRunning, "resumed"); err != nil {
		return nil, err
	}
	return data, nil
}

// Schedule creates or updates an entry with a schedule and arms a timer
// that starts the agent when it fires. A repeating schedule re-arms itself
// after each firing. Returns the resolved next run time.
func (m *Manager) Schedule(ctx context.Context, tenantID, agentName string, spec ScheduleSpec) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := spec.nextRun(time.Now())
	if err != nil {
		return time.Time{}, err
	}

	k := agentKey{tenantID, agentName}
	e, ok := m.entries.Get(k)
	if !ok {
		e = &entry{status: StatusStopped, context: make(map[string]any)}
		m.entries.Register(k, e)
	} else if e.timer != nil {
		e.timer.Cancel()
		e.timer = nil
	}

	if err := m.transition(k, e, StatusScheduled, "scheduled"); err != nil {
		return time.Time{}, err
	}
	e.schedule = spec
	e.nextRun = next
	m.armLocked(k, e, next)
	return next, nil
}

// armLocked arms the entry's timer for the given firing time.
func (m *Manager) armLocked(k agentKey, e *entry, at time.Time) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	e.timer = task.After(delay, func() {
		m.fire(k)
	})
}

// fire runs when a schedule timer elapses: it starts the agent and, for a
// repeating schedule, re-arms the timer. Start failures are logged, never
// fatal to the schedule loop.
func (m *Manager) fire(k agentKey) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.Get(k)
	if !ok {
		return
	}
	e.timer = nil

	if _, err := m.startLocked(context.Background(), k); err != nil {
		if m.cfg.Logger != nil {
			m.cfg.Logger.Warn("scheduled start failed",
				"tenant_id", k.tenantID,
				"agent_name", k.agentName,
				"error", err.Error(),
			)
		}
	}
	if e.schedule.Repeat {
		next, err := e.schedule.nextRun(time.Now())
		if err != nil {
			return
		}
		e.nextRun = next
		m.armLocked(k, e, next)
	}
}

// Status returns the agent's current status. Unknown agents report stopped.
func (m *Manager) Status(tenantID, agentName string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.Get(agentKey{tenantID, agentName})
	if !ok {
		return StatusStopped
	}
	return e.status
}

// List returns a snapshot of all registry entries.
func (m *Manager) List() []EntryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]EntryInfo, 0, m.entries.Len())
	m.entries.Range(func(k agentKey, e *entry) bool {
		out = append(out, EntryInfo{
			TenantID:    k.tenantID,
			AgentName:   k.agentName,
			Status:      e.status,
			ExecutionID: e.executionID,
			SnapshotID:  e.snapshotID,
			NextRun:     e.nextRun,
		})
		return true
	})
	return out
}

// Dispose stops every active entry and clears the registry. Per-entry stop
// failures are logged and do not abort the disposal loop.
func (m *Manager) Dispose(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries.Range(func(k agentKey, e *entry) bool {
		switch e.status {
		case StatusRunning, StatusPaused, StatusScheduled, StatusError:
			if _, err := m.stopLocked(ctx, k); err != nil && m.cfg.Logger != nil {
				m.cfg.Logger.Warn("stop during disposal failed",
					"tenant_id", k.tenantID,
					"agent_name", k.agentName,
					"error", err.Error(),
				)
			}
		default:
			if e.timer != nil {
				e.timer.Cancel()
			}
		}
		return true
	})
	m.entries.Clear()
}
