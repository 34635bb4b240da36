package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/lifecycle"
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/snapshot"
)

func newTestManager(t *testing.T) (*lifecycle.Manager, *[]lifecycle.Notification) {
	t.Helper()
	var notifications []lifecycle.Notification
	m := lifecycle.NewManager(lifecycle.Config{
		Snapshots: snapshot.NewMemoryStore(),
		Notifier: func(n lifecycle.Notification) {
			notifications = append(notifications, n)
		},
	})
	t.Cleanup(func() { m.Dispose(context.Background()) })
	return m, &notifications
}

func TestStartAssignsExecutionID(t *testing.T) {
	m, _ := newTestManager(t)

	execID, err := m.Start(context.Background(), "acme", "reviewer")
	require.NoError(t, err)
	assert.NotEmpty(t, execID)
	assert.Equal(t, lifecycle.StatusRunning, m.Status("acme", "reviewer"))
}

func TestStartTwiceConflicts(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "acme", "reviewer")
	require.NoError(t, err)

	_, err = m.Start(ctx, "acme", "reviewer")
	var conflict *lifecycle.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, lifecycle.StatusRunning, conflict.Status)

	// The failed start leaves the entry untouched.
	assert.Equal(t, lifecycle.StatusRunning, m.Status("acme", "reviewer"))
}

func TestStartIsPerAgent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "acme", "reviewer")
	require.NoError(t, err)

	// Same agent name under another tenant is a distinct entry.
	_, err = m.Start(ctx, "globex", "reviewer")
	require.NoError(t, err)
	_, err = m.Start(ctx, "acme", "linter")
	require.NoError(t, err)
}

func TestStopIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "acme", "reviewer")
	require.NoError(t, err)

	result, err := m.Stop(ctx, "acme", "reviewer")
	require.NoError(t, err)
	assert.True(t, result.Stopped)
	assert.Equal(t, "stopped", result.Reason)
	assert.Equal(t, lifecycle.StatusStopped, m.Status("acme", "reviewer"))

	// Second stop succeeds without error.
	result, err = m.Stop(ctx, "acme", "reviewer")
	require.NoError(t, err)
	assert.False(t, result.Stopped)
	assert.Equal(t, "already stopped", result.Reason)

	// Stop on a never-started agent is the same.
	result, err = m.Stop(ctx, "acme", "unknown")
	require.NoError(t, err)
	assert.Equal(t, "already stopped", result.Reason)
}

func TestPauseOnlyFromRunning(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Pause(ctx, "acme", "reviewer", nil)
	var transition *lifecycle.TransitionError
	require.ErrorAs(t, err, &transition)

	_, err = m.Start(ctx, "acme", "reviewer")
	require.NoError(t, err)
	_, err = m.Pause(ctx, "acme", "reviewer", nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPaused, m.Status("acme", "reviewer"))

	// Pausing again from paused is invalid.
	_, err = m.Pause(ctx, "acme", "reviewer", nil)
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, lifecycle.StatusPaused, m.Status("acme", "reviewer"))
}

func TestPauseResumeSnapshotRoundtrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "acme", "reviewer")
	require.NoError(t, err)

	snapshotID, err := m.Pause(ctx, "acme", "reviewer", []byte(`{"cursor":42}`))
	require.NoError(t, err)
	require.NotEmpty(t, snapshotID)

	// Resume without naming a snapshot restores the one pause captured.
	data, err := m.Resume(ctx, "acme", "reviewer", lifecycle.ResumeOptions{
		Context: map[string]any{"priority": "high"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"cursor":42}`), data)
	assert.Equal(t, lifecycle.StatusRunning, m.Status("acme", "reviewer"))
}

func TestResumeOnlyFromPaused(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "acme", "reviewer")
	require.NoError(t, err)

	_, err = m.Resume(ctx, "acme", "reviewer", lifecycle.ResumeOptions{})
	var transition *lifecycle.TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, lifecycle.StatusRunning, transition.From)
}

func TestScheduleFiresStart(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	next, err := m.Schedule(ctx, "acme", "reviewer", lifecycle.ScheduleSpec{
		At: time.Now().Add(20 * time.Millisecond),
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusScheduled, m.Status("acme", "reviewer"))
	assert.WithinDuration(t, time.Now().Add(20*time.Millisecond), next, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return m.Status("acme", "reviewer") == lifecycle.StatusRunning
	}, time.Second, 5*time.Millisecond)
}

func TestScheduleCronPlaceholder(t *testing.T) {
	m, _ := newTestManager(t)

	// The cron path resolves to one minute from now regardless of the
	// expression.
	next, err := m.Schedule(context.Background(), "acme", "reviewer", lifecycle.ScheduleSpec{
		Cron: "*/5 * * * *",
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), next, time.Second)
}

func TestScheduleRequiresTimeOrCron(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Schedule(context.Background(), "acme", "reviewer", lifecycle.ScheduleSpec{})
	require.Error(t, err)
	assert.Equal(t, lifecycle.StatusStopped, m.Status("acme", "reviewer"))
}

func TestStopCancelsSchedule(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Schedule(ctx, "acme", "reviewer", lifecycle.ScheduleSpec{
		At: time.Now().Add(30 * time.Millisecond),
	})
	require.NoError(t, err)

	result, err := m.Stop(ctx, "acme", "reviewer")
	require.NoError(t, err)
	assert.True(t, result.Stopped)

	// The cancelled timer never fires a start.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, lifecycle.StatusStopped, m.Status("acme", "reviewer"))
}

func TestNotificationsEmitted(t *testing.T) {
	m, notifications := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "acme", "reviewer")
	require.NoError(t, err)

	require.Len(t, *notifications, 2)
	first, second := (*notifications)[0], (*notifications)[1]
	assert.Equal(t, lifecycle.StatusStopped, first.From)
	assert.Equal(t, lifecycle.StatusStarting, first.To)
	assert.Equal(t, lifecycle.StatusRunning, second.To)
	assert.Equal(t, "acme", first.TenantID)
	assert.False(t, first.Timestamp.IsZero())
}

func TestNotifierPanicDoesNotRollBack(t *testing.T) {
	m := lifecycle.NewManager(lifecycle.Config{
		Notifier: func(n lifecycle.Notification) {
			panic("notifier bug")
		},
	})
	defer m.Dispose(context.Background())

	_, err := m.Start(context.Background(), "acme", "reviewer")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusRunning, m.Status("acme", "reviewer"))
}

func TestDisposeStopsEverything(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "acme", "a")
	require.NoError(t, err)
	_, err = m.Start(ctx, "acme", "b")
	require.NoError(t, err)
	_, err = m.Pause(ctx, "acme", "b", nil)
	require.NoError(t, err)
	_, err = m.Schedule(ctx, "acme", "c", lifecycle.ScheduleSpec{At: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	m.Dispose(ctx)
	assert.Empty(t, m.List())
	assert.Equal(t, lifecycle.StatusStopped, m.Status("acme", "a"))
}

func TestCanTransitionTable(t *testing.T) {
	valid := [][2]lifecycle.Status{
		{lifecycle.StatusStopped, lifecycle.StatusStarting},
		{lifecycle.StatusStopped, lifecycle.StatusScheduled},
		{lifecycle.StatusRunning, lifecycle.StatusPausing},
		{lifecycle.StatusPaused, lifecycle.StatusResuming},
		{lifecycle.StatusScheduled, lifecycle.StatusStopping},
		{lifecycle.StatusPausing, lifecycle.StatusError},
	}
	for _, pair := range valid {
		assert.True(t, lifecycle.CanTransition(pair[0], pair[1]),
			"%s -> %s should be allowed", pair[0], pair[1])
	}

	invalid := [][2]lifecycle.Status{
		{lifecycle.StatusStopped, lifecycle.StatusRunning},
		{lifecycle.StatusRunning, lifecycle.StatusResuming},
		{lifecycle.StatusPaused, lifecycle.StatusPausing},
		{lifecycle.StatusStarting, lifecycle.StatusStopping},
	}
	for _, pair := range invalid {
		assert.False(t, lifecycle.CanTransition(pair[0], pair[1]),
			"%s -> %s should be rejected", pair[0], pair[1])
	}
}
