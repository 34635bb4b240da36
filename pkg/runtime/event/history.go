package event

import (
	"sync"
	"time"
)

// HistoryEntry records one dispatched event for introspection.
// The history has no effect on dispatch.
type HistoryEntry struct {
	EventID       string    `json:"id"`
	EventType     string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// history is a fixed-capacity circular buffer of recent events.
type history struct {
	mu      sync.Mutex
	entries []HistoryEntry
	next    int
	full    bool
}

// newHistory creates a history with the given capacity.
func newHistory(capacity int) *history {
	return &history{entries: make([]HistoryEntry, capacity)}
}

// record appends an event, overwriting the oldest entry when full.
func (h *history) record(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.next] = HistoryEntry{
		EventID:       evt.ID,
		EventType:     evt.Type,
		Timestamp:     evt.Timestamp,
		CorrelationID: evt.Metadata.CorrelationID,
	}
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.full = true
	}
}

// list returns recorded entries, oldest first.
func (h *history) list() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		out := make([]HistoryEntry, h.next)
		copy(out, h.entries[:h.next])
		return out
	}
	out := make([]HistoryEntry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	out = append(out, h.entries[:h.next]...)
	return out
}
