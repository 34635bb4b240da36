package snapshot

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory snapshot store for testing and
// single-process use without durability requirements.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]stored // agent key -> snapshot ID -> blob
	closed bool
}

// stored holds snapshot data with metadata for List().
type stored struct {
	data      []byte
	timestamp time.Time
}

// agentKey joins tenant and agent into the first-level map key.
func agentKey(tenantID, agentName string) string {
	return tenantID + "/" + agentName
}

// NewMemoryStore creates a new in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]stored),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(tenantID, agentName, snapshotID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	key := agentKey(tenantID, agentName)
	if m.data[key] == nil {
		m.data[key] = make(map[string]stored)
	}

	// Copy data to avoid retaining caller's slice
	blob := make([]byte, len(data))
	copy(blob, data)

	m.data[key][snapshotID] = stored{
		data:      blob,
		timestamp: time.Now().UTC(),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(tenantID, agentName, snapshotID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	agent, ok := m.data[agentKey(tenantID, agentName)]
	if !ok {
		return nil, ErrNotFound
	}
	snap, ok := agent[snapshotID]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent modification
	result := make([]byte, len(snap.data))
	copy(result, snap.data)
	return result, nil
}

// List implements Store.
func (m *MemoryStore) List(tenantID, agentName string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	agent, ok := m.data[agentKey(tenantID, agentName)]
	if !ok {
		return []Info{}, nil
	}

	infos := make([]Info, 0, len(agent))
	for id, snap := range agent {
		infos = append(infos, Info{
			TenantID:   tenantID,
			AgentName:  agentName,
			SnapshotID: id,
			Timestamp:  snap.timestamp,
			Size:       int64(len(snap.data)),
		})
	}

	// Newest first
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(tenantID, agentName, snapshotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if agent, ok := m.data[agentKey(tenantID, agentName)]; ok {
		delete(agent, snapshotID)
	}
	return nil
}

// DeleteAgent implements Store.
func (m *MemoryStore) DeleteAgent(tenantID, agentName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, agentKey(tenantID, agentName))
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the total number of snapshots across all agents.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, agent := range m.data {
		count += len(agent)
	}
	return count
}
