// Package snapshot provides persistent agent snapshot storage used by the
// lifecycle manager's pause/resume path.
package snapshot

import (
	"errors"
	"time"
)

// Store persists agent snapshots. Snapshots are opaque blobs keyed by
// (tenantID, agentName, snapshotID). Implementations must be safe for
// concurrent use.
type Store interface {
	// Save stores a snapshot. Overwrites if the same ID already exists
	// for the agent.
	Save(tenantID, agentName, snapshotID string, data []byte) error

	// Load retrieves a snapshot.
	// Returns ErrNotFound if the snapshot doesn't exist.
	Load(tenantID, agentName, snapshotID string) ([]byte, error)

	// List returns snapshot metadata for an agent, newest first.
	// Returns an empty slice (not an error) if the agent has none.
	List(tenantID, agentName string) ([]Info, error)

	// Delete removes a specific snapshot.
	// Returns nil if the snapshot doesn't exist.
	Delete(tenantID, agentName, snapshotID string) error

	// DeleteAgent removes all snapshots for an agent.
	DeleteAgent(tenantID, agentName string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides snapshot metadata without loading the blob.
type Info struct {
	TenantID   string
	AgentName  string
	SnapshotID string
	Timestamp  time.Time
	Size       int64
}

// Sentinel errors for snapshot operations.
var (
	// ErrNotFound indicates a snapshot doesn't exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("snapshot store closed")
)
