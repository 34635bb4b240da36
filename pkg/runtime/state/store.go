// Package state provides a namespaced key/value store with per-namespace
// mutual exclusion, capacity ceilings, and garbage collection of empty
// namespaces.
//
// Two implementations share the Store contract: NamespacedStore serializes
// concurrent mutations per namespace with a queued lock, and SimpleStore
// uses a single mutex for call sites that don't need the per-namespace
// discipline. Callers are agnostic to the variant.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the namespaced key/value contract.
// Every operation acquires the namespace's lock before touching data, so
// concurrent mutations on one namespace serialize while operations on
// different namespaces proceed independently.
type Store interface {
	// Get returns the value for (namespace, key) and whether it exists.
	Get(ctx context.Context, namespace, key string) (any, bool, error)

	// Set stores a value. Creating a namespace beyond MaxNamespaces or a
	// key beyond MaxKeysPerNamespace fails with *CapacityError; nothing
	// is evicted or overwritten silently.
	Set(ctx context.Context, namespace, key string, value any) error

	// Delete removes a key. Returns true if the key existed.
	Delete(ctx context.Context, namespace, key string) (bool, error)

	// Has reports whether (namespace, key) exists.
	Has(ctx context.Context, namespace, key string) (bool, error)

	// Keys returns all keys in a namespace. A missing namespace yields an
	// empty slice, not an error.
	Keys(ctx context.Context, namespace string) ([]string, error)

	// Size returns the number of keys in a namespace.
	Size(ctx context.Context, namespace string) (int, error)

	// Clear removes all keys from a namespace.
	Clear(ctx context.Context, namespace string) error

	// Stats returns aggregate statistics across all namespaces.
	Stats(ctx context.Context) (Stats, error)

	// Close stops background sweeps and releases resources.
	Close() error
}

// Config configures a store.
type Config struct {
	// MaxNamespaces caps the number of distinct namespaces.
	// Default: 100
	MaxNamespaces int

	// MaxKeysPerNamespace caps keys within one namespace.
	// Default: 1000
	MaxKeysPerNamespace int

	// GCInterval is how often empty namespaces are swept.
	// Zero disables the sweep.
	// Default: 1m
	GCInterval time.Duration
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	MaxNamespaces:       100,
	MaxKeysPerNamespace: 1000,
	GCInterval:          time.Minute,
}

// CapacityError indicates a store ceiling was hit. The offending operation
// is aborted with no partial write.
type CapacityError struct {
	// Kind is "namespaces" or "keys".
	Kind string

	// Namespace is the namespace involved.
	Namespace string

	// Limit is the configured ceiling.
	Limit int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	if e.Kind == "namespaces" {
		return fmt.Sprintf("namespace limit reached (%d): cannot create %q", e.Limit, e.Namespace)
	}
	return fmt.Sprintf("key limit reached in namespace %q (%d)", e.Namespace, e.Limit)
}

// NamespaceStats describes one namespace.
type NamespaceStats struct {
	Keys           int   `json:"keys"`
	EstimatedBytes int64 `json:"estimated_bytes"`
}

// Stats aggregates store statistics.
type Stats struct {
	Namespaces     int                       `json:"namespaces"`
	TotalKeys      int                       `json:"total_keys"`
	EstimatedBytes int64                     `json:"estimated_bytes"`
	PerNamespace   map[string]NamespaceStats `json:"per_namespace"`
}

// estimateSize approximates the memory footprint of a value in bytes.
// Scalars are cheap to estimate; composite values are estimated via their
// serialized length.
func estimateSize(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(val))
	case []byte:
		return int64(len(val))
	case bool:
		return 1
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return 8
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return 64 // opaque value, rough guess
		}
		return int64(len(data))
	}
}
