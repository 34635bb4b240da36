package state

import (
	"context"
	"sync"
)

// SimpleStore is the non-namespace-locking Store variant for call sites
// where per-namespace lock queuing is unnecessary overhead. A single mutex
// guards everything; the contract is otherwise identical to NamespacedStore,
// including capacity ceilings.
type SimpleStore struct {
	cfg Config

	mu   sync.RWMutex
	data map[string]map[string]any
}

// Compile-time interface check.
var _ Store = (*SimpleStore)(nil)

// NewSimpleStore creates a simple store. It runs no background GC: empty
// namespaces are reclaimed inline when their last key is deleted.
func NewSimpleStore(cfg Config) *SimpleStore {
	if cfg.MaxNamespaces <= 0 {
		cfg.MaxNamespaces = DefaultConfig.MaxNamespaces
	}
	if cfg.MaxKeysPerNamespace <= 0 {
		cfg.MaxKeysPerNamespace = DefaultConfig.MaxKeysPerNamespace
	}
	return &SimpleStore{
		cfg:  cfg,
		data: make(map[string]map[string]any),
	}
}

// Set stores a value under (namespace, key).
func (s *SimpleStore) Set(_ context.Context, name, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[name]
	if !ok {
		if len(s.data) >= s.cfg.MaxNamespaces {
			return &CapacityError{Kind: "namespaces", Namespace: name, Limit: s.cfg.MaxNamespaces}
		}
		ns = make(map[string]any)
		s.data[name] = ns
	}

	if _, exists := ns[key]; !exists && len(ns) >= s.cfg.MaxKeysPerNamespace {
		return &CapacityError{Kind: "keys", Namespace: name, Limit: s.cfg.MaxKeysPerNamespace}
	}
	ns[key] = value
	return nil
}

// Get returns the value for (namespace, key) and whether it exists.
func (s *SimpleStore) Get(_ context.Context, name, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.data[name]
	if !ok {
		return nil, false, nil
	}
	value, ok := ns[key]
	return value, ok, nil
}

// Delete removes a key. Returns true if the key existed.
func (s *SimpleStore) Delete(_ context.Context, name, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[name]
	if !ok {
		return false, nil
	}
	_, existed := ns[key]
	delete(ns, key)
	if len(ns) == 0 {
		delete(s.data, name)
	}
	return existed, nil
}

// Has reports whether (namespace, key) exists.
func (s *SimpleStore) Has(ctx context.Context, name, key string) (bool, error) {
	_, ok, err := s.Get(ctx, name, key)
	return ok, err
}

// Keys returns all keys in a namespace.
func (s *SimpleStore) Keys(_ context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.data[name]
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	return keys, nil
}

// Size returns the number of keys in a namespace.
func (s *SimpleStore) Size(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[name]), nil
}

// Clear removes all keys from a namespace.
func (s *SimpleStore) Clear(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// Stats returns aggregate statistics across all namespaces.
func (s *SimpleStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{PerNamespace: make(map[string]NamespaceStats, len(s.data))}
	for name, ns := range s.data {
		var bytes int64
		for k, v := range ns {
			bytes += int64(len(k)) + estimateSize(v)
		}
		stats.PerNamespace[name] = NamespaceStats{Keys: len(ns), EstimatedBytes: bytes}
		stats.Namespaces++
		stats.TotalKeys += len(ns)
		stats.EstimatedBytes += bytes
	}
	return stats, nil
}

// Close is a no-op for the simple store.
func (s *SimpleStore) Close() error {
	return nil
}
