package state

import (
	"context"
	"sync"

	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/task"
)

// namespace holds one namespace's data behind a queued lock.
// The lock is a buffered channel of capacity 1: acquisition blocks waiters
// in order and respects context cancellation.
type namespace struct {
	lock    chan struct{}
	data    map[string]any
	removed bool // set by GC while holding the lock
}

func newNamespace() *namespace {
	return &namespace{
		lock: make(chan struct{}, 1),
		data: make(map[string]any),
	}
}

// acquire takes the namespace lock, respecting ctx.
func (n *namespace) acquire(ctx context.Context) error {
	select {
	case n.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryAcquire takes the lock without blocking.
func (n *namespace) tryAcquire() bool {
	select {
	case n.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

// release gives the lock back.
func (n *namespace) release() {
	<-n.lock
}

// NamespacedStore is the concurrent Store implementation. It lives for the
// process lifetime (or until Close) and is safe for use from any number of
// goroutines.
type NamespacedStore struct {
	cfg Config

	mu         sync.Mutex // guards the namespaces map structure only
	namespaces map[string]*namespace
	closed     bool

	gc *task.Ticker
}

// Compile-time interface check.
var _ Store = (*NamespacedStore)(nil)

// NewNamespacedStore creates a store and starts its GC sweep if configured.
func NewNamespacedStore(cfg Config) *NamespacedStore {
	if cfg.MaxNamespaces <= 0 {
		cfg.MaxNamespaces = DefaultConfig.MaxNamespaces
	}
	if cfg.MaxKeysPerNamespace <= 0 {
		cfg.MaxKeysPerNamespace = DefaultConfig.MaxKeysPerNamespace
	}

	s := &NamespacedStore{
		cfg:        cfg,
		namespaces: make(map[string]*namespace),
	}
	if cfg.GCInterval > 0 {
		s.gc = task.Every(cfg.GCInterval, s.sweep)
	}
	return s
}

// lookup returns the namespace entry, or nil if absent.
func (s *NamespacedStore) lookup(name string) *namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespaces[name]
}

// lookupOrCreate returns the namespace, creating it if the ceiling allows.
func (s *NamespacedStore) lookupOrCreate(name string) (*namespace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ns, ok := s.namespaces[name]; ok {
		return ns, nil
	}
	if len(s.namespaces) >= s.cfg.MaxNamespaces {
		return nil, &CapacityError{Kind: "namespaces", Namespace: name, Limit: s.cfg.MaxNamespaces}
	}
	ns := newNamespace()
	s.namespaces[name] = ns
	return ns, nil
}

// Set stores a value under (namespace, key).
func (s *NamespacedStore) Set(ctx context.Context, name, key string, value any) error {
	for {
		ns, err := s.lookupOrCreate(name)
		if err != nil {
			return err
		}
		if err := ns.acquire(ctx); err != nil {
			return err
		}
		if ns.removed {
			// GC removed this namespace between lookup and acquire;
			// re-resolve against the live map.
			ns.release()
			continue
		}

		if _, exists := ns.data[key]; !exists && len(ns.data) >= s.cfg.MaxKeysPerNamespace {
			ns.release()
			return &CapacityError{Kind: "keys", Namespace: name, Limit: s.cfg.MaxKeysPerNamespace}
		}
		ns.data[key] = value
		ns.release()
		return nil
	}
}

// Get returns the value for (namespace, key) and whether it exists.
func (s *NamespacedStore) Get(ctx context.Context, name, key string) (any, bool, error) {
	ns := s.lookup(name)
	if ns == nil {
		return nil, false, nil
	}
	if err := ns.acquire(ctx); err != nil {
		return nil, false, err
	}
	defer ns.release()

	value, ok := ns.data[key]
	return value, ok, nil
}

// Delete removes a key. Returns true if the key existed.
func (s *NamespacedStore) Delete(ctx context.Context, name, key string) (bool, error) {
	ns := s.lookup(name)
	if ns == nil {
		return false, nil
	}
	if err := ns.acquire(ctx); err != nil {
		return false, err
	}
	defer ns.release()

	_, ok := ns.data[key]
	delete(ns.data, key)
	return ok, nil
}

// Has reports whether (namespace, key) exists.
func (s *NamespacedStore) Has(ctx context.Context, name, key string) (bool, error) {
	_, ok, err := s.Get(ctx, name, key)
	return ok, err
}

// Keys returns all keys in a namespace.
func (s *NamespacedStore) Keys(ctx context.Context, name string) ([]string, error) {
	ns := s.lookup(name)
	if ns == nil {
		return []string{}, nil
	}
	if err := ns.acquire(ctx); err != nil {
		return nil, err
	}
	defer ns.release()

	keys := make([]string, 0, len(ns.data))
	for k := range ns.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Size returns the number of keys in a namespace.
func (s *NamespacedStore) Size(ctx context.Context, name string) (int, error) {
	ns := s.lookup(name)
	if ns == nil {
		return 0, nil
	}
	if err := ns.acquire(ctx); err != nil {
		return 0, err
	}
	defer ns.release()

	return len(ns.data), nil
}

// Clear removes all keys from a namespace.
func (s *NamespacedStore) Clear(ctx context.Context, name string) error {
	ns := s.lookup(name)
	if ns == nil {
		return nil
	}
	if err := ns.acquire(ctx); err != nil {
		return err
	}
	defer ns.release()

	ns.data = make(map[string]any)
	return nil
}

// Stats returns aggregate statistics across all namespaces.
func (s *NamespacedStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	names := make(map[string]*namespace, len(s.namespaces))
	for name, ns := range s.namespaces {
		names[name] = ns
	}
	s.mu.Unlock()

	stats := Stats{PerNamespace: make(map[string]NamespaceStats, len(names))}
	for name, ns := range names {
		if err := ns.acquire(ctx); err != nil {
			return Stats{}, err
		}
		var bytes int64
		for k, v := range ns.data {
			bytes += int64(len(k)) + estimateSize(v)
		}
		nsStats := NamespaceStats{Keys: len(ns.data), EstimatedBytes: bytes}
		ns.release()

		stats.PerNamespace[name] = nsStats
		stats.Namespaces++
		stats.TotalKeys += nsStats.Keys
		stats.EstimatedBytes += nsStats.EstimatedBytes
	}
	return stats, nil
}

// sweep removes namespaces that have become empty. Namespaces whose lock is
// currently held are skipped; the next sweep will revisit them.
func (s *NamespacedStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, ns := range s.namespaces {
		if !ns.tryAcquire() {
			continue
		}
		if len(ns.data) == 0 {
			ns.removed = true
			delete(s.namespaces, name)
		}
		ns.release()
	}
}

// Close stops the GC sweep. The store remains usable for data access, but
// empty namespaces are no longer reclaimed.
func (s *NamespacedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.gc != nil {
		s.gc.Cancel()
	}
	return nil
}
