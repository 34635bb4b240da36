package breaker

import (
	"github.com/aiaugments-collab/ai-code-reviewer-sub008/pkg/runtime/registry"
)

// Registry manages named circuit breakers sharing a base configuration.
// Breakers are created lazily on first use and live for the registry's
// lifetime.
type Registry struct {
	base     Config
	breakers *registry.Registry[string, *Breaker]
}

// NewRegistry creates a breaker registry. Each breaker inherits base with
// its own name.
func NewRegistry(base Config) *Registry {
	return &Registry{
		base:     base,
		breakers: registry.New[string, *Breaker](),
	}
}

// Get returns the breaker for name, creating it if necessary.
// Repeated calls with the same name return the same instance.
func (r *Registry) Get(name string) *Breaker {
	return r.breakers.GetOrCreate(name, func() *Breaker {
		cfg := r.base
		cfg.Name = name
		return New(cfg)
	})
}

// Names returns the names of all breakers created so far.
func (r *Registry) Names() []string {
	return r.breakers.Keys()
}

// Stats returns a metrics snapshot for every breaker, keyed by name.
func (r *Registry) Stats() map[string]Stats {
	stats := make(map[string]Stats, r.breakers.Len())
	r.breakers.Range(func(name string, b *Breaker) bool {
		stats[name] = b.Metrics()
		return true
	})
	return stats
}

// ResetAll resets every breaker to CLOSED with cleared counters.
func (r *Registry) ResetAll() {
	r.breakers.Range(func(_ string, b *Breaker) bool {
		b.Reset()
		return true
	})
}
