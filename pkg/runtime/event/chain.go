package event

// chainRing is a fixed-capacity tracker of event types seen in the current
// re-entrant dispatch chain, used for loop detection. States are never
// mutated after creation: push produces a new ring sharing the backing
// array's prefix, so concurrent batched handlers can branch safely.
type chainRing struct {
	types []string
	cap   int
}

// newChainRing creates an empty ring with the given capacity.
func newChainRing(capacity int) chainRing {
	return chainRing{cap: capacity}
}

// push returns a new ring with eventType appended.
// ok is false when the ring is at capacity.
func (c chainRing) push(eventType string) (chainRing, bool) {
	if len(c.types) >= c.cap {
		return c, false
	}
	next := make([]string, len(c.types), len(c.types)+1)
	copy(next, c.types)
	return chainRing{types: append(next, eventType), cap: c.cap}, true
}

// contains reports whether eventType is anywhere in the chain.
func (c chainRing) contains(eventType string) bool {
	for _, t := range c.types {
		if t == eventType {
			return true
		}
	}
	return false
}

// len returns the chain length.
func (c chainRing) len() int {
	return len(c.types)
}

// snapshot returns a copy of the chain for error reporting.
func (c chainRing) snapshot() []string {
	out := make([]string, len(c.types))
	copy(out, c.types)
	return out
}
