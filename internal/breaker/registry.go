package breaker

import (
	"sort"
	"sync"
)

// Registry owns one independently-configured breaker per operation name.
// Its own lock only guards the map; each breaker locks its own state, so
// traffic through one circuit never serializes another.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	defaults  Config
	overrides map[string]Config
}

// NewRegistry creates a registry. defaults applies to circuits without an
// override; overrides maps operation names to their specific config.
func NewRegistry(defaults Config, overrides map[string]Config) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		defaults:  defaults,
		overrides: overrides,
	}
}

// Get returns the breaker for the named operation, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	cfg := r.defaults
	if override, ok := r.overrides[name]; ok {
		cfg = override
		if cfg.CountFailure == nil {
			cfg.CountFailure = r.defaults.CountFailure
		}
	}
	b := New(name, cfg)
	r.breakers[name] = b
	return b
}

// Reset closes the named circuit and clears its counters. It reports
// whether the circuit existed.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()

	if !ok {
		return false
	}
	b.Reset()
	return true
}

// Snapshot returns metrics for every known circuit, sorted by name.
func (r *Registry) Snapshot() []Metrics {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	metrics := make([]Metrics, 0, len(breakers))
	for _, b := range breakers {
		metrics = append(metrics, b.Metrics())
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics
}
