package upstream

import (
	"sort"
	"sync"
)

// Registry tracks every provider gate for the stats surface.
type Registry struct {
	mu    sync.RWMutex
	gates map[string]*Gate
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]*Gate)}
}

// Register adds a gate. Later registrations with the same provider name
// replace earlier ones.
func (r *Registry) Register(g *Gate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gates[g.provider] = g
}

// Get returns the gate for a provider, or nil.
func (r *Registry) Get(provider string) *Gate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gates[provider]
}

// Snapshots captures all gate counters, ordered by provider name.
func (r *Registry) Snapshots() []GateSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]GateSnapshot, 0, len(r.gates))
	for _, g := range r.gates {
		out = append(out, g.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
