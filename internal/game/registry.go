package game

import (
	"fmt"
	"sync"
)

// Registry maps game kinds to their engines.
type Registry struct {
	mu      sync.RWMutex
	engines map[Kind]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[Kind]Engine)}
}

// Register adds an engine. Panics on duplicates; wiring bugs should fail
// at startup, not at the first move.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[e.Kind()]; exists {
		panic(fmt.Sprintf("engine %q already registered", e.Kind()))
	}
	r.engines[e.Kind()] = e
}

// Get returns the engine for kind.
func (r *Registry) Get(kind Kind) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[kind]
	return e, ok
}

// Kinds lists the registered game kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.engines))
	for k := range r.engines {
		out = append(out, k)
	}
	return out
}
