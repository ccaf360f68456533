package search

import (
	"sort"
	"sync"

	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb"
)

// Registry holds the available search strategies by name. Strategies are
// registered at wiring time; queries then select a subset by name.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]kb.SearchStrategy
}

// NewRegistry creates an empty strategy registry
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]kb.SearchStrategy)}
}

// Register adds a strategy under its own name. Re-registering a name
// replaces the previous strategy.
func (r *Registry) Register(strategy kb.SearchStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[strategy.Name()] = strategy
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (kb.SearchStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	strategy, ok := r.strategies[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrStrategyUnavailable, "unknown strategy %q", name)
	}
	return strategy, nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
