package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/wizard"
)

// Factory builds a wizard definition talking to channel.
type Factory func(channel remote.Channel) wizard.Definition

// Registry stores wizard factories by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory. Duplicate names return an error.
func (r *Registry) Register(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("orchestrator: factory is required")
	}
	key := normalizeName(name)
	if key == "" {
		return fmt.Errorf("orchestrator: wizard name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("orchestrator: wizard %q already registered", key)
	}
	r.factories[key] = factory
	return nil
}

// MustRegister panics on registration failure.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Get retrieves a factory by name.
func (r *Registry) Get(name string) (Factory, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("orchestrator: wizard name is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("orchestrator: wizard %q not found", key)
	}
	return factory, nil
}

// List returns the sorted wizard names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a wizard is registered.
func (r *Registry) Has(name string) bool {
	key := normalizeName(name)
	if key == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[key]
	return ok
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
