package persona

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/probelab/pilot"
)

// Registry resolves personas by name, case-insensitively, through an
// explicit cache. Builtins are always available; store-backed personas
// are loaded lazily and held until Invalidate is called (on skill or
// persona updates). There is no ambient global state: inject the
// registry into components that need resolution.
type Registry struct {
	store Store // optional; nil means builtins only

	mu     sync.RWMutex
	cache  map[string]*Definition
	loaded bool
}

// NewRegistry creates a registry over the optional store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Resolve returns the persona with the given name (case-insensitive).
// An empty name resolves to "standard".
func (r *Registry) Resolve(ctx context.Context, name string) (*Definition, error) {
	if name == "" {
		name = "standard"
	}
	key := strings.ToLower(name)

	r.mu.RLock()
	if r.loaded {
		def, ok := r.cache[key]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("resolve persona %q: %w", name, pilot.ErrPersonaNotFound)
		}
		return def, nil
	}
	r.mu.RUnlock()

	if err := r.load(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.cache[key]
	if !ok {
		return nil, fmt.Errorf("resolve persona %q: %w", name, pilot.ErrPersonaNotFound)
	}
	return def, nil
}

// Invalidate drops the cache so the next Resolve reloads from the
// store. Call after skill or persona updates.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cache = nil
	r.loaded = false
	r.mu.Unlock()
}

// Names returns the resolvable persona names, loading if necessary.
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cache))
	for name := range r.cache {
		names = append(names, name)
	}
	return names, nil
}

// load populates the cache: builtins first, then store personas.
// A custom persona with a builtin's name overrides the builtin.
func (r *Registry) load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	cache := make(map[string]*Definition)
	for _, def := range Builtins() {
		cache[strings.ToLower(def.Name)] = def
	}

	if r.store != nil {
		custom, err := r.store.ListPersonas(ctx)
		if err != nil {
			return fmt.Errorf("load personas: %w", err)
		}
		for _, def := range custom {
			if !def.Active {
				continue
			}
			cache[strings.ToLower(def.Name)] = def
		}
	}

	r.cache = cache
	r.loaded = true
	return nil
}
