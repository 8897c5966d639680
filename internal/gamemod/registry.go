package gamemod

import "sync"

// Registry maps room type tags to module factories. Games register
// themselves at startup; the engine binds a module when a room tagged with
// its type is created.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty module registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates a room type tag with a module factory. Later
// registrations for the same tag win.
func (r *Registry) Register(roomType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[roomType] = f
}

// Lookup returns the factory for a room type tag.
func (r *Registry) Lookup(roomType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[roomType]
	return f, ok
}
