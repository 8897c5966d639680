package player

import (
	"fmt"
	"sync"
)

// Registry is the authoritative set of connected players. All mutation is
// serialized behind one mutex so concurrent logins for the same identity
// cannot race-create two records.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Login registers an identity, or merges attributes into the existing
// record when the identity already has a live connection. It returns a
// snapshot of the resulting player and whether the identity was already
// registered.
func (r *Registry) Login(id, name string, attrs map[string]any) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[id]; ok {
		if name != "" {
			p.Name = name
		}
		if p.Attrs == nil && len(attrs) > 0 {
			p.Attrs = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			p.Attrs[k] = v
		}
		return p.Clone(), true
	}

	p := &Player{ID: id, Name: name, Attrs: attrs, Status: StatusOnline}
	if p.Name == "" {
		p.Name = fmt.Sprintf("player-%.8s", id)
	}
	r.players[id] = p
	return p.Clone(), false
}

// Logout removes the identity from the registry. It does not touch room
// membership; the offline grace check handles seats separately.
func (r *Registry) Logout(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[id]; !ok {
		return fmt.Errorf("logout %s: %w", id, ErrNotFound)
	}
	delete(r.players, id)
	return nil
}

// SetStatus updates a player's presence status and returns the snapshot.
func (r *Registry) SetStatus(id string, status Status) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return nil, fmt.Errorf("set status %s: %w", id, ErrNotFound)
	}
	p.Status = status
	return p.Clone(), nil
}

// Get returns a snapshot of the named player.
func (r *Registry) Get(id string) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

// Registered reports whether the identity currently has a live connection.
// The offline grace check uses this instead of a cancellable timer handle.
func (r *Registry) Registered(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.players[id]
	return ok
}

// List returns snapshots of every connected player.
func (r *Registry) List() []*Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p.Clone())
	}
	return out
}
