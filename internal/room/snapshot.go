package room

import (
	"maps"

	"github.com/samber/lo"
)

// Snapshot is the full derived state of a room after a mutation. It is what
// room.update carries; clients reconcile against it wholesale.
type Snapshot struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Size         int            `json:"size"`
	MinSize      int            `json:"minSize"`
	RequireReady bool           `json:"requireReady"`
	Status       Status         `json:"status"`
	Attrs        map[string]any `json:"attrs,omitempty"`
	Players      []RoomPlayer   `json:"players"`
}

func (r *Room) snapshotLocked() *Snapshot {
	return &Snapshot{
		ID:           r.id,
		Name:         r.name,
		Size:         r.size,
		MinSize:      r.minSize,
		RequireReady: r.requireReady,
		Status:       r.status,
		Attrs:        maps.Clone(r.attrs),
		Players:      lo.Map(r.players, func(rp *RoomPlayer, _ int) RoomPlayer { return *rp }),
	}
}

// Snapshot derives the current full room state.
func (r *Room) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Type reads the room's "type" attribute, which selects the game module
// bound to it. Empty when untagged.
func (r *Room) Type() string {
	if v, ok := r.attrs["type"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
