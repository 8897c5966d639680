// Package player holds the connected-player registry. A Player exists only
// while at least one of the identity's sockets is alive; room membership is
// tracked separately and survives registry removal.
package player

import "maps"

// Status is the presence state of a connected player.
type Status string

const (
	StatusOnline  Status = "online"
	StatusReady   Status = "ready"
	StatusUnready Status = "unready"
	StatusPlaying Status = "playing"
	StatusOffline Status = "offline"
)

// Player is a currently-connected logical identity. One Player may be backed
// by several physical connections.
type Player struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Attrs  map[string]any `json:"attrs,omitempty"`
	Status Status         `json:"status"`
}

// Clone returns a snapshot copy safe to hand outside the registry lock.
func (p *Player) Clone() *Player {
	cp := *p
	cp.Attrs = maps.Clone(p.Attrs)
	return &cp
}
