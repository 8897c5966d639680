// Package ws is the WebSocket transport: it accepts connections, runs the
// login handshake, and maps physical connections onto logical player ids.
package ws

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/parlorhq/parlor/internal/protocol"
	"github.com/parlorhq/parlor/internal/transport"
)

// Hub tracks the live connection set per logical player and implements the
// outbound transport. "Logged out" means the set for an identity is empty,
// not that any single handle closed.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*client]struct{}
	log   *logrus.Logger
}

var _ transport.Transport = (*Hub)(nil)

// NewHub returns an empty connection hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		conns: make(map[string]map[*client]struct{}),
		log:   log,
	}
}

// add registers a connection under an identity.
func (h *Hub) add(playerID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[playerID]
	if !ok {
		set = make(map[*client]struct{})
		h.conns[playerID] = set
	}
	set[c] = struct{}{}
}

// remove drops a connection and reports whether the identity's set emptied.
func (h *Hub) remove(playerID string, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[playerID]
	if !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, playerID)
		return true
	}
	return false
}

// Connected reports whether the identity has at least one live connection.
func (h *Hub) Connected(playerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[playerID]
	return ok
}

func (h *Hub) Send(playerIDs []string, env *protocol.Envelope) {
	data, err := env.Marshal()
	if err != nil {
		h.log.Warnf("ws: drop unencodable %s: %v", env.Type, err)
		return
	}
	h.mu.Lock()
	var targets []*client
	for _, id := range playerIDs {
		for c := range h.conns[id] {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.write(data, env.Type, h.log)
	}
}

func (h *Hub) Broadcast(env *protocol.Envelope) {
	data, err := env.Marshal()
	if err != nil {
		h.log.Warnf("ws: drop unencodable %s: %v", env.Type, err)
		return
	}
	h.mu.Lock()
	var targets []*client
	for _, set := range h.conns {
		for c := range set {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.write(data, env.Type, h.log)
	}
}
