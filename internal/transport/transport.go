// Package transport abstracts outbound delivery. A logical player may have
// several live connections (multi-device); addressing is always by logical
// player id and fans out to every connection in the set.
package transport

import "github.com/parlorhq/parlor/internal/protocol"

// Transport delivers envelopes to recipient sets. Implementations must not
// block the caller; slow consumers drop rather than stall dispatch.
type Transport interface {
	// Send delivers to every live connection of the named players.
	Send(playerIDs []string, env *protocol.Envelope)

	// Broadcast delivers to every connected player.
	Broadcast(env *protocol.Envelope)
}
