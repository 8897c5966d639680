// Package gamemod is the hook surface external rule engines plug into. A
// module observes its room's lifecycle events and owns its persisted state:
// the engine never saves game data on a module's behalf, it only hands the
// module a storage handle and a player-addressed reply channel.
package gamemod

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/parlorhq/parlor/internal/protocol"
	"github.com/parlorhq/parlor/internal/room"
	"github.com/parlorhq/parlor/internal/storage"
)

// Module is the capability set every game implements. No shared base state;
// each game is an independent implementation.
type Module interface {
	// OnStart is invoked when the room flips to playing.
	OnStart()

	// OnCommand receives room-scoped and global commands. Invalid commands
	// should be ignored (fail closed), never crash the room.
	OnCommand(cmd room.Command)

	// OnEnd is invoked when the round ends and the room resets to waiting.
	OnEnd()

	// GetStatus renders the game state as visible to one player.
	GetStatus(forPlayer string) any

	// GetData renders the durable snapshot persisted through the storage
	// contract. The orchestrator never interprets it.
	GetData() json.RawMessage
}

// MemberObserver is an optional extension for modules that track membership
// changes and disconnects.
type MemberObserver interface {
	OnJoin(playerID string)
	OnLeave(playerID string)
	OnPlayerOffline(playerID string)
}

// Context is what a module receives when bound to a room.
type Context struct {
	Room  *room.Room
	Store storage.Store
	Log   *logrus.Logger

	// Reply sends an envelope to one player's connection set only, without
	// broadcasting to the room (e.g. a rejected-move error).
	Reply func(playerID string, env *protocol.Envelope)
}

// Factory builds a module instance for a room.
type Factory func(mc Context) Module
