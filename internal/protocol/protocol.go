// Package protocol defines the wire envelope and the closed set of message
// types exchanged between clients and the orchestrator. Outbound addressing
// is derived from the type's namespace prefix: "player.*" goes only to the
// named player's connection set, "room.*" to the current room members, and
// "global.*" to every connected player.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is a discriminated message type. The set of valid values is closed;
// the dispatcher rejects anything not listed here.
type Type string

// Inbound command types.
const (
	TypePlayerList    Type = "player.list"
	TypePlayerLogin   Type = "player.login"
	TypePlayerLogout  Type = "player.logout"
	TypePlayerOffline Type = "player.offline"

	TypeRoomList      Type = "room.list"
	TypeRoomCreate    Type = "room.create"
	TypeRoomJoin      Type = "room.join"
	TypeRoomLeave     Type = "room.leave"
	TypeRoomLeaveSeat Type = "room.leave-seat"
	TypeRoomKick      Type = "room.kick"
	TypeRoomTransfer  Type = "room.transfer"
	TypeRoomClose     Type = "room.close"
	TypeRoomStart     Type = "room.start"
	TypeRoomReady     Type = "room.ready"
	TypeRoomUnready   Type = "room.unready"
)

// Bidirectional and outbound event types.
const (
	TypePlayerStatus  Type = "player.status"
	TypePlayerCommand Type = "player.command"
	TypePlayerMessage Type = "player.message"
	TypePlayerError   Type = "player.error"

	TypeRoomUpdate        Type = "room.update"
	TypeRoomEnd           Type = "room.end"
	TypeRoomAllReady      Type = "room.all-ready"
	TypeRoomCommand       Type = "room.command"
	TypeRoomMessage       Type = "room.message"
	TypeRoomPlayerReady   Type = "room.player-ready"
	TypeRoomPlayerUnready Type = "room.player-unready"

	TypeGlobalCommand Type = "global.command"
	TypeGlobalMessage Type = "global.message"
	TypeGlobalError   Type = "global.error"
)

// Scope says which recipient set an outbound type addresses.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopePlayer
	ScopeRoom
)

// Scope derives the addressing scope from the type's namespace prefix.
func (t Type) Scope() Scope {
	switch {
	case strings.HasPrefix(string(t), "player."):
		return ScopePlayer
	case strings.HasPrefix(string(t), "room."):
		return ScopeRoom
	default:
		return ScopeGlobal
	}
}

var knownTypes = map[Type]struct{}{
	TypePlayerList: {}, TypePlayerLogin: {}, TypePlayerLogout: {}, TypePlayerOffline: {},
	TypePlayerStatus: {}, TypePlayerCommand: {}, TypePlayerMessage: {}, TypePlayerError: {},
	TypeRoomList: {}, TypeRoomCreate: {}, TypeRoomJoin: {}, TypeRoomLeave: {},
	TypeRoomLeaveSeat: {}, TypeRoomKick: {}, TypeRoomTransfer: {}, TypeRoomClose: {},
	TypeRoomStart: {}, TypeRoomReady: {}, TypeRoomUnready: {},
	TypeRoomUpdate: {}, TypeRoomEnd: {}, TypeRoomAllReady: {},
	TypeRoomCommand: {}, TypeRoomMessage: {},
	TypeRoomPlayerReady: {}, TypeRoomPlayerUnready: {},
	TypeGlobalCommand: {}, TypeGlobalMessage: {}, TypeGlobalError: {},
}

// Known reports whether t is part of the closed protocol set.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// PlayerRef identifies a player on the wire. The server stamps Sender from
// the authenticated connection; it is never trusted from the client payload
// outside the login handshake.
type PlayerRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Envelope is the bidirectional wire frame.
type Envelope struct {
	Type   Type            `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Sender *PlayerRef      `json:"sender,omitempty"`
}

// Decode parses a raw frame into an Envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed packet: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("malformed packet: missing type")
	}
	return &env, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("missing payload for %s", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("bad payload for %s: %w", e.Type, err)
	}
	return nil
}

// NewEnvelope marshals v as the payload of a new envelope.
func NewEnvelope(t Type, v any) (*Envelope, error) {
	if v == nil {
		return &Envelope{Type: t}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return &Envelope{Type: t, Data: data}, nil
}

// Marshal renders the envelope to its wire form.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
