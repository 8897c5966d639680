package protocol

import "encoding/json"

// ErrorKind is the stable machine-readable class on a player.error payload.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindPermission  ErrorKind = "permission"
	KindConflict    ErrorKind = "conflict"
	KindDecode      ErrorKind = "decode"
	KindUnavailable ErrorKind = "unavailable"
)

// ErrorPayload is the body of player.error and global.error messages.
// player.error answers the failing caller only; global.error carries
// server-wide conditions such as shutdown to every connected player.
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// LoginRequest is the player.login payload. Either Token (a signed identity
// token) or ID must be set; Token wins when both are present.
type LoginRequest struct {
	ID    string         `json:"id,omitempty"`
	Token string         `json:"token,omitempty"`
	Name  string         `json:"name,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// CreateRoomRequest is the room.create payload. RequireReady defaults to
// true when omitted.
type CreateRoomRequest struct {
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name"`
	Size         int            `json:"size"`
	MinSize      int            `json:"minSize,omitempty"`
	RequireReady *bool          `json:"requireReady,omitempty"`
	Attrs        map[string]any `json:"attrs,omitempty"`
}

// JoinRoomRequest is the room.join payload. Watch joins as a watcher
// instead of taking a seat.
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
	Watch  bool   `json:"watch,omitempty"`
}

// RoomRef names a room for leave / leave-seat / close / start / ready /
// unready commands.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// TargetRequest names a room plus another player, for kick and transfer.
type TargetRequest struct {
	RoomID   string `json:"roomId"`
	TargetID string `json:"targetId"`
}

// CommandRequest is the payload of player/room/global command messages.
// RoomID is required for room.command and ignored otherwise.
type CommandRequest struct {
	RoomID string          `json:"roomId,omitempty"`
	Name   string          `json:"name"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// MessageRequest is a chat-style relay payload. RoomID addresses a room
// message; TargetID addresses a private player message.
type MessageRequest struct {
	RoomID   string `json:"roomId,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	Text     string `json:"text"`
}

// StatusPayload reports a player's own status transition.
type StatusPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ReadyPayload is the body of room.player-ready / room.player-unready.
type ReadyPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
}
