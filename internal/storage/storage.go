// Package storage defines the persistence contract game modules and the
// engine use to save and restore room-scoped state. Backends are
// interchangeable and behave identically from the caller's perspective:
// CreateRoom on an existing id returns the existing record instead of
// erroring, and writes against unknown room ids are silent no-ops — callers
// needing existence guarantees call CreateRoom first.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/parlorhq/parlor/internal/room"
)

// Record is the persisted shape of a room: descriptor fields, the
// serialized player list, and the opaque game-data blob owned by the game
// module. The engine never interprets GameData.
type Record struct {
	RoomID    string            `json:"roomId" bson:"_id"`
	Type      string            `json:"type" bson:"type"`
	Name      string            `json:"name" bson:"name"`
	Size      int               `json:"size" bson:"size"`
	MinSize   int               `json:"minSize" bson:"min_size"`
	Players   []room.RoomPlayer `json:"players" bson:"players"`
	GameData  json.RawMessage   `json:"gameData,omitempty" bson:"game_data,omitempty"`
	CreatedAt time.Time         `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time         `json:"updatedAt" bson:"updated_at"`
}

// Descriptor carries the fields CreateRoom persists for a new room.
type Descriptor struct {
	RoomID  string
	Type    string
	Name    string
	Size    int
	MinSize int
	Players []room.RoomPlayer
}

// NewRecord builds the initial record for a descriptor.
func NewRecord(desc Descriptor, now time.Time) *Record {
	return &Record{
		RoomID:    desc.RoomID,
		Type:      desc.Type,
		Name:      desc.Name,
		Size:      desc.Size,
		MinSize:   desc.MinSize,
		Players:   desc.Players,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store is the uniform save/restore/delete contract over room records.
type Store interface {
	// CreateRoom persists a new room record, idempotently by room id: when
	// the id already exists the stored record is returned unchanged.
	CreateRoom(ctx context.Context, desc Descriptor) (*Record, error)

	// Rooms returns every persisted room record.
	Rooms(ctx context.Context) ([]*Record, error)

	// UpdatePlayerList replaces the serialized player list. Unknown room ids
	// are a no-op.
	UpdatePlayerList(ctx context.Context, roomID string, players []room.RoomPlayer) error

	// SaveGameData replaces the opaque game-data blob. Unknown room ids are
	// a no-op.
	SaveGameData(ctx context.Context, roomID string, blob json.RawMessage) error

	// GameData returns the stored blob, or nil (not an error) when the room
	// id is unknown or has no data yet.
	GameData(ctx context.Context, roomID string) (json.RawMessage, error)

	// CloseRoom deletes the record. Unknown room ids are a no-op.
	CloseRoom(ctx context.Context, roomID string) error

	// Close releases backend resources.
	Close() error
}
