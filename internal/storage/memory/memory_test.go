package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/room"
	"github.com/parlorhq/parlor/internal/storage"
)

func testDesc(id string) storage.Descriptor {
	return storage.Descriptor{
		RoomID:  id,
		Type:    "chess",
		Name:    "room " + id,
		Size:    4,
		MinSize: 2,
		Players: []room.RoomPlayer{{ID: "p1", Name: "Alice", Role: room.RolePlayer, IsCreator: true}},
	}
}

func TestCreateRoomIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateRoom(ctx, testDesc("r1"))
	require.NoError(t, err)
	assert.Equal(t, "r1", first.RoomID)
	assert.Equal(t, "chess", first.Type)

	// Re-create with a different descriptor returns the original, unchanged.
	again := testDesc("r1")
	again.Name = "something else"
	second, err := s.CreateRoom(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestUnknownRoomWritesAreNoOps(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.UpdatePlayerList(ctx, "ghost", []room.RoomPlayer{{ID: "p1"}}))
	require.NoError(t, s.SaveGameData(ctx, "ghost", json.RawMessage(`{}`)))
	require.NoError(t, s.CloseRoom(ctx, "ghost"))

	blob, err := s.GameData(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, blob)

	recs, err := s.Rooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGameDataRoundtrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateRoom(ctx, testDesc("r1"))
	require.NoError(t, err)

	blob, err := s.GameData(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, blob, "no data saved yet")

	require.NoError(t, s.SaveGameData(ctx, "r1", json.RawMessage(`{"turn":3}`)))
	blob, err = s.GameData(ctx, "r1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"turn":3}`, string(blob))
}

func TestUpdatePlayerList(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateRoom(ctx, testDesc("r1"))
	require.NoError(t, err)

	players := []room.RoomPlayer{
		{ID: "p1", Name: "Alice", Role: room.RolePlayer, IsCreator: true},
		{ID: "p2", Name: "Bob", Role: room.RoleWatcher},
	}
	require.NoError(t, s.UpdatePlayerList(ctx, "r1", players))

	recs, err := s.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].Players, 2)
}

func TestCloseRoomRemovesRecord(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateRoom(ctx, testDesc("r1"))
	require.NoError(t, err)
	require.NoError(t, s.CloseRoom(ctx, "r1"))

	recs, err := s.Rooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRecordsAreDetached(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec, err := s.CreateRoom(ctx, testDesc("r1"))
	require.NoError(t, err)
	rec.Players[0].Name = "Mallory"

	recs, err := s.Rooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", recs[0].Players[0].Name)
}
