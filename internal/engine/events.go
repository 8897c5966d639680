package engine

import (
	"context"

	"github.com/parlorhq/parlor/internal/player"
	"github.com/parlorhq/parlor/internal/protocol"
	"github.com/parlorhq/parlor/internal/room"
)

// onRoomEvent is the engine's room listener: it turns lifecycle events into
// outbound packets addressed to the room's current members and mirrors the
// durable parts into storage. It runs on the mutating goroutine and must not
// call back into the room registry.
func (e *Engine) onRoomEvent(ev room.Event) {
	switch ev.Kind {
	case room.EventUpdate:
		e.sendRoom(ev.Room, protocol.TypeRoomUpdate, ev.Snapshot)
		players := ev.Snapshot.Players
		e.mirror("player list "+ev.Room.ID(), func(ctx context.Context) error {
			return e.store.UpdatePlayerList(ctx, ev.Room.ID(), players)
		})

	case room.EventPlayerReady:
		e.sendRoom(ev.Room, protocol.TypeRoomPlayerReady, protocol.ReadyPayload{
			RoomID:   ev.Room.ID(),
			PlayerID: ev.PlayerID,
			Ready:    true,
		})
		e.reportStatus(ev.PlayerID, player.StatusReady)

	case room.EventPlayerUnready:
		e.sendRoom(ev.Room, protocol.TypeRoomPlayerUnready, protocol.ReadyPayload{
			RoomID:   ev.Room.ID(),
			PlayerID: ev.PlayerID,
			Ready:    false,
		})
		e.reportStatus(ev.PlayerID, player.StatusUnready)

	case room.EventAllReady:
		e.log.Infof("room %s all seated players ready", ev.Room.ID())
		e.sendRoom(ev.Room, protocol.TypeRoomAllReady, ev.Snapshot)

	case room.EventStart:
		e.log.Infof("room %s started", ev.Room.ID())
		e.sendRoom(ev.Room, protocol.TypeRoomStart, ev.Snapshot)
		for _, rp := range ev.Snapshot.Players {
			if rp.Role == room.RolePlayer {
				e.reportStatus(rp.ID, player.StatusPlaying)
			}
		}

	case room.EventEnd:
		e.log.Infof("room %s round ended", ev.Room.ID())
		e.sendRoom(ev.Room, protocol.TypeRoomEnd, ev.Snapshot)
		for _, rp := range ev.Snapshot.Players {
			if rp.Role == room.RolePlayer {
				e.reportStatus(rp.ID, player.StatusOnline)
			}
		}

	case room.EventClose:
		e.sendRoom(ev.Room, protocol.TypeRoomClose, ev.Snapshot)
		e.dropBinding(ev.Room.ID())
		e.mirror("close room "+ev.Room.ID(), func(ctx context.Context) error {
			return e.store.CloseRoom(ctx, ev.Room.ID())
		})

	case room.EventPlayerOffline:
		e.log.Infof("room %s: player %s went offline", ev.Room.ID(), ev.PlayerID)
	}
}

// sendRoom addresses an event to the room's members as of right now.
func (e *Engine) sendRoom(rm *room.Room, t protocol.Type, v any) {
	e.emit(t, v, "", rm)
}

// reportStatus updates a registered player's presence status and tells them.
// Players who already disconnected are skipped silently.
func (e *Engine) reportStatus(playerID string, status player.Status) {
	p, err := e.players.SetStatus(playerID, status)
	if err != nil {
		return
	}
	e.emit(protocol.TypePlayerStatus, protocol.StatusPayload{
		ID:     p.ID,
		Status: string(p.Status),
	}, playerID, nil)
}

// offlineCheck runs once the grace period after a disconnect lapses. A
// player who logged back in is registered again and keeps their seats
// untouched; anyone else is flagged offline in every room they occupy.
func (e *Engine) offlineCheck(playerID string) {
	if e.players.Registered(playerID) {
		return
	}
	for _, rm := range e.rooms.RoomsOf(playerID) {
		if rm.SetOffline(playerID) {
			e.log.Infof("player %s timed out of room %s", playerID, rm.ID())
		}
	}
}
