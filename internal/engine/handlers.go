package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/parlorhq/parlor/internal/gamemod"
	"github.com/parlorhq/parlor/internal/player"
	"github.com/parlorhq/parlor/internal/protocol"
	"github.com/parlorhq/parlor/internal/room"
	"github.com/parlorhq/parlor/internal/storage"
)

const defaultMinSize = 2

// kindOf maps domain sentinels to the wire error kind.
func kindOf(err error) protocol.ErrorKind {
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, player.ErrNotFound):
		return protocol.KindNotFound
	case errors.Is(err, room.ErrPermission):
		return protocol.KindPermission
	case errors.Is(err, room.ErrRoomExists),
		errors.Is(err, room.ErrRoomFull),
		errors.Is(err, room.ErrAlreadySeated),
		errors.Is(err, room.ErrNotInRoom),
		errors.Is(err, room.ErrNotSeated),
		errors.Is(err, room.ErrWrongStatus),
		errors.Is(err, room.ErrTooFewPlayers),
		errors.Is(err, room.ErrNotAllReady):
		return protocol.KindConflict
	default:
		return protocol.KindValidation
	}
}

// isAdmin reads the admin flag off the player's login attributes.
func (e *Engine) isAdmin(id string) bool {
	p, err := e.players.Get(id)
	if err != nil {
		return false
	}
	admin, _ := p.Attrs["admin"].(bool)
	return admin
}

// displayName prefers the registered name over the wire ref.
func (e *Engine) displayName(sender protocol.PlayerRef) string {
	if p, err := e.players.Get(sender.ID); err == nil && p.Name != "" {
		return p.Name
	}
	return sender.Name
}

// handleLogin registers the sender. The identity was already authenticated
// by the handshake; here the attributes land in the registry and, on a
// re-login inside the grace window, the player's rooms flip back online.
func (e *Engine) handleLogin(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.LoginRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}

	p, existed := e.players.Login(sender.ID, req.Name, req.Attrs)
	if existed {
		e.log.Infof("player %s logged in again", p.ID)
	} else {
		e.log.Infof("player %s logged in as %q", p.ID, p.Name)
	}

	e.sendTo(sender.ID, protocol.TypePlayerStatus, protocol.StatusPayload{
		ID:     p.ID,
		Status: string(p.Status),
	})

	// Reconnect: clear offline flags and resync the player's rooms. A seat
	// in a mid-game room restores the playing status and the game module's
	// view of the state for this player.
	for _, rm := range e.rooms.RoomsOf(sender.ID) {
		rm.SetOnline(sender.ID)
		e.sendTo(sender.ID, protocol.TypeRoomUpdate, rm.Snapshot())

		if rm.Status() != room.StatusPlaying || !rm.SeatedIn(sender.ID) {
			continue
		}
		e.reportStatus(sender.ID, player.StatusPlaying)
		if b := e.binding(rm.ID()); b != nil {
			if st := b.Module().GetStatus(sender.ID); st != nil {
				data, err := json.Marshal(st)
				if err != nil {
					e.log.Errorf("encode game status for %s: %v", sender.ID, err)
					continue
				}
				e.sendTo(sender.ID, protocol.TypePlayerCommand, protocol.CommandRequest{
					RoomID: rm.ID(),
					Name:   "game.status",
					Data:   data,
				})
			}
		}
	}
	return nil
}

func (e *Engine) handleLogout(sender protocol.PlayerRef, _ *protocol.Envelope) error {
	if err := e.players.Logout(sender.ID); err != nil {
		return err
	}
	e.presence.schedule(sender.ID)
	e.sendTo(sender.ID, protocol.TypePlayerStatus, protocol.StatusPayload{
		ID:     sender.ID,
		Status: string(player.StatusOffline),
	})
	return nil
}

// handleMarkOffline lets a client flag itself away without dropping the
// socket. Seats are flagged immediately; no grace period applies.
func (e *Engine) handleMarkOffline(sender protocol.PlayerRef, _ *protocol.Envelope) error {
	if _, err := e.players.SetStatus(sender.ID, player.StatusOffline); err != nil {
		return err
	}
	for _, rm := range e.rooms.RoomsOf(sender.ID) {
		rm.SetOffline(sender.ID)
	}
	e.sendTo(sender.ID, protocol.TypePlayerStatus, protocol.StatusPayload{
		ID:     sender.ID,
		Status: string(player.StatusOffline),
	})
	return nil
}

func (e *Engine) handlePlayerList(sender protocol.PlayerRef, _ *protocol.Envelope) error {
	e.sendTo(sender.ID, protocol.TypePlayerList, e.players.List())
	return nil
}

func (e *Engine) handleRoomList(sender protocol.PlayerRef, _ *protocol.Envelope) error {
	e.sendTo(sender.ID, protocol.TypeRoomList, e.rooms.List())
	return nil
}

func (e *Engine) handleRoomCreate(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.CreateRoomRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	if req.Size <= 0 {
		return fmt.Errorf("room size must be positive")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("room-%.8s", id)
	}
	minSize := req.MinSize
	if minSize <= 0 {
		minSize = min(defaultMinSize, req.Size)
	}
	if minSize > req.Size {
		return fmt.Errorf("minSize %d exceeds size %d", minSize, req.Size)
	}
	requireReady := true
	if req.RequireReady != nil {
		requireReady = *req.RequireReady
	}

	p := room.Params{
		ID:           id,
		Name:         name,
		Size:         req.Size,
		MinSize:      minSize,
		RequireReady: requireReady,
		Attrs:        req.Attrs,
	}
	rm, err := e.rooms.Create(p, sender.ID, e.displayName(sender), e.setupRoom)
	if err != nil {
		return err
	}

	snap := rm.Snapshot()
	e.mirror("create room "+id, func(ctx context.Context) error {
		_, err := e.store.CreateRoom(ctx, storage.Descriptor{
			RoomID:  id,
			Type:    rm.Type(),
			Name:    name,
			Size:    req.Size,
			MinSize: minSize,
			Players: snap.Players,
		})
		return err
	})
	return nil
}

// setupRoom runs on every fresh room before its creator is seated: the
// engine's broadcast listener subscribes first, then the game module for the
// room's type tag, so both observe the initial join.
func (e *Engine) setupRoom(rm *room.Room) {
	rm.Subscribe(e.onRoomEvent)
	if factory, ok := e.modules.Lookup(rm.Type()); ok {
		b := gamemod.Bind(gamemod.Context{
			Room:  rm,
			Store: e.store,
			Log:   e.log,
			Reply: func(playerID string, env *protocol.Envelope) {
				e.transport.Send([]string{playerID}, env)
			},
		}, factory)
		e.setBinding(rm.ID(), b)
		e.log.Infof("room %s bound to game module %q", rm.ID(), rm.Type())
	}
}

func (e *Engine) handleRoomJoin(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.JoinRoomRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	role := room.RolePlayer
	if req.Watch {
		role = room.RoleWatcher
	}
	return e.rooms.Join(req.RoomID, sender.ID, e.displayName(sender), role)
}

func (e *Engine) handleRoomLeave(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.RoomRef
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	rm, err := e.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	return rm.Leave(sender.ID)
}

func (e *Engine) handleRoomLeaveSeat(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.RoomRef
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	rm, err := e.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	return rm.LeaveSeat(sender.ID)
}

func (e *Engine) handleRoomKick(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.TargetRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	rm, err := e.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	return rm.Kick(sender.ID, req.TargetID, e.isAdmin(sender.ID))
}

func (e *Engine) handleRoomTransfer(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.TargetRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	rm, err := e.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	return rm.TransferOwner(sender.ID, req.TargetID, e.isAdmin(sender.ID))
}

func (e *Engine) handleRoomClose(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.RoomRef
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	return e.rooms.Close(req.RoomID, sender.ID, e.isAdmin(sender.ID))
}

func (e *Engine) handleRoomStart(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.RoomRef
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	rm, err := e.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	if !e.isAdmin(sender.ID) && !rm.IsCreator(sender.ID) {
		return fmt.Errorf("start room %s: %w", req.RoomID, room.ErrPermission)
	}
	return rm.Start()
}

func (e *Engine) handleRoomReady(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.RoomRef
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	rm, err := e.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	return rm.Ready(sender.ID)
}

func (e *Engine) handleRoomUnready(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.RoomRef
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	rm, err := e.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	return rm.Unready(sender.ID)
}

func (e *Engine) handleRoomCommand(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.CommandRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	rm, err := e.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	return rm.PlayerCommand(sender.ID, req.Name, req.Data)
}

func (e *Engine) handleRoomMessage(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.MessageRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	rm, err := e.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	if _, ok := rm.Member(sender.ID); !ok {
		return fmt.Errorf("message in %s: %w", req.RoomID, room.ErrNotInRoom)
	}

	out, err := protocol.NewEnvelope(protocol.TypeRoomMessage, req)
	if err != nil {
		return err
	}
	out.Sender = &protocol.PlayerRef{ID: sender.ID, Name: e.displayName(sender)}
	e.route(out, "", rm)
	return nil
}

func (e *Engine) handlePlayerMessage(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.MessageRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	if !e.players.Registered(req.TargetID) {
		return fmt.Errorf("message to %s: %w", req.TargetID, player.ErrNotFound)
	}

	out, err := protocol.NewEnvelope(protocol.TypePlayerMessage, req)
	if err != nil {
		return err
	}
	out.Sender = &protocol.PlayerRef{ID: sender.ID, Name: e.displayName(sender)}
	e.route(out, req.TargetID, nil)
	return nil
}

// handleGlobalCommand fans an admin command out to every room's listeners
// and every connected player.
func (e *Engine) handleGlobalCommand(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.CommandRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	if !e.isAdmin(sender.ID) {
		return fmt.Errorf("global command: %w", room.ErrPermission)
	}

	for _, rm := range e.rooms.All() {
		rm.GlobalCommand(sender.ID, req.Name, req.Data)
	}
	out, err := protocol.NewEnvelope(protocol.TypeGlobalCommand, req)
	if err != nil {
		return err
	}
	out.Sender = &protocol.PlayerRef{ID: sender.ID, Name: e.displayName(sender)}
	e.route(out, "", nil)
	return nil
}

func (e *Engine) handleGlobalMessage(sender protocol.PlayerRef, env *protocol.Envelope) error {
	var req protocol.MessageRequest
	if err := env.DecodeData(&req); err != nil {
		return err
	}
	out, err := protocol.NewEnvelope(protocol.TypeGlobalMessage, req)
	if err != nil {
		return err
	}
	out.Sender = &protocol.PlayerRef{ID: sender.ID, Name: e.displayName(sender)}
	e.route(out, "", nil)
	return nil
}
