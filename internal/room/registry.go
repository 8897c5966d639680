package room

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry tracks all live rooms and enforces the invariants that span
// rooms: unique room ids and the one-seat-per-player rule. Mutations that
// add members run under the registry mutex so concurrent joins cannot give
// a player two seats.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	log   *logrus.Logger
}

// NewRegistry returns an empty room registry.
func NewRegistry(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		rooms: make(map[string]*Room),
		log:   log,
	}
}

// Create registers a new room and auto-joins the creator as its first
// seated member. setup runs on the fresh room before the creator joins, so
// listeners subscribed there observe the initial join and update events.
func (reg *Registry) Create(p Params, creatorID, creatorName string, setup func(*Room)) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[p.ID]; exists {
		return nil, fmt.Errorf("create room %s: %w", p.ID, ErrRoomExists)
	}
	if other := reg.seatedRoomLocked(creatorID); other != nil {
		return nil, fmt.Errorf("create room %s: creator %s seated in %s: %w",
			p.ID, creatorID, other.ID(), ErrAlreadySeated)
	}

	rm := New(p)
	rm.Subscribe(reg.closeWhenEmpty)
	if setup != nil {
		setup(rm)
	}
	reg.rooms[p.ID] = rm

	if err := rm.Join(creatorID, creatorName, RolePlayer); err != nil {
		delete(reg.rooms, p.ID)
		return nil, fmt.Errorf("create room %s: seat creator: %w", p.ID, err)
	}
	reg.log.Infof("room %s created by %s", p.ID, creatorID)
	return rm, nil
}

// Join adds a player to an existing room, holding the registry lock across
// the room mutation so the one-seat rule cannot be raced.
func (reg *Registry) Join(roomID, playerID, name string, role Role) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rm, ok := reg.rooms[roomID]
	if !ok {
		return fmt.Errorf("join room %s: %w", roomID, ErrRoomNotFound)
	}
	if role == RolePlayer {
		if other := reg.seatedRoomLocked(playerID); other != nil && other != rm {
			return fmt.Errorf("join room %s: player %s seated in %s: %w",
				roomID, playerID, other.ID(), ErrAlreadySeated)
		}
	}
	return rm.Join(playerID, name, role)
}

func (reg *Registry) seatedRoomLocked(playerID string) *Room {
	for _, rm := range reg.rooms {
		if rm.SeatedIn(playerID) {
			return rm
		}
	}
	return nil
}

// SeatedRoomOf returns the room in which the player currently holds a seat.
func (reg *Registry) SeatedRoomOf(playerID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rm := reg.seatedRoomLocked(playerID)
	return rm, rm != nil
}

// RoomsOf returns every room the player is a member of, in any role.
func (reg *Registry) RoomsOf(playerID string) []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var out []*Room
	for _, rm := range reg.rooms {
		if _, ok := rm.Member(playerID); ok {
			out = append(out, rm)
		}
	}
	return out
}

// Get looks up a live room.
func (reg *Registry) Get(roomID string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rm, ok := reg.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrRoomNotFound)
	}
	return rm, nil
}

// All returns every live room.
func (reg *Registry) All() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, rm := range reg.rooms {
		out = append(out, rm)
	}
	return out
}

// List returns snapshots of every live room.
func (reg *Registry) List() []*Snapshot {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, rm := range reg.rooms {
		rooms = append(rooms, rm)
	}
	reg.mu.Unlock()

	out := make([]*Snapshot, len(rooms))
	for i, rm := range rooms {
		out[i] = rm.Snapshot()
	}
	return out
}

// Close removes a room on behalf of its creator or an admin and fires the
// room's close event.
func (reg *Registry) Close(roomID, actorID string, actorAdmin bool) error {
	reg.mu.Lock()
	rm, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return fmt.Errorf("close room %s: %w", roomID, ErrRoomNotFound)
	}
	if !actorAdmin && !rm.IsCreator(actorID) {
		reg.mu.Unlock()
		return fmt.Errorf("close room %s: %w", roomID, ErrPermission)
	}
	delete(reg.rooms, roomID)
	reg.mu.Unlock()

	reg.log.Infof("room %s closed by %s", roomID, actorID)
	rm.close()
	return nil
}

// closeWhenEmpty is the membership policy: a room whose member list drains
// to zero is unlinked and closed. The room itself never decides this.
func (reg *Registry) closeWhenEmpty(ev Event) {
	if ev.Kind != EventMembership || ev.Members > 0 {
		return
	}
	reg.mu.Lock()
	rm, ok := reg.rooms[ev.Room.ID()]
	if !ok || rm != ev.Room {
		reg.mu.Unlock()
		return
	}
	delete(reg.rooms, ev.Room.ID())
	reg.mu.Unlock()

	reg.log.Infof("room %s empty, closing", ev.Room.ID())
	ev.Room.close()
}
