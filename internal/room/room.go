// Package room implements the room lifecycle state machine and the registry
// of live rooms. A Room owns its ordered member list and status; every
// mutation that touches membership or status re-derives a full snapshot and
// hands it to listeners, so clients reconcile against whole states rather
// than deltas.
package room

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
)

// Role distinguishes seated participants from spectators.
type Role string

const (
	RolePlayer  Role = "player"
	RoleWatcher Role = "watcher"
)

// Status is the room lifecycle state. Transitions are
// waiting -> playing -> (waiting | ended); ended is terminal.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

// RoomPlayer is a player's membership facet within one room. It shares
// identity with the registry Player by id but lives and dies with the
// membership.
type RoomPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	IsReady   bool   `json:"isReady"`
	IsCreator bool   `json:"isCreator"`
	Offline   bool   `json:"offline,omitempty"`
}

// Params configures a new room.
type Params struct {
	ID           string
	Name         string
	Size         int
	MinSize      int
	RequireReady bool
	Attrs        map[string]any
}

// Room is a bounded group of players sharing one game session. All state is
// guarded by one mutex; events are emitted synchronously after the lock is
// released, in the order they were produced.
type Room struct {
	id           string
	name         string
	size         int
	minSize      int
	requireReady bool
	attrs        map[string]any

	mu            sync.Mutex
	status        Status
	players       []*RoomPlayer
	listeners     []Listener
	allReadyFired bool
}

// New builds an empty room in the waiting state. The registry immediately
// joins the creator afterwards; a Room is never long-lived without members.
func New(p Params) *Room {
	return &Room{
		id:           p.ID,
		name:         p.Name,
		size:         p.Size,
		minSize:      p.MinSize,
		requireReady: p.RequireReady,
		attrs:        maps.Clone(p.Attrs),
		status:       StatusWaiting,
	}
}

func (r *Room) ID() string   { return r.id }
func (r *Room) Name() string { return r.name }
func (r *Room) Size() int    { return r.size }

// Attr reads an open room attribute (game modules tag room type and custom
// config here).
func (r *Room) Attr(key string) (any, bool) {
	v, ok := r.attrs[key]
	return v, ok
}

// Status returns the current lifecycle state.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Subscribe registers a listener for this room's events.
func (r *Room) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// emit delivers events outside the room lock, preserving order.
func (r *Room) emit(events []Event) {
	r.mu.Lock()
	ls := make([]Listener, len(r.listeners))
	copy(ls, r.listeners)
	r.mu.Unlock()
	for _, ev := range events {
		for _, l := range ls {
			l(ev)
		}
	}
}

func (r *Room) memberLocked(id string) (*RoomPlayer, int) {
	for i, rp := range r.players {
		if rp.ID == id {
			return rp, i
		}
	}
	return nil, -1
}

func (r *Room) creatorLocked() *RoomPlayer {
	for _, rp := range r.players {
		if rp.IsCreator {
			return rp
		}
	}
	return nil
}

func (r *Room) seatedLocked() []*RoomPlayer {
	var out []*RoomPlayer
	for _, rp := range r.players {
		if rp.Role == RolePlayer {
			out = append(out, rp)
		}
	}
	return out
}

// Member returns a copy of the named member's facet.
func (r *Room) Member(id string) (RoomPlayer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, _ := r.memberLocked(id)
	if rp == nil {
		return RoomPlayer{}, false
	}
	return *rp, true
}

// MemberIDs returns the ids of the current members, in join order. The
// engine resolves room.* recipients with this at emission time.
func (r *Room) MemberIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.players))
	for i, rp := range r.players {
		out[i] = rp.ID
	}
	return out
}

// IsCreator reports whether the identity holds the creator flag.
func (r *Room) IsCreator(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, _ := r.memberLocked(id)
	return rp != nil && rp.IsCreator
}

// SeatedIn reports whether the identity holds a seat (role player) here.
func (r *Room) SeatedIn(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, _ := r.memberLocked(id)
	return rp != nil && rp.Role == RolePlayer
}

// Join adds a member. If the room has no creator and the joiner takes a
// seat, the joiner is promoted to creator regardless of how they asked to
// join (self-healing ownership). Emits join then a room-wide update.
func (r *Room) Join(id, name string, role Role) error {
	r.mu.Lock()
	if r.status == StatusEnded {
		r.mu.Unlock()
		return fmt.Errorf("join %s: %w", r.id, ErrWrongStatus)
	}
	if rp, _ := r.memberLocked(id); rp != nil {
		r.mu.Unlock()
		return fmt.Errorf("join %s: player %s already in room", r.id, id)
	}
	if len(r.players) >= r.size {
		r.mu.Unlock()
		return fmt.Errorf("join %s: %w", r.id, ErrRoomFull)
	}

	rp := &RoomPlayer{ID: id, Name: name, Role: role}
	if role == RolePlayer && r.creatorLocked() == nil {
		rp.IsCreator = true
	}
	r.players = append(r.players, rp)

	events := []Event{
		{Kind: EventJoin, Room: r, PlayerID: id},
		{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()},
	}
	r.mu.Unlock()

	r.emit(events)
	return nil
}

// Leave removes a member voluntarily. Closure of an emptied room is the
// membership listener's decision, not the room's.
func (r *Room) Leave(id string) error {
	return r.remove(id, EventLeave)
}

// Kick removes a member by force. The actor must be an admin or the room's
// creator.
func (r *Room) Kick(actorID, targetID string, actorAdmin bool) error {
	r.mu.Lock()
	actor, _ := r.memberLocked(actorID)
	if !actorAdmin && (actor == nil || !actor.IsCreator) {
		r.mu.Unlock()
		return fmt.Errorf("kick in %s: %w", r.id, ErrPermission)
	}
	r.mu.Unlock()
	return r.remove(targetID, EventLeave)
}

func (r *Room) remove(id string, kind EventKind) error {
	r.mu.Lock()
	rp, idx := r.memberLocked(id)
	if rp == nil {
		r.mu.Unlock()
		return fmt.Errorf("remove from %s: player %s: %w", r.id, id, ErrNotInRoom)
	}
	r.players = append(r.players[:idx], r.players[idx+1:]...)

	events := []Event{
		{Kind: kind, Room: r, PlayerID: id},
		{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()},
		{Kind: EventMembership, Room: r, Members: len(r.players)},
	}
	r.mu.Unlock()

	r.emit(events)
	return nil
}

// LeaveSeat demotes a seated player to watcher without removing them from
// the room ("step away" semantics).
func (r *Room) LeaveSeat(id string) error {
	r.mu.Lock()
	rp, _ := r.memberLocked(id)
	if rp == nil {
		r.mu.Unlock()
		return fmt.Errorf("leave seat in %s: player %s: %w", r.id, id, ErrNotInRoom)
	}
	if rp.Role != RolePlayer {
		r.mu.Unlock()
		return fmt.Errorf("leave seat in %s: player %s: %w", r.id, id, ErrNotSeated)
	}
	rp.Role = RoleWatcher
	rp.IsReady = false

	events := []Event{{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()}}
	r.mu.Unlock()

	r.emit(events)
	return nil
}

// TransferOwner moves the creator flag to another member. No-op when the
// target already holds it.
func (r *Room) TransferOwner(actorID, targetID string, actorAdmin bool) error {
	r.mu.Lock()
	actor, _ := r.memberLocked(actorID)
	if !actorAdmin && (actor == nil || !actor.IsCreator) {
		r.mu.Unlock()
		return fmt.Errorf("transfer in %s: %w", r.id, ErrPermission)
	}
	target, _ := r.memberLocked(targetID)
	if target == nil {
		r.mu.Unlock()
		return fmt.Errorf("transfer in %s: player %s: %w", r.id, targetID, ErrNotInRoom)
	}
	if target.IsCreator {
		r.mu.Unlock()
		return nil
	}
	for _, rp := range r.players {
		rp.IsCreator = false
	}
	target.IsCreator = true

	events := []Event{{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()}}
	r.mu.Unlock()

	r.emit(events)
	return nil
}

// Ready marks a seated player ready. When every seated player is ready and
// the room requires readiness to start, all-ready fires exactly once per
// convergence; any player flipping back to unready re-arms it.
func (r *Room) Ready(id string) error {
	r.mu.Lock()
	rp, _ := r.memberLocked(id)
	if rp == nil {
		r.mu.Unlock()
		return fmt.Errorf("ready in %s: player %s: %w", r.id, id, ErrNotInRoom)
	}
	if rp.Role != RolePlayer {
		r.mu.Unlock()
		return fmt.Errorf("ready in %s: player %s: %w", r.id, id, ErrNotSeated)
	}
	if rp.IsReady {
		r.mu.Unlock()
		return nil
	}
	rp.IsReady = true

	events := []Event{
		{Kind: EventPlayerReady, Room: r, PlayerID: id},
		{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()},
	}
	if r.requireReady && !r.allReadyFired && r.allSeatedReadyLocked() {
		r.allReadyFired = true
		events = append(events, Event{Kind: EventAllReady, Room: r, Snapshot: r.snapshotLocked()})
	}
	r.mu.Unlock()

	r.emit(events)
	return nil
}

// Unready clears a seated player's ready flag and re-arms all-ready.
func (r *Room) Unready(id string) error {
	r.mu.Lock()
	rp, _ := r.memberLocked(id)
	if rp == nil {
		r.mu.Unlock()
		return fmt.Errorf("unready in %s: player %s: %w", r.id, id, ErrNotInRoom)
	}
	if rp.Role != RolePlayer {
		r.mu.Unlock()
		return fmt.Errorf("unready in %s: player %s: %w", r.id, id, ErrNotSeated)
	}
	if !rp.IsReady {
		r.mu.Unlock()
		return nil
	}
	rp.IsReady = false
	r.allReadyFired = false

	events := []Event{
		{Kind: EventPlayerUnready, Room: r, PlayerID: id},
		{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()},
	}
	r.mu.Unlock()

	r.emit(events)
	return nil
}

func (r *Room) allSeatedReadyLocked() bool {
	seated := r.seatedLocked()
	if len(seated) == 0 {
		return false
	}
	for _, rp := range seated {
		if !rp.IsReady {
			return false
		}
	}
	return true
}

// Start flips the room to playing. Actor eligibility is the caller's
// responsibility; game modules observe the transition via their start hook.
func (r *Room) Start() error {
	r.mu.Lock()
	if r.status != StatusWaiting {
		r.mu.Unlock()
		return fmt.Errorf("start %s: %w", r.id, ErrWrongStatus)
	}
	if len(r.seatedLocked()) < r.minSize {
		r.mu.Unlock()
		return fmt.Errorf("start %s: %w", r.id, ErrTooFewPlayers)
	}
	if r.requireReady && !r.allSeatedReadyLocked() {
		r.mu.Unlock()
		return fmt.Errorf("start %s: %w", r.id, ErrNotAllReady)
	}
	r.status = StatusPlaying

	events := []Event{
		{Kind: EventStart, Room: r, Snapshot: r.snapshotLocked()},
		{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()},
	}
	r.mu.Unlock()

	r.emit(events)
	return nil
}

// End resets a playing room back to waiting: every seated player's ready
// flag is cleared with one player-unready each, then end fires. The room
// survives; this is how a finished round resets the lobby.
func (r *Room) End() error {
	r.mu.Lock()
	if r.status != StatusPlaying {
		r.mu.Unlock()
		return fmt.Errorf("end %s: %w", r.id, ErrWrongStatus)
	}
	r.status = StatusWaiting
	r.allReadyFired = false

	// Every seat gets an unready event, readied or not, so clients that
	// never converged still observe the reset.
	var events []Event
	for _, rp := range r.seatedLocked() {
		rp.IsReady = false
		events = append(events, Event{Kind: EventPlayerUnready, Room: r, PlayerID: rp.ID})
	}
	events = append(events,
		Event{Kind: EventEnd, Room: r, Snapshot: r.snapshotLocked()},
		Event{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()},
	)
	r.mu.Unlock()

	r.emit(events)
	return nil
}

// close marks the room ended and emits the close event. Only the registry
// calls this, after unlinking the room.
func (r *Room) close() {
	r.mu.Lock()
	r.status = StatusEnded
	events := []Event{{Kind: EventClose, Room: r, Snapshot: r.snapshotLocked()}}
	r.mu.Unlock()
	r.emit(events)
}

// SetOffline flags a seated member offline after the grace period lapses.
// Watchers and departed members are a no-op: the grace check can fire long
// after the player left. Returns whether the flag changed.
func (r *Room) SetOffline(id string) bool {
	r.mu.Lock()
	rp, _ := r.memberLocked(id)
	if rp == nil || rp.Role != RolePlayer || rp.Offline {
		r.mu.Unlock()
		return false
	}
	rp.Offline = true

	events := []Event{
		{Kind: EventPlayerOffline, Room: r, PlayerID: id},
		{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()},
	}
	r.mu.Unlock()

	r.emit(events)
	return true
}

// SetOnline clears the offline flag on re-login and rebroadcasts the room.
// Returns whether the member was found.
func (r *Room) SetOnline(id string) bool {
	r.mu.Lock()
	rp, _ := r.memberLocked(id)
	if rp == nil {
		r.mu.Unlock()
		return false
	}
	changed := rp.Offline
	rp.Offline = false

	var events []Event
	if changed {
		events = append(events, Event{Kind: EventUpdate, Room: r, Snapshot: r.snapshotLocked()})
	}
	r.mu.Unlock()

	r.emit(events)
	return true
}

// PlayerCommand routes a room-scoped command from a member to the room's
// listeners (game modules).
func (r *Room) PlayerCommand(senderID, name string, data json.RawMessage) error {
	r.mu.Lock()
	if rp, _ := r.memberLocked(senderID); rp == nil {
		r.mu.Unlock()
		return fmt.Errorf("command in %s: player %s: %w", r.id, senderID, ErrNotInRoom)
	}
	ev := Event{
		Kind:    EventPlayerCommand,
		Room:    r,
		Command: &Command{SenderID: senderID, Name: name, Data: data},
	}
	r.mu.Unlock()

	r.emit([]Event{ev})
	return nil
}

// GlobalCommand routes a global command to this room's listeners.
func (r *Room) GlobalCommand(senderID, name string, data json.RawMessage) {
	r.emit([]Event{{
		Kind:    EventCommand,
		Room:    r,
		Command: &Command{SenderID: senderID, Name: name, Data: data},
	}})
}
