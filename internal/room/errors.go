package room

import "errors"

var (
	// ErrRoomNotFound is returned when an operation names a room id that is
	// not in the registry.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists is returned by create when the id is already taken.
	ErrRoomExists = errors.New("room already exists")

	// ErrRoomFull is returned by join when the player list is at capacity.
	ErrRoomFull = errors.New("room is full")

	// ErrAlreadySeated is returned when a player who already holds a seat in
	// one room tries to take a seat in another.
	ErrAlreadySeated = errors.New("player already seated in another room")

	// ErrNotInRoom is returned when the named player is not a member.
	ErrNotInRoom = errors.New("player not in room")

	// ErrNotSeated is returned for seat-only operations on a watcher.
	ErrNotSeated = errors.New("player is not seated")

	// ErrPermission is returned when the actor lacks creator/admin rights.
	ErrPermission = errors.New("permission denied")

	// ErrWrongStatus is returned for transitions the current room status
	// does not allow.
	ErrWrongStatus = errors.New("operation not allowed in current room status")

	// ErrTooFewPlayers is returned by start when fewer than minSize players
	// hold seats.
	ErrTooFewPlayers = errors.New("not enough seated players to start")

	// ErrNotAllReady is returned by start when the room requires readiness
	// and a seated player has not readied up.
	ErrNotAllReady = errors.New("not all seated players are ready")
)
