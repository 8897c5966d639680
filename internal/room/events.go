package room

import "encoding/json"

// EventKind is the closed set of room lifecycle events. Listeners switch on
// it; there is no string-keyed dispatch.
type EventKind int

const (
	EventJoin EventKind = iota
	EventLeave
	EventUpdate
	EventMembership
	EventPlayerReady
	EventPlayerUnready
	EventAllReady
	EventStart
	EventEnd
	EventClose
	EventPlayerOffline
	EventPlayerCommand
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventUpdate:
		return "update"
	case EventMembership:
		return "membership"
	case EventPlayerReady:
		return "player-ready"
	case EventPlayerUnready:
		return "player-unready"
	case EventAllReady:
		return "all-ready"
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventClose:
		return "close"
	case EventPlayerOffline:
		return "player-offline"
	case EventPlayerCommand:
		return "player-command"
	case EventCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Event is delivered synchronously, in emission order, to every listener of
// the room that produced it.
type Event struct {
	Kind EventKind
	Room *Room

	// PlayerID names the player the event is about, when there is one.
	PlayerID string

	// Snapshot is the full room state after the mutation. Set on EventUpdate
	// and on the lifecycle events that change membership or status.
	Snapshot *Snapshot

	// Members is the member count at emission time. Set on EventMembership;
	// the registry's listener closes the room when it reaches zero.
	Members int

	// Command carries the payload of player-command / command events.
	Command *Command
}

// Command is a routed game command as seen by room listeners.
type Command struct {
	SenderID string
	Name     string
	Data     json.RawMessage
}

// Listener observes room events. Listeners run on the goroutine that
// performed the mutation and must not block.
type Listener func(Event)
