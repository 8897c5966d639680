package gamemod

import (
	"context"
	"encoding/json"

	"github.com/parlorhq/parlor/internal/room"
)

// Binding ties one module instance to one room: it subscribes to the room's
// events, translates them into module hooks, and exposes save/restore
// delegation to the storage contract.
type Binding struct {
	mc  Context
	mod Module
}

// Bind builds the module and subscribes it to the room's events.
func Bind(mc Context, factory Factory) *Binding {
	b := &Binding{mc: mc, mod: factory(mc)}
	mc.Room.Subscribe(b.onEvent)
	return b
}

// Module returns the bound module instance.
func (b *Binding) Module() Module { return b.mod }

func (b *Binding) onEvent(ev room.Event) {
	defer func() {
		// A misbehaving module must not take the room down with it.
		if r := recover(); r != nil {
			b.mc.Log.Errorf("game module for room %s panicked on %s: %v",
				b.mc.Room.ID(), ev.Kind, r)
		}
	}()

	switch ev.Kind {
	case room.EventStart:
		b.mod.OnStart()
	case room.EventEnd, room.EventClose:
		b.mod.OnEnd()
	case room.EventPlayerCommand, room.EventCommand:
		if ev.Command != nil {
			b.mod.OnCommand(*ev.Command)
		}
	case room.EventJoin:
		if obs, ok := b.mod.(MemberObserver); ok {
			obs.OnJoin(ev.PlayerID)
		}
	case room.EventLeave:
		if obs, ok := b.mod.(MemberObserver); ok {
			obs.OnLeave(ev.PlayerID)
		}
	case room.EventPlayerOffline:
		if obs, ok := b.mod.(MemberObserver); ok {
			obs.OnPlayerOffline(ev.PlayerID)
		}
	}
}

// Save persists the module's durable snapshot under its room id.
func (b *Binding) Save(ctx context.Context) error {
	return b.mc.Store.SaveGameData(ctx, b.mc.Room.ID(), b.mod.GetData())
}

// Restore reads back the previously saved snapshot; nil when none exists.
func (b *Binding) Restore(ctx context.Context) (json.RawMessage, error) {
	return b.mc.Store.GameData(ctx, b.mc.Room.ID())
}
