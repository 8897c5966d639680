// Package engine is the orchestrator: it decodes inbound packets into typed
// commands, drives the player and room registries, and routes outbound
// events to the right recipient set. Failures go back to the original
// caller only; successful state changes fan out through the event path.
package engine

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/parlorhq/parlor/internal/auth"
	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/gamemod"
	"github.com/parlorhq/parlor/internal/player"
	"github.com/parlorhq/parlor/internal/protocol"
	"github.com/parlorhq/parlor/internal/room"
	"github.com/parlorhq/parlor/internal/storage"
	"github.com/parlorhq/parlor/internal/transport"
)

const mirrorPoolSize = 64

type handlerFunc func(sender protocol.PlayerRef, env *protocol.Envelope) error

// Engine owns the dispatch table and the offline-grace scheduler. All
// registry and room mutation funnels through it.
type Engine struct {
	cfg       *config.Config
	log       *logrus.Logger
	players   *player.Registry
	rooms     *room.Registry
	modules   *gamemod.Registry
	store     storage.Store
	transport transport.Transport
	tokens    *auth.Tokens

	presence *presence
	pool     *ants.Pool
	handlers map[protocol.Type]handlerFunc
	stopOnce sync.Once

	bmu      sync.Mutex
	bindings map[string]*gamemod.Binding
}

// New wires an engine. The transport is the outbound side; inbound frames
// arrive through Authenticate/Dispatch/Disconnected.
func New(cfg *config.Config, log *logrus.Logger, store storage.Store, tr transport.Transport, modules *gamemod.Registry) (*Engine, error) {
	pool, err := ants.NewPool(mirrorPoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("mirror pool: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		log:       log,
		players:   player.NewRegistry(),
		rooms:     room.NewRegistry(log),
		modules:   modules,
		store:     store,
		transport: tr,
		tokens:    auth.NewTokens(cfg.JWTSecret, 0),
		pool:      pool,
		bindings:  make(map[string]*gamemod.Binding),
	}
	e.presence = newPresence(cfg.OfflineGrace, e.offlineCheck)
	e.handlers = map[protocol.Type]handlerFunc{
		protocol.TypePlayerList:    e.handlePlayerList,
		protocol.TypePlayerLogin:   e.handleLogin,
		protocol.TypePlayerLogout:  e.handleLogout,
		protocol.TypePlayerOffline: e.handleMarkOffline,
		protocol.TypePlayerMessage: e.handlePlayerMessage,
		protocol.TypeRoomList:      e.handleRoomList,
		protocol.TypeRoomCreate:    e.handleRoomCreate,
		protocol.TypeRoomJoin:      e.handleRoomJoin,
		protocol.TypeRoomLeave:     e.handleRoomLeave,
		protocol.TypeRoomLeaveSeat: e.handleRoomLeaveSeat,
		protocol.TypeRoomKick:      e.handleRoomKick,
		protocol.TypeRoomTransfer:  e.handleRoomTransfer,
		protocol.TypeRoomClose:     e.handleRoomClose,
		protocol.TypeRoomStart:     e.handleRoomStart,
		protocol.TypeRoomReady:     e.handleRoomReady,
		protocol.TypeRoomUnready:   e.handleRoomUnready,
		protocol.TypeRoomCommand:   e.handleRoomCommand,
		protocol.TypeRoomMessage:   e.handleRoomMessage,
		protocol.TypeGlobalCommand: e.handleGlobalCommand,
		protocol.TypeGlobalMessage: e.handleGlobalMessage,
	}
	return e, nil
}

// Start spins up the offline-grace scheduler.
func (e *Engine) Start() {
	e.presence.start()
}

// Stop announces the shutdown to every connected player and drains
// background work. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emit(protocol.TypeGlobalError, protocol.ErrorPayload{
			Kind:    protocol.KindUnavailable,
			Message: "server shutting down",
		}, "", nil)
		e.presence.stop()
		e.pool.Release()
	})
}

// Players exposes the player registry (read paths and tests).
func (e *Engine) Players() *player.Registry { return e.players }

// Rooms exposes the room registry (read paths and tests).
func (e *Engine) Rooms() *room.Registry { return e.rooms }

// Tokens exposes the handshake token helper.
func (e *Engine) Tokens() *auth.Tokens { return e.tokens }

// Authenticate resolves the first frame of a connection to an identity.
// Only here is the client-supplied payload trusted to name the sender.
func (e *Engine) Authenticate(env *protocol.Envelope) (protocol.PlayerRef, error) {
	if env.Type != protocol.TypePlayerLogin {
		return protocol.PlayerRef{}, fmt.Errorf("expected %s, got %s", protocol.TypePlayerLogin, env.Type)
	}
	var req protocol.LoginRequest
	if err := env.DecodeData(&req); err != nil {
		return protocol.PlayerRef{}, err
	}

	id := req.ID
	if req.Token != "" {
		verified, err := e.tokens.Verify(req.Token)
		if err != nil {
			return protocol.PlayerRef{}, fmt.Errorf("token rejected: %w", err)
		}
		id = verified
	}
	if id == "" {
		return protocol.PlayerRef{}, fmt.Errorf("login requires an identity or token")
	}
	return protocol.PlayerRef{ID: id, Name: req.Name}, nil
}

// Dispatch routes one inbound envelope. Unknown types are a hard error
// answered to the sender only; handler failures likewise.
func (e *Engine) Dispatch(sender protocol.PlayerRef, env *protocol.Envelope) {
	if !env.Type.Known() {
		e.sendError(sender.ID, protocol.KindValidation,
			fmt.Sprintf("unknown message type %q", env.Type))
		return
	}
	h, ok := e.handlers[env.Type]
	if !ok {
		e.sendError(sender.ID, protocol.KindValidation,
			fmt.Sprintf("%s is not a client command", env.Type))
		return
	}
	if err := h(sender, env); err != nil {
		e.log.Warnf("dispatch %s from %s: %v", env.Type, sender.ID, err)
		e.sendError(sender.ID, kindOf(err), err.Error())
	}
}

// Disconnected is called by the transport when an identity's last socket
// closes: the player leaves the registry and an offline check is scheduled.
// Room seats are untouched until the grace period lapses.
func (e *Engine) Disconnected(playerID string) {
	if err := e.players.Logout(playerID); err != nil {
		e.log.Warnf("disconnect %s: %v", playerID, err)
	}
	e.presence.schedule(playerID)
	e.log.Infof("player %s logged out, offline check in %s", playerID, e.cfg.OfflineGrace)
}

// binding returns the game module binding for a live room, if any.
func (e *Engine) binding(roomID string) *gamemod.Binding {
	e.bmu.Lock()
	defer e.bmu.Unlock()
	return e.bindings[roomID]
}

func (e *Engine) setBinding(roomID string, b *gamemod.Binding) {
	e.bmu.Lock()
	defer e.bmu.Unlock()
	e.bindings[roomID] = b
}

func (e *Engine) dropBinding(roomID string) {
	e.bmu.Lock()
	defer e.bmu.Unlock()
	delete(e.bindings, roomID)
}

// route addresses an envelope by its type's scope: player.* to the named
// player's connection set, room.* to rm's members at emission time,
// global.* to every connected player.
func (e *Engine) route(env *protocol.Envelope, playerID string, rm *room.Room) {
	switch env.Type.Scope() {
	case protocol.ScopePlayer:
		e.transport.Send([]string{playerID}, env)
	case protocol.ScopeRoom:
		e.transport.Send(rm.MemberIDs(), env)
	default:
		e.transport.Broadcast(env)
	}
}

// emit encodes v and routes it by scope.
func (e *Engine) emit(t protocol.Type, v any, playerID string, rm *room.Room) {
	env, err := protocol.NewEnvelope(t, v)
	if err != nil {
		e.log.Errorf("encode %s: %v", t, err)
		return
	}
	e.route(env, playerID, rm)
}

// sendTo delivers a directed reply to one player's connection set
// regardless of the type's scope. List replies, error replies and
// reconnect resyncs answer only the caller and must never fan out.
func (e *Engine) sendTo(playerID string, t protocol.Type, v any) {
	env, err := protocol.NewEnvelope(t, v)
	if err != nil {
		e.log.Errorf("encode %s: %v", t, err)
		return
	}
	e.transport.Send([]string{playerID}, env)
}

func (e *Engine) sendError(playerID string, kind protocol.ErrorKind, msg string) {
	e.sendTo(playerID, protocol.TypePlayerError, protocol.ErrorPayload{Kind: kind, Message: msg})
}
