package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlorhq/parlor/internal/protocol"
)

const (
	subprotocol      = "parlor"
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	pingInterval     = 30 * time.Second
	outBuffer        = 32
)

// Engine is the inbound side the transport feeds. Authenticate consumes the
// first frame of a connection (the login handshake); Dispatch consumes every
// later frame, tagged with the authenticated sender. Disconnected fires once
// the identity's whole connection set has drained.
type Engine interface {
	Authenticate(env *protocol.Envelope) (protocol.PlayerRef, error)
	Dispatch(sender protocol.PlayerRef, env *protocol.Envelope)
	Disconnected(playerID string)
}

// client is one physical websocket connection.
type client struct {
	id      uuid.UUID
	outChan chan []byte
	cancel  context.CancelFunc
}

// write pushes a frame onto the client's out channel non-blockingly; a full
// or closed channel drops the frame and logs it.
func (c *client) write(data []byte, typ protocol.Type, log *logrus.Logger) {
	select {
	case c.outChan <- data:
	default:
		log.Warnf("ws: conn %s slow or closed, dropped %s", c.id, typ)
	}
}

// Server owns the HTTP upgrade path and the per-connection pumps.
type Server struct {
	hub    *Hub
	engine Engine
	log    *logrus.Logger
}

// NewServer wires the hub to the engine.
func NewServer(hub *Hub, engine Engine, log *logrus.Logger) *Server {
	return &Server{hub: hub, engine: engine, log: log}
}

// Handler upgrades HTTP requests to the parlor websocket protocol.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{subprotocol},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.log.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != subprotocol {
			c.Close(websocket.StatusPolicyViolation, "client must speak the parlor subprotocol")
			return
		}

		s.serve(r.Context(), c, r.RemoteAddr)
	}
}

// serve runs the handshake then the read loop; it returns when the
// connection dies.
func (s *Server) serve(parent context.Context, c *websocket.Conn, remoteAddr string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sender, loginEnv, err := s.handshake(ctx, c)
	if err != nil {
		s.log.Warnf("ws: handshake failed from %s: %v", remoteAddr, err)
		c.Close(websocket.StatusPolicyViolation, "login required")
		return
	}

	cl := &client{
		id:      uuid.New(),
		outChan: make(chan []byte, outBuffer),
		cancel:  cancel,
	}
	s.hub.add(sender.ID, cl)
	s.log.Infof("player %s connected from %s (conn %s)", sender.ID, remoteAddr, cl.id)

	go s.writePump(ctx, c, cl)
	s.readPump(ctx, c, sender, loginEnv)

	if s.hub.remove(sender.ID, cl) {
		s.log.Infof("player %s fully disconnected", sender.ID)
		s.engine.Disconnected(sender.ID)
	}
}

// handshake reads the first frame, which must be player.login, and resolves
// it to an authenticated identity. The login is then dispatched like any
// other command so the registry and rooms observe it.
func (s *Server) handshake(ctx context.Context, c *websocket.Conn) (protocol.PlayerRef, *protocol.Envelope, error) {
	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	_, raw, err := c.Read(hsCtx)
	if err != nil {
		return protocol.PlayerRef{}, nil, err
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		return protocol.PlayerRef{}, nil, err
	}
	sender, err := s.engine.Authenticate(env)
	if err != nil {
		return protocol.PlayerRef{}, nil, err
	}
	return sender, env, nil
}

func (s *Server) readPump(ctx context.Context, c *websocket.Conn, sender protocol.PlayerRef, loginEnv *protocol.Envelope) {
	// The handshake frame doubles as the first dispatched command.
	s.engine.Dispatch(sender, loginEnv)

	for {
		typ, raw, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				s.log.Infof("ws: player %s closed normally", sender.ID)
			} else if ctx.Err() == nil {
				s.log.Warnf("ws: read error for player %s: %v", sender.ID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			s.log.Warnf("ws: ignoring non-text frame from player %s", sender.ID)
			continue
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			// Sender is known, answer with a generic decode error.
			s.log.Warnf("ws: malformed packet from player %s: %v", sender.ID, err)
			errEnv, _ := protocol.NewEnvelope(protocol.TypePlayerError, protocol.ErrorPayload{
				Kind:    protocol.KindDecode,
				Message: "malformed packet",
			})
			s.hub.Send([]string{sender.ID}, errEnv)
			continue
		}
		s.engine.Dispatch(sender, env)
	}
}

func (s *Server) writePump(ctx context.Context, c *websocket.Conn, cl *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-cl.outChan:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.log.Warnf("ws: write failed on conn %s: %v", cl.id, err)
				cl.cancel()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Warnf("ws: ping failed on conn %s, assuming disconnect", cl.id)
				cl.cancel()
				return
			}
		}
	}
}
