package engine

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/gamemod"
	"github.com/parlorhq/parlor/internal/player"
	"github.com/parlorhq/parlor/internal/protocol"
	"github.com/parlorhq/parlor/internal/room"
	"github.com/parlorhq/parlor/internal/storage/memory"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// fakeTransport records outbound traffic per player.
type fakeTransport struct {
	mu         sync.Mutex
	direct     map[string][]*protocol.Envelope
	broadcasts []*protocol.Envelope
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{direct: make(map[string][]*protocol.Envelope)}
}

func (f *fakeTransport) Send(playerIDs []string, env *protocol.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range playerIDs {
		f.direct[id] = append(f.direct[id], env)
	}
}

func (f *fakeTransport) Broadcast(env *protocol.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, env)
}

func (f *fakeTransport) countOfType(playerID string, t protocol.Type) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, env := range f.direct[playerID] {
		if env.Type == t {
			n++
		}
	}
	return n
}

func (f *fakeTransport) lastOfType(playerID string, t protocol.Type) *protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.direct[playerID]) - 1; i >= 0; i-- {
		if f.direct[playerID][i].Type == t {
			return f.direct[playerID][i]
		}
	}
	return nil
}

func newTestEngine(t *testing.T, grace time.Duration) (*Engine, *fakeTransport) {
	t.Helper()
	cfg := &config.Config{
		OfflineGrace: grace,
		JWTSecret:    "test-secret",
	}
	tr := newFakeTransport()
	eng, err := New(cfg, newTestLogger(), memory.New(), tr, gamemod.NewRegistry())
	require.NoError(t, err)
	eng.Start()
	t.Cleanup(eng.Stop)
	return eng, tr
}

func mustEnv(t *testing.T, typ protocol.Type, v any) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, v)
	require.NoError(t, err)
	return env
}

// login runs the handshake and dispatches the login command like the
// transport does.
func login(t *testing.T, eng *Engine, id, name string, attrs map[string]any) protocol.PlayerRef {
	t.Helper()
	env := mustEnv(t, protocol.TypePlayerLogin, protocol.LoginRequest{ID: id, Name: name, Attrs: attrs})
	sender, err := eng.Authenticate(env)
	require.NoError(t, err)
	eng.Dispatch(sender, env)
	return sender
}

func createRoom(t *testing.T, eng *Engine, sender protocol.PlayerRef, req protocol.CreateRoomRequest) {
	t.Helper()
	eng.Dispatch(sender, mustEnv(t, protocol.TypeRoomCreate, req))
}

func boolPtr(b bool) *bool { return &b }

func TestAuthenticate(t *testing.T) {
	eng, _ := newTestEngine(t, time.Minute)

	// Raw id login.
	sender, err := eng.Authenticate(mustEnv(t, protocol.TypePlayerLogin, protocol.LoginRequest{ID: "p1"}))
	require.NoError(t, err)
	assert.Equal(t, "p1", sender.ID)

	// Token login; the token's subject wins over the payload id.
	token, err := eng.Tokens().Issue("p9")
	require.NoError(t, err)
	sender, err = eng.Authenticate(mustEnv(t, protocol.TypePlayerLogin, protocol.LoginRequest{ID: "spoof", Token: token}))
	require.NoError(t, err)
	assert.Equal(t, "p9", sender.ID)

	// Garbage token is rejected, not downgraded to the raw id.
	_, err = eng.Authenticate(mustEnv(t, protocol.TypePlayerLogin, protocol.LoginRequest{ID: "p1", Token: "garbage"}))
	assert.Error(t, err)

	// First frame must be a login.
	_, err = eng.Authenticate(mustEnv(t, protocol.TypeRoomList, nil))
	assert.Error(t, err)

	// No identity at all.
	_, err = eng.Authenticate(mustEnv(t, protocol.TypePlayerLogin, protocol.LoginRequest{}))
	assert.Error(t, err)
}

func TestLoginReportsStatus(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	login(t, eng, "p1", "Alice", nil)

	env := tr.lastOfType("p1", protocol.TypePlayerStatus)
	require.NotNil(t, env)
	var st protocol.StatusPayload
	require.NoError(t, env.DecodeData(&st))
	assert.Equal(t, "p1", st.ID)
	assert.Equal(t, string(player.StatusOnline), st.Status)
}

func TestUnknownTypeAnsweredToSenderOnly(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)
	login(t, eng, "p2", "Bob", nil)

	eng.Dispatch(p1, &protocol.Envelope{Type: "room.explode"})

	env := tr.lastOfType("p1", protocol.TypePlayerError)
	require.NotNil(t, env)
	var ep protocol.ErrorPayload
	require.NoError(t, env.DecodeData(&ep))
	assert.Equal(t, protocol.KindValidation, ep.Kind)

	assert.Zero(t, tr.countOfType("p2", protocol.TypePlayerError))
}

func TestRoomLifecycleFlow(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)
	p2 := login(t, eng, "p2", "Bob", nil)

	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r1", Name: "table", Size: 2})
	assert.GreaterOrEqual(t, tr.countOfType("p1", protocol.TypeRoomUpdate), 1)

	eng.Dispatch(p2, mustEnv(t, protocol.TypeRoomJoin, protocol.JoinRoomRequest{RoomID: "r1"}))
	assert.GreaterOrEqual(t, tr.countOfType("p2", protocol.TypeRoomUpdate), 1)

	// Start before everyone is ready is refused (requireReady defaults on).
	eng.Dispatch(p1, mustEnv(t, protocol.TypeRoomStart, protocol.RoomRef{RoomID: "r1"}))
	env := tr.lastOfType("p1", protocol.TypePlayerError)
	require.NotNil(t, env)
	var ep protocol.ErrorPayload
	require.NoError(t, env.DecodeData(&ep))
	assert.Equal(t, protocol.KindConflict, ep.Kind)

	eng.Dispatch(p1, mustEnv(t, protocol.TypeRoomReady, protocol.RoomRef{RoomID: "r1"}))
	eng.Dispatch(p2, mustEnv(t, protocol.TypeRoomReady, protocol.RoomRef{RoomID: "r1"}))

	assert.Equal(t, 1, tr.countOfType("p1", protocol.TypeRoomAllReady))
	assert.Equal(t, 1, tr.countOfType("p2", protocol.TypeRoomAllReady))
	assert.GreaterOrEqual(t, tr.countOfType("p1", protocol.TypeRoomPlayerReady), 2)

	// Only the creator (or an admin) may start.
	eng.Dispatch(p2, mustEnv(t, protocol.TypeRoomStart, protocol.RoomRef{RoomID: "r1"}))
	env = tr.lastOfType("p2", protocol.TypePlayerError)
	require.NotNil(t, env)
	require.NoError(t, env.DecodeData(&ep))
	assert.Equal(t, protocol.KindPermission, ep.Kind)

	eng.Dispatch(p1, mustEnv(t, protocol.TypeRoomStart, protocol.RoomRef{RoomID: "r1"}))
	assert.Equal(t, 1, tr.countOfType("p1", protocol.TypeRoomStart))
	assert.Equal(t, 1, tr.countOfType("p2", protocol.TypeRoomStart))

	for _, id := range []string{"p1", "p2"} {
		p, err := eng.Players().Get(id)
		require.NoError(t, err)
		assert.Equal(t, player.StatusPlaying, p.Status)
	}

	rm, err := eng.Rooms().Get("r1")
	require.NoError(t, err)
	assert.Equal(t, room.StatusPlaying, rm.Status())
}

func TestKickPermissionError(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)
	p2 := login(t, eng, "p2", "Bob", nil)

	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r1", Name: "table", Size: 4})
	eng.Dispatch(p2, mustEnv(t, protocol.TypeRoomJoin, protocol.JoinRoomRequest{RoomID: "r1"}))

	eng.Dispatch(p2, mustEnv(t, protocol.TypeRoomKick, protocol.TargetRequest{RoomID: "r1", TargetID: "p1"}))
	env := tr.lastOfType("p2", protocol.TypePlayerError)
	require.NotNil(t, env)
	var ep protocol.ErrorPayload
	require.NoError(t, env.DecodeData(&ep))
	assert.Equal(t, protocol.KindPermission, ep.Kind)

	// Creator may kick.
	eng.Dispatch(p1, mustEnv(t, protocol.TypeRoomKick, protocol.TargetRequest{RoomID: "r1", TargetID: "p2"}))
	rm, err := eng.Rooms().Get("r1")
	require.NoError(t, err)
	_, ok := rm.Member("p2")
	assert.False(t, ok)
}

func TestAdminOverridesPermissions(t *testing.T) {
	eng, _ := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)
	adm := login(t, eng, "root", "Root", map[string]any{"admin": true})

	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r1", Name: "table", Size: 4})

	eng.Dispatch(adm, mustEnv(t, protocol.TypeRoomClose, protocol.RoomRef{RoomID: "r1"}))
	_, err := eng.Rooms().Get("r1")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestRoomMessageRelay(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)
	p2 := login(t, eng, "p2", "Bob", nil)
	p3 := login(t, eng, "p3", "Carol", nil)

	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r1", Name: "table", Size: 4})
	eng.Dispatch(p2, mustEnv(t, protocol.TypeRoomJoin, protocol.JoinRoomRequest{RoomID: "r1"}))

	eng.Dispatch(p1, mustEnv(t, protocol.TypeRoomMessage, protocol.MessageRequest{RoomID: "r1", Text: "hi"}))

	env := tr.lastOfType("p2", protocol.TypeRoomMessage)
	require.NotNil(t, env)
	require.NotNil(t, env.Sender)
	assert.Equal(t, "p1", env.Sender.ID)
	assert.Equal(t, "Alice", env.Sender.Name)

	// Non-members neither receive nor may send.
	assert.Zero(t, tr.countOfType("p3", protocol.TypeRoomMessage))
	eng.Dispatch(p3, mustEnv(t, protocol.TypeRoomMessage, protocol.MessageRequest{RoomID: "r1", Text: "sneak"}))
	assert.NotNil(t, tr.lastOfType("p3", protocol.TypePlayerError))
}

func TestPlayerMessage(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)
	login(t, eng, "p2", "Bob", nil)

	eng.Dispatch(p1, mustEnv(t, protocol.TypePlayerMessage, protocol.MessageRequest{TargetID: "p2", Text: "psst"}))
	env := tr.lastOfType("p2", protocol.TypePlayerMessage)
	require.NotNil(t, env)
	require.NotNil(t, env.Sender)
	assert.Equal(t, "p1", env.Sender.ID)

	eng.Dispatch(p1, mustEnv(t, protocol.TypePlayerMessage, protocol.MessageRequest{TargetID: "ghost", Text: "psst"}))
	errEnv := tr.lastOfType("p1", protocol.TypePlayerError)
	require.NotNil(t, errEnv)
	var ep protocol.ErrorPayload
	require.NoError(t, errEnv.DecodeData(&ep))
	assert.Equal(t, protocol.KindNotFound, ep.Kind)
}

func TestGlobalCommandAdminOnly(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)
	adm := login(t, eng, "root", "Root", map[string]any{"admin": true})

	eng.Dispatch(p1, mustEnv(t, protocol.TypeGlobalCommand, protocol.CommandRequest{Name: "maintenance"}))
	env := tr.lastOfType("p1", protocol.TypePlayerError)
	require.NotNil(t, env)
	var ep protocol.ErrorPayload
	require.NoError(t, env.DecodeData(&ep))
	assert.Equal(t, protocol.KindPermission, ep.Kind)

	eng.Dispatch(adm, mustEnv(t, protocol.TypeGlobalCommand, protocol.CommandRequest{Name: "maintenance"}))
	tr.mu.Lock()
	n := len(tr.broadcasts)
	tr.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestRoomEventsReachMembersOnly(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)
	p2 := login(t, eng, "p2", "Bob", nil)
	login(t, eng, "p3", "Carol", nil)

	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r1", Name: "table", Size: 4})
	eng.Dispatch(p2, mustEnv(t, protocol.TypeRoomJoin, protocol.JoinRoomRequest{RoomID: "r1"}))

	eng.Dispatch(p1, mustEnv(t, protocol.TypeRoomReady, protocol.RoomRef{RoomID: "r1"}))

	// Members see the lifecycle traffic, the bystander sees none of it,
	// and nothing room-scoped leaks onto the broadcast path.
	assert.GreaterOrEqual(t, tr.countOfType("p2", protocol.TypeRoomUpdate), 1)
	assert.GreaterOrEqual(t, tr.countOfType("p2", protocol.TypeRoomPlayerReady), 1)
	assert.Zero(t, tr.countOfType("p3", protocol.TypeRoomUpdate))
	assert.Zero(t, tr.countOfType("p3", protocol.TypeRoomPlayerReady))

	tr.mu.Lock()
	n := len(tr.broadcasts)
	tr.mu.Unlock()
	assert.Zero(t, n)
}

func TestStopBroadcastsShutdown(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	login(t, eng, "p1", "Alice", nil)

	eng.Stop()
	eng.Stop() // second call is a no-op

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.broadcasts, 1)
	env := tr.broadcasts[0]
	assert.Equal(t, protocol.TypeGlobalError, env.Type)
	var ep protocol.ErrorPayload
	require.NoError(t, env.DecodeData(&ep))
	assert.Equal(t, protocol.KindUnavailable, ep.Kind)
}

func TestOfflineGraceFlagsSeat(t *testing.T) {
	eng, tr := newTestEngine(t, 150*time.Millisecond)
	p1 := login(t, eng, "p1", "Alice", nil)
	p2 := login(t, eng, "p2", "Bob", nil)

	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r1", Name: "table", Size: 4})
	eng.Dispatch(p2, mustEnv(t, protocol.TypeRoomJoin, protocol.JoinRoomRequest{RoomID: "r1"}))

	eng.Disconnected("p2")
	assert.False(t, eng.Players().Registered("p2"))

	rm, err := eng.Rooms().Get("r1")
	require.NoError(t, err)
	rp, ok := rm.Member("p2")
	require.True(t, ok)
	assert.False(t, rp.Offline, "seat untouched inside the grace window")

	assert.Eventually(t, func() bool {
		rp, ok := rm.Member("p2")
		return ok && rp.Offline
	}, 2*time.Second, 20*time.Millisecond)

	// The remaining member saw the room update.
	assert.GreaterOrEqual(t, tr.countOfType("p1", protocol.TypeRoomUpdate), 2)
}

func TestReconnectWithinGraceKeepsSeat(t *testing.T) {
	eng, _ := newTestEngine(t, 200*time.Millisecond)
	p1 := login(t, eng, "p1", "Alice", nil)
	p2 := login(t, eng, "p2", "Bob", nil)

	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r1", Name: "table", Size: 4})
	eng.Dispatch(p2, mustEnv(t, protocol.TypeRoomJoin, protocol.JoinRoomRequest{RoomID: "r1"}))

	eng.Disconnected("p2")
	login(t, eng, "p2", "Bob", nil)

	time.Sleep(500 * time.Millisecond)

	rm, err := eng.Rooms().Get("r1")
	require.NoError(t, err)
	rp, ok := rm.Member("p2")
	require.True(t, ok)
	assert.False(t, rp.Offline)
	assert.Equal(t, p2.ID, rp.ID)
}

func TestCreateRoomValidation(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)

	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r1", Name: "bad", Size: 0})
	require.NotNil(t, tr.lastOfType("p1", protocol.TypePlayerError))
	_, err := eng.Rooms().Get("r1")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r2", Name: "bad", Size: 2, MinSize: 5})
	_, err = eng.Rooms().Get("r2")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestRoomListAndPlayerList(t *testing.T) {
	eng, tr := newTestEngine(t, time.Minute)
	p1 := login(t, eng, "p1", "Alice", nil)
	createRoom(t, eng, p1, protocol.CreateRoomRequest{ID: "r1", Name: "table", Size: 4})

	eng.Dispatch(p1, mustEnv(t, protocol.TypeRoomList, nil))
	env := tr.lastOfType("p1", protocol.TypeRoomList)
	require.NotNil(t, env)
	var snaps []room.Snapshot
	require.NoError(t, env.DecodeData(&snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "r1", snaps[0].ID)

	eng.Dispatch(p1, mustEnv(t, protocol.TypePlayerList, nil))
	env = tr.lastOfType("p1", protocol.TypePlayerList)
	require.NotNil(t, env)
	var players []player.Player
	require.NoError(t, env.DecodeData(&players))
	assert.Len(t, players, 1)
}

// lifecycleModule records hook invocations.
type lifecycleModule struct {
	mc       gamemod.Context
	mu       sync.Mutex
	started  int
	ended    int
	commands []room.Command
}

func (m *lifecycleModule) OnStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *lifecycleModule) OnEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended++
}

func (m *lifecycleModule) OnCommand(cmd room.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmd)
}

func (m *lifecycleModule) GetStatus(string) any     { return nil }
func (m *lifecycleModule) GetData() json.RawMessage { return json.RawMessage(`{"v":1}`) }

func TestGameModuleBinding(t *testing.T) {
	cfg := &config.Config{OfflineGrace: time.Minute}
	tr := newFakeTransport()
	modules := gamemod.NewRegistry()

	var mod *lifecycleModule
	modules.Register("chess", func(mc gamemod.Context) gamemod.Module {
		mod = &lifecycleModule{mc: mc}
		return mod
	})

	eng, err := New(cfg, newTestLogger(), memory.New(), tr, modules)
	require.NoError(t, err)
	eng.Start()
	t.Cleanup(eng.Stop)

	p1 := login(t, eng, "p1", "Alice", nil)
	createRoom(t, eng, p1, protocol.CreateRoomRequest{
		ID:           "r1",
		Name:         "board",
		Size:         2,
		MinSize:      1,
		RequireReady: boolPtr(false),
		Attrs:        map[string]any{"type": "chess"},
	})
	require.NotNil(t, mod, "factory must run at room creation")

	eng.Dispatch(p1, mustEnv(t, protocol.TypeRoomStart, protocol.RoomRef{RoomID: "r1"}))
	eng.Dispatch(p1, mustEnv(t, protocol.TypeRoomCommand, protocol.CommandRequest{
		RoomID: "r1", Name: "move", Data: json.RawMessage(`{"from":"e2","to":"e4"}`),
	}))

	mod.mu.Lock()
	assert.Equal(t, 1, mod.started)
	require.Len(t, mod.commands, 1)
	assert.Equal(t, "move", mod.commands[0].Name)
	assert.Equal(t, "p1", mod.commands[0].SenderID)
	mod.mu.Unlock()

	// The module can drive the round end through its room handle.
	require.NoError(t, mod.mc.Room.End())
	mod.mu.Lock()
	assert.Equal(t, 1, mod.ended)
	mod.mu.Unlock()
}
