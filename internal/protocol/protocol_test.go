package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeFromPrefix(t *testing.T) {
	assert.Equal(t, ScopePlayer, TypePlayerStatus.Scope())
	assert.Equal(t, ScopeRoom, TypeRoomUpdate.Scope())
	assert.Equal(t, ScopeGlobal, TypeGlobalMessage.Scope())
	assert.Equal(t, ScopeGlobal, Type("weird").Scope())
}

func TestKnownIsClosed(t *testing.T) {
	assert.True(t, TypePlayerLogin.Known())
	assert.True(t, TypeRoomAllReady.Known())
	assert.False(t, Type("room.explode").Known())
	assert.False(t, Type("").Known())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode([]byte(`{`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"data":{}}`))
	assert.Error(t, err, "missing type must be rejected")
}

func TestDecodeData(t *testing.T) {
	env, err := Decode([]byte(`{"type":"room.join","data":{"roomId":"r1","watch":true}}`))
	require.NoError(t, err)

	var req JoinRoomRequest
	require.NoError(t, env.DecodeData(&req))
	assert.Equal(t, "r1", req.RoomID)
	assert.True(t, req.Watch)

	empty := &Envelope{Type: TypeRoomJoin}
	assert.Error(t, empty.DecodeData(&req), "missing payload must be rejected")
}

func TestEnvelopeSenderStamp(t *testing.T) {
	env, err := NewEnvelope(TypeRoomMessage, MessageRequest{RoomID: "r1", Text: "hi"})
	require.NoError(t, err)
	env.Sender = &PlayerRef{ID: "p1", Name: "Alice"}

	raw, err := env.Marshal()
	require.NoError(t, err)

	back, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, back.Sender)
	assert.Equal(t, "p1", back.Sender.ID)
}

func TestCreateRoomRequireReadyDefault(t *testing.T) {
	env, err := Decode([]byte(`{"type":"room.create","data":{"name":"x","size":4}}`))
	require.NoError(t, err)

	var req CreateRoomRequest
	require.NoError(t, env.DecodeData(&req))
	assert.Nil(t, req.RequireReady, "omitted flag must stay distinguishable from false")

	env, err = Decode([]byte(`{"type":"room.create","data":{"name":"x","size":4,"requireReady":false}}`))
	require.NoError(t, err)
	require.NoError(t, env.DecodeData(&req))
	require.NotNil(t, req.RequireReady)
	assert.False(t, *req.RequireReady)
}
