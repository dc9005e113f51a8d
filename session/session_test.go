package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/session"
	"github.com/Polqt/yrepl/syncproto"
)

// fakeSender is an in-memory session.Sender, letting tests drive Hub
// without a real socket.
type fakeSender struct {
	addr   string
	inbox  [][]byte
	closed bool
}

func (f *fakeSender) SendBinary(b []byte) error {
	cp := append([]byte(nil), b...)
	f.inbox = append(f.inbox, cp)
	return nil
}
func (f *fakeSender) Close() error       { f.closed = true; return nil }
func (f *fakeSender) RemoteAddr() string { return f.addr }

func (f *fakeSender) lastEnvelope(t *testing.T) syncproto.Envelope {
	t.Helper()
	require.NotEmpty(t, f.inbox)
	env, err := syncproto.DecodeEnvelope(f.inbox[len(f.inbox)-1])
	require.NoError(t, err)
	return env
}

func TestHub_JoinSendsOpeningSyncStep1(t *testing.T) {
	hub := session.NewHub(zap.NewNop(), nil)
	sender := &fakeSender{addr: "peer-a"}

	client := hub.Join("room1", sender)
	require.NotEmpty(t, client.ID)

	env := sender.lastEnvelope(t)
	require.Equal(t, syncproto.KindSyncStep1, env.Kind)
	require.Equal(t, "room1", env.Room)
}

func TestHub_BroadcastsUpdateToOtherClientsOnly(t *testing.T) {
	hub := session.NewHub(zap.NewNop(), nil)
	senderA := &fakeSender{addr: "peer-a"}
	senderB := &fakeSender{addr: "peer-b"}

	clientA := hub.Join("room1", senderA)
	clientB := hub.Join("room1", senderB)

	room := hub.GetOrCreateRoom("room1")
	text, err := room.Replica().DefineText("doc")
	require.NoError(t, err)
	require.NoError(t, text.Insert(0, "hi", nil))

	// Simulate clientA shipping its local edit as an update envelope.
	update := syncproto.Update{Structs: syncproto.ComputeMissing(room.Replica(), map[uint32]uint32{})}
	env := syncproto.Envelope{Room: "room1", Kind: syncproto.KindUpdate, Body: update.Encode()}
	require.NoError(t, hub.Dispatch(clientA, env))

	// B should have received a broadcast update; A should not have heard
	// its own change echoed back.
	bEnv := senderB.lastEnvelope(t)
	require.Equal(t, syncproto.KindUpdate, bEnv.Kind)

	for _, raw := range senderA.inbox {
		env, err := syncproto.DecodeEnvelope(raw)
		require.NoError(t, err)
		require.NotEqual(t, syncproto.KindUpdate, env.Kind)
	}

	hub.Leave(clientA)
	hub.Leave(clientB)
}
