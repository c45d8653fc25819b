package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatwire/internal/auth"
	"chatwire/internal/command"
	"chatwire/internal/gate"
	"chatwire/internal/model"
	"chatwire/internal/registry"
	"chatwire/internal/rooms"
	"chatwire/internal/socketio"
	"chatwire/internal/store"
)

type fakeConn struct {
	events []string
	closed bool
}

func (f *fakeConn) Emit(event string, payload any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeConn) Close() error { f.closed = true; return nil }

type hubFixture struct {
	hub      *Hub
	store    *store.Store
	registry *registry.Registry
	rooms    *rooms.Router
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.OpenInMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := registry.New()
	router := rooms.NewRouter()
	g := gate.New(st)
	tokens := auth.TokenConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "test"}
	dispatcher := command.NewDispatcher(st, reg, router, tokens, log)
	return &hubFixture{
		hub:      New(st, reg, router, g, dispatcher, log),
		store:    st,
		registry: reg,
		rooms:    router,
	}
}

func makeFriends(t *testing.T, st *store.Store, a, b int64) {
	t.Helper()
	edge, err := st.CreateFriendRequest(a, b)
	require.NoError(t, err)
	_, err = st.AcceptFriendRequest(edge.ID, b)
	require.NoError(t, err)
}

func TestTeardownFansOfflineToFriends(t *testing.T) {
	f := newHubFixture(t)
	alice, err := f.store.CreateUser("alice", "111")
	require.NoError(t, err)
	bob, err := f.store.CreateUser("bob", "222")
	require.NoError(t, err)
	makeFriends(t, f.store, alice.ID, bob.ID)

	bobConn := &fakeConn{}
	f.registry.Register(bob.ID, bobConn)
	f.rooms.Join(rooms.PersonalRoom(bob.ID), bobConn)

	aliceConn := &fakeConn{}
	f.registry.Register(alice.ID, aliceConn)
	f.rooms.Join(rooms.PersonalRoom(alice.ID), aliceConn)

	f.hub.teardown(aliceConn)

	require.False(t, f.registry.IsOnline(alice.ID))
	require.Equal(t, 0, f.rooms.Members(rooms.PersonalRoom(alice.ID)))
	require.Contains(t, bobConn.events, "user_offline")

	stored, err := f.store.GetUser(alice.ID)
	require.NoError(t, err)
	require.False(t, stored.Online)
}

func TestTeardownKeepsPresenceWhileOtherSessionsLive(t *testing.T) {
	f := newHubFixture(t)
	alice, err := f.store.CreateUser("alice", "111")
	require.NoError(t, err)
	bob, err := f.store.CreateUser("bob", "222")
	require.NoError(t, err)
	makeFriends(t, f.store, alice.ID, bob.ID)

	bobConn := &fakeConn{}
	f.registry.Register(bob.ID, bobConn)
	f.rooms.Join(rooms.PersonalRoom(bob.ID), bobConn)

	phone := &fakeConn{}
	laptop := &fakeConn{}
	f.registry.Register(alice.ID, phone)
	f.registry.Register(alice.ID, laptop)
	f.rooms.Join(rooms.PersonalRoom(alice.ID), phone)
	f.rooms.Join(rooms.PersonalRoom(alice.ID), laptop)

	f.hub.teardown(phone)

	require.True(t, f.registry.IsOnline(alice.ID))
	require.NotContains(t, bobConn.events, "user_offline")

	f.hub.teardown(laptop)
	require.False(t, f.registry.IsOnline(alice.ID))
	require.Contains(t, bobConn.events, "user_offline")
}

func TestTeardownUnknownConnIsNoop(t *testing.T) {
	f := newHubFixture(t)
	f.hub.teardown(&fakeConn{})
}

func TestBindRejectsBadPayloads(t *testing.T) {
	f := newHubFixture(t)

	var p sendMessagePayload
	err := f.hub.bind(socketio.EventPacket{Event: "send_message"}, &p)
	require.Error(t, err)

	err = f.hub.bind(socketio.EventPacket{
		Event: "send_message",
		Args:  []json.RawMessage{json.RawMessage(`"not an object"`)},
	}, &p)
	require.Error(t, err)

	// receiver_id missing fails validation
	err = f.hub.bind(socketio.EventPacket{
		Event: "send_message",
		Args:  []json.RawMessage{json.RawMessage(`{"sender_id":1,"content":"hi"}`)},
	}, &p)
	require.Error(t, err)

	err = f.hub.bind(socketio.EventPacket{
		Event: "send_message",
		Args:  []json.RawMessage{json.RawMessage(`{"sender_id":1,"receiver_id":2,"content":"hi"}`)},
	}, &p)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.SenderID)
	require.Equal(t, "hi", p.Content)
}

func TestDeliveryErrorEvictsAndCleansUp(t *testing.T) {
	f := newHubFixture(t)
	alice, err := f.store.CreateUser("alice", "111")
	require.NoError(t, err)

	dead := &deadConn{}
	f.registry.Register(alice.ID, dead)
	f.rooms.Join(rooms.PersonalRoom(alice.ID), dead)

	f.rooms.Broadcast(rooms.PersonalRoom(alice.ID), "receive_message", model.Message{})

	require.False(t, f.registry.IsOnline(alice.ID))
	require.Equal(t, 0, f.rooms.Members(rooms.PersonalRoom(alice.ID)))
	require.True(t, dead.closed)
}

type deadConn struct{ closed bool }

func (d *deadConn) Emit(event string, payload any) error { return socketio.ErrSendQueueFull }
func (d *deadConn) Close() error                         { d.closed = true; return nil }
