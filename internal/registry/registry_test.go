package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct{ closed bool }

func (f *fakeConn) Emit(event string, payload any) error { return nil }
func (f *fakeConn) Close() error                         { f.closed = true; return nil }

func TestRegisterFirstAndLast(t *testing.T) {
	r := New()
	c1 := &fakeConn{}
	c2 := &fakeConn{}

	first, _, _ := r.Register(7, c1)
	require.True(t, first)
	require.True(t, r.IsOnline(7))

	// second session: not the first connection
	first, _, _ = r.Register(7, c2)
	require.False(t, first)
	require.Len(t, r.ConnectionsFor(7), 2)

	userID, last, ok := r.Unregister(c1)
	require.True(t, ok)
	require.Equal(t, int64(7), userID)
	require.False(t, last)
	require.True(t, r.IsOnline(7))

	userID, last, ok = r.Unregister(c2)
	require.True(t, ok)
	require.Equal(t, int64(7), userID)
	require.True(t, last)
	require.False(t, r.IsOnline(7))
}

func TestRegisterSameConnTwice(t *testing.T) {
	r := New()
	c := &fakeConn{}

	first, _, _ := r.Register(7, c)
	require.True(t, first)

	first, prevUserID, prevLast := r.Register(7, c)
	require.False(t, first)
	require.Zero(t, prevUserID)
	require.False(t, prevLast)
	require.Len(t, r.ConnectionsFor(7), 1)

	_, last, ok := r.Unregister(c)
	require.True(t, ok)
	require.True(t, last)
}

func TestRegisterRebindMovesConnection(t *testing.T) {
	r := New()
	c := &fakeConn{}

	first, _, _ := r.Register(1, c)
	require.True(t, first)

	first, prevUserID, prevLast := r.Register(2, c)
	require.True(t, first)
	require.Equal(t, int64(1), prevUserID)
	require.True(t, prevLast)

	require.False(t, r.IsOnline(1))
	require.Empty(t, r.ConnectionsFor(1))
	require.True(t, r.IsOnline(2))

	userID, ok := r.UserFor(c)
	require.True(t, ok)
	require.Equal(t, int64(2), userID)

	userID, last, ok := r.Unregister(c)
	require.True(t, ok)
	require.Equal(t, int64(2), userID)
	require.True(t, last)
	require.False(t, r.IsOnline(1))
	require.False(t, r.IsOnline(2))
}

func TestRegisterRebindKeepsOtherSessions(t *testing.T) {
	r := New()
	kept := &fakeConn{}
	moved := &fakeConn{}

	r.Register(1, kept)
	r.Register(1, moved)

	first, prevUserID, prevLast := r.Register(2, moved)
	require.True(t, first)
	require.Equal(t, int64(1), prevUserID)
	require.False(t, prevLast)

	require.True(t, r.IsOnline(1))
	require.Len(t, r.ConnectionsFor(1), 1)
	require.True(t, r.IsOnline(2))
}

func TestUnregisterUnknownConn(t *testing.T) {
	r := New()

	_, _, ok := r.Unregister(&fakeConn{})
	require.False(t, ok)
}

func TestUserFor(t *testing.T) {
	r := New()
	c := &fakeConn{}

	_, ok := r.UserFor(c)
	require.False(t, ok)

	r.Register(42, c)
	userID, ok := r.UserFor(c)
	require.True(t, ok)
	require.Equal(t, int64(42), userID)
}
