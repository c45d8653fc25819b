package store

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateUserAssignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)

	alice, err := s.CreateUser("alice", "111")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "222")
	require.NoError(t, err)

	require.Greater(t, alice.ID, int64(0))
	require.Greater(t, bob.ID, alice.ID)
	require.NotZero(t, alice.CreatedAt)
}

func TestCreateUserUniqueUsername(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateUser("alice", "111")
	require.NoError(t, err)

	_, err = s.CreateUser("alice", "999")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateUserUniquePhone(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateUser("alice", "111")
	require.NoError(t, err)

	_, err = s.CreateUser("alice2", "111")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetUserByIndexes(t *testing.T) {
	s := newTestStore(t)

	alice, err := s.CreateUser("alice", "111")
	require.NoError(t, err)

	byName, err := s.GetUserByUsername("alice")
	require.NoError(t, err)
	require.Equal(t, alice.ID, byName.ID)

	byPhone, err := s.GetUserByPhone("111")
	require.NoError(t, err)
	require.Equal(t, alice.ID, byPhone.ID)

	_, err = s.GetUserByUsername("ghost")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetUser(9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUsersByIDsSkipsMissing(t *testing.T) {
	s := newTestStore(t)

	alice, err := s.CreateUser("alice", "")
	require.NoError(t, err)

	users, err := s.UsersByIDs([]int64{alice.ID, 424242})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "alice", users[0].Username)
}

func TestSetPresence(t *testing.T) {
	s := newTestStore(t)

	alice, err := s.CreateUser("alice", "")
	require.NoError(t, err)

	require.NoError(t, s.SetPresence(alice.ID, true, 1234))
	got, err := s.GetUser(alice.ID)
	require.NoError(t, err)
	require.True(t, got.Online)
	require.Equal(t, int64(1234), got.LastSeenAt)

	require.NoError(t, s.SetPresence(alice.ID, false, 5678))
	got, err = s.GetUser(alice.ID)
	require.NoError(t, err)
	require.False(t, got.Online)

	require.Error(t, s.SetPresence(9999, true, 1))
}
