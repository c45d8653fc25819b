package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chatwire/internal/model"
)

func seedPair(t *testing.T, s *Store) (model.User, model.User) {
	t.Helper()
	alice, err := s.CreateUser("alice", "111")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "222")
	require.NoError(t, err)
	return alice, bob
}

func TestAppendMessageAssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	alice, bob := seedPair(t, s)

	msg, err := s.AppendMessage(model.Message{
		SenderID:   alice.ID,
		ReceiverID: bob.ID,
		Content:    "hi",
	})
	require.NoError(t, err)
	require.Greater(t, msg.ID, int64(0))
	require.Equal(t, model.StatusSent, msg.Status)
	require.Equal(t, model.KindText, msg.Kind)
	require.NotZero(t, msg.CreatedAt)

	stored, err := s.GetMessage(msg.ID)
	require.NoError(t, err)
	require.Equal(t, msg, stored)
}

func TestAppendMessageUnknownParticipant(t *testing.T) {
	s := newTestStore(t)
	alice, _ := seedPair(t, s)

	_, err := s.AppendMessage(model.Message{
		SenderID:   alice.ID,
		ReceiverID: 9999,
		Content:    "hi",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEditMessageOwnerOnly(t *testing.T) {
	s := newTestStore(t)
	alice, bob := seedPair(t, s)

	msg, err := s.AppendMessage(model.Message{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi"})
	require.NoError(t, err)

	_, err = s.EditMessage(msg.ID, bob.ID, "hacked")
	require.ErrorIs(t, err, ErrNotOwner)

	edited, err := s.EditMessage(msg.ID, alice.ID, "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", edited.Content)
	require.Greater(t, edited.EditedAt, edited.CreatedAt)

	_, err = s.EditMessage(9999, alice.ID, "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecallMessageRemovesEverything(t *testing.T) {
	s := newTestStore(t)
	alice, bob := seedPair(t, s)

	msg, err := s.AppendMessage(model.Message{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi"})
	require.NoError(t, err)
	_, err = s.AddReaction(msg.ID, bob.ID, "heart")
	require.NoError(t, err)

	require.ErrorIs(t, s.RecallMessage(msg.ID, bob.ID), ErrNotOwner)
	require.NoError(t, s.RecallMessage(msg.ID, alice.ID))

	_, err = s.GetMessage(msg.ID)
	require.ErrorIs(t, err, ErrNotFound)

	agg, err := s.ReactionsFor(msg.ID)
	require.NoError(t, err)
	require.Empty(t, agg)

	msgs, err := s.ConversationMessages(alice.ID, bob.ID, 0)
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.ErrorIs(t, s.RecallMessage(msg.ID, alice.ID), ErrNotFound)
}

func TestAddReactionIdempotent(t *testing.T) {
	s := newTestStore(t)
	alice, bob := seedPair(t, s)

	msg, err := s.AppendMessage(model.Message{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi"})
	require.NoError(t, err)

	first, err := s.AddReaction(msg.ID, bob.ID, "heart")
	require.NoError(t, err)
	second, err := s.AddReaction(msg.ID, bob.ID, "heart")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, map[string][]int64{"heart": {bob.ID}}, second)
}

func TestReactionAggregationSorted(t *testing.T) {
	s := newTestStore(t)
	alice, bob := seedPair(t, s)
	carol, err := s.CreateUser("carol", "333")
	require.NoError(t, err)

	msg, err := s.AppendMessage(model.Message{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi"})
	require.NoError(t, err)

	_, err = s.AddReaction(msg.ID, carol.ID, "heart")
	require.NoError(t, err)
	_, err = s.AddReaction(msg.ID, bob.ID, "heart")
	require.NoError(t, err)
	agg, err := s.AddReaction(msg.ID, alice.ID, "laugh")
	require.NoError(t, err)

	require.Equal(t, map[string][]int64{
		"heart": {bob.ID, carol.ID},
		"laugh": {alice.ID},
	}, agg)
}

func TestAddReactionUnknownMessage(t *testing.T) {
	s := newTestStore(t)
	alice, _ := seedPair(t, s)

	_, err := s.AddReaction(9999, alice.ID, "heart")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConversationMessagesOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	alice, bob := seedPair(t, s)
	carol, err := s.CreateUser("carol", "333")
	require.NoError(t, err)

	var ids []int64
	for _, content := range []string{"one", "two", "three", "four"} {
		from, to := alice.ID, bob.ID
		if content == "two" {
			from, to = bob.ID, alice.ID
		}
		msg, err := s.AppendMessage(model.Message{SenderID: from, ReceiverID: to, Content: content})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}
	// traffic with a third user stays out of the pair's history
	_, err = s.AppendMessage(model.Message{SenderID: alice.ID, ReceiverID: carol.ID, Content: "noise"})
	require.NoError(t, err)

	msgs, err := s.ConversationMessages(alice.ID, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, msg := range msgs {
		require.Equal(t, ids[i], msg.ID)
	}

	// symmetric regardless of argument order
	reversed, err := s.ConversationMessages(bob.ID, alice.ID, 0)
	require.NoError(t, err)
	require.Equal(t, msgs, reversed)

	tail, err := s.ConversationMessages(alice.ID, bob.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Equal(t, "three", tail[0].Content)
	require.Equal(t, "four", tail[1].Content)
}
