package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"chatwire/internal/model"
)

func messageKey(id int64) []byte { return []byte(fmt.Sprintf("msg:%020d", id)) }

func convPrefix(a, b int64) []byte {
	if a > b {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("conv:%016d:%016d:", a, b))
}

func convKey(a, b, msgID int64) []byte {
	return append(convPrefix(a, b), []byte(fmt.Sprintf("%020d", msgID))...)
}

func reactionPrefix(msgID int64) []byte {
	return []byte(fmt.Sprintf("react:%020d:", msgID))
}

func reactionKey(msgID, userID int64, kind string) []byte {
	return append(reactionPrefix(msgID), []byte(fmt.Sprintf("%016d:%s", userID, kind))...)
}

// AppendMessage assigns the canonical ID and timestamp, persists the message
// and its conversation index entry, and returns the stored record. Sender and
// receiver must reference existing identities.
func (s *Store) AppendMessage(draft model.Message) (model.Message, error) {
	id, err := nextID(s.msgSeq)
	if err != nil {
		return model.Message{}, err
	}

	msg := draft
	msg.ID = id
	msg.Status = model.StatusSent
	msg.CreatedAt = nowMillis()
	if msg.Kind == "" {
		msg.Kind = model.KindText
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, uid := range []int64{msg.SenderID, msg.ReceiverID} {
			if uid == 0 {
				continue
			}
			if ok, err := exists(txn, userKey(uid)); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("participant %d: %w", uid, ErrNotFound)
			}
		}
		if msg.ReceiverID != 0 {
			if err := txn.Set(convKey(msg.SenderID, msg.ReceiverID, msg.ID), nil); err != nil {
				return err
			}
		}
		return setJSON(txn, messageKey(msg.ID), msg)
	})
	if err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *Store) GetMessage(id int64) (model.Message, error) {
	var msg model.Message
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, messageKey(id), &msg)
	})
	return msg, err
}

// EditMessage replaces the content. Only the original sender may edit; the
// edit timestamp is strictly greater than the creation timestamp.
func (s *Store) EditMessage(id, actor int64, newContent string) (model.Message, error) {
	var msg model.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, messageKey(id), &msg); err != nil {
			return err
		}
		if msg.SenderID != actor {
			return ErrNotOwner
		}
		msg.Content = newContent
		msg.EditedAt = nowMillis()
		if msg.EditedAt <= msg.CreatedAt {
			msg.EditedAt = msg.CreatedAt + 1
		}
		return setJSON(txn, messageKey(id), msg)
	})
	if err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// RecallMessage hard-deletes the message, its conversation index entry and
// every reaction attached to it.
func (s *Store) RecallMessage(id, actor int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var msg model.Message
		if err := getJSON(txn, messageKey(id), &msg); err != nil {
			return err
		}
		if msg.SenderID != actor {
			return ErrNotOwner
		}
		if msg.ReceiverID != 0 {
			if err := txn.Delete(convKey(msg.SenderID, msg.ReceiverID, id)); err != nil {
				return err
			}
		}

		prefix := reactionPrefix(id)
		it := txn.NewIterator(badger.IteratorOptions{})
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete(messageKey(id))
	})
}

// AddReaction inserts the (message, user, kind) reaction if it is not already
// present and returns the full aggregation for the message. Duplicate inserts
// are no-ops that still return the current aggregation.
func (s *Store) AddReaction(msgID, userID int64, kind string) (map[string][]int64, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		if ok, err := exists(txn, messageKey(msgID)); err != nil {
			return err
		} else if !ok {
			return ErrNotFound
		}
		key := reactionKey(msgID, userID, kind)
		if ok, err := exists(txn, key); err != nil {
			return err
		} else if ok {
			return nil
		}
		return setJSON(txn, key, model.Reaction{
			MessageID: msgID,
			UserID:    userID,
			Kind:      kind,
			CreatedAt: nowMillis(),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.ReactionsFor(msgID)
}

// ReactionsFor aggregates all stored reactions for a message, grouped by kind
// with reactor ids in ascending order. A recalled or unknown message yields an
// empty aggregation.
func (s *Store) ReactionsFor(msgID int64) (map[string][]int64, error) {
	agg := make(map[string][]int64)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := reactionPrefix(msgID)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r model.Reaction
			if err := it.Item().Value(func(data []byte) error {
				return json.Unmarshal(data, &r)
			}); err != nil {
				return err
			}
			agg[r.Kind] = append(agg[r.Kind], r.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for kind := range agg {
		sort.Slice(agg[kind], func(i, j int) bool { return agg[kind][i] < agg[kind][j] })
	}
	return agg, nil
}

// ConversationMessages returns the direct messages between two users in
// ascending creation order, message ID breaking timestamp ties. A positive
// limit keeps only the most recent messages.
func (s *Store) ConversationMessages(a, b int64, limit int) ([]model.Message, error) {
	var ids []int64
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := convPrefix(a, b)
		opts := badger.IteratorOptions{Reverse: true}
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			var id int64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%d", &id); err != nil {
				return err
			}
			ids = append(ids, id)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]model.Message, 0, len(ids))
	err = s.db.View(func(txn *badger.Txn) error {
		// walk the collected ids oldest-first
		for i := len(ids) - 1; i >= 0; i-- {
			var msg model.Message
			if err := getJSON(txn, messageKey(ids[i]), &msg); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
