package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"chatwire/internal/model"
)

func friendKey(id int64) []byte { return []byte(fmt.Sprintf("friend:%020d", id)) }

// fpairKey enforces at most one edge between two users regardless of
// direction.
func fpairKey(a, b int64) []byte {
	if a > b {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("fpair:%016d:%016d", a, b))
}

func fuserPrefix(userID int64) []byte {
	return []byte(fmt.Sprintf("fuser:%016d:", userID))
}

func fuserKey(userID, friendshipID int64) []byte {
	return append(fuserPrefix(userID), []byte(fmt.Sprintf("%020d", friendshipID))...)
}

func blockKey(blocker, blocked int64) []byte {
	return []byte(fmt.Sprintf("block:%016d:%016d", blocker, blocked))
}

func contactsKey(userID int64) []byte {
	return []byte(fmt.Sprintf("contacts:%016d", userID))
}

// CreateFriendRequest creates a pending edge requester -> target. It fails
// with ErrNotFound when the target identity does not exist and
// ErrAlreadyExists when any edge between the pair is present, in either
// direction and either status.
func (s *Store) CreateFriendRequest(requesterID, targetID int64) (model.Friendship, error) {
	id, err := nextID(s.friendSeq)
	if err != nil {
		return model.Friendship{}, err
	}

	now := nowMillis()
	edge := model.Friendship{
		ID:          id,
		RequesterID: requesterID,
		TargetID:    targetID,
		Status:      model.FriendPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if ok, err := exists(txn, userKey(targetID)); err != nil {
			return err
		} else if !ok {
			return ErrNotFound
		}
		if ok, err := exists(txn, fpairKey(requesterID, targetID)); err != nil {
			return err
		} else if ok {
			return ErrAlreadyExists
		}
		if err := txn.Set(fpairKey(requesterID, targetID), []byte(fmt.Sprintf("%d", id))); err != nil {
			return err
		}
		if err := txn.Set(fuserKey(requesterID, id), nil); err != nil {
			return err
		}
		if err := txn.Set(fuserKey(targetID, id), nil); err != nil {
			return err
		}
		return setJSON(txn, friendKey(id), edge)
	})
	if err != nil {
		return model.Friendship{}, err
	}
	return edge, nil
}

func (s *Store) GetFriendship(id int64) (model.Friendship, error) {
	var edge model.Friendship
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, friendKey(id), &edge)
	})
	return edge, err
}

// FriendshipBetween looks up the edge between two users in either direction.
func (s *Store) FriendshipBetween(a, b int64) (model.Friendship, bool, error) {
	var edge model.Friendship
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fpairKey(a, b))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var id int64
		if err := item.Value(func(data []byte) error {
			_, err := fmt.Sscanf(string(data), "%d", &id)
			return err
		}); err != nil {
			return err
		}
		if err := getJSON(txn, friendKey(id), &edge); err != nil {
			return err
		}
		found = true
		return nil
	})
	return edge, found, err
}

// AcceptFriendRequest flips a pending edge to accepted. Only the edge's
// target may accept.
func (s *Store) AcceptFriendRequest(id, actor int64) (model.Friendship, error) {
	var edge model.Friendship
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, friendKey(id), &edge); err != nil {
			return err
		}
		if edge.TargetID != actor {
			return ErrNotOwner
		}
		if edge.Status != model.FriendPending {
			return ErrAlreadyExists
		}
		edge.Status = model.FriendAccepted
		edge.UpdatedAt = nowMillis()
		return setJSON(txn, friendKey(id), edge)
	})
	if err != nil {
		return model.Friendship{}, err
	}
	return edge, nil
}

// RejectFriendRequest deletes a pending edge. Only the edge's target may
// reject.
func (s *Store) RejectFriendRequest(id, actor int64) (model.Friendship, error) {
	var edge model.Friendship
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, friendKey(id), &edge); err != nil {
			return err
		}
		if edge.TargetID != actor {
			return ErrNotOwner
		}
		if edge.Status != model.FriendPending {
			return ErrNotFound
		}
		return s.deleteFriendshipLocked(txn, edge)
	})
	if err != nil {
		return model.Friendship{}, err
	}
	return edge, nil
}

// RemoveFriendship deletes the edge between two users whatever its status,
// so it also cancels a still-pending request. Either party may remove it.
func (s *Store) RemoveFriendship(a, b int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(fpairKey(a, b))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var id int64
		if err := item.Value(func(data []byte) error {
			_, err := fmt.Sscanf(string(data), "%d", &id)
			return err
		}); err != nil {
			return err
		}
		var edge model.Friendship
		if err := getJSON(txn, friendKey(id), &edge); err != nil {
			return err
		}
		if edge.RequesterID != a && edge.TargetID != a {
			return ErrNotOwner
		}
		return s.deleteFriendshipLocked(txn, edge)
	})
}

func (s *Store) deleteFriendshipLocked(txn *badger.Txn, edge model.Friendship) error {
	if err := txn.Delete(fpairKey(edge.RequesterID, edge.TargetID)); err != nil {
		return err
	}
	if err := txn.Delete(fuserKey(edge.RequesterID, edge.ID)); err != nil {
		return err
	}
	if err := txn.Delete(fuserKey(edge.TargetID, edge.ID)); err != nil {
		return err
	}
	return txn.Delete(friendKey(edge.ID))
}

func (s *Store) friendshipsOf(userID int64) ([]model.Friendship, error) {
	var edges []model.Friendship
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := fuserPrefix(userID)
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()
		var ids []int64
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			var id int64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%d", &id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		for _, id := range ids {
			var edge model.Friendship
			if err := getJSON(txn, friendKey(id), &edge); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// FriendIDsOf unions both directions of accepted edges.
func (s *Store) FriendIDsOf(userID int64) ([]int64, error) {
	edges, err := s.friendshipsOf(userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(edges))
	for _, edge := range edges {
		if edge.Status != model.FriendAccepted {
			continue
		}
		if edge.RequesterID == userID {
			ids = append(ids, edge.TargetID)
		} else {
			ids = append(ids, edge.RequesterID)
		}
	}
	return ids, nil
}

// PendingRequestsFor returns incoming pending edges where the user is the
// target.
func (s *Store) PendingRequestsFor(userID int64) ([]model.Friendship, error) {
	edges, err := s.friendshipsOf(userID)
	if err != nil {
		return nil, err
	}
	pending := make([]model.Friendship, 0)
	for _, edge := range edges {
		if edge.Status == model.FriendPending && edge.TargetID == userID {
			pending = append(pending, edge)
		}
	}
	return pending, nil
}

// CreateBlock is idempotent; the bool reports whether a new edge was written.
func (s *Store) CreateBlock(blockerID, blockedID int64) (bool, error) {
	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := blockKey(blockerID, blockedID)
		if ok, err := exists(txn, key); err != nil {
			return err
		} else if ok {
			return nil
		}
		created = true
		return setJSON(txn, key, model.Block{
			BlockerID: blockerID,
			BlockedID: blockedID,
			CreatedAt: nowMillis(),
		})
	})
	return created, err
}

// DeleteBlock is idempotent; the bool reports whether an edge existed.
func (s *Store) DeleteBlock(blockerID, blockedID int64) (bool, error) {
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := blockKey(blockerID, blockedID)
		if ok, err := exists(txn, key); err != nil {
			return err
		} else if !ok {
			return nil
		}
		existed = true
		return txn.Delete(key)
	})
	return existed, err
}

// BlockStatus reports block edges between two users in both directions.
func (s *Store) BlockStatus(a, b int64) (aBlockedB, bBlockedA bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		var lookupErr error
		if aBlockedB, lookupErr = exists(txn, blockKey(a, b)); lookupErr != nil {
			return lookupErr
		}
		bBlockedA, lookupErr = exists(txn, blockKey(b, a))
		return lookupErr
	})
	return aBlockedB, bBlockedA, err
}

// SaveContactSnapshot overwrites the caller's contact list wholesale.
func (s *Store) SaveContactSnapshot(snap model.ContactSnapshot) error {
	snap.UpdatedAt = nowMillis()
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, contactsKey(snap.UserID), snap)
	})
}

func (s *Store) GetContactSnapshot(userID int64) (model.ContactSnapshot, bool, error) {
	var snap model.ContactSnapshot
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contactsKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(data []byte) error {
			return json.Unmarshal(data, &snap)
		})
	})
	return snap, found, err
}
