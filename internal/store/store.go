package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chatwire/internal/model"
)

const seqBandwidth = 64

// Store owns the durable state of the hub: users, the message ledger,
// reactions, the social graph and contact-sync snapshots. All values are
// stored as JSON under typed key prefixes; cross-record invariants are
// enforced inside badger transactions.
type Store struct {
	db  *badger.DB
	log *slog.Logger

	userSeq   *badger.Sequence
	msgSeq    *badger.Sequence
	friendSeq *badger.Sequence
}

func Open(dir string, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	return open(opts, log)
}

// OpenInMemory backs the store with a transient badger instance. Used by
// tests and by deployments that accept losing history on restart.
func OpenInMemory(log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return open(opts, log)
}

func open(opts badger.Options, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &Store{db: db, log: log}
	for _, seq := range []struct {
		key  string
		dest **badger.Sequence
	}{
		{"seq:user", &s.userSeq},
		{"seq:msg", &s.msgSeq},
		{"seq:friend", &s.friendSeq},
	} {
		sq, err := db.GetSequence([]byte(seq.key), seqBandwidth)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sequence %s: %w", seq.key, err)
		}
		*seq.dest = sq
	}
	s.log.Debug("store ready", "dir", opts.Dir, "in_memory", opts.InMemory)
	return s, nil
}

func (s *Store) Close() error {
	for _, sq := range []*badger.Sequence{s.userSeq, s.msgSeq, s.friendSeq} {
		if sq != nil {
			_ = sq.Release()
		}
	}
	return s.db.Close()
}

// nextID skips the zero value a fresh badger sequence hands out, so IDs
// start at 1 and stay monotonic within a store instance.
func nextID(seq *badger.Sequence) (int64, error) {
	for {
		n, err := seq.Next()
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return int64(n), nil
		}
	}
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

func userKey(id int64) []byte     { return []byte(fmt.Sprintf("user:%016d", id)) }
func usernameKey(n string) []byte { return []byte("username:" + n) }
func phoneKey(p string) []byte    { return []byte("phone:" + p) }

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateUser registers a new identity. Username and phone (when given) must
// be unique.
func (s *Store) CreateUser(username, phone string) (model.User, error) {
	id, err := nextID(s.userSeq)
	if err != nil {
		return model.User{}, err
	}

	user := model.User{
		ID:        id,
		Username:  username,
		Phone:     phone,
		CreatedAt: nowMillis(),
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if taken, err := exists(txn, usernameKey(username)); err != nil {
			return err
		} else if taken {
			return ErrAlreadyExists
		}
		if phone != "" {
			if taken, err := exists(txn, phoneKey(phone)); err != nil {
				return err
			} else if taken {
				return ErrAlreadyExists
			}
			if err := txn.Set(phoneKey(phone), []byte(fmt.Sprintf("%d", id))); err != nil {
				return err
			}
		}
		if err := txn.Set(usernameKey(username), []byte(fmt.Sprintf("%d", id))); err != nil {
			return err
		}
		return setJSON(txn, userKey(id), user)
	})
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *Store) GetUser(id int64) (model.User, error) {
	var user model.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	return user, err
}

func (s *Store) getUserByIndex(key []byte) (model.User, error) {
	var user model.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
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
		return getJSON(txn, userKey(id), &user)
	})
	return user, err
}

func (s *Store) GetUserByUsername(username string) (model.User, error) {
	return s.getUserByIndex(usernameKey(username))
}

func (s *Store) GetUserByPhone(phone string) (model.User, error) {
	return s.getUserByIndex(phoneKey(phone))
}

// UsersByIDs loads the given identities, silently skipping ids that no
// longer exist.
func (s *Store) UsersByIDs(ids []int64) ([]model.User, error) {
	users := make([]model.User, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var u model.User
			if err := getJSON(txn, userKey(id), &u); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// SetPresence updates the denormalized presence columns. The in-memory
// registry stays authoritative; callers treat failures here as non-fatal.
func (s *Store) SetPresence(id int64, online bool, atMillis int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var user model.User
		if err := getJSON(txn, userKey(id), &user); err != nil {
			return err
		}
		user.Online = online
		user.LastSeenAt = atMillis
		return setJSON(txn, userKey(id), user)
	})
}
