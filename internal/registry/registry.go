package registry

import "sync"

// Conn is the transport handle the registry tracks. Implemented by the
// socketio connection.
type Conn interface {
	Emit(event string, payload any) error
	Close() error
}

// Registry is the bidirectional mapping between user identities and their
// live connections. A user may hold several connections at once (multi-tab);
// presence transitions fire only on the first register and the last
// unregister. The maps never leave the lock.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]map[Conn]struct{}
	owner  map[Conn]int64
}

func New() *Registry {
	return &Registry{
		byUser: make(map[int64]map[Conn]struct{}),
		owner:  make(map[Conn]int64),
	}
}

// Register records the mapping and reports whether this is the user's first
// active connection. Registering the same connection twice is a no-op. A
// connection already bound to another user is moved: it leaves the previous
// owner's set, and prevUserID/prevLast describe the displaced binding so the
// caller can fan out an offline transition.
func (r *Registry) Register(userID int64, conn Conn) (first bool, prevUserID int64, prevLast bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owner[conn]; ok {
		if prev == userID {
			return false, 0, false
		}
		prevUserID = prev
		prevSet := r.byUser[prev]
		delete(prevSet, conn)
		if len(prevSet) == 0 {
			delete(r.byUser, prev)
			prevLast = true
		}
	}
	set := r.byUser[userID]
	if set == nil {
		set = make(map[Conn]struct{})
		r.byUser[userID] = set
	}
	first = len(set) == 0
	set[conn] = struct{}{}
	r.owner[conn] = userID
	return first, prevUserID, prevLast
}

// Unregister removes whichever user owns the connection. Unknown connections
// are a no-op (ok=false), which absorbs transport reconnect races.
func (r *Registry) Unregister(conn Conn) (userID int64, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.owner[conn]
	if !ok {
		return 0, false, false
	}
	delete(r.owner, conn)

	set := r.byUser[userID]
	delete(set, conn)
	if len(set) == 0 {
		delete(r.byUser, userID)
		last = true
	}
	return userID, last, true
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) ConnectionsFor(userID int64) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	conns := make([]Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// UserFor reports which user owns a connection, if any.
func (r *Registry) UserFor(conn Conn) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.owner[conn]
	return userID, ok
}
