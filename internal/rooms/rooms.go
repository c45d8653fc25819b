package rooms

import (
	"fmt"
	"sync"
)

// Emitter is one live connection a room can deliver to. Emit must not block
// indefinitely; the socketio connection satisfies this with a buffered send
// queue.
type Emitter interface {
	Emit(event string, payload any) error
	Close() error
}

// PersonalRoom is the naming convention for the room that reaches every live
// connection of one user.
func PersonalRoom(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// Router groups connections into named rooms and fans events out to them.
// Membership is purely in-memory and rebuilt on reconnect.
type Router struct {
	mu      sync.RWMutex
	rooms   map[string]map[Emitter]struct{}
	joined  map[Emitter]map[string]struct{}
	onError func(Emitter)
}

func NewRouter() *Router {
	return &Router{
		rooms:  make(map[string]map[Emitter]struct{}),
		joined: make(map[Emitter]map[string]struct{}),
	}
}

// OnDeliveryError installs a callback invoked for each member whose delivery
// failed during a broadcast. The failed member has already been removed from
// all rooms.
func (r *Router) OnDeliveryError(fn func(Emitter)) {
	r.onError = fn
}

func (r *Router) Join(room string, conn Emitter) {
	if room == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.rooms[room]
	if set == nil {
		set = make(map[Emitter]struct{})
		r.rooms[room] = set
	}
	set[conn] = struct{}{}

	memberships := r.joined[conn]
	if memberships == nil {
		memberships = make(map[string]struct{})
		r.joined[conn] = memberships
	}
	memberships[room] = struct{}{}
}

func (r *Router) Leave(room string, conn Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, conn)
}

func (r *Router) leaveLocked(room string, conn Emitter) {
	set, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.rooms, room)
	}
	if memberships := r.joined[conn]; memberships != nil {
		delete(memberships, room)
		if len(memberships) == 0 {
			delete(r.joined, conn)
		}
	}
}

// LeaveAll removes the connection from every room it joined.
func (r *Router) LeaveAll(conn Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[conn] {
		r.leaveLocked(room, conn)
	}
}

// Members returns the current member count of a room.
func (r *Router) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Broadcast delivers the event to every connection currently in the room.
// Delivery is best-effort per member: one failing connection is dropped from
// all rooms without aborting delivery to the rest. Events broadcast from a
// single goroutine reach each member in submission order.
func (r *Router) Broadcast(room, event string, payload any) {
	if room == "" {
		return
	}

	r.mu.RLock()
	set := r.rooms[room]
	conns := make([]Emitter, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	var failed []Emitter
	for _, c := range conns {
		if err := c.Emit(event, payload); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		r.LeaveAll(c)
		_ = c.Close()
		if r.onError != nil {
			r.onError(c)
		}
	}
}
