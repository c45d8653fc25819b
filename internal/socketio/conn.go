package socketio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout  = 10 * time.Second
	pingInterval  = 25 * time.Second
	pingTimeout   = 20 * time.Second
	sendQueueSize = 256
)

var (
	ErrConnClosed    = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// Conn is one live client connection. Outbound frames go through a buffered
// queue drained by a dedicated writer goroutine, so emitting never blocks the
// caller on a slow peer; a full queue fails the emit instead.
type Conn struct {
	ws  *websocket.Conn
	sid string

	send chan []byte
	done chan struct{}

	connected atomic.Bool
	closed    atomic.Bool

	pingMu       sync.Mutex
	awaitingPong bool
	pingSentAt   time.Time
	nextPingAt   time.Time
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:         ws,
		sid:        uuid.NewString(),
		send:       make(chan []byte, sendQueueSize),
		done:       make(chan struct{}),
		nextPingAt: time.Now().Add(pingInterval),
	}
}

// SID is the engine.io session id assigned at upgrade.
func (c *Conn) SID() string { return c.sid }

// Connected reports whether the socket.io connect handshake completed.
func (c *Conn) Connected() bool { return c.connected.Load() }

// Emit sends a named event with a single JSON payload to this connection.
func (c *Conn) Emit(event string, payload any) error {
	pkt, err := buildEventPacket("/", event, payload)
	if err != nil {
		return err
	}
	return c.enqueue([]byte(string(engineMessage) + pkt))
}

func (c *Conn) enqueue(frame []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)
	return c.ws.Close()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop(onFrame func(string)) {
	defer func() { _ = c.Close() }()
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		onFrame(string(data))
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		now := time.Now()
		c.pingMu.Lock()
		if c.awaitingPong && now.Sub(c.pingSentAt) > pingTimeout {
			c.pingMu.Unlock()
			_ = c.Close()
			return
		}
		if !c.awaitingPong && !now.Before(c.nextPingAt) {
			c.awaitingPong = true
			c.pingSentAt = now
			c.nextPingAt = now.Add(pingInterval)
			c.pingMu.Unlock()
			_ = c.enqueue([]byte{byte(enginePing)})
			continue
		}
		c.pingMu.Unlock()
	}
}

func (c *Conn) markPong() {
	c.pingMu.Lock()
	c.awaitingPong = false
	c.pingMu.Unlock()
}
