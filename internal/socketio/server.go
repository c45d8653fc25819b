package socketio

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

const maxPayload int64 = 1000000

// EventSink receives decoded socket.io traffic. Implementations must be safe
// for concurrent use; frames from a single connection are delivered in order
// by that connection's reader goroutine.
type EventSink interface {
	HandleConnect(c *Conn)
	HandleEvent(c *Conn, pkt EventPacket)
	HandleDisconnect(c *Conn)
}

// Server upgrades HTTP requests to websocket transports speaking the
// socket.io wire protocol and forwards decoded events to the sink.
type Server struct {
	sink     EventSink
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(sink EventSink, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		sink: sink,
		log:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(maxPayload)

	c := newConn(ws)
	go c.writeLoop()

	open := map[string]any{
		"sid":          c.sid,
		"upgrades":     []string{},
		"pingInterval": pingInterval.Milliseconds(),
		"pingTimeout":  pingTimeout.Milliseconds(),
		"maxPayload":   maxPayload,
	}
	openBytes, _ := json.Marshal(open)
	if err := c.enqueue(append([]byte{byte(engineOpen)}, openBytes...)); err != nil {
		_ = c.Close()
		return
	}

	go c.pingLoop()
	c.readLoop(func(frame string) {
		s.handleFrame(c, frame)
	})

	if c.connected.Load() {
		s.sink.HandleDisconnect(c)
	}
	_ = c.Close()
}

func (s *Server) handleFrame(c *Conn, frame string) {
	if frame == "" {
		return
	}

	switch enginePacketType(frame[0]) {
	case enginePong:
		c.markPong()
	case engineClose:
		_ = c.Close()
	case engineMessage:
		s.handlePayload(c, frame[1:])
	}
}

func (s *Server) handlePayload(c *Conn, payload string) {
	if payload == "" {
		return
	}

	switch socketPacketType(payload[0]) {
	case socketConnect:
		s.handleConnect(c, payload)
	case socketEvent:
		s.handleEvent(c, payload)
	}
}

func (s *Server) handleConnect(c *Conn, payload string) {
	if c.connected.Swap(true) {
		return
	}

	ns, _ := parseOptionalNamespace(payload[1:])
	pkt, err := buildConnectPacket(ns, c.sid)
	if err != nil {
		_ = c.Close()
		return
	}
	if err := c.enqueue([]byte(string(engineMessage) + pkt)); err != nil {
		_ = c.Close()
		return
	}
	s.sink.HandleConnect(c)
}

func (s *Server) handleEvent(c *Conn, payload string) {
	if !c.connected.Load() {
		return
	}

	pkt, err := parseEventPacket(payload)
	if err != nil {
		s.log.Debug("dropping malformed packet", "sid", c.sid, "err", err)
		return
	}
	s.sink.HandleEvent(c, pkt)
}
