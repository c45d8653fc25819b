package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"chatwire/internal/command"
	"chatwire/internal/gate"
	"chatwire/internal/model"
	"chatwire/internal/registry"
	"chatwire/internal/rooms"
	"chatwire/internal/socketio"
	"chatwire/internal/store"
)

// Hub orchestrates the live side of the system: it owns connection
// registration and room membership, gates and persists inbound messages, and
// fans results out to the affected personal rooms. Failures local to one
// connection's request never touch any other session.
type Hub struct {
	registry *registry.Registry
	rooms    *rooms.Router
	store    *store.Store
	gate     *gate.Gate
	commands *command.Dispatcher
	validate *validator.Validate
	log      *slog.Logger
}

func New(st *store.Store, reg *registry.Registry, router *rooms.Router, g *gate.Gate, commands *command.Dispatcher, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		registry: reg,
		rooms:    router,
		store:    st,
		gate:     g,
		commands: commands,
		validate: validator.New(),
		log:      log,
	}
	router.OnDeliveryError(func(e rooms.Emitter) {
		h.teardown(e)
	})
	return h
}

// HandleConnect greets the raw transport; identity is only established by the
// join event.
func (h *Hub) HandleConnect(c *socketio.Conn) {
	_ = c.Emit("connected", map[string]any{"msg": "Connected to chat server"})
}

func (h *Hub) HandleEvent(c *socketio.Conn, pkt socketio.EventPacket) {
	switch pkt.Event {
	case "join":
		h.handleJoin(c, pkt)
	case "send_message":
		h.handleSendMessage(c, pkt)
	case "send_sticker":
		h.handleSendSticker(c, pkt)
	case "send_file_message":
		h.handleSendFile(c, pkt)
	case "add_reaction":
		h.handleAddReaction(c, pkt)
	case "edit_message":
		h.handleEditMessage(c, pkt)
	case "recall_message":
		h.handleRecallMessage(c, pkt)
	case "typing":
		h.handleTyping(c, pkt)
	case "command":
		h.handleCommand(c, pkt)
	default:
		h.log.Debug("unknown event", "event", pkt.Event, "sid", c.SID())
	}
}

// HandleDisconnect tears down the connection's room membership and presence.
func (h *Hub) HandleDisconnect(c *socketio.Conn) {
	h.teardown(c)
}

func (h *Hub) teardown(c registry.Conn) {
	h.rooms.LeaveAll(c)
	userID, last, ok := h.registry.Unregister(c)
	if !ok || !last {
		return
	}
	h.setPresence(userID, false)
	h.fanPresence(userID, "user_offline")
}

// bind decodes the event's first argument into dst and validates it.
func (h *Hub) bind(pkt socketio.EventPacket, dst any) error {
	if len(pkt.Args) < 1 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(pkt.Args[0], dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func (h *Hub) drop(event string, c *socketio.Conn, err error) {
	h.log.Warn("dropping event", "event", event, "sid", c.SID(), "err", err)
}

func (h *Hub) handleJoin(c *socketio.Conn, pkt socketio.EventPacket) {
	var p joinPayload
	if err := h.bind(pkt, &p); err != nil {
		h.drop("join", c, err)
		return
	}

	var room string
	switch {
	case p.UserID > 0:
		room = rooms.PersonalRoom(p.UserID)
		first, prevUserID, prevLast := h.registry.Register(p.UserID, c)
		if prevUserID != 0 {
			// rebind: the connection stops speaking for the previous user
			h.rooms.Leave(rooms.PersonalRoom(prevUserID), c)
			if prevLast {
				h.setPresence(prevUserID, false)
				h.fanPresence(prevUserID, "user_offline")
			}
		}
		h.rooms.Join(room, c)
		if first {
			h.setPresence(p.UserID, true)
			h.fanPresence(p.UserID, "user_online")
		}
	case p.Room != "":
		room = p.Room
		h.rooms.Join(room, c)
	default:
		h.drop("join", c, errors.New("neither user_id nor room provided"))
		return
	}

	payload := map[string]any{"room": room}
	if p.UserID > 0 {
		payload["user_id"] = p.UserID
	}
	h.rooms.Broadcast(room, "user_joined", payload)
}

func (h *Hub) handleSendMessage(c *socketio.Conn, pkt socketio.EventPacket) {
	var p sendMessagePayload
	if err := h.bind(pkt, &p); err != nil {
		h.drop("send_message", c, err)
		return
	}
	h.deliver(c, model.Message{
		SenderID:      p.SenderID,
		ReceiverID:    p.ReceiverID,
		Kind:          model.KindText,
		Content:       p.Content,
		ReplyToID:     p.ReplyToID,
		ForwardFromID: p.ForwardFromID,
	}, p.ClientMessageID)
}

func (h *Hub) handleSendSticker(c *socketio.Conn, pkt socketio.EventPacket) {
	var p sendStickerPayload
	if err := h.bind(pkt, &p); err != nil {
		h.drop("send_sticker", c, err)
		return
	}
	h.deliver(c, model.Message{
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		Kind:       model.KindSticker,
		Content:    p.StickerID,
		StickerID:  p.StickerID,
		StickerURL: p.StickerURL,
	}, p.ClientMessageID)
}

func (h *Hub) handleSendFile(c *socketio.Conn, pkt socketio.EventPacket) {
	var p sendFilePayload
	if err := h.bind(pkt, &p); err != nil {
		h.drop("send_file_message", c, err)
		return
	}
	h.deliver(c, model.Message{
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		Kind:       model.KindFile,
		Content:    p.FileName,
		FileURL:    p.FileURL,
		FileName:   p.FileName,
		FileSize:   p.FileSize,
		FileType:   p.FileType,
	}, p.ClientMessageID)
}

// deliver is the send-message transaction: gate, persist, ack the sender's
// own connection, fan out to the receiver's personal room. A blocked send is
// never persisted; a failed persist is acked as an error and broadcast to
// nobody.
func (h *Hub) deliver(c *socketio.Conn, draft model.Message, clientMessageID string) {
	verdict, err := h.gate.CanDeliver(draft.SenderID, draft.ReceiverID)
	if err != nil {
		h.log.Error("delivery gate check failed", "sender", draft.SenderID, "receiver", draft.ReceiverID, "err", err)
		_ = c.Emit("message_sent_ack", sendAck{ClientMessageID: clientMessageID, Status: ackError})
		return
	}
	if !verdict.Allowed {
		_ = c.Emit("message_sent_ack", sendAck{
			ClientMessageID: clientMessageID,
			Status:          ackBlocked,
			Reason:          verdict.Reason,
		})
		return
	}

	msg, err := h.store.AppendMessage(draft)
	if err != nil {
		h.log.Error("message persist failed", "sender", draft.SenderID, "receiver", draft.ReceiverID, "err", err)
		_ = c.Emit("message_sent_ack", sendAck{ClientMessageID: clientMessageID, Status: ackError})
		return
	}

	_ = c.Emit("message_sent_ack", sendAck{
		ClientMessageID: clientMessageID,
		MessageID:       msg.ID,
		Status:          ackSent,
	})
	h.rooms.Broadcast(rooms.PersonalRoom(msg.ReceiverID), "receive_message", msg)
}

func (h *Hub) handleAddReaction(c *socketio.Conn, pkt socketio.EventPacket) {
	var p reactionPayload
	if err := h.bind(pkt, &p); err != nil {
		h.drop("add_reaction", c, err)
		return
	}

	msg, err := h.store.GetMessage(p.MessageID)
	if err != nil {
		h.drop("add_reaction", c, err)
		return
	}
	agg, err := h.store.AddReaction(p.MessageID, p.UserID, p.Reaction)
	if err != nil {
		h.drop("add_reaction", c, err)
		return
	}

	// full aggregation, not the delta: clients reconcile from consistent state
	payload := map[string]any{
		"message_id": p.MessageID,
		"reactions":  agg,
	}
	h.broadcastToParticipants(msg, "message_reaction", payload)
}

func (h *Hub) handleEditMessage(c *socketio.Conn, pkt socketio.EventPacket) {
	var p editPayload
	if err := h.bind(pkt, &p); err != nil {
		h.drop("edit_message", c, err)
		return
	}

	msg, err := h.store.EditMessage(p.MessageID, p.UserID, p.NewContent)
	if err != nil {
		h.drop("edit_message", c, err)
		return
	}
	h.broadcastToParticipants(msg, "message_edited", map[string]any{
		"message_id":  msg.ID,
		"new_content": msg.Content,
		"timestamp":   msg.EditedAt,
	})
}

func (h *Hub) handleRecallMessage(c *socketio.Conn, pkt socketio.EventPacket) {
	var p recallPayload
	if err := h.bind(pkt, &p); err != nil {
		h.drop("recall_message", c, err)
		return
	}

	msg, err := h.store.GetMessage(p.MessageID)
	if err != nil {
		h.drop("recall_message", c, err)
		return
	}
	if err := h.store.RecallMessage(p.MessageID, p.UserID); err != nil {
		h.drop("recall_message", c, err)
		return
	}
	h.broadcastToParticipants(msg, "message_recalled", map[string]any{
		"message_id": msg.ID,
	})
}

func (h *Hub) handleTyping(c *socketio.Conn, pkt socketio.EventPacket) {
	var p typingPayload
	if err := h.bind(pkt, &p); err != nil {
		h.drop("typing", c, err)
		return
	}
	h.rooms.Broadcast(rooms.PersonalRoom(p.ReceiverID), "user_typing", map[string]any{
		"sender_id": p.SenderID,
		"is_typing": p.IsTyping,
	})
}

// handleCommand differs from the fire-and-forget events: it always answers
// with exactly one command_response, even for malformed envelopes.
func (h *Hub) handleCommand(c *socketio.Conn, pkt socketio.EventPacket) {
	var env command.Envelope
	if len(pkt.Args) < 1 || json.Unmarshal(pkt.Args[0], &env) != nil {
		_ = c.Emit("command_response", command.Response{
			Status: command.StatusError,
			Error:  "INVALID_PAYLOAD",
		})
		return
	}
	resp := h.commands.Dispatch(env)
	_ = c.Emit("command_response", resp)
}

func (h *Hub) broadcastToParticipants(msg model.Message, event string, payload any) {
	h.rooms.Broadcast(rooms.PersonalRoom(msg.SenderID), event, payload)
	if msg.ReceiverID != 0 && msg.ReceiverID != msg.SenderID {
		h.rooms.Broadcast(rooms.PersonalRoom(msg.ReceiverID), event, payload)
	}
}

// fanPresence notifies every friend's personal room of a presence change.
func (h *Hub) fanPresence(userID int64, event string) {
	friends, err := h.gate.FriendIDsOf(userID)
	if err != nil {
		h.log.Error("presence fan-out lookup failed", "user_id", userID, "err", err)
		return
	}
	payload := map[string]any{"user_id": userID}
	for _, friendID := range friends {
		h.rooms.Broadcast(rooms.PersonalRoom(friendID), event, payload)
	}
}

// setPresence refreshes the denormalized presence columns; the registry
// remains authoritative, so failures only get logged.
func (h *Hub) setPresence(userID int64, online bool) {
	if err := h.store.SetPresence(userID, online, time.Now().UTC().UnixMilli()); err != nil {
		h.log.Warn("presence persist failed", "user_id", userID, "online", online, "err", err)
	}
}
