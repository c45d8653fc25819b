package hub

// Inbound event payloads. Every event has a closed struct validated at the
// boundary; malformed fire-and-forget events are dropped before any domain
// call.

type joinPayload struct {
	UserID int64  `json:"user_id"`
	Room   string `json:"room"`
}

type sendMessagePayload struct {
	SenderID        int64  `json:"sender_id" validate:"required"`
	ReceiverID      int64  `json:"receiver_id" validate:"required"`
	Content         string `json:"content" validate:"required"`
	ClientMessageID string `json:"client_message_id"`
	ReplyToID       int64  `json:"reply_to_id"`
	ForwardFromID   int64  `json:"forward_from_id"`
}

type sendStickerPayload struct {
	SenderID        int64  `json:"sender_id" validate:"required"`
	ReceiverID      int64  `json:"receiver_id" validate:"required"`
	StickerID       string `json:"sticker_id" validate:"required"`
	StickerURL      string `json:"sticker_url"`
	ClientMessageID string `json:"client_message_id"`
}

type sendFilePayload struct {
	SenderID        int64  `json:"sender_id" validate:"required"`
	ReceiverID      int64  `json:"receiver_id" validate:"required"`
	FileURL         string `json:"file_url" validate:"required"`
	FileName        string `json:"file_name"`
	FileSize        int64  `json:"file_size"`
	FileType        string `json:"file_type"`
	ClientMessageID string `json:"client_message_id"`
}

type reactionPayload struct {
	MessageID int64  `json:"message_id" validate:"required"`
	UserID    int64  `json:"user_id" validate:"required"`
	Reaction  string `json:"reaction" validate:"required"`
}

type editPayload struct {
	MessageID  int64  `json:"message_id" validate:"required"`
	UserID     int64  `json:"user_id" validate:"required"`
	NewContent string `json:"new_content" validate:"required"`
}

type recallPayload struct {
	MessageID int64 `json:"message_id" validate:"required"`
	UserID    int64 `json:"user_id" validate:"required"`
}

type typingPayload struct {
	SenderID   int64 `json:"sender_id" validate:"required"`
	ReceiverID int64 `json:"receiver_id" validate:"required"`
	IsTyping   bool  `json:"is_typing"`
}

// sendAck confirms (or refuses) a send to the originating connection only.
type sendAck struct {
	ClientMessageID string `json:"client_message_id,omitempty"`
	MessageID       int64  `json:"message_id,omitempty"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
}

const (
	ackSent    = "sent"
	ackBlocked = "blocked"
	ackError   = "error"
)
