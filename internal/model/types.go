package model

// Presence of a user as seen by the connection registry. The persisted
// Online flag on User is a denormalized cache; the registry is authoritative.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Phone      string `json:"phone,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	Online     bool   `json:"online"`
	LastSeenAt int64  `json:"last_seen_at,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

type MessageKind string

const (
	KindText    MessageKind = "text"
	KindSticker MessageKind = "sticker"
	KindFile    MessageKind = "file"
)

const StatusSent = "sent"

// Message is immutable once delivered except for sender-only edit and recall.
// Timestamps are unix milliseconds UTC.
type Message struct {
	ID            int64       `json:"id"`
	SenderID      int64       `json:"sender_id"`
	ReceiverID    int64       `json:"receiver_id,omitempty"`
	GroupID       int64       `json:"group_id,omitempty"`
	Kind          MessageKind `json:"message_type"`
	Content       string      `json:"content"`
	FileURL       string      `json:"file_url,omitempty"`
	FileName      string      `json:"file_name,omitempty"`
	FileSize      int64       `json:"file_size,omitempty"`
	FileType      string      `json:"file_type,omitempty"`
	StickerID     string      `json:"sticker_id,omitempty"`
	StickerURL    string      `json:"sticker_url,omitempty"`
	ReplyToID     int64       `json:"reply_to_id,omitempty"`
	ForwardFromID int64       `json:"forward_from_id,omitempty"`
	Status        string      `json:"status"`
	CreatedAt     int64       `json:"timestamp"`
	EditedAt      int64       `json:"edited_at,omitempty"`
}

type Reaction struct {
	MessageID int64  `json:"message_id"`
	UserID    int64  `json:"user_id"`
	Kind      string `json:"reaction"`
	CreatedAt int64  `json:"created_at"`
}

type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
)

// Friendship is directional at creation (requester -> target) and symmetric
// once accepted. At most one edge exists between two users regardless of
// direction.
type Friendship struct {
	ID          int64        `json:"id"`
	RequesterID int64        `json:"requester_id"`
	TargetID    int64        `json:"target_id"`
	Status      FriendStatus `json:"status"`
	CreatedAt   int64        `json:"created_at"`
	UpdatedAt   int64        `json:"updated_at"`
}

// Block suppresses delivery between blocker and blocked in both directions.
type Block struct {
	BlockerID int64 `json:"blocker_id"`
	BlockedID int64 `json:"blocked_id"`
	CreatedAt int64 `json:"created_at"`
}

// ContactSnapshot is the caller's externally-known contact identifiers,
// overwritten wholesale on each sync.
type ContactSnapshot struct {
	UserID     int64    `json:"user_id"`
	Contacts   []string `json:"contacts"`
	MatchedIDs []int64  `json:"matched_ids"`
	UpdatedAt  int64    `json:"updated_at"`
}
