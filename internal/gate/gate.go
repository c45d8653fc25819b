package gate

// Package gate answers delivery-policy questions: whether a direct message
// between two users may be delivered, and which users make up someone's
// accepted social graph for presence fan-out.

const (
	ReasonSenderBlockedReceiver = "sender_blocked_receiver"
	ReasonReceiverBlockedSender = "receiver_blocked_sender"
	ReasonBlockedBoth           = "blocked_both"
)

type Verdict struct {
	Allowed bool
	Reason  string
}

// RelationshipStore is the persistence surface the gate consults.
type RelationshipStore interface {
	BlockStatus(a, b int64) (aBlockedB, bBlockedA bool, err error)
	FriendIDsOf(userID int64) ([]int64, error)
}

type Gate struct {
	store RelationshipStore
}

func New(store RelationshipStore) *Gate {
	return &Gate{store: store}
}

// CanDeliver looks up block edges in both directions; either one suppresses
// delivery. Must be consulted before a direct message is persisted.
func (g *Gate) CanDeliver(senderID, receiverID int64) (Verdict, error) {
	senderBlocked, receiverBlocked, err := g.store.BlockStatus(senderID, receiverID)
	if err != nil {
		return Verdict{}, err
	}

	switch {
	case senderBlocked && receiverBlocked:
		return Verdict{Reason: ReasonBlockedBoth}, nil
	case senderBlocked:
		return Verdict{Reason: ReasonSenderBlockedReceiver}, nil
	case receiverBlocked:
		return Verdict{Reason: ReasonReceiverBlockedSender}, nil
	}
	return Verdict{Allowed: true}, nil
}

// FriendIDsOf unions both edge directions where the friendship is accepted.
func (g *Gate) FriendIDsOf(userID int64) ([]int64, error) {
	return g.store.FriendIDsOf(userID)
}
