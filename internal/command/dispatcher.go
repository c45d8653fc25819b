package command

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"chatwire/internal/auth"
	"chatwire/internal/model"
	"chatwire/internal/rooms"
	"chatwire/internal/store"
)

const (
	ActionGetContactsList = "GET_CONTACTS_LIST"
	ActionFriendRequest   = "FRIEND_REQUEST"
	ActionFriendAccept    = "FRIEND_ACCEPT"
	ActionFriendReject    = "FRIEND_REJECT"
	ActionRemoveFriend    = "REMOVE_FRIEND"
	ActionBlockUser       = "BLOCK_USER"
	ActionUnblockUser     = "UNBLOCK_USER"
	ActionContactsSync    = "CONTACTS_SYNC"
)

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

const (
	errUnauthorized  = "UNAUTHORIZED"
	errUnknownAction = "UNKNOWN_ACTION"
	errInvalidData   = "INVALID_PAYLOAD"
	errTargetMissing = "TARGET_NOT_FOUND"
	errAlreadyExists = "ALREADY_EXISTS"
	errNotAuthorized = "NOT_AUTHORIZED"
	errNotFound      = "NOT_FOUND"
	errPersistence   = "PERSISTENCE_FAILURE"
)

// Envelope is the tagged request carried by the `command` socket event.
type Envelope struct {
	Action string          `json:"action"`
	Token  string          `json:"token"`
	Data   json.RawMessage `json:"data"`
}

// Response is the single reply every command produces.
type Response struct {
	Status string `json:"status"`
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Notifier fans side-channel notifications out to other users' rooms.
type Notifier interface {
	Broadcast(room, event string, payload any)
}

// Presence answers live-connection queries; it is authoritative over the
// persisted online flag.
type Presence interface {
	IsOnline(userID int64) bool
}

// Dispatcher authenticates command envelopes and runs the matching use-case.
// Each dispatch is a pure request/response transaction plus zero or more
// notifications to other users' personal rooms.
type Dispatcher struct {
	store    *store.Store
	presence Presence
	notify   Notifier
	tokens   auth.TokenConfig
	validate *validator.Validate
	log      *slog.Logger
}

func NewDispatcher(st *store.Store, presence Presence, notify Notifier, tokens auth.TokenConfig, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		store:    st,
		presence: presence,
		notify:   notify,
		tokens:   tokens,
		validate: validator.New(),
		log:      log,
	}
}

// Dispatch resolves the caller's identity from the envelope token and invokes
// the action. An invalid or missing token short-circuits before any mutation.
func (d *Dispatcher) Dispatch(env Envelope) Response {
	claims, err := auth.VerifyToken(env.Token, d.tokens)
	if err != nil {
		return Response{Status: StatusError, Action: env.Action, Error: errUnauthorized}
	}
	callerID := claims.UserID

	switch env.Action {
	case ActionGetContactsList:
		return d.getContactsList(callerID, env)
	case ActionFriendRequest:
		return d.friendRequest(callerID, env)
	case ActionFriendAccept:
		return d.friendDecision(callerID, env, true)
	case ActionFriendReject:
		return d.friendDecision(callerID, env, false)
	case ActionRemoveFriend:
		return d.removeFriend(callerID, env)
	case ActionBlockUser:
		return d.blockUser(callerID, env)
	case ActionUnblockUser:
		return d.unblockUser(callerID, env)
	case ActionContactsSync:
		return d.contactsSync(callerID, env)
	default:
		return Response{Status: StatusError, Action: env.Action, Error: errUnknownAction}
	}
}

func (d *Dispatcher) fail(env Envelope, code string) Response {
	return Response{Status: StatusError, Action: env.Action, Error: code}
}

func (d *Dispatcher) ok(env Envelope, data any) Response {
	return Response{Status: StatusSuccess, Action: env.Action, Data: data}
}

type contactEntry struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Online    bool   `json:"online"`
}

func (d *Dispatcher) getContactsList(callerID int64, env Envelope) Response {
	friendIDs, err := d.store.FriendIDsOf(callerID)
	if err != nil {
		return d.fail(env, errPersistence)
	}
	users, err := d.store.UsersByIDs(friendIDs)
	if err != nil {
		return d.fail(env, errPersistence)
	}

	contacts := lo.Map(users, func(u model.User, _ int) contactEntry {
		return contactEntry{
			ID:        u.ID,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Online:    d.presence.IsOnline(u.ID),
		}
	})
	return d.ok(env, map[string]any{"contacts": contacts})
}

type friendRequestData struct {
	TargetID      int64  `json:"target_id"`
	TargetContact string `json:"target_contact"`
}

func (d *Dispatcher) friendRequest(callerID int64, env Envelope) Response {
	var data friendRequestData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return d.fail(env, errInvalidData)
	}
	if data.TargetID == 0 && data.TargetContact == "" {
		return d.fail(env, errInvalidData)
	}

	var target model.User
	var err error
	if data.TargetID != 0 {
		target, err = d.store.GetUser(data.TargetID)
	} else {
		target, err = d.store.GetUserByPhone(data.TargetContact)
	}
	if errors.Is(err, store.ErrNotFound) {
		return d.fail(env, errTargetMissing)
	}
	if err != nil {
		return d.fail(env, errPersistence)
	}
	if target.ID == callerID {
		return d.fail(env, errInvalidData)
	}

	edge, err := d.store.CreateFriendRequest(callerID, target.ID)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return d.fail(env, errAlreadyExists)
	case errors.Is(err, store.ErrNotFound):
		return d.fail(env, errTargetMissing)
	case err != nil:
		return d.fail(env, errPersistence)
	}

	caller, err := d.store.GetUser(callerID)
	if err != nil {
		d.log.Warn("friend request sender lookup failed", "user_id", callerID, "err", err)
	}
	d.notify.Broadcast(rooms.PersonalRoom(target.ID), "friend_request_received", map[string]any{
		"request_id": edge.ID,
		"user_id":    callerID,
		"username":   caller.Username,
	})
	return d.ok(env, map[string]any{"request_id": edge.ID, "target_id": target.ID})
}

type friendDecisionData struct {
	RequestID int64 `json:"request_id" validate:"required"`
}

func (d *Dispatcher) friendDecision(callerID int64, env Envelope, accept bool) Response {
	var data friendDecisionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return d.fail(env, errInvalidData)
	}
	if err := d.validate.Struct(data); err != nil {
		return d.fail(env, errInvalidData)
	}

	var edge model.Friendship
	var err error
	if accept {
		edge, err = d.store.AcceptFriendRequest(data.RequestID, callerID)
	} else {
		edge, err = d.store.RejectFriendRequest(data.RequestID, callerID)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return d.fail(env, errNotFound)
	case errors.Is(err, store.ErrNotOwner):
		return d.fail(env, errNotAuthorized)
	case errors.Is(err, store.ErrAlreadyExists):
		return d.fail(env, errAlreadyExists)
	case err != nil:
		return d.fail(env, errPersistence)
	}

	actor, err := d.store.GetUser(callerID)
	if err != nil {
		d.log.Warn("friend decision actor lookup failed", "user_id", callerID, "err", err)
	}
	event := "friend_request_rejected"
	if accept {
		event = "friend_request_accepted"
	}
	d.notify.Broadcast(rooms.PersonalRoom(edge.RequesterID), event, map[string]any{
		"request_id": edge.ID,
		"user_id":    callerID,
		"username":   actor.Username,
	})
	return d.ok(env, map[string]any{"request_id": edge.ID})
}

type removeFriendData struct {
	TargetID int64 `json:"target_id" validate:"required"`
}

// removeFriend deletes the edge with the target whatever its status, so it
// doubles as cancelling an outgoing pending request.
func (d *Dispatcher) removeFriend(callerID int64, env Envelope) Response {
	var data removeFriendData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return d.fail(env, errInvalidData)
	}
	if err := d.validate.Struct(data); err != nil || data.TargetID == callerID {
		return d.fail(env, errInvalidData)
	}

	err := d.store.RemoveFriendship(callerID, data.TargetID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return d.fail(env, errNotFound)
	case errors.Is(err, store.ErrNotOwner):
		return d.fail(env, errNotAuthorized)
	case err != nil:
		return d.fail(env, errPersistence)
	}

	d.notify.Broadcast(rooms.PersonalRoom(data.TargetID), "friend_removed", map[string]any{
		"user_id": callerID,
	})
	return d.ok(env, map[string]any{"target_id": data.TargetID})
}

type blockData struct {
	TargetID int64 `json:"target_id" validate:"required"`
}

func (d *Dispatcher) blockUser(callerID int64, env Envelope) Response {
	var data blockData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return d.fail(env, errInvalidData)
	}
	if err := d.validate.Struct(data); err != nil || data.TargetID == callerID {
		return d.fail(env, errInvalidData)
	}
	if _, err := d.store.GetUser(data.TargetID); errors.Is(err, store.ErrNotFound) {
		return d.fail(env, errTargetMissing)
	} else if err != nil {
		return d.fail(env, errPersistence)
	}

	created, err := d.store.CreateBlock(callerID, data.TargetID)
	if err != nil {
		return d.fail(env, errPersistence)
	}
	result := "exists"
	if created {
		result = "created"
	}
	// other devices of the blocker reconcile their local state
	d.notify.Broadcast(rooms.PersonalRoom(callerID), "user_blocked", map[string]any{
		"target_id": data.TargetID,
	})
	return d.ok(env, map[string]any{"result": result})
}

func (d *Dispatcher) unblockUser(callerID int64, env Envelope) Response {
	var data blockData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return d.fail(env, errInvalidData)
	}
	if err := d.validate.Struct(data); err != nil {
		return d.fail(env, errInvalidData)
	}

	existed, err := d.store.DeleteBlock(callerID, data.TargetID)
	if err != nil {
		return d.fail(env, errPersistence)
	}
	result := "not_found"
	if existed {
		result = "deleted"
	}
	return d.ok(env, map[string]any{"result": result})
}

type contactsSyncData struct {
	Contacts []string `json:"contacts" validate:"required"`
}

func (d *Dispatcher) contactsSync(callerID int64, env Envelope) Response {
	var data contactsSyncData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return d.fail(env, errInvalidData)
	}
	if err := d.validate.Struct(data); err != nil {
		return d.fail(env, errInvalidData)
	}

	prev, _, err := d.store.GetContactSnapshot(callerID)
	if err != nil {
		return d.fail(env, errPersistence)
	}

	matched := make([]model.User, 0)
	for _, contact := range lo.Uniq(data.Contacts) {
		user, err := d.store.GetUserByPhone(contact)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return d.fail(env, errPersistence)
		}
		if user.ID != callerID {
			matched = append(matched, user)
		}
	}
	matchedIDs := lo.Map(matched, func(u model.User, _ int) int64 { return u.ID })

	if err := d.store.SaveContactSnapshot(model.ContactSnapshot{
		UserID:     callerID,
		Contacts:   data.Contacts,
		MatchedIDs: matchedIDs,
	}); err != nil {
		return d.fail(env, errPersistence)
	}

	// membership comparison, not list comparison: order changes are not news
	if !sameIDSet(prev.MatchedIDs, matchedIDs) {
		d.notify.Broadcast(rooms.PersonalRoom(callerID), "contact_updated", map[string]any{
			"matches": matched,
		})
	}
	return d.ok(env, map[string]any{"matches": matched})
}

func sameIDSet(a, b []int64) bool {
	ua, ub := lo.Uniq(a), lo.Uniq(b)
	return len(ua) == len(ub) && len(lo.Intersect(ua, ub)) == len(ua)
}
