package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"chatwire/internal/middleware"
	"chatwire/internal/model"
	"chatwire/internal/registry"
	"chatwire/internal/store"
)

type FriendsHandler struct {
	Store    *store.Store
	Registry *registry.Registry
}

// List returns the caller's accepted friends with live presence.
func (h *FriendsHandler) List(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	friendIDs, err := h.Store.FriendIDsOf(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Friend lookup failed"})
		return
	}
	users, err := h.Store.UsersByIDs(friendIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Friend lookup failed"})
		return
	}

	friends := lo.Map(users, func(u model.User, _ int) gin.H {
		return gin.H{
			"id":         u.ID,
			"username":   u.Username,
			"avatar_url": u.AvatarURL,
			"online":     h.Registry.IsOnline(u.ID),
		}
	})
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// Requests returns the caller's incoming pending friend requests.
func (h *FriendsHandler) Requests(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	pending, err := h.Store.PendingRequestsFor(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Request lookup failed"})
		return
	}

	requesterIDs := lo.Map(pending, func(f model.Friendship, _ int) int64 { return f.RequesterID })
	users, err := h.Store.UsersByIDs(requesterIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Request lookup failed"})
		return
	}
	usersByID := lo.KeyBy(users, func(u model.User) int64 { return u.ID })

	requests := lo.Map(pending, func(f model.Friendship, _ int) gin.H {
		return gin.H{
			"request_id": f.ID,
			"user_id":    f.RequesterID,
			"username":   usersByID[f.RequesterID].Username,
			"created_at": f.CreatedAt,
		}
	})
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
