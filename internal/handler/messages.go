package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatwire/internal/middleware"
	"chatwire/internal/store"
)

type MessageHandler struct {
	Store *store.Store
}

// Conversation returns the message history between the caller and a peer,
// oldest first. `limit` caps the result to the most recent messages.
func (h *MessageHandler) Conversation(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	peerID, err := strconv.ParseInt(c.Query("peer_id"), 10, 64)
	if err != nil || peerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid peer_id"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
	}

	msgs, err := h.Store.ConversationMessages(userID, peerID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Message lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
