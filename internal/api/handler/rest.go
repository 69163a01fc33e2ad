package handler

import (
	"net/http"
	"strconv"
	"time"

	"peerbay/backend/internal/config"

	"github.com/gin-gonic/gin"
)

// ListMessages serves one page of conversation history. Opening a
// conversation triggers this explicit fetch; there is no silent catch-up of
// undelivered messages over the socket.
func (h *Handler) ListMessages(c *gin.Context) {
	userID := c.GetString("user_id")
	conversationID := c.Param("id")

	conv, err := h.Storage.GetConversationByID(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this conversation"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	msgs, err := h.Storage.ListMessages(conversationID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "page": page})
}

// ListConversations returns the caller's conversations, most recent first.
func (h *Handler) ListConversations(c *gin.Context) {
	userID := c.GetString("user_id")

	convs, err := h.Storage.ListConversationsForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// CallHistory reads the caller's durable call log within the retention
// window.
func (h *Handler) CallHistory(c *gin.Context) {
	userID := c.GetString("user_id")
	since := time.Now().Add(-config.HistoryRetention)

	recs, err := h.Storage.ListCallRecords(userID, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load call history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs})
}

// RecentCalls serves the in-memory ring of calls terminated since this
// instance started; cheaper than the table for "what just happened" views.
func (h *Handler) RecentCalls(c *gin.Context) {
	userID := c.GetString("user_id")
	since := time.Now().Add(-config.HistoryRetention)

	c.JSON(http.StatusOK, gin.H{"calls": h.Calls.History().ForUser(userID, since)})
}

type blockRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CreateBlock stops the given user from messaging the caller.
func (h *Handler) CreateBlock(c *gin.Context) {
	userID := c.GetString("user_id")

	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if req.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot block yourself"})
		return
	}

	if err := h.Storage.SetBlocked(userID, req.UserID, true); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to block user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": req.UserID})
}

// DeleteBlock lifts a block the caller placed earlier.
func (h *Handler) DeleteBlock(c *gin.Context) {
	userID := c.GetString("user_id")
	blockedID := c.Param("id")

	if err := h.Storage.SetBlocked(userID, blockedID, false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unblock user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unblocked": blockedID})
}
