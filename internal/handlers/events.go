package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/cache"
	"messaging-service/internal/directory"
	"messaging-service/internal/notifications"
)

// EventHandler ingests social events (like, comment, follow) from the CRUD
// services and feeds them to the notification engine. The engine decides
// whether anything is stored; a suppressed event still acks.
type EventHandler struct {
	engine      *notifications.Engine
	users       directory.UserDirectory
	unreadCache *cache.UnreadCache
}

// NewEventHandler builds an EventHandler.
func NewEventHandler(engine *notifications.Engine, users directory.UserDirectory, unreadCache *cache.UnreadCache) *EventHandler {
	return &EventHandler{engine: engine, users: users, unreadCache: unreadCache}
}

// Ingest handles POST /internal/events.
func (h *EventHandler) Ingest(c *gin.Context) {
	var req struct {
		RecipientID int64  `json:"recipient_id" binding:"required"`
		SenderID    int64  `json:"sender_id" binding:"required"`
		Type        string `json:"type" binding:"required"`
		PostID      *int64 `json:"post_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exists, err := h.users.UserExists(c.Request.Context(), req.RecipientID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve recipient"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
		return
	}

	n, err := h.engine.CreateNotification(c.Request.Context(), req.RecipientID, req.SenderID, req.Type, req.PostID)
	if err != nil {
		switch {
		case errors.Is(err, notifications.ErrInvalidType), errors.Is(err, notifications.ErrMissingPost):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, notifications.ErrPostUnknown):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		}
		return
	}

	if n == nil {
		c.JSON(http.StatusOK, gin.H{"created": false})
		return
	}

	h.unreadCache.InvalidateNotifications(c.Request.Context(), req.RecipientID)
	c.JSON(http.StatusCreated, gin.H{"created": true, "notification": n})
}
