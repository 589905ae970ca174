package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/cache"
	"messaging-service/internal/directory"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// NotificationHandler manages the notification feed endpoints.
type NotificationHandler struct {
	notificationRepo repositories.NotificationRepository
	users            directory.UserDirectory
	posts            directory.PostDirectory
	unreadCache      *cache.UnreadCache
	audit            *telemetry.AuditEmitter
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(notificationRepo repositories.NotificationRepository, users directory.UserDirectory, posts directory.PostDirectory, unreadCache *cache.UnreadCache, audit *telemetry.AuditEmitter) *NotificationHandler {
	return &NotificationHandler{
		notificationRepo: notificationRepo,
		users:            users,
		posts:            posts,
		unreadCache:      unreadCache,
		audit:            audit,
	}
}

// List returns the caller's notifications, newest first, capped, with sender
// and post references resolved for display.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetInt64("userID")
	unreadOnly := c.Query("unread_only") == "true"

	notifications, err := h.notificationRepo.List(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}

	senderIDs := make([]int64, 0, len(notifications))
	senderSet := map[int64]struct{}{}
	postIDs := make([]int64, 0)
	postSet := map[int64]struct{}{}
	for _, n := range notifications {
		if _, ok := senderSet[n.SenderID]; !ok {
			senderSet[n.SenderID] = struct{}{}
			senderIDs = append(senderIDs, n.SenderID)
		}
		if n.PostID != nil {
			if _, ok := postSet[*n.PostID]; !ok {
				postSet[*n.PostID] = struct{}{}
				postIDs = append(postIDs, *n.PostID)
			}
		}
	}

	senders, err := h.users.BulkUsers(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load senders"})
		return
	}
	senderByID := make(map[int64]models.UserSummary, len(senders))
	for _, u := range senders {
		senderByID[u.ID] = u
	}

	posts, err := h.posts.BulkPosts(c.Request.Context(), postIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load posts"})
		return
	}
	postByID := make(map[int64]models.PostSummary, len(posts))
	for _, p := range posts {
		postByID[p.ID] = p
	}

	views := make([]models.NotificationView, 0, len(notifications))
	for _, n := range notifications {
		sender := senderByID[n.SenderID]
		sender.ID = n.SenderID
		view := models.NotificationView{
			ID:        n.ID,
			Sender:    sender,
			Type:      n.Type,
			Text:      models.NotificationText(n.Type),
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		}
		if n.PostID != nil {
			if post, ok := postByID[*n.PostID]; ok {
				view.Post = &post
			} else {
				view.Post = &models.PostSummary{ID: *n.PostID}
			}
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"notifications": views})
}

// UnreadCount returns the caller's unread notification count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := c.GetInt64("userID")

	if count, ok := h.unreadCache.GetNotificationCount(c.Request.Context(), userID); ok {
		c.JSON(http.StatusOK, gin.H{"count": count})
		return
	}

	count, err := h.notificationRepo.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread notifications"})
		return
	}
	h.unreadCache.SetNotificationCount(c.Request.Context(), userID, count)

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkRead flips a notification owned by the caller to read. Targeting a
// notification owned by someone else updates zero rows and still acks; the
// scoped update makes cross-user mutation impossible rather than an error.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	notificationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	userID := c.GetInt64("userID")

	affected, err := h.notificationRepo.MarkRead(c.Request.Context(), userID, notificationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
		return
	}
	if affected == 0 {
		h.audit.Emit(c.Request.Context(), "WARN", "mark-read affected no rows", requestIDFromContext(c), userIDFromContext(c))
	} else {
		h.unreadCache.InvalidateNotifications(c.Request.Context(), userID)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
