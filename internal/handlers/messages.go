package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/cache"
	"messaging-service/internal/conversations"
	"messaging-service/internal/directory"
	"messaging-service/internal/fanout"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// MessageHandler manages the direct-message endpoints.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	aggregator  *conversations.Aggregator
	users       directory.UserDirectory
	deliverer   fanout.Deliverer
	unreadCache *cache.UnreadCache
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, aggregator *conversations.Aggregator, users directory.UserDirectory, deliverer fanout.Deliverer, unreadCache *cache.UnreadCache) *MessageHandler {
	return &MessageHandler{
		messageRepo: messageRepo,
		aggregator:  aggregator,
		users:       users,
		deliverer:   deliverer,
		unreadCache: unreadCache,
	}
}

// SendMessage persists a message and hands it to the live delivery path.
// The write is durable before any push happens; push outcomes never affect
// the response.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		To   int64  `json:"to" binding:"required"`
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text is required"})
		return
	}
	// The limit counts characters, not bytes; multibyte text must not be
	// penalized by its encoding.
	if utf8.RuneCountInString(text) > models.MaxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text too long"})
		return
	}

	userID := c.GetInt64("userID")
	exists, err := h.users.UserExists(c.Request.Context(), req.To)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve recipient"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), userID, req.To, text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	observability.IncMessageSent()
	h.unreadCache.InvalidateMessages(c.Request.Context(), req.To)

	view, err := h.resolveMessages(c, []models.Message{msg})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve participants"})
		return
	}

	h.deliverer.Deliver(c.Request.Context(), view[0])
	c.JSON(http.StatusCreated, view[0])
}

// GetConversation returns all messages between the caller and the given
// user, ascending. Fetching as the recipient flips the counterpart's unread
// messages to read before the rows are loaded, so the response reflects the
// final read state.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	otherID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt64("userID")

	if _, err := h.messageRepo.MarkConversationRead(c.Request.Context(), userID, otherID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update read state"})
		return
	}
	h.unreadCache.InvalidateMessages(c.Request.Context(), userID)

	msgs, err := h.messageRepo.ListBetween(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	views, err := h.resolveMessages(c, msgs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve participants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": views})
}

// ListConversations returns one summary per counterpart, newest activity
// first.
func (h *MessageHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt64("userID")

	convs, err := h.aggregator.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	counterpartIDs := make([]int64, 0, len(convs))
	for _, conv := range convs {
		counterpartIDs = append(counterpartIDs, conv.CounterpartID)
	}

	users, err := h.users.BulkUsers(c.Request.Context(), counterpartIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}
	userByID := make(map[int64]models.UserSummary, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	for i := range convs {
		convs[i].Counterpart = userByID[convs[i].CounterpartID]
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// UnreadCount returns the caller's global unread message count.
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID := c.GetInt64("userID")

	if count, ok := h.unreadCache.GetMessageCount(c.Request.Context(), userID); ok {
		c.JSON(http.StatusOK, gin.H{"count": count})
		return
	}

	count, err := h.messageRepo.CountUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread messages"})
		return
	}
	h.unreadCache.SetMessageCount(c.Request.Context(), userID, count)

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// UsersWithUnread returns the distinct senders of the caller's unread
// messages.
func (h *MessageHandler) UsersWithUnread(c *gin.Context) {
	userID := c.GetInt64("userID")

	ids, err := h.messageRepo.ListUsersWithUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread senders"})
		return
	}
	if ids == nil {
		ids = []int64{}
	}

	c.JSON(http.StatusOK, gin.H{"user_ids": ids})
}

// LastUnread returns who sent the caller's most recent unread message, or
// null when everything is read.
func (h *MessageHandler) LastUnread(c *gin.Context) {
	userID := c.GetInt64("userID")

	msg, err := h.messageRepo.MostRecentUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread messages"})
		return
	}
	if msg == nil {
		c.JSON(http.StatusOK, nil)
		return
	}

	sender, err := h.users.GetUser(c.Request.Context(), msg.FromID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load sender"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": sender.ID, "username": sender.Username})
}

// resolveMessages attaches user summaries to raw messages for display.
func (h *MessageHandler) resolveMessages(c *gin.Context, msgs []models.Message) ([]models.MessageView, error) {
	idSet := map[int64]struct{}{}
	ids := make([]int64, 0, len(msgs)*2)
	for _, m := range msgs {
		for _, id := range []int64{m.FromID, m.ToID} {
			if _, ok := idSet[id]; !ok {
				idSet[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	users, err := h.users.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}
	userByID := make(map[int64]models.UserSummary, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		from := userByID[m.FromID]
		from.ID = m.FromID
		to := userByID[m.ToID]
		to.ID = m.ToID
		views = append(views, models.MessageView{
			ID:        m.ID,
			From:      from,
			To:        to,
			Text:      m.Text,
			IsRead:    m.IsRead,
			CreatedAt: m.CreatedAt,
		})
	}
	return views, nil
}
