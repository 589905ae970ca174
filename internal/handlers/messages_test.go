package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/cache"
	"messaging-service/internal/conversations"
	"messaging-service/internal/fanout"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/ws"
)

// memoryMessageRepo is an in-memory MessageRepository for end-to-end handler
// tests that need real read-state transitions.
type memoryMessageRepo struct {
	mu     sync.Mutex
	nextID int64
	clock  time.Time
	msgs   []models.Message
}

func newMemoryMessageRepo() *memoryMessageRepo {
	return &memoryMessageRepo{nextID: 1, clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (r *memoryMessageRepo) CreateMessage(_ context.Context, fromID, toID int64, text string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = r.clock.Add(time.Second)
	msg := models.Message{ID: r.nextID, FromID: fromID, ToID: toID, Text: text, CreatedAt: r.clock}
	r.nextID++
	r.msgs = append(r.msgs, msg)
	return msg, nil
}

func (r *memoryMessageRepo) ListBetween(_ context.Context, userA, userB int64) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, m := range r.msgs {
		if (m.FromID == userA && m.ToID == userB) || (m.FromID == userB && m.ToID == userA) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryMessageRepo) MarkConversationRead(_ context.Context, recipientID, counterpartID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for i := range r.msgs {
		if r.msgs[i].ToID == recipientID && r.msgs[i].FromID == counterpartID && !r.msgs[i].IsRead {
			r.msgs[i].IsRead = true
			affected++
		}
	}
	return affected, nil
}

func (r *memoryMessageRepo) CountUnread(_ context.Context, recipientID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.msgs {
		if m.ToID == recipientID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *memoryMessageRepo) ListUsersWithUnread(_ context.Context, recipientID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int64]struct{}{}
	var ids []int64
	for _, m := range r.msgs {
		if m.ToID == recipientID && !m.IsRead {
			if _, ok := seen[m.FromID]; !ok {
				seen[m.FromID] = struct{}{}
				ids = append(ids, m.FromID)
			}
		}
	}
	return ids, nil
}

func (r *memoryMessageRepo) MostRecentUnread(_ context.Context, recipientID int64) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Message
	for i := range r.msgs {
		m := r.msgs[i]
		if m.ToID == recipientID && !m.IsRead {
			if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
				latest = &r.msgs[i]
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *memoryMessageRepo) ListForUser(_ context.Context, userID int64) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, m := range r.msgs {
		if m.FromID == userID || m.ToID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

var _ repositories.MessageRepository = (*memoryMessageRepo)(nil)

// fakeDirectory resolves every user id.
type fakeDirectory struct{}

func (fakeDirectory) GetUser(_ context.Context, userID int64) (models.UserSummary, error) {
	return models.UserSummary{ID: userID, Username: fmt.Sprintf("user%d", userID)}, nil
}

func (fakeDirectory) UserExists(_ context.Context, _ int64) (bool, error) { return true, nil }

func (d fakeDirectory) BulkUsers(ctx context.Context, ids []int64) ([]models.UserSummary, error) {
	users := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		u, _ := d.GetUser(ctx, id)
		users = append(users, u)
	}
	return users, nil
}

func newMessageRouter(handler *MessageHandler, userID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	r.POST("/messages", handler.SendMessage)
	r.GET("/messages", handler.ListConversations)
	r.GET("/messages/unread-count", handler.UnreadCount)
	r.GET("/messages/users-with-unread", handler.UsersWithUnread)
	r.GET("/messages/last-unread", handler.LastUnread)
	r.GET("/messages/:user_id", handler.GetConversation)
	return r
}

func newMessageHandlerWithStore(repo repositories.MessageRepository) *MessageHandler {
	// Dispatcher over an empty hub: durable writes must succeed with no
	// registered recipient connections.
	dispatcher := fanout.NewDispatcher(nil, ws.NewHub())
	return NewMessageHandler(repo, conversations.NewAggregator(repo), fakeDirectory{}, dispatcher, cache.NewUnreadCache(nil))
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSendMessageValidation(t *testing.T) {
	handler := newMessageHandlerWithStore(newMemoryMessageRepo())
	router := newMessageRouter(handler, 1)

	rec := doJSON(t, router, http.MethodPost, "/messages", `{"to":2,"text":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	long := strings.Repeat("x", models.MaxMessageLength+1)
	rec = doJSON(t, router, http.MethodPost, "/messages", fmt.Sprintf(`{"to":2,"text":"%s"}`, long))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageLengthCountsCharactersNotBytes(t *testing.T) {
	handler := newMessageHandlerWithStore(newMemoryMessageRepo())
	router := newMessageRouter(handler, 1)

	// 300 two-byte characters: 600 bytes but well inside the 500-char limit.
	multibyte := strings.Repeat("é", 300)
	rec := doJSON(t, router, http.MethodPost, "/messages", fmt.Sprintf(`{"to":2,"text":"%s"}`, multibyte))
	require.Equal(t, http.StatusCreated, rec.Code)

	var view models.MessageView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	require.Equal(t, multibyte, view.Text)

	// 501 characters is over the limit regardless of encoding.
	tooLong := strings.Repeat("é", models.MaxMessageLength+1)
	rec = doJSON(t, router, http.MethodPost, "/messages", fmt.Sprintf(`{"to":2,"text":"%s"}`, tooLong))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageUnknownRecipient(t *testing.T) {
	repoMock := new(mocks.MessageRepositoryMock)
	users := new(mocks.DirectoryMock)
	dispatcher := fanout.NewDispatcher(nil, ws.NewHub())
	handler := NewMessageHandler(repoMock, conversations.NewAggregator(repoMock), users, dispatcher, cache.NewUnreadCache(nil))
	router := newMessageRouter(handler, 1)

	users.On("UserExists", mock.Anything, int64(9)).Return(false, nil).Once()

	rec := doJSON(t, router, http.MethodPost, "/messages", `{"to":9,"text":"hi"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	repoMock.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	users.AssertExpectations(t)
}

func TestSendMessageStoreError(t *testing.T) {
	repoMock := new(mocks.MessageRepositoryMock)
	users := new(mocks.DirectoryMock)
	dispatcher := fanout.NewDispatcher(nil, ws.NewHub())
	handler := NewMessageHandler(repoMock, conversations.NewAggregator(repoMock), users, dispatcher, cache.NewUnreadCache(nil))
	router := newMessageRouter(handler, 1)

	users.On("UserExists", mock.Anything, int64(2)).Return(true, nil).Once()
	repoMock.On("CreateMessage", mock.Anything, int64(1), int64(2), "hi").Return(models.Message{}, assert.AnError).Once()

	rec := doJSON(t, router, http.MethodPost, "/messages", `{"to":2,"text":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSendMessagePersistsWithoutConnections(t *testing.T) {
	repo := newMemoryMessageRepo()
	handler := newMessageHandlerWithStore(repo)
	router := newMessageRouter(handler, 1)

	rec := doJSON(t, router, http.MethodPost, "/messages", `{"to":2,"text":"  hi there  "}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var view models.MessageView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	require.Equal(t, "hi there", view.Text)
	require.Equal(t, int64(1), view.From.ID)
	require.Equal(t, int64(2), view.To.ID)
	require.False(t, view.IsRead)

	// Persisted and retrievable despite zero registered connections.
	count, err := repo.CountUnread(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestGetConversationFlipsRecipientMessagesOnly(t *testing.T) {
	repo := newMemoryMessageRepo()
	handler := newMessageHandlerWithStore(repo)

	alice := newMessageRouter(handler, 1)
	bob := newMessageRouter(handler, 2)

	require.Equal(t, http.StatusCreated, doJSON(t, alice, http.MethodPost, "/messages", `{"to":2,"text":"one"}`).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, bob, http.MethodPost, "/messages", `{"to":1,"text":"two"}`).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, alice, http.MethodPost, "/messages", `{"to":2,"text":"three"}`).Code)

	rec := doJSON(t, bob, http.MethodGet, "/messages/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []models.MessageView `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 3)

	// Ascending order.
	for i := 1; i < len(resp.Messages); i++ {
		require.False(t, resp.Messages[i].CreatedAt.Before(resp.Messages[i-1].CreatedAt))
	}

	// Messages addressed to Bob are now read; Bob's own message is untouched.
	for _, m := range resp.Messages {
		if m.To.ID == 2 {
			require.True(t, m.IsRead, "message %d to recipient should be read", m.ID)
		} else {
			require.False(t, m.IsRead, "message %d from recipient must not flip", m.ID)
		}
	}

	count, err := repo.CountUnread(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	// Alice still has Bob's reply unread.
	count, err = repo.CountUnread(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestUnreadEndpoints(t *testing.T) {
	repo := newMemoryMessageRepo()
	handler := newMessageHandlerWithStore(repo)

	alice := newMessageRouter(handler, 1)
	carol := newMessageRouter(handler, 3)

	require.Equal(t, http.StatusCreated, doJSON(t, alice, http.MethodPost, "/messages", `{"to":3,"text":"hi"}`).Code)

	rec := doJSON(t, carol, http.MethodGet, "/messages/unread-count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = doJSON(t, carol, http.MethodGet, "/messages/users-with-unread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"user_ids":[1]}`, rec.Body.String())

	rec = doJSON(t, carol, http.MethodGet, "/messages/last-unread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"user_id":1,"username":"user1"}`, rec.Body.String())

	// After reading, the indicator goes back to null.
	require.Equal(t, http.StatusOK, doJSON(t, carol, http.MethodGet, "/messages/1", "").Code)

	rec = doJSON(t, carol, http.MethodGet, "/messages/last-unread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestConversationScenario(t *testing.T) {
	repo := newMemoryMessageRepo()
	handler := newMessageHandlerWithStore(repo)

	alice := newMessageRouter(handler, 1)
	bob := newMessageRouter(handler, 2)

	// Alice sends "hi" to Bob.
	require.Equal(t, http.StatusCreated, doJSON(t, alice, http.MethodPost, "/messages", `{"to":2,"text":"hi"}`).Code)

	rec := doJSON(t, bob, http.MethodGet, "/messages/unread-count", "")
	require.JSONEq(t, `{"count":1}`, rec.Body.String())

	// Bob fetches the conversation: "hi" arrives read-flipped.
	rec = doJSON(t, bob, http.MethodGet, "/messages/1", "")
	var resp struct {
		Messages []models.MessageView `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	require.Equal(t, "hi", resp.Messages[0].Text)
	require.True(t, resp.Messages[0].IsRead)

	rec = doJSON(t, bob, http.MethodGet, "/messages/unread-count", "")
	require.JSONEq(t, `{"count":0}`, rec.Body.String())

	// Bob replies; Alice's conversation list shows one entry for Bob with
	// the reply as its latest message.
	require.Equal(t, http.StatusCreated, doJSON(t, bob, http.MethodPost, "/messages", `{"to":1,"text":"hey"}`).Code)

	rec = doJSON(t, alice, http.MethodGet, "/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var convResp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&convResp))
	require.Len(t, convResp.Conversations, 1)
	require.Equal(t, int64(2), convResp.Conversations[0].CounterpartID)
	require.Equal(t, "hey", convResp.Conversations[0].LastMessage.Text)
	require.Equal(t, 1, convResp.Conversations[0].UnreadCount)
}

func TestGetConversationInvalidID(t *testing.T) {
	handler := newMessageHandlerWithStore(newMemoryMessageRepo())
	router := newMessageRouter(handler, 1)

	rec := doJSON(t, router, http.MethodGet, "/messages/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
