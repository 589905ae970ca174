package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/directory"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, fromID, toID int64, text string) (models.Message, error) {
	args := m.Called(ctx, fromID, toID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListBetween(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkConversationRead(ctx context.Context, recipientID, counterpartID int64) (int64, error) {
	args := m.Called(ctx, recipientID, counterpartID)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MessageRepositoryMock) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	args := m.Called(ctx, recipientID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) ListUsersWithUnread(ctx context.Context, recipientID int64) ([]int64, error) {
	args := m.Called(ctx, recipientID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *MessageRepositoryMock) MostRecentUnread(ctx context.Context, recipientID int64) (*models.Message, error) {
	args := m.Called(ctx, recipientID)
	var msg *models.Message
	if val := args.Get(0); val != nil {
		msg = val.(*models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListForUser(ctx context.Context, userID int64) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type NotificationRepositoryMock struct {
	mock.Mock
}

func (m *NotificationRepositoryMock) Insert(ctx context.Context, userID, senderID int64, notifType string, postID *int64) (*models.Notification, error) {
	args := m.Called(ctx, userID, senderID, notifType, postID)
	var n *models.Notification
	if val := args.Get(0); val != nil {
		n = val.(*models.Notification)
	}
	return n, args.Error(1)
}

func (m *NotificationRepositoryMock) ExistsRecent(ctx context.Context, userID, senderID int64, notifType string, postID *int64, since time.Time) (bool, error) {
	args := m.Called(ctx, userID, senderID, notifType, postID, since)
	return args.Bool(0), args.Error(1)
}

func (m *NotificationRepositoryMock) List(ctx context.Context, userID int64, unreadOnly bool) ([]models.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly)
	var ns []models.Notification
	if val := args.Get(0); val != nil {
		ns = val.([]models.Notification)
	}
	return ns, args.Error(1)
}

func (m *NotificationRepositoryMock) UnreadCount(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *NotificationRepositoryMock) MarkRead(ctx context.Context, userID, notificationID int64) (int64, error) {
	args := m.Called(ctx, userID, notificationID)
	return int64(args.Int(0)), args.Error(1)
}

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) ValidateToken(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return int64(args.Int(0)), args.Error(1)
}

func (m *DirectoryMock) GetUser(ctx context.Context, userID int64) (models.UserSummary, error) {
	args := m.Called(ctx, userID)
	var user models.UserSummary
	if val := args.Get(0); val != nil {
		user = val.(models.UserSummary)
	}
	return user, args.Error(1)
}

func (m *DirectoryMock) UserExists(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *DirectoryMock) BulkUsers(ctx context.Context, ids []int64) ([]models.UserSummary, error) {
	args := m.Called(ctx, ids)
	var users []models.UserSummary
	if val := args.Get(0); val != nil {
		users = val.([]models.UserSummary)
	}
	return users, args.Error(1)
}

func (m *DirectoryMock) PostExists(ctx context.Context, postID int64) (bool, error) {
	args := m.Called(ctx, postID)
	return args.Bool(0), args.Error(1)
}

func (m *DirectoryMock) BulkPosts(ctx context.Context, ids []int64) ([]models.PostSummary, error) {
	args := m.Called(ctx, ids)
	var posts []models.PostSummary
	if val := args.Get(0); val != nil {
		posts = val.([]models.PostSummary)
	}
	return posts, args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.NotificationRepository = (*NotificationRepositoryMock)(nil)
var _ directory.TokenValidator = (*DirectoryMock)(nil)
var _ directory.UserDirectory = (*DirectoryMock)(nil)
var _ directory.PostDirectory = (*DirectoryMock)(nil)
