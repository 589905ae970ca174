package conversations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func msg(id, from, to int64, at time.Time, read bool) models.Message {
	return models.Message{ID: id, FromID: from, ToID: to, Text: "m", IsRead: read, CreatedAt: at}
}

func TestListConversationsGroupsByCounterpart(t *testing.T) {
	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)

	repo := new(mocks.MessageRepositoryMock)
	// Newest first, as the repository returns them.
	repo.On("ListForUser", mock.Anything, int64(1)).Return([]models.Message{
		msg(3, 1, 3, t3, false), // A -> C
		msg(2, 2, 1, t2, false), // B -> A
		msg(1, 1, 2, t1, true),  // A -> B
	}, nil).Once()

	agg := NewAggregator(repo)
	convs, err := agg.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, convs, 2)

	// Ordered by recency of each counterpart's latest message.
	require.Equal(t, int64(3), convs[0].CounterpartID)
	require.Equal(t, t3, convs[0].LastMessage.CreatedAt)
	require.Equal(t, 0, convs[0].UnreadCount)

	require.Equal(t, int64(2), convs[1].CounterpartID)
	require.Equal(t, t2, convs[1].LastMessage.CreatedAt)
	require.Equal(t, 1, convs[1].UnreadCount)

	repo.AssertExpectations(t)
}

func TestListConversationsUnreadScopedToCounterpart(t *testing.T) {
	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	repo := new(mocks.MessageRepositoryMock)
	repo.On("ListForUser", mock.Anything, int64(1)).Return([]models.Message{
		msg(4, 3, 1, t1.Add(3*time.Minute), false),
		msg(3, 3, 1, t1.Add(2*time.Minute), false),
		msg(2, 2, 1, t1.Add(time.Minute), false),
		msg(1, 1, 2, t1, false), // authored by viewer, never counts as unread
	}, nil).Once()

	agg := NewAggregator(repo)
	convs, err := agg.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, int64(3), convs[0].CounterpartID)
	require.Equal(t, 2, convs[0].UnreadCount)
	require.Equal(t, int64(2), convs[1].CounterpartID)
	require.Equal(t, 1, convs[1].UnreadCount)
}

func TestListConversationsEmptyLog(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	repo.On("ListForUser", mock.Anything, int64(9)).Return([]models.Message(nil), nil).Once()

	agg := NewAggregator(repo)
	convs, err := agg.ListConversations(context.Background(), 9)
	require.NoError(t, err)
	require.Empty(t, convs)
}

func TestListConversationsSelfThread(t *testing.T) {
	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	repo := new(mocks.MessageRepositoryMock)
	repo.On("ListForUser", mock.Anything, int64(1)).Return([]models.Message{
		msg(1, 1, 1, t1, false),
	}, nil).Once()

	agg := NewAggregator(repo)
	convs, err := agg.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, int64(1), convs[0].CounterpartID)
}
