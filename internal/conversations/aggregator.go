package conversations

import (
	"context"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// Aggregator derives conversation summaries from the message log. Nothing is
// materialized: every call rescans the viewer's messages, which is a single
// pass over an already-sorted result set.
type Aggregator struct {
	messages repositories.MessageRepository
}

// NewAggregator constructs an Aggregator.
func NewAggregator(messages repositories.MessageRepository) *Aggregator {
	return &Aggregator{messages: messages}
}

// ListConversations returns one entry per counterpart the viewer has
// exchanged messages with, ordered by the recency of each counterpart's
// latest message, newest first. The unread count is scoped to the
// counterpart: messages addressed to the viewer and not yet read.
func (a *Aggregator) ListConversations(ctx context.Context, viewerID int64) ([]models.Conversation, error) {
	msgs, err := a.messages.ListForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	// msgs arrive newest first, so the first message seen for a counterpart
	// is that conversation's latest.
	order := make([]int64, 0)
	latest := make(map[int64]models.Message)
	unread := make(map[int64]int)

	for _, msg := range msgs {
		counterpart := msg.FromID
		if counterpart == viewerID {
			counterpart = msg.ToID
		}
		if _, seen := latest[counterpart]; !seen {
			latest[counterpart] = msg
			order = append(order, counterpart)
		}
		if msg.ToID == viewerID && !msg.IsRead {
			unread[counterpart]++
		}
	}

	result := make([]models.Conversation, 0, len(order))
	for _, counterpart := range order {
		result = append(result, models.Conversation{
			CounterpartID: counterpart,
			LastMessage:   latest[counterpart],
			UnreadCount:   unread[counterpart],
		})
	}
	return result, nil
}
