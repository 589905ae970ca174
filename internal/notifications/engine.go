package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"messaging-service/internal/directory"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

var (
	ErrInvalidType = errors.New("invalid notification type")
	ErrMissingPost = errors.New("notification type requires a post reference")
	ErrPostUnknown = errors.New("referenced post does not exist")
)

// Engine decides whether a social event produces a stored notification.
// It only reacts to events handed to it; it never initiates social actions.
type Engine struct {
	store repositories.NotificationRepository
	posts directory.PostDirectory
}

// NewEngine constructs an Engine.
func NewEngine(store repositories.NotificationRepository, posts directory.PostDirectory) *Engine {
	return &Engine{store: store, posts: posts}
}

// CreateNotification persists a notification for a qualifying event and
// returns it. It returns (nil, nil) when the event is suppressed: self
// actions never notify, and a repeat of the same (recipient, sender, type,
// post) tuple inside the trailing dedup window produces at most one record.
func (e *Engine) CreateNotification(ctx context.Context, recipientID, senderID int64, notifType string, postID *int64) (*models.Notification, error) {
	if !models.ValidNotificationType(notifType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, notifType)
	}
	if models.RequiresPost(notifType) {
		if postID == nil {
			return nil, ErrMissingPost
		}
		exists, err := e.posts.PostExists(ctx, *postID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrPostUnknown
		}
	} else {
		postID = nil
	}

	if recipientID == senderID {
		observability.IncNotificationSuppressed("self")
		return nil, nil
	}

	since := time.Now().Add(-models.DedupWindow)
	exists, err := e.store.ExistsRecent(ctx, recipientID, senderID, notifType, postID, since)
	if err != nil {
		return nil, err
	}
	if exists {
		observability.IncNotificationSuppressed("duplicate")
		return nil, nil
	}

	n, err := e.store.Insert(ctx, recipientID, senderID, notifType, postID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		// Lost the check-then-insert race to an identical concurrent event;
		// the store's unique guard kept exactly one row.
		log.Printf("notification insert suppressed by dedup guard: user=%d sender=%d type=%s", recipientID, senderID, notifType)
		observability.IncNotificationSuppressed("duplicate")
		return nil, nil
	}

	observability.IncNotificationCreated(notifType)
	return n, nil
}
