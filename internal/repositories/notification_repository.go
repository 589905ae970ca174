package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// notificationListCap bounds the list endpoint regardless of backlog size.
const notificationListCap = 50

// NotificationRepository persists notification records and answers the
// dedup and read-state queries.
type NotificationRepository interface {
	Insert(ctx context.Context, userID, senderID int64, notifType string, postID *int64) (*models.Notification, error)
	ExistsRecent(ctx context.Context, userID, senderID int64, notifType string, postID *int64, since time.Time) (bool, error)
	List(ctx context.Context, userID int64, unreadOnly bool) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, notificationID int64) (int64, error)
}

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Insert stores a notification unless an identical tuple already landed in
// the same day bucket. The unique index turns the check-then-insert race from
// two concurrent identical events into a silent no-op; a nil notification
// with a nil error means the row was suppressed.
func (r *NotificationRepo) Insert(ctx context.Context, userID, senderID int64, notifType string, postID *int64) (*models.Notification, error) {
	now := time.Now().UTC()
	bucket := now.Unix() / int64(models.DedupWindow/time.Second)

	var n models.Notification
	err := r.db.QueryRowxContext(ctx, `INSERT INTO notifications (user_id, sender_id, type, post_id, created_at, day_bucket)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id, sender_id, type, COALESCE(post_id, 0), day_bucket) DO NOTHING
        RETURNING id, user_id, sender_id, type, post_id, is_read, created_at`,
		userID, senderID, notifType, postID, now, bucket).
		Scan(&n.ID, &n.UserID, &n.SenderID, &n.Type, &n.PostID, &n.IsRead, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ExistsRecent reports whether a matching notification was created after the
// given instant. postID matching treats NULL as equal to NULL.
func (r *NotificationRepo) ExistsRecent(ctx context.Context, userID, senderID int64, notifType string, postID *int64, since time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM notifications
        WHERE user_id=$1 AND sender_id=$2 AND type=$3
        AND post_id IS NOT DISTINCT FROM $4
        AND created_at >= $5)`, userID, senderID, notifType, postID, since)
	return exists, err
}

// List returns the user's notifications, newest first, capped.
func (r *NotificationRepo) List(ctx context.Context, userID int64, unreadOnly bool) ([]models.Notification, error) {
	query := `SELECT id, user_id, sender_id, type, post_id, is_read, created_at FROM notifications
        WHERE user_id=$1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	var ns []models.Notification
	err := r.db.SelectContext(ctx, &ns, query, userID, notificationListCap)
	return ns, err
}

// UnreadCount returns the number of unread notifications for the user.
func (r *NotificationRepo) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND is_read = FALSE`, userID)
	return count, err
}

// MarkRead flips is_read for a notification owned by the user. Updating a
// notification owned by someone else affects zero rows and is not an error.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, notificationID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id=$1 AND user_id=$2`, notificationID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
