package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// MessageRepository defines interactions for directed messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, fromID, toID int64, text string) (models.Message, error)
	ListBetween(ctx context.Context, userA, userB int64) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, recipientID, counterpartID int64) (int64, error)
	CountUnread(ctx context.Context, recipientID int64) (int, error)
	ListUsersWithUnread(ctx context.Context, recipientID int64) ([]int64, error)
	MostRecentUnread(ctx context.Context, recipientID int64) (*models.Message, error)
	ListForUser(ctx context.Context, userID int64) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message with is_read=false.
func (r *MessageRepo) CreateMessage(ctx context.Context, fromID, toID int64, text string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (from_id, to_id, text) VALUES ($1, $2, $3)
        RETURNING id, from_id, to_id, text, is_read, created_at`, fromID, toID, text).
		Scan(&msg.ID, &msg.FromID, &msg.ToID, &msg.Text, &msg.IsRead, &msg.CreatedAt)
	return msg, err
}

// ListBetween returns every message exchanged between the two users,
// ascending by creation time.
func (r *MessageRepo) ListBetween(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	query := `SELECT id, from_id, to_id, text, is_read, created_at FROM messages
        WHERE (from_id=$1 AND to_id=$2) OR (from_id=$2 AND to_id=$1)
        ORDER BY created_at ASC, id ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, userA, userB)
	return msgs, err
}

// MarkConversationRead flips is_read on every unread message from the
// counterpart to the recipient. The flip is one-way; rows already read are
// untouched. Returns the number of rows affected.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, recipientID, counterpartID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE
        WHERE to_id=$1 AND from_id=$2 AND is_read = FALSE`, recipientID, counterpartID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnread returns the recipient's global unread count.
func (r *MessageRepo) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE to_id=$1 AND is_read = FALSE`, recipientID)
	return count, err
}

// ListUsersWithUnread returns the distinct senders of unread messages
// addressed to the recipient.
func (r *MessageRepo) ListUsersWithUnread(ctx context.Context, recipientID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT from_id FROM messages WHERE to_id=$1 AND is_read = FALSE`, recipientID)
	return ids, err
}

// MostRecentUnread returns the newest unread message addressed to the
// recipient, or nil when there is none.
func (r *MessageRepo) MostRecentUnread(ctx context.Context, recipientID int64) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, from_id, to_id, text, is_read, created_at FROM messages
        WHERE to_id=$1 AND is_read = FALSE
        ORDER BY created_at DESC, id DESC LIMIT 1`, recipientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListForUser returns every message the user sent or received, descending by
// creation time. Feed for the conversation aggregator.
func (r *MessageRepo) ListForUser(ctx context.Context, userID int64) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, from_id, to_id, text, is_read, created_at FROM messages
        WHERE from_id=$1 OR to_id=$1
        ORDER BY created_at DESC, id DESC`, userID)
	return msgs, err
}
