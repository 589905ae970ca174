package models

import "time"

// Notification types. Self-actions never notify and repeats inside the
// dedup window are suppressed before a row is written.
const (
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationFollow  = "follow"
)

// DedupWindow is the trailing interval within which a repeated identical
// notification-triggering event produces no new row.
const DedupWindow = 24 * time.Hour

// Notification represents a stored notification record.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	SenderID  int64     `db:"sender_id" json:"sender_id"`
	Type      string    `db:"type" json:"type"`
	PostID    *int64    `db:"post_id" json:"post_id,omitempty"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ValidNotificationType reports whether t is a known notification type.
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow:
		return true
	}
	return false
}

// RequiresPost reports whether the type must reference a post.
func RequiresPost(t string) bool {
	return t == NotificationLike || t == NotificationComment
}

// PostSummary is the lightweight post view attached to notification payloads.
type PostSummary struct {
	ID       int64  `json:"id"`
	ImageURL string `json:"image_url,omitempty"`
}

// NotificationView is a Notification with sender and post resolved for display.
type NotificationView struct {
	ID        int64        `json:"id"`
	Sender    UserSummary  `json:"sender"`
	Type      string       `json:"type"`
	Text      string       `json:"text"`
	Post      *PostSummary `json:"post,omitempty"`
	IsRead    bool         `json:"is_read"`
	CreatedAt time.Time    `json:"created_at"`
}

// NotificationText returns the display sentence for a notification type.
func NotificationText(t string) string {
	switch t {
	case NotificationLike:
		return "liked your post"
	case NotificationComment:
		return "commented on your post"
	case NotificationFollow:
		return "started following you"
	}
	return ""
}
