package models

import "time"

// MaxMessageLength is the upper bound on message text after trimming.
const MaxMessageLength = 500

// Message represents a directed message between two users.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	FromID    int64     `db:"from_id" json:"from_id"`
	ToID      int64     `db:"to_id" json:"to_id"`
	Text      string    `db:"text" json:"text"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// UserSummary is the lightweight user view attached to message payloads.
type UserSummary struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// MessageView is a Message with both participants resolved for display.
type MessageView struct {
	ID        int64       `json:"id"`
	From      UserSummary `json:"from"`
	To        UserSummary `json:"to"`
	Text      string      `json:"text"`
	IsRead    bool        `json:"is_read"`
	CreatedAt time.Time   `json:"created_at"`
}

// MessageEvent is emitted over websocket connections and the fan-out exchange.
type MessageEvent struct {
	Type    string       `json:"type"`
	Message *MessageView `json:"message,omitempty"`
}

// Conversation is the derived per-counterpart view of a message log.
// Recomputed on every query, never stored.
type Conversation struct {
	CounterpartID int64       `json:"counterpart_id"`
	Counterpart   UserSummary `json:"counterpart"`
	LastMessage   Message     `json:"last_message"`
	UnreadCount   int         `json:"unread_count"`
}
