package directory

import (
	"context"

	"messaging-service/internal/models"
)

// TokenValidator resolves a bearer token to the authenticated user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int64, error)
}

// UserDirectory is the slice of the platform core the messaging subsystem
// depends on: user existence and display resolution.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (models.UserSummary, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	BulkUsers(ctx context.Context, ids []int64) ([]models.UserSummary, error)
}

// PostDirectory answers post existence and display resolution.
type PostDirectory interface {
	PostExists(ctx context.Context, postID int64) (bool, error)
	BulkPosts(ctx context.Context, ids []int64) ([]models.PostSummary, error)
}

var (
	_ TokenValidator = (*Client)(nil)
	_ UserDirectory  = (*Client)(nil)
	_ PostDirectory  = (*Client)(nil)
)
