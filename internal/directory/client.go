package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"messaging-service/internal/models"
)

var (
	ErrUnauthorized = errors.New("invalid token")
	ErrUserNotFound = errors.New("user not found")
	ErrPostNotFound = errors.New("post not found")
)

// Client talks to the platform core (users, posts, sessions) over its
// internal REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a directory client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// ValidateToken verifies a bearer token and returns the authenticated user id.
func (c *Client) ValidateToken(ctx context.Context, token string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/sessions/me", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return 0, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("directory: validate token: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	if body.UserID == 0 {
		return 0, ErrUnauthorized
	}
	return body.UserID, nil
}

// GetUser fetches a single user summary.
func (c *Client) GetUser(ctx context.Context, userID int64) (models.UserSummary, error) {
	var user models.UserSummary
	err := c.getJSON(ctx, "/internal/users/"+strconv.FormatInt(userID, 10), &user)
	if errors.Is(err, errNotFound) {
		return models.UserSummary{}, ErrUserNotFound
	}
	return user, err
}

// UserExists reports whether the user id resolves.
func (c *Client) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, err := c.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BulkUsers fetches multiple user summaries in one call.
func (c *Client) BulkUsers(ctx context.Context, ids []int64) ([]models.UserSummary, error) {
	if len(ids) == 0 {
		return []models.UserSummary{}, nil
	}

	var body struct {
		Users []models.UserSummary `json:"users"`
	}
	if err := c.getJSON(ctx, "/internal/users?ids="+joinIDs(ids), &body); err != nil {
		return nil, err
	}
	return body.Users, nil
}

// PostExists reports whether the post id resolves.
func (c *Client) PostExists(ctx context.Context, postID int64) (bool, error) {
	var post models.PostSummary
	err := c.getJSON(ctx, "/internal/posts/"+strconv.FormatInt(postID, 10), &post)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BulkPosts fetches multiple post summaries in one call.
func (c *Client) BulkPosts(ctx context.Context, ids []int64) ([]models.PostSummary, error) {
	if len(ids) == 0 {
		return []models.PostSummary{}, nil
	}

	var body struct {
		Posts []models.PostSummary `json:"posts"`
	}
	if err := c.getJSON(ctx, "/internal/posts?ids="+joinIDs(ids), &body); err != nil {
		return nil, err
	}
	return body.Posts, nil
}

var errNotFound = errors.New("directory: not found")

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return errNotFound
	default:
		return fmt.Errorf("directory: GET %s: unexpected status %d", path, resp.StatusCode)
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return url.QueryEscape(strings.Join(parts, ","))
}
