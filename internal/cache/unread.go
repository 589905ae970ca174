package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"messaging-service/internal/observability"
)

const unreadTTL = 30 * time.Second

// UnreadCache keeps short-lived unread counts for the polled count
// endpoints. The store stays authoritative: entries expire quickly, writes
// invalidate eagerly, and every cache error degrades to a miss. A nil client
// disables the cache entirely.
type UnreadCache struct {
	client *redis.Client
}

// NewUnreadCache constructs the cache. client may be nil.
func NewUnreadCache(client *redis.Client) *UnreadCache {
	return &UnreadCache{client: client}
}

// NewRedisClient dials Redis and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// GetMessageCount returns the cached unread message count for the user.
func (c *UnreadCache) GetMessageCount(ctx context.Context, userID int64) (int, bool) {
	return c.get(ctx, messageKey(userID))
}

// SetMessageCount caches the unread message count for the user.
func (c *UnreadCache) SetMessageCount(ctx context.Context, userID int64, count int) {
	c.set(ctx, messageKey(userID), count)
}

// InvalidateMessages drops the cached message count after a send or a read.
func (c *UnreadCache) InvalidateMessages(ctx context.Context, userID int64) {
	c.invalidate(ctx, messageKey(userID))
}

// GetNotificationCount returns the cached unread notification count.
func (c *UnreadCache) GetNotificationCount(ctx context.Context, userID int64) (int, bool) {
	return c.get(ctx, notificationKey(userID))
}

// SetNotificationCount caches the unread notification count.
func (c *UnreadCache) SetNotificationCount(ctx context.Context, userID int64, count int) {
	c.set(ctx, notificationKey(userID), count)
}

// InvalidateNotifications drops the cached notification count.
func (c *UnreadCache) InvalidateNotifications(ctx context.Context, userID int64) {
	c.invalidate(ctx, notificationKey(userID))
}

func (c *UnreadCache) get(ctx context.Context, key string) (int, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		observability.IncCacheResult("miss")
		return 0, false
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		observability.IncCacheResult("miss")
		return 0, false
	}
	observability.IncCacheResult("hit")
	return count, true
}

func (c *UnreadCache) set(ctx context.Context, key string, count int) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, key, strconv.Itoa(count), unreadTTL) //nolint:errcheck
}

func (c *UnreadCache) invalidate(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, key) //nolint:errcheck
}

func messageKey(userID int64) string {
	return fmt.Sprintf("unread:messages:%d", userID)
}

func notificationKey(userID int64) string {
	return fmt.Sprintf("unread:notifications:%d", userID)
}
