package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const unreadTTL = 2 * time.Minute

// UnreadCache keeps per-user unread counts in Redis with a short TTL.
// It is advisory: every miss or error falls through to the store.
type UnreadCache struct {
	client *redis.Client
}

// NewUnreadCache creates an unread-count cache.
func NewUnreadCache(client *redis.Client) *UnreadCache {
	return &UnreadCache{client: client}
}

func unreadKey(userID int64) string {
	return fmt.Sprintf("notify:unread:%d", userID)
}

// Get returns the cached count and whether the cache was warm.
func (c *UnreadCache) Get(ctx context.Context, userID int64) (int64, bool) {
	n, err := c.client.Get(ctx, unreadKey(userID)).Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set caches a count.
func (c *UnreadCache) Set(ctx context.Context, userID, count int64) {
	if err := c.client.Set(ctx, unreadKey(userID), count, unreadTTL).Err(); err != nil {
		slog.Debug("unread cache set failed", "user_id", userID, "error", err)
	}
}

// Invalidate drops a user's cached count.
func (c *UnreadCache) Invalidate(ctx context.Context, userID int64) {
	if err := c.client.Del(ctx, unreadKey(userID)).Err(); err != nil {
		slog.Debug("unread cache invalidate failed", "user_id", userID, "error", err)
	}
}
