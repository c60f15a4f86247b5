package aicache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studyable/studyhub/internal/apperr"
)

const hotTTL = 10 * time.Minute

// Cache layers a Redis hot tier over the durable store. The Redis
// client may be nil; every Redis failure degrades to the store.
type Cache struct {
	store Store
	redis *redis.Client
}

// NewCache creates a layered cache over store. redisClient may be nil.
func NewCache(store Store, redisClient *redis.Client) *Cache {
	return &Cache{store: store, redis: redisClient}
}

// Lookup returns the cached result for (file, type), consulting Redis
// first. A miss in both tiers returns ErrNotFound.
func (c *Cache) Lookup(ctx context.Context, physicalFileID int64, typ ProcessingType) (Entry, error) {
	key := hotKey(physicalFileID, typ)
	if c.redis != nil {
		if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
			var e Entry
			if err := json.Unmarshal(data, &e); err == nil {
				return e, nil
			}
			slog.Debug("discarding corrupt hot cache entry", "key", key)
		} else if !errors.Is(err, redis.Nil) {
			slog.Debug("hot cache read failed", "key", key, "error", err)
		}
	}

	e, err := c.store.Get(ctx, physicalFileID, typ)
	if err != nil {
		return Entry{}, err
	}
	c.warm(ctx, key, e)
	return e, nil
}

// Store persists a processing result and warms the hot tier.
func (c *Cache) Store(ctx context.Context, e Entry) (Entry, error) {
	if _, err := ParseProcessingType(string(e.Type)); err != nil {
		return Entry{}, err
	}
	if e.PhysicalFileID <= 0 {
		return Entry{}, fmt.Errorf("%w: physical file id is required", apperr.ErrValidation)
	}

	stored, err := c.store.Put(ctx, e)
	if err != nil {
		return Entry{}, err
	}
	c.warm(ctx, hotKey(stored.PhysicalFileID, stored.Type), stored)
	return stored, nil
}

// InvalidateFile drops every cached result for a file, both tiers.
// Call it when the underlying file is replaced or deleted.
func (c *Cache) InvalidateFile(ctx context.Context, physicalFileID int64) error {
	if c.redis != nil {
		keys := []string{
			hotKey(physicalFileID, ProcessingSummary),
			hotKey(physicalFileID, ProcessingMCQ),
		}
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			slog.Debug("hot cache invalidation failed", "file_id", physicalFileID, "error", err)
		}
	}
	_, err := c.store.DeleteForFile(ctx, physicalFileID)
	return err
}

func (c *Cache) warm(ctx context.Context, key string, e Entry) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, hotTTL).Err(); err != nil {
		slog.Debug("hot cache write failed", "key", key, "error", err)
	}
}

func hotKey(physicalFileID int64, typ ProcessingType) string {
	return fmt.Sprintf("aicache:%d:%s", physicalFileID, typ)
}
