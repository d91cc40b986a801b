// Package draftstore provides the bounded durable store for draft
// snapshots, so in-progress posts survive a crash or restart.
package draftstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultMaxEntries = 25

// RedisStore keeps draft snapshots in Redis, bounded to a fixed number of
// entries; when the bound is exceeded the least recently written snapshot is
// evicted.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	indexKey   string
	maxEntries int64
}

// NewRedisStore creates a draft snapshot store from a Redis URL.
func NewRedisStore(redisURL string, maxEntries int) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, maxEntries), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, maxEntries int) *RedisStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &RedisStore{
		client:     client,
		prefix:     "draft:",
		indexKey:   "drafts:index",
		maxEntries: int64(maxEntries),
	}
}

func (s *RedisStore) key(draftID string) string {
	return s.prefix + draftID
}

// Save writes a snapshot and refreshes its recency, evicting the oldest
// snapshots beyond the configured bound.
func (s *RedisStore) Save(ctx context.Context, draftID string, data []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(draftID), data, 0)
	pipe.ZAdd(ctx, s.indexKey, redis.Z{Score: float64(time.Now().UnixNano()), Member: draftID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save draft snapshot: %w", err)
	}
	return s.evictOldest(ctx)
}

func (s *RedisStore) evictOldest(ctx context.Context) error {
	count, err := s.client.ZCard(ctx, s.indexKey).Result()
	if err != nil {
		return fmt.Errorf("count draft snapshots: %w", err)
	}
	if count <= s.maxEntries {
		return nil
	}
	oldest, err := s.client.ZRange(ctx, s.indexKey, 0, count-s.maxEntries-1).Result()
	if err != nil {
		return fmt.Errorf("list oldest snapshots: %w", err)
	}
	for _, id := range oldest {
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.indexKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("evict draft snapshot %s: %w", id, err)
		}
	}
	return nil
}

// Load returns the snapshot for draftID, or (nil, nil) when none exists.
func (s *RedisStore) Load(ctx context.Context, draftID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(draftID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft snapshot: %w", err)
	}
	return data, nil
}

// Delete removes a snapshot and its index entry. Deleting an unknown id is
// a no-op.
func (s *RedisStore) Delete(ctx context.Context, draftID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(draftID))
	pipe.ZRem(ctx, s.indexKey, draftID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete draft snapshot: %w", err)
	}
	return nil
}

// List returns stored draft ids, most recently written first.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list draft snapshots: %w", err)
	}
	return ids, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
