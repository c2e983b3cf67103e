package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/news-ingest/internal/domain"
)

const redisKeyPrefix = "newsingest:checkpoint:"

// RedisStore persists checkpoints in Redis for deployments without a
// writable disk. Values are small JSON blobs with no TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

// Ping reports whether the Redis backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(sourceID string) string {
	return redisKeyPrefix + sourceID
}

func (s *RedisStore) Load(ctx context.Context, sourceID string) (domain.Checkpoint, bool, error) {
	val, err := s.client.Get(ctx, s.key(sourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Checkpoint{}, false, nil
	}
	if err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("reading checkpoint for %s: %w", sourceID, err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal([]byte(val), &cp); err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("decoding checkpoint for %s: %w", sourceID, err)
	}
	return cp, true, nil
}

func (s *RedisStore) Advance(ctx context.Context, sourceID, key string) error {
	cur, ok, err := s.Load(ctx, sourceID)
	if err != nil {
		return err
	}
	if ok && !keyLess(cur.LastKey, key) {
		return nil
	}
	cp := domain.Checkpoint{SourceID: sourceID, LastKey: key, UpdatedAt: time.Now().UTC()}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint for %s: %w", sourceID, err)
	}
	if err := s.client.Set(ctx, s.key(sourceID), data, 0).Err(); err != nil {
		return fmt.Errorf("writing checkpoint for %s: %w", sourceID, err)
	}
	return nil
}
