package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventCache remembers recently processed provider event ids so
// webhook redeliveries can short-circuit without a ledger lookup. The
// durable ledger stays authoritative; cache entries expire after ttl.
type RedisEventCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisEventCache(client *redis.Client, ttl time.Duration) *RedisEventCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisEventCache{client: client, ttl: ttl}
}

func eventKey(providerEventID string) string {
	return fmt.Sprintf("payment_event:%s", providerEventID)
}

func (r *RedisEventCache) Seen(ctx context.Context, providerEventID string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	n, err := r.client.Exists(ctx, eventKey(providerEventID)).Result()
	if err != nil {
		return false, fmt.Errorf("check event in redis: %w", err)
	}
	return n > 0, nil
}

func (r *RedisEventCache) MarkSeen(ctx context.Context, providerEventID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, eventKey(providerEventID), 1, r.ttl).Err(); err != nil {
		return fmt.Errorf("mark event in redis: %w", err)
	}
	return nil
}
