package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"karabook/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventCache(t *testing.T) {
	cache := NewMemoryEventCache(time.Hour)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.MarkSeen(ctx, "evt_1"))
	seen, err = cache.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryEventCache_TTL(t *testing.T) {
	cache := NewMemoryEventCache(time.Hour)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	cache.nowFunc = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, cache.MarkSeen(ctx, "evt_ttl"))

	now = now.Add(30 * time.Minute)
	seen, err := cache.Seen(ctx, "evt_ttl")
	require.NoError(t, err)
	assert.True(t, seen)

	now = now.Add(31 * time.Minute)
	seen, err = cache.Seen(ctx, "evt_ttl")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisEventCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewRedisEventCache(client, time.Hour)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "evt_r")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.MarkSeen(ctx, "evt_r"))
	seen, err = cache.Seen(ctx, "evt_r")
	require.NoError(t, err)
	assert.True(t, seen)

	// Entries expire after the ttl; the durable ledger takes over.
	mr.FastForward(2 * time.Hour)
	seen, err = cache.Seen(ctx, "evt_r")
	require.NoError(t, err)
	assert.False(t, seen)
}

type failingCache struct{}

func (failingCache) Seen(ctx context.Context, id string) (bool, error) {
	return false, fmt.Errorf("backend down")
}

func (failingCache) MarkSeen(ctx context.Context, id string) error {
	return fmt.Errorf("backend down")
}

var _ domain.EventCache = failingCache{}

func TestFailoverEventCache_FallsBack(t *testing.T) {
	logger := zerolog.Nop()
	fallback := NewMemoryEventCache(time.Hour)
	cache := NewFailoverEventCache(failingCache{}, fallback, &logger)
	ctx := context.Background()

	// First write fails over to memory.
	require.NoError(t, cache.MarkSeen(ctx, "evt_f"))

	seen, err := cache.Seen(ctx, "evt_f")
	require.NoError(t, err)
	assert.True(t, seen)

	// While the primary is marked down, reads skip it entirely.
	assert.True(t, cache.isDown.Load())
}

func TestFailoverEventCache_PrimaryHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	logger := zerolog.Nop()
	primary := NewRedisEventCache(client, time.Hour)
	cache := NewFailoverEventCache(primary, NewMemoryEventCache(time.Hour), &logger)
	ctx := context.Background()

	require.NoError(t, cache.MarkSeen(ctx, "evt_p"))
	seen, err := cache.Seen(ctx, "evt_p")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.False(t, cache.isDown.Load())
}
