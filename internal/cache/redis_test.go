package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisCache(t *testing.T) *RedisCache {
	addr := os.Getenv("MINISHOP_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return NewFromClient(client, time.Minute)
}

type cachedItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestSetGet(t *testing.T) {
	c := getRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "item:1", cachedItem{ID: 1, Name: "Laptop"}))

	var got cachedItem
	require.NoError(t, c.Get(ctx, "item:1", &got))
	assert.Equal(t, "Laptop", got.Name)
}

func TestGetMiss(t *testing.T) {
	c := getRedisCache(t)

	var got cachedItem
	err := c.Get(context.Background(), "item:missing", &got)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestDeleteByPattern(t *testing.T) {
	c := getRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "item:1", cachedItem{ID: 1}))
	require.NoError(t, c.Set(ctx, "item:2", cachedItem{ID: 2}))
	require.NoError(t, c.Set(ctx, "items:all", []cachedItem{}))

	require.NoError(t, c.DeleteByPattern(ctx, "item:*"))

	var got cachedItem
	assert.ErrorIs(t, c.Get(ctx, "item:1", &got), ErrMiss)
	assert.ErrorIs(t, c.Get(ctx, "item:2", &got), ErrMiss)

	var all []cachedItem
	assert.NoError(t, c.Get(ctx, "items:all", &all))
}
