//go:build integration

package cache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-openweather/pkg/cache"
	"github.com/illmade-knight/go-openweather/pkg/weather"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a reachable Redis, e.g. docker run -p 6379:6379 redis:7-alpine.
func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Arrange: a per-run key prefix keeps parallel test runs apart.
	cfg := &cache.RedisConfig{
		Addr:      addr,
		KeyPrefix: fmt.Sprintf("weathertest:%s:", uuid.NewString()),
		TTL:       time.Minute,
	}
	store, err := cache.NewRedisStore[weather.Report](ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Clear(context.Background())
		_ = store.Close()
	})

	report := weather.Report{City: "London", Visibility: 10000}

	// Act / Assert: round trip.
	require.NoError(t, store.Put(ctx, "London", report))
	got, ok, err := store.GetIfFresh(ctx, "london")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "London", got.City)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"london"}, keys)

	// Invalidate removes the entry; a second invalidate is a no-op.
	require.NoError(t, store.Invalidate(ctx, "LONDON"))
	require.NoError(t, store.Invalidate(ctx, "LONDON"))
	_, ok, err = store.GetIfFresh(ctx, "london")
	require.NoError(t, err)
	assert.False(t, ok)

	// Clear empties the prefix without touching the rest of the keyspace.
	require.NoError(t, store.Put(ctx, "Paris", report))
	require.NoError(t, store.Put(ctx, "Oslo", report))
	require.NoError(t, store.Clear(ctx))
	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRedisStore_Integration_TTLExpiry(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := &cache.RedisConfig{
		Addr:      addr,
		KeyPrefix: fmt.Sprintf("weathertest:%s:", uuid.NewString()),
		TTL:       time.Second,
	}
	store, err := cache.NewRedisStore[weather.Report](ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Put(ctx, "berlin", weather.Report{City: "Berlin"}))

	// Redis expires the key server-side.
	require.Eventually(t, func() bool {
		_, ok, err := store.GetIfFresh(ctx, "berlin")
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond, "entry should expire")
}
