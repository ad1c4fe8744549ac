package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*BreachCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBreachCache(client, ttl), mr
}

func TestBreachCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, 10*time.Minute)
	ctx := context.Background()

	scannedAt := time.Now().UTC().Truncate(time.Second)
	snapshot := BreachSnapshot{
		TicketIDs: []string{"ticket-1", "ticket-2"},
		ScannedAt: scannedAt,
	}
	require.NoError(t, cache.Store(ctx, snapshot))

	got, ok, err := cache.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot.TicketIDs, got.TicketIDs)
	assert.True(t, got.ScannedAt.Equal(scannedAt))
}

func TestBreachCacheMissingKey(t *testing.T) {
	cache, _ := newTestCache(t, 10*time.Minute)

	_, ok, err := cache.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBreachCacheTTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, BreachSnapshot{TicketIDs: []string{"ticket-1"}, ScannedAt: time.Now()}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBreachCacheNilClient(t *testing.T) {
	var cache *BreachCache
	ctx := context.Background()

	assert.NoError(t, cache.Store(ctx, BreachSnapshot{}))
	_, ok, err := cache.Latest(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestBreachCacheStoreOverwrites(t *testing.T) {
	cache, _ := newTestCache(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, BreachSnapshot{TicketIDs: []string{"ticket-1"}}))
	require.NoError(t, cache.Store(ctx, BreachSnapshot{TicketIDs: []string{"ticket-2", "ticket-3"}}))

	got, ok, err := cache.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"ticket-2", "ticket-3"}, got.TicketIDs)
}
