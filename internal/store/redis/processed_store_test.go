package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*ProcessedStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewProcessedStoreWithClient(client, "orderbus", ttl), mr
}

func TestProcessedStore_MarkAndCheck(t *testing.T) {
	s, mr := newTestStore(t, 0)
	ctx := context.Background()

	processed, err := s.IsProcessed(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, processed)

	created, err := s.MarkProcessed(ctx, "order-1", time.Now())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.MarkProcessed(ctx, "order-1", time.Now())
	require.NoError(t, err)
	assert.False(t, created)

	processed, err = s.IsProcessed(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, processed)

	assert.True(t, mr.Exists("orderbus:processed:order-1"))
}

func TestProcessedStore_TTL(t *testing.T) {
	s, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	_, err := s.MarkProcessed(ctx, "order-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("orderbus:processed:order-1"))

	mr.FastForward(2 * time.Hour)

	processed, err := s.IsProcessed(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessedStore_ConnectionError(t *testing.T) {
	s, mr := newTestStore(t, 0)
	mr.Close()

	_, err := s.IsProcessed(context.Background(), "order-1")
	assert.Error(t, err)
}
