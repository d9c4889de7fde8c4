// Package redis provides Redis-based implementations of the store interfaces.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"orderbus-go/internal/config"
)

// Key prefix for processed order markers.
const prefixProcessed = "processed:"

// ProcessedStore implements store.ProcessedStore using Redis.
// Each processed order id is a key set with SET NX, so concurrent
// processors agree on which of them marked an order first.
type ProcessedStore struct {
	client     redis.UniversalClient
	ownsClient bool
	prefix     string
	ttl        time.Duration
}

// NewProcessedStore connects to Redis and creates a ledger. A ttl of zero keeps markers forever.
func NewProcessedStore(cfg *config.RedisConfig, ttl time.Duration) (*ProcessedStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewProcessedStoreWithClient(client, cfg.KeyPrefix, ttl)
	s.ownsClient = true
	return s, nil
}

// NewProcessedStoreWithClient creates a ledger on an existing client.
func NewProcessedStoreWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *ProcessedStore {
	return &ProcessedStore{
		client: client,
		prefix: keyPrefix + ":" + prefixProcessed,
		ttl:    ttl,
	}
}

// processedKey generates the Redis key for an order marker.
func (s *ProcessedStore) processedKey(orderID string) string {
	return s.prefix + orderID
}

// IsProcessed reports whether orderID has been marked.
func (s *ProcessedStore) IsProcessed(ctx context.Context, orderID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.processedKey(orderID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed order: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records orderID. Returns false if it was already marked.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, orderID string, at time.Time) (bool, error) {
	created, err := s.client.SetNX(ctx, s.processedKey(orderID), at.UTC().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark order processed: %w", err)
	}
	return created, nil
}

// Close closes the Redis client connection if the store created it.
func (s *ProcessedStore) Close() error {
	if s.ownsClient && s.client != nil {
		return s.client.Close()
	}
	return nil
}
