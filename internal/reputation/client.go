package reputation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client defines the key-value operations the reputation store needs.
type Client interface {
	// Set stores a value, with an optional TTL (0 = no expiry)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get retrieves a value; found is false for a missing key
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Exists checks key presence
	Exists(ctx context.Context, key string) (bool, error)
	// Del deletes keys
	Del(ctx context.Context, keys ...string) error
	// Keys returns all keys matching a pattern
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// ClientAdapter adapts a go-redis client to the Client interface
type ClientAdapter struct {
	client redis.UniversalClient
}

// NewClientAdapter creates a new client adapter
func NewClientAdapter(client redis.UniversalClient) *ClientAdapter {
	return &ClientAdapter{client: client}
}

// Set stores a value with an optional TTL
func (c *ClientAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value
func (c *ClientAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Exists checks key presence
func (c *ClientAdapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Del deletes keys
func (c *ClientAdapter) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Keys returns all keys matching a pattern using SCAN so large keyspaces do
// not block the server.
func (c *ClientAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
