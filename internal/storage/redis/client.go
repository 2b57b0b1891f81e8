package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client defines the Redis operations the store needs.
type Client interface {
	// Eval executes a Lua script
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	// Del deletes keys
	Del(ctx context.Context, keys ...string) error
	// Ping checks connectivity
	Ping(ctx context.Context) error
	// Close closes the connection
	Close() error
}

// ClientAdapter adapts a go-redis client to our interface
type ClientAdapter struct {
	client redis.UniversalClient
}

// NewClientAdapter creates a new client adapter
func NewClientAdapter(client redis.UniversalClient) *ClientAdapter {
	return &ClientAdapter{client: client}
}

// Eval executes a Lua script
func (c *ClientAdapter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return c.client.Eval(ctx, script, keys, args...).Result()
}

// Del deletes keys
func (c *ClientAdapter) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks connectivity
func (c *ClientAdapter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection
func (c *ClientAdapter) Close() error {
	return c.client.Close()
}

// Options holds connection settings for NewUniversalClient.
type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	ReadTimeout time.Duration
	PoolSize    int
}

// NewUniversalClient builds the shared go-redis client used by the window
// store, the reputation store and the health check.
func NewUniversalClient(opts Options) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
		ReadTimeout: opts.ReadTimeout,
		PoolSize:    opts.PoolSize,
	})
}
