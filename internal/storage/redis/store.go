// Package redis implements the sliding-window store on Redis sorted sets.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"rategate/internal/storage"
)

// windowScript purges, counts, conditionally records and reads the oldest
// entry as one atomic unit. Timestamps are unix milliseconds used as the
// score; ARGV[5] carries a caller-unique member suffix because math.random
// inside a Redis script is deterministically seeded and would collide for
// same-millisecond requests. ARGV[4] is 1 to record the attempt, 0 to peek.
const windowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local record = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window - 1)

local current = redis.call('ZCARD', key)
local allowed = 0

if record == 1 and current < limit then
	redis.call('ZADD', key, now, now .. '-' .. ARGV[5])
	redis.call('EXPIRE', key, math.ceil(window / 1000))
	current = current + 1
	allowed = 1
end

local oldest = 0
local entries = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if entries[2] then
	oldest = tonumber(entries[2])
end

return {allowed, current, oldest}
`

// Store implements storage.WindowStore using Redis
type Store struct {
	client Client
	config *storage.Config
}

// NewStore creates a new Redis store
func NewStore(client Client, config *storage.Config) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}
	return &Store{
		client: client,
		config: config,
	}
}

// Record atomically checks and records a request attempt
func (s *Store) Record(ctx context.Context, key string, limit int, window time.Duration) (storage.Snapshot, error) {
	return s.eval(ctx, key, limit, window, true)
}

// Peek returns the window state without recording an attempt
func (s *Store) Peek(ctx context.Context, key string, window time.Duration) (storage.Snapshot, error) {
	return s.eval(ctx, key, 0, window, false)
}

func (s *Store) eval(ctx context.Context, key string, limit int, window time.Duration, record bool) (storage.Snapshot, error) {
	recordArg := 0
	if record {
		recordArg = 1
	}

	now := time.Now()
	result, err := s.client.Eval(ctx, windowScript, []string{s.redisKey(key)},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		recordArg,
		strconv.FormatInt(now.UnixNano(), 36),
	)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("failed to execute window script: %w", err)
	}

	res, ok := result.([]interface{})
	if !ok || len(res) != 3 {
		return storage.Snapshot{}, errors.New("invalid window script result")
	}

	allowed, ok1 := res[0].(int64)
	current, ok2 := res[1].(int64)
	oldest, ok3 := res[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return storage.Snapshot{}, errors.New("invalid window script result types")
	}

	return storage.Snapshot{
		Allowed: allowed == 1,
		Current: int(current),
		Oldest:  oldest,
	}, nil
}

// Reset removes all entries for a key
func (s *Store) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key))
}

// Close closes the store
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) redisKey(key string) string {
	return s.config.KeyPrefix + key
}

// Ensure Store implements WindowStore
var _ storage.WindowStore = (*Store)(nil)
