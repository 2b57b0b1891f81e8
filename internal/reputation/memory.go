package reputation

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryValue struct {
	data      string
	expiresAt time.Time
}

func (v memoryValue) expired() bool {
	return !v.expiresAt.IsZero() && time.Now().After(v.expiresAt)
}

// MemoryClient is an in-process Client for single-instance deployments and
// tests. Entries shared with other instances require the Redis client.
type MemoryClient struct {
	mu   sync.Mutex
	data map[string]memoryValue
}

// NewMemoryClient creates an empty in-process client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{data: make(map[string]memoryValue)}
}

// Set stores a value, with an optional TTL (0 = no expiry).
func (m *MemoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := memoryValue{data: value}
	if ttl > 0 {
		v.expiresAt = time.Now().Add(ttl)
	}
	m.data[key] = v
	return nil
}

// Get retrieves a value; found is false for a missing or expired key.
func (m *MemoryClient) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok || v.expired() {
		delete(m.data, key)
		return "", false, nil
	}
	return v.data, true, nil
}

// Exists checks key presence.
func (m *MemoryClient) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := m.Get(ctx, key)
	return found, err
}

// Del deletes keys.
func (m *MemoryClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Keys returns all live keys matching a prefix pattern of the form "p*".
func (m *MemoryClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k, v := range m.data {
		if v.expired() {
			delete(m.data, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
