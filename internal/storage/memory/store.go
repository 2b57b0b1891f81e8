// Package memory implements the sliding-window store in process memory.
// It is used for tests and single-instance deployments; multi-instance
// deployments need the Redis store for a shared window.
package memory

import (
	"context"
	"sync"
	"time"

	"rategate/internal/storage"
)

// window holds the recorded timestamps for one key, oldest first.
type window struct {
	entries []int64
	touched time.Time
}

// Store implements storage.WindowStore using in-memory storage
type Store struct {
	windows map[string]*window
	mu      sync.Mutex
	config  *storage.Config
	done    chan struct{}
	closeOnce sync.Once
}

// NewStore creates a new memory store
func NewStore(config *storage.Config) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}

	s := &Store{
		windows: make(map[string]*window),
		config:  config,
		done:    make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go s.cleanup()
	}

	return s
}

// Record atomically checks and records a request attempt. The store mutex is
// held across purge, count and insert, which is the in-process equivalent of
// the Redis script's atomicity.
func (s *Store) Record(ctx context.Context, key string, limit int, window time.Duration) (storage.Snapshot, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.getWindow(key, now)
	s.purge(w, now, window)

	current := len(w.entries)
	allowed := false
	if current < limit {
		w.entries = append(w.entries, now.UnixMilli())
		current++
		allowed = true
	}

	return storage.Snapshot{
		Allowed: allowed,
		Current: current,
		Oldest:  s.oldest(w),
	}, nil
}

// Peek returns the window state without recording an attempt
func (s *Store) Peek(ctx context.Context, key string, window time.Duration) (storage.Snapshot, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists {
		return storage.Snapshot{}, nil
	}
	s.purge(w, now, window)

	return storage.Snapshot{
		Current: len(w.entries),
		Oldest:  s.oldest(w),
	}, nil
}

// Reset removes all entries for a key
func (s *Store) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.windows, key)
	s.mu.Unlock()
	return nil
}

// Close stops the cleanup routine
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// getWindow returns the window for key, creating it if needed and evicting
// the stalest window when the key cap is hit.
func (s *Store) getWindow(key string, now time.Time) *window {
	w, exists := s.windows[key]
	if !exists {
		if s.config.MaxKeys > 0 && len(s.windows) >= s.config.MaxKeys {
			s.evictStalest()
		}
		w = &window{}
		s.windows[key] = w
	}
	w.touched = now
	return w
}

// purge drops entries strictly older than the window start.
func (s *Store) purge(w *window, now time.Time, window time.Duration) {
	windowStart := now.UnixMilli() - window.Milliseconds()
	i := 0
	for i < len(w.entries) && w.entries[i] < windowStart {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}

func (s *Store) oldest(w *window) int64 {
	if len(w.entries) == 0 {
		return 0
	}
	return w.entries[0]
}

// evictStalest removes the least recently touched window.
func (s *Store) evictStalest() {
	var stalest string
	var stalestAt time.Time
	for key, w := range s.windows {
		if stalest == "" || w.touched.Before(stalestAt) {
			stalest = key
			stalestAt = w.touched
		}
	}
	if stalest != "" {
		delete(s.windows, stalest)
	}
}

// cleanup periodically removes windows that have not been touched recently
func (s *Store) cleanup() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeIdle()
		}
	}
}

// removeIdle drops windows idle for more than two cleanup intervals.
func (s *Store) removeIdle() {
	threshold := time.Now().Add(-2 * s.config.CleanupInterval)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		if w.touched.Before(threshold) {
			delete(s.windows, key)
		}
	}
}

// Ensure Store implements WindowStore
var _ storage.WindowStore = (*Store)(nil)
