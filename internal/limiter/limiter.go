// Package limiter provides the sliding-window rate limiter on top of a
// window store.
package limiter

import (
	"context"
	"log/slog"
	"time"

	"rategate/internal/storage"
)

// DefaultStoreTimeout bounds a single store round-trip. A slow store is
// treated the same as an unreachable one.
const DefaultStoreTimeout = 100 * time.Millisecond

// Result is the outcome of one limiter check.
type Result struct {
	// Allowed reports whether the request was admitted.
	Allowed bool
	// Current is the number of requests recorded in the active window,
	// including this one when admitted.
	Current int
	// Limit echoes the configured limit.
	Limit int
	// Remaining is max(0, Limit-Current).
	Remaining int
	// ResetMs is how long until the oldest recorded request leaves the
	// window.
	ResetMs int64
	// ResetAt is the absolute epoch-millisecond reset time.
	ResetAt int64
	// FailedOpen reports that the store was unreachable and the request was
	// admitted without being counted.
	FailedOpen bool
}

// SlidingWindow checks request admissibility against a WindowStore. Store
// failures and timeouts fail open: an outage degrades to "no rate limiting"
// instead of blocking all traffic.
type SlidingWindow struct {
	store   storage.WindowStore
	timeout time.Duration
	logger  *slog.Logger

	// onStoreFailure is invoked after a failed-open check, outside the
	// decision path's error handling. Used to feed metrics.
	onStoreFailure func(op string)
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithStoreTimeout overrides the store round-trip timeout.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(l *SlidingWindow) {
		if timeout > 0 {
			l.timeout = timeout
		}
	}
}

// WithStoreFailureHook registers a callback for failed-open checks.
func WithStoreFailureHook(hook func(op string)) Option {
	return func(l *SlidingWindow) {
		l.onStoreFailure = hook
	}
}

// New creates a SlidingWindow limiter.
func New(store storage.WindowStore, logger *slog.Logger, opts ...Option) *SlidingWindow {
	l := &SlidingWindow{
		store:   store,
		timeout: DefaultStoreTimeout,
		logger:  logger.With("component", "limiter"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check atomically records a request attempt for key and returns whether it
// is admitted. Rejected attempts do not consume quota.
func (l *SlidingWindow) Check(ctx context.Context, key string, limit int, window time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	snap, err := l.store.Record(ctx, key, limit, window)
	if err != nil {
		l.failOpen("check", key, err)
		return l.openResult(limit, window)
	}

	return l.result(snap.Allowed, snap, limit, window)
}

// Status returns the current window state for key without recording an
// attempt.
func (l *SlidingWindow) Status(ctx context.Context, key string, limit int, window time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	snap, err := l.store.Peek(ctx, key, window)
	if err != nil {
		l.failOpen("status", key, err)
		return l.openResult(limit, window)
	}

	return l.result(snap.Current < limit, snap, limit, window)
}

// Reset clears the window for key. Used by the administrative surface.
func (l *SlidingWindow) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.store.Reset(ctx, key)
}

func (l *SlidingWindow) result(allowed bool, snap storage.Snapshot, limit int, window time.Duration) Result {
	now := time.Now().UnixMilli()

	resetMs := window.Milliseconds()
	if snap.Oldest > 0 {
		resetMs = snap.Oldest + window.Milliseconds() - now
		if resetMs < 0 {
			resetMs = 0
		}
	}

	remaining := limit - snap.Current
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   allowed,
		Current:   snap.Current,
		Limit:     limit,
		Remaining: remaining,
		ResetMs:   resetMs,
		ResetAt:   now + resetMs,
	}
}

// openResult is the fail-open outcome: admitted, uncounted.
func (l *SlidingWindow) openResult(limit int, window time.Duration) Result {
	now := time.Now().UnixMilli()
	return Result{
		Allowed:    true,
		Current:    0,
		Limit:      limit,
		Remaining:  limit,
		ResetMs:    window.Milliseconds(),
		ResetAt:    now + window.Milliseconds(),
		FailedOpen: true,
	}
}

func (l *SlidingWindow) failOpen(op, key string, err error) {
	l.logger.Warn("window store unreachable, failing open",
		"op", op,
		"key", key,
		"error", err,
	)
	if l.onStoreFailure != nil {
		l.onStoreFailure(op)
	}
}
