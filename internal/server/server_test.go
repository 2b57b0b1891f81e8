package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rategate/internal/gate"
	"rategate/internal/health"
	"rategate/internal/ip"
	"rategate/internal/limiter"
	"rategate/internal/policy"
	"rategate/internal/reputation"
	"rategate/internal/storage"
	"rategate/internal/storage/memory"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, limit int) (*Server, *fakeKV) {
	t.Helper()
	logger := testLogger()

	store := memory.NewStore(storage.DefaultConfig())
	t.Cleanup(func() { _ = store.Close() })

	rules := gate.NewRuleset(policy.Config{
		Limit:  limit,
		Window: time.Minute,
		Type:   policy.TypeIP,
	}, nil, nil, nil)

	kv := newFakeKV()
	g := gate.New(
		rules,
		ip.NewResolver(logger),
		limiter.New(store, logger),
		reputation.NewStore(kv, nil, logger),
		nil,
		logger,
	)

	checker := health.NewChecker()
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })

	return New(g, nil, health.NewHandler(checker), logger), kv
}

func authorizeRequest(path, method, clientIP string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/authorize", nil)
	req.Header.Set("X-Forwarded-Uri", path)
	req.Header.Set("X-Forwarded-Method", method)
	req.Header.Set("X-Forwarded-For", clientIP)
	return req
}

func TestAuthorizeAllowed(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizeRequest("/api/orders?page=2", "GET", "203.0.113.10"))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("expected limit header 5, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("expected remaining header 4, got %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected reset header")
	}
}

func TestAuthorizeDenied(t *testing.T) {
	srv, _ := newTestServer(t, 2)
	handler := srv.Handler()

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, authorizeRequest("/login", "POST", "203.0.113.10"))
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third call, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on denial")
	}

	var denial gate.Denial
	if err := json.NewDecoder(rec.Body).Decode(&denial); err != nil {
		t.Fatalf("failed to decode denial: %v", err)
	}
	if denial.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected denial status 429, got %d", denial.StatusCode)
	}
	if denial.Limit != 2 || denial.Remaining != 0 {
		t.Errorf("unexpected denial counts: %+v", denial)
	}
}

func TestAuthorizeKeysByForwardedPath(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizeRequest("/a", "GET", "203.0.113.10"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for /a, got %d", rec.Code)
	}

	// Different path, separate bucket
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizeRequest("/b", "GET", "203.0.113.10"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for /b, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizeRequest("/a", "GET", "203.0.113.10"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for second /a call, got %d", rec.Code)
	}
}

func TestAuthorizeBlacklisted(t *testing.T) {
	srv, kv := newTestServer(t, 100)
	kv.data["blacklist:ip:198.51.100.7"] = `{"ip":"198.51.100.7","addedAt":"2026-01-01T00:00:00Z"}`
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizeRequest("/api", "GET", "198.51.100.7"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for blacklisted ip, got %d", rec.Code)
	}

	var denial gate.Denial
	if err := json.NewDecoder(rec.Body).Decode(&denial); err != nil {
		t.Fatalf("failed to decode denial: %v", err)
	}
	if !strings.Contains(denial.Message, "blocked") {
		t.Errorf("expected blocked message, got %q", denial.Message)
	}
}

func TestAuthorizeMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodDelete, "/v1/authorize", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestForwardedPathFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "traefik header",
			headers: map[string]string{"X-Forwarded-Uri": "/orders?limit=10"},
			want:    "/orders",
		},
		{
			name:    "nginx header",
			headers: map[string]string{"X-Original-URI": "/checkout"},
			want:    "/checkout",
		},
		{
			name: "traefik wins over nginx",
			headers: map[string]string{
				"X-Forwarded-Uri": "/a",
				"X-Original-URI":  "/b",
			},
			want: "/a",
		},
		{
			name:    "no headers falls back to request path",
			headers: nil,
			want:    "/v1/authorize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/authorize", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := forwardedPath(req); got != tt.want {
				t.Errorf("forwardedPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	handler := srv.Handler()

	for _, path := range []string{"/healthz", "/healthz/live", "/healthz/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 for %s, got %d", path, rec.Code)
		}
	}
}
