package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"rategate/internal/auth"
	"rategate/internal/config"
	"rategate/internal/gate"
	"rategate/internal/health"
	"rategate/internal/ip"
	"rategate/internal/limiter"
	"rategate/internal/reputation"
	"rategate/internal/server"
	"rategate/internal/storage"
	"rategate/internal/storage/memory"
)

// harness is a full rategate stack on an in-memory store, served over a real
// HTTP listener.
type harness struct {
	srv        *httptest.Server
	gate       *gate.Gate
	reputation *reputation.Store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadConfig writes yamlBody to a temp file and runs it through the loader,
// the same path production startup takes.
func loadConfig(t *testing.T, yamlBody string) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rategate.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func newHarness(t *testing.T, yamlBody string) *harness {
	t.Helper()
	logger := testLogger()

	cfg := loadConfig(t, yamlBody)
	rg := &cfg.Rategate

	rules, err := cfg.BuildRuleset()
	if err != nil {
		t.Fatalf("failed to build ruleset: %v", err)
	}

	store := memory.NewStore(storage.DefaultConfig())
	t.Cleanup(func() { _ = store.Close() })

	lim := limiter.New(store, logger, limiter.WithStoreTimeout(rg.Limits.StoreTimeout()))

	var resolverOpts []ip.Option
	if len(rg.TrustedProxies) > 0 {
		resolverOpts = append(resolverOpts, ip.WithTrustedProxies(rg.TrustedProxies))
	}

	repStore := reputation.NewStore(reputation.NewMemoryClient(), rg.StaticWhitelist, logger)

	g := gate.New(rules, ip.NewResolver(logger, resolverOpts...), lim, repStore, nil, logger)

	var verifier *auth.Verifier
	if rg.Auth != nil {
		verifier, err = auth.NewVerifier(rg.Auth, logger)
		if err != nil {
			t.Fatalf("failed to create verifier: %v", err)
		}
	}

	checker := health.NewChecker()
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })

	svc := server.New(g, verifier, health.NewHandler(checker), logger)
	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)

	return &harness{srv: ts, gate: g, reputation: repStore}
}

// authorize issues a forward-auth subrequest for path on behalf of clientIP.
func (h *harness) authorize(t *testing.T, path, clientIP, bearer string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/v1/authorize", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("X-Forwarded-Uri", path)
	req.Header.Set("X-Forwarded-Method", "GET")
	req.Header.Set("X-Forwarded-For", clientIP)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := h.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
