package app

import (
	"io"
	"log/slog"
	"testing"

	"rategate/internal/auth"
	"rategate/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Rategate.Server.Port = 8080
	cfg.Rategate.Store.Type = "memory"
	cfg.Rategate.Limits.Default.Limit = intPtr(100)
	cfg.Rategate.Limits.Default.WindowMs = intPtr(60000)
	return cfg
}

func TestBuildMemoryStore(t *testing.T) {
	srv, err := NewBuilder(testConfig(), testLogger()).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer srv.store.Close()

	if srv.public == nil {
		t.Fatal("expected public server")
	}
	if srv.public.Addr != ":8080" {
		t.Errorf("unexpected public addr: %s", srv.public.Addr)
	}
	if srv.admin != nil {
		t.Error("expected no management server when disabled")
	}
	if srv.gate == nil {
		t.Error("expected gate")
	}
}

func TestBuildWithManagement(t *testing.T) {
	cfg := testConfig()
	cfg.Rategate.Management.Enabled = true
	cfg.Rategate.Management.Host = "127.0.0.1"
	cfg.Rategate.Management.Port = 9090

	srv, err := NewBuilder(cfg, testLogger()).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer srv.store.Close()

	if srv.admin == nil {
		t.Fatal("expected management server")
	}
	if srv.admin.Addr != "127.0.0.1:9090" {
		t.Errorf("unexpected management addr: %s", srv.admin.Addr)
	}
}

func TestBuildRejectsUnknownStore(t *testing.T) {
	cfg := testConfig()
	cfg.Rategate.Store.Type = "etcd"

	if _, err := NewBuilder(cfg, testLogger()).Build(); err == nil {
		t.Fatal("expected error for unknown store type")
	}
}

func TestBuildRejectsInvalidLimits(t *testing.T) {
	cfg := testConfig()
	cfg.Rategate.Limits.Default.Limit = intPtr(0)

	if _, err := NewBuilder(cfg, testLogger()).Build(); err == nil {
		t.Fatal("expected error for non-positive default limit")
	}
}

func TestBuildRejectsBadAuthConfig(t *testing.T) {
	// An HMAC method without a secret cannot verify anything.
	cfg := testConfig()
	cfg.Rategate.Auth = &auth.Config{SigningMethod: "HS256"}

	if _, err := NewBuilder(cfg, testLogger()).Build(); err == nil {
		t.Fatal("expected error for auth config without secret")
	}
}
