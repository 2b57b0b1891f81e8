package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rategate/internal/policy"
)

const validYAML = `
rategate:
  server:
    port: 8080
  store:
    type: memory
  limits:
    default:
      limit: 100
      windowMs: 60000
      type: ip
    groups:
      uploads:
        limit: 10
        windowMs: 60000
    routes:
      - path: /api/upload
        group: uploads
        limit: 5
        type: ip_and_user
      - path: /internal
        skip: true
  skipPaths:
    - /healthz
    - /metrics
  staticWhitelist:
    - 203.0.113.1
  bypassRoles:
    - super_admin
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rategate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, validYAML)).WithEnvVars(false).Load()
	if err != nil {
		t.Fatal(err)
	}

	rg := cfg.Rategate
	if rg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", rg.Server.Port)
	}
	if rg.Store.Type != "memory" {
		t.Errorf("store type = %q, want memory", rg.Store.Type)
	}
	if *rg.Limits.Default.Limit != 100 {
		t.Errorf("default limit = %d, want 100", *rg.Limits.Default.Limit)
	}
	if len(rg.SkipPaths) != 2 || len(rg.StaticWhitelist) != 1 {
		t.Errorf("lists = %v / %v", rg.SkipPaths, rg.StaticWhitelist)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, `
rategate:
  limits:
    default:
      limit: 10
      windowMs: 1000
`)).WithEnvVars(false).Load()
	if err != nil {
		t.Fatal(err)
	}

	rg := cfg.Rategate
	if rg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", rg.Server.Port)
	}
	if rg.Store.Type != "redis" || rg.Store.Addr != "localhost:6379" {
		t.Errorf("store defaults = %+v", rg.Store)
	}
	if rg.Limits.StoreTimeout() != 100*time.Millisecond {
		t.Errorf("store timeout = %v, want 100ms", rg.Limits.StoreTimeout())
	}
	if rg.Management.Port != 9090 || rg.Management.BasePath != "/management" {
		t.Errorf("management defaults = %+v", rg.Management)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing default limits",
			yaml: "rategate:\n  server:\n    port: 8080\n",
		},
		{
			name: "unknown store type",
			yaml: `
rategate:
  store:
    type: etcd
  limits:
    default:
      limit: 10
      windowMs: 1000
`,
		},
		{
			name: "unknown group reference",
			yaml: `
rategate:
  limits:
    default:
      limit: 10
      windowMs: 1000
    routes:
      - path: /x
        group: nope
`,
		},
		{
			name: "duplicate route path",
			yaml: `
rategate:
  limits:
    default:
      limit: 10
      windowMs: 1000
    routes:
      - path: /x
      - path: /x
`,
		},
		{
			name: "route with invalid type",
			yaml: `
rategate:
  limits:
    default:
      limit: 10
      windowMs: 1000
    routes:
      - path: /x
        type: bogus
`,
		},
		{
			name: "not yaml",
			yaml: "{{{",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoader(writeConfig(t, tt.yaml)).WithEnvVars(false).Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := NewLoader("/does/not/exist.yaml").Load(); err == nil {
		t.Error("expected error")
	}
}

func TestBuildRuleset(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, validYAML)).WithEnvVars(false).Load()
	if err != nil {
		t.Fatal(err)
	}

	rules, err := cfg.BuildRuleset()
	if err != nil {
		t.Fatal(err)
	}

	if rules.Default.Limit != 100 || rules.Default.Window != time.Minute {
		t.Errorf("default = %+v", rules.Default)
	}

	upload := rules.Match("/api/upload/video")
	// Route limit (5) overrides group limit (10); group window inherited
	if upload.Config.Limit != 5 {
		t.Errorf("upload limit = %d, want 5", upload.Config.Limit)
	}
	if upload.Config.Window != time.Minute {
		t.Errorf("upload window = %v, want 1m", upload.Config.Window)
	}
	if upload.Config.Type != policy.TypeIPAndUser {
		t.Errorf("upload type = %v, want ip_and_user", upload.Config.Type)
	}

	internal := rules.Match("/internal/debug")
	if !internal.Skip {
		t.Error("expected /internal to be a skip rule")
	}

	if !rules.BypassesLimit("super_admin") {
		t.Error("expected super_admin bypass")
	}
	if !rules.ShouldSkip("/healthz") {
		t.Error("expected /healthz skip prefix")
	}
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("RATEGATE_SERVER_PORT", "9999")
	t.Setenv("RATEGATE_STORE_ADDR", "redis.internal:6379")
	t.Setenv("RATEGATE_BYPASSROLES", "super_admin,staff")

	cfg, err := NewLoader(writeConfig(t, validYAML)).Load()
	if err != nil {
		t.Fatal(err)
	}

	rg := cfg.Rategate
	if rg.Server.Port != 9999 {
		t.Errorf("port = %d, want env override 9999", rg.Server.Port)
	}
	if rg.Store.Addr != "redis.internal:6379" {
		t.Errorf("addr = %q, want env override", rg.Store.Addr)
	}
	if len(rg.BypassRoles) != 2 || rg.BypassRoles[1] != "staff" {
		t.Errorf("bypass roles = %v, want [super_admin staff]", rg.BypassRoles)
	}
}

func TestLoadEnv_InvalidInt(t *testing.T) {
	t.Setenv("RATEGATE_SERVER_PORT", "not-a-number")

	if _, err := NewLoader(writeConfig(t, validYAML)).Load(); err == nil {
		t.Error("expected error")
	}
}
