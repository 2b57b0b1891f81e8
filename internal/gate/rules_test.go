package gate

import (
	"testing"
	"time"

	"rategate/internal/policy"
)

func TestRuleset_Match(t *testing.T) {
	def := policy.Config{Limit: 100, Window: time.Minute}
	rs := NewRuleset(def, []RouteRule{
		{Prefix: "/api", Config: policy.Config{Limit: 50, Window: time.Minute}},
		{Prefix: "/api/upload", Config: policy.Config{Limit: 5, Window: time.Minute}},
	}, nil, nil)

	tests := []struct {
		path      string
		wantLimit int
	}{
		{path: "/api/upload", wantLimit: 5},
		{path: "/api/upload/video", wantLimit: 5},
		{path: "/api/bands", wantLimit: 50},
		{path: "/other", wantLimit: 100},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rule := rs.Match(tt.path)
			if rule.Config.Limit != tt.wantLimit {
				t.Errorf("Match(%s).Limit = %d, want %d", tt.path, rule.Config.Limit, tt.wantLimit)
			}
		})
	}
}

func TestRuleset_ShouldSkip(t *testing.T) {
	rs := NewRuleset(policy.Config{Limit: 1, Window: time.Second}, nil,
		[]string{"/healthz", "/metrics"}, nil)

	if !rs.ShouldSkip("/healthz/live") {
		t.Error("expected /healthz/live to be skipped")
	}
	if rs.ShouldSkip("/api") {
		t.Error("expected /api not to be skipped")
	}
}

func TestRuleset_BypassesLimit(t *testing.T) {
	rs := NewRuleset(policy.Config{Limit: 1, Window: time.Second}, nil, nil,
		[]string{"super_admin", ""})

	if !rs.BypassesLimit("super_admin") {
		t.Error("expected super_admin to bypass")
	}
	if rs.BypassesLimit("member") {
		t.Error("expected member not to bypass")
	}
	if rs.BypassesLimit("") {
		t.Error("empty role must never bypass")
	}
}
