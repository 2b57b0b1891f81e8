// Package gate orchestrates the per-request rate-limit decision: skip rules,
// reputation lists, bypass roles, policy resolution and the limiter itself.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"rategate/internal/auth"
	"rategate/internal/ip"
	"rategate/internal/limiter"
	"rategate/internal/policy"
	"rategate/internal/reputation"
)

// Request is the per-request input the host hands to the gate.
type Request struct {
	Path       string
	Method     string
	Headers    http.Header
	RemoteAddr string
	Principal  *auth.Principal
}

// Denial is the structured error payload for a denied request.
type Denial struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	ResetAt    int64  `json:"resetAt"`
	RetryAfter int64  `json:"retryAfter"`
}

// Decision is the terminal outcome for one request.
type Decision struct {
	Allowed bool
	// Skipped means the pipeline short-circuited before any limiter state;
	// no rate-limit headers apply.
	Skipped bool
	// IP is the resolved client address.
	IP string
	// Key is the limiter bucket key; empty when the limiter was not
	// consulted.
	Key string
	// Config is the effective policy; zero when not resolved.
	Config policy.Config
	// Result is the limiter outcome; zero when the limiter was not
	// consulted.
	Result limiter.Result
	// Denial is non-nil when Allowed is false.
	Denial *Denial
}

// LimiterConsulted reports whether the sliding window was checked, and hence
// whether rate-limit headers carry real values.
func (d Decision) LimiterConsulted() bool {
	return d.Key != ""
}

const blockedMessage = "Access denied: your IP address is blocked"

// Gate makes allow/deny decisions. It holds no per-request state and no lock
// across store round-trips; cross-instance coordination is entirely the
// window store's.
type Gate struct {
	rules      atomic.Pointer[Ruleset]
	resolver   *ip.Resolver
	limiter    *limiter.SlidingWindow
	reputation *reputation.Store
	recorder   *Recorder
	logger     *slog.Logger
}

// New creates a Gate.
func New(rules *Ruleset, resolver *ip.Resolver, lim *limiter.SlidingWindow, rep *reputation.Store, recorder *Recorder, logger *slog.Logger) *Gate {
	g := &Gate{
		resolver:   resolver,
		limiter:    lim,
		reputation: rep,
		recorder:   recorder,
		logger:     logger.With("component", "gate"),
	}
	g.rules.Store(rules)
	return g
}

// Reload swaps the decision configuration. In-flight requests keep the
// ruleset they started with.
func (g *Gate) Reload(rules *Ruleset) {
	g.rules.Store(rules)
	g.logger.Info("ruleset reloaded", "routes", len(rules.Routes))
}

// Rules returns the active ruleset.
func (g *Gate) Rules() *Ruleset {
	return g.rules.Load()
}

// Decide runs the decision pipeline for one request.
func (g *Gate) Decide(ctx context.Context, req Request) Decision {
	start := time.Now()
	rules := g.rules.Load()
	clientIP := g.resolver.Resolve(req.Headers, req.RemoteAddr)

	rule := rules.Match(req.Path)

	// Skip check: marked routes and skip prefixes bypass everything,
	// including headers.
	if rule.Skip || rules.ShouldSkip(req.Path) {
		return Decision{Allowed: true, Skipped: true, IP: clientIP}
	}

	// Whitelist check: static first, then store-backed.
	if listed, err := g.reputation.IsWhitelisted(ctx, clientIP); err == nil && listed {
		d := Decision{Allowed: true, IP: clientIP}
		g.record(req, rule, d, start)
		return d
	}

	// Blacklist check: denies unconditionally, regardless of limiter state.
	// A store error here means the list is unavailable and the request
	// proceeds.
	if listed, err := g.reputation.IsBlacklisted(ctx, clientIP); err == nil && listed {
		d := Decision{
			Allowed: false,
			IP:      clientIP,
			Denial: &Denial{
				StatusCode: http.StatusTooManyRequests,
				Error:      "Too Many Requests",
				Message:    blockedMessage,
			},
		}
		g.recordBlocked(req, rule, d, start)
		return d
	}

	// Bypass-role check.
	if req.Principal != nil && rules.BypassesLimit(req.Principal.Role) {
		d := Decision{Allowed: true, IP: clientIP}
		g.record(req, rule, d, start)
		return d
	}

	// Policy and key resolution.
	info := policy.ReqInfo{IP: clientIP, Path: req.Path}
	if req.Principal != nil {
		info.UserID = req.Principal.Subject
	}
	cfg := rule.Config
	key := policy.Key(cfg, info)

	// Limiter check.
	result := g.limiter.Check(ctx, key, cfg.Limit, cfg.Window)

	d := Decision{
		Allowed: result.Allowed,
		IP:      clientIP,
		Key:     key,
		Config:  cfg,
		Result:  result,
	}

	if !result.Allowed {
		message := cfg.Message
		if message == "" {
			message = "Rate limit exceeded. Please try again later."
		}
		d.Denial = &Denial{
			StatusCode: http.StatusTooManyRequests,
			Error:      "Too Many Requests",
			Message:    message,
			Limit:      result.Limit,
			Remaining:  result.Remaining,
			ResetAt:    result.ResetAt,
			RetryAfter: retryAfterSeconds(result.ResetMs),
		}
	}

	g.record(req, rule, d, start)
	return d
}

// Headers returns the response headers for a decision. Reset is in unix
// seconds; Retry-After is present only on limiter denials.
func (d Decision) Headers() http.Header {
	h := http.Header{}
	if !d.LimiterConsulted() {
		return h
	}

	h.Set("X-RateLimit-Limit", itoa(int64(d.Result.Limit)))
	h.Set("X-RateLimit-Remaining", itoa(int64(d.Result.Remaining)))
	h.Set("X-RateLimit-Reset", itoa(d.Result.ResetAt/1000))
	if !d.Allowed {
		h.Set("Retry-After", itoa(retryAfterSeconds(d.Result.ResetMs)))
	}
	return h
}

func (g *Gate) record(req Request, rule RouteRule, d Decision, start time.Time) {
	if g.recorder == nil {
		return
	}
	g.recorder.Record(Event{
		Route:         routeLabel(rule, req.Path),
		Type:          limitTypeLabel(rule.Config.Type),
		Authenticated: req.Principal != nil,
		Allowed:       d.Allowed,
		RateLimited:   !d.Allowed,
		Duration:      time.Since(start),
	})
}

func (g *Gate) recordBlocked(req Request, rule RouteRule, d Decision, start time.Time) {
	if g.recorder == nil {
		return
	}
	g.recorder.Record(Event{
		Route:         routeLabel(rule, req.Path),
		Type:          limitTypeLabel(rule.Config.Type),
		Authenticated: req.Principal != nil,
		Allowed:       false,
		Blocked:       true,
		Duration:      time.Since(start),
	})
}

// routeLabel prefers the registered prefix so unmatched paths collapse into
// one label value.
func routeLabel(rule RouteRule, path string) string {
	if rule.Prefix != "" {
		return rule.Prefix
	}
	return path
}

func limitTypeLabel(t policy.LimitType) string {
	if t == "" {
		return string(policy.TypeIP)
	}
	return string(t)
}

// retryAfterSeconds rounds the reset up so a client waiting the advertised
// time is guaranteed a fresh window.
func retryAfterSeconds(resetMs int64) int64 {
	seconds := (resetMs + 999) / 1000
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
