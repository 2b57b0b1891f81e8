package gate

import (
	"sort"
	"strings"

	"rategate/internal/policy"
)

// RouteRule is one registered route with its fully resolved configuration.
// Resolution (default/group/route merge) happens at load time, so a rule
// reaching the gate is always valid.
type RouteRule struct {
	// Prefix is the path prefix this rule applies to. Longest prefix wins.
	Prefix string
	// Skip disables rate limiting for matching paths entirely.
	Skip bool
	// Config is the effective rate-limit configuration.
	Config policy.Config
}

// Ruleset is the process-wide, immutable decision configuration. A reload
// swaps the whole Ruleset; individual fields never mutate.
type Ruleset struct {
	// Default applies to paths no rule matches.
	Default policy.Config
	// Routes, sorted by descending prefix length.
	Routes []RouteRule
	// SkipPrefixes short-circuit the pipeline (health and metrics paths).
	SkipPrefixes []string
	// BypassRoles are principal roles exempt from rate limiting.
	BypassRoles map[string]struct{}
}

// NewRuleset builds a Ruleset, ordering routes so that Match can take the
// first (longest) matching prefix.
func NewRuleset(def policy.Config, routes []RouteRule, skipPrefixes []string, bypassRoles []string) *Ruleset {
	sorted := make([]RouteRule, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})

	bypass := make(map[string]struct{}, len(bypassRoles))
	for _, role := range bypassRoles {
		if role != "" {
			bypass[role] = struct{}{}
		}
	}

	return &Ruleset{
		Default:      def,
		Routes:       sorted,
		SkipPrefixes: skipPrefixes,
		BypassRoles:  bypass,
	}
}

// Match returns the rule for a path, falling back to a synthetic default
// rule.
func (rs *Ruleset) Match(path string) RouteRule {
	for _, rule := range rs.Routes {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule
		}
	}
	return RouteRule{Prefix: "", Config: rs.Default}
}

// ShouldSkip reports whether a path matches a configured skip prefix.
func (rs *Ruleset) ShouldSkip(path string) bool {
	for _, prefix := range rs.SkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// BypassesLimit reports whether a role is exempt from rate limiting.
func (rs *Ruleset) BypassesLimit(role string) bool {
	_, ok := rs.BypassRoles[role]
	return ok
}
