// Package ip extracts a single trustworthy client address from proxied
// request headers.
package ip

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// headerPriority is the ordered list of proxy headers consulted by Resolve.
// CDN-specific headers come before the generic forwarded-for chain because
// they carry exactly one address written by the edge, while forwarded-for
// accumulates whatever upstream hops append to it.
var headerPriority = []string{
	"Cf-Connecting-Ip",
	"True-Client-Ip",
	"X-Real-Ip",
	"X-Forwarded-For",
	"X-Client-Ip",
	"X-Forwarded",
	"Forwarded-For",
	"X-Cluster-Client-Ip",
}

// fallbackAddr is returned when no candidate resolves at all.
const fallbackAddr = "0.0.0.0"

// Resolver resolves client IPs from request headers.
//
// Header values are trusted as-is. That is only safe behind a proxy that
// strips or overwrites them; when TrustedProxies is set, headers are only
// honored if the transport peer falls inside one of the given networks.
type Resolver struct {
	logger *slog.Logger

	// TrustedProxies, when non-empty, restricts header-based resolution to
	// requests whose transport peer is inside one of these networks.
	trustedProxies []*net.IPNet
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTrustedProxies enables trusted-proxy verification. CIDRs that fail to
// parse are skipped with a warning.
func WithTrustedProxies(cidrs []string) Option {
	return func(r *Resolver) {
		for _, c := range cidrs {
			_, network, err := net.ParseCIDR(c)
			if err != nil {
				r.logger.Warn("ignoring invalid trusted proxy CIDR", "cidr", c, "error", err)
				continue
			}
			r.trustedProxies = append(r.trustedProxies, network)
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		logger: logger.With("component", "ip-resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the client IP for a request, given its headers and the
// transport-level peer address (host or host:port form). It never fails;
// when nothing resolves it returns "0.0.0.0".
func (r *Resolver) Resolve(headers http.Header, remoteAddr string) string {
	peer := stripPort(remoteAddr)

	if r.headersTrusted(peer) {
		for _, name := range headerPriority {
			value := headers.Get(name)
			if value == "" {
				continue
			}
			if ip := selectCandidate(value); ip != "" {
				return normalize(ip)
			}
		}
	}

	if peer != "" && net.ParseIP(normalize(peer)) != nil {
		return normalize(peer)
	}

	r.logger.Debug("no resolvable client address", "remoteAddr", remoteAddr)
	return fallbackAddr
}

// headersTrusted reports whether proxy headers may be honored for a peer.
func (r *Resolver) headersTrusted(peer string) bool {
	if len(r.trustedProxies) == 0 {
		return true
	}
	ip := net.ParseIP(normalize(peer))
	if ip == nil {
		return false
	}
	for _, network := range r.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// selectCandidate picks an address from a single header value. The value may
// be a comma-separated client,proxy1,proxy2 chain; the leftmost syntactically
// valid public address wins. If every valid candidate is private, the first
// candidate is returned unmodified so internal-network deployments still get
// a usable key.
func selectCandidate(value string) string {
	parts := strings.Split(value, ",")

	var first string
	for _, part := range parts {
		candidate := strings.TrimSpace(part)
		if candidate == "" {
			continue
		}
		ip := net.ParseIP(normalize(candidate))
		if ip == nil {
			continue
		}
		if first == "" {
			first = candidate
		}
		if !isPrivate(ip) {
			return candidate
		}
	}
	return first
}

// isPrivate reports whether an address is in a private or loopback range.
func isPrivate(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback()
}

// normalize strips the IPv4-mapped IPv6 prefix so keys are stable regardless
// of which socket family delivered the request.
func normalize(addr string) string {
	return strings.TrimPrefix(addr, "::ffff:")
}

// stripPort removes a :port suffix if present, handling bracketed IPv6.
func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
