// Package policy resolves the effective rate-limit configuration and bucket
// key for a request.
package policy

import (
	"fmt"
	"time"

	"rategate/pkg/errors"
)

// LimitType selects the key-generation strategy.
type LimitType string

const (
	// TypeIP keys the window on the client address.
	TypeIP LimitType = "ip"
	// TypeUser keys on the authenticated principal, with IP fallback for
	// anonymous callers.
	TypeUser LimitType = "user"
	// TypeIPAndUser keys on the address and principal together.
	TypeIPAndUser LimitType = "ip_and_user"
	// TypeGlobal shares one window across all callers of a path.
	TypeGlobal LimitType = "global"
)

// ReqInfo is the request context available to key generation.
type ReqInfo struct {
	IP     string
	UserID string
	Path   string
}

// KeyGenerator produces a custom bucket key, overriding Type-based
// generation.
type KeyGenerator func(ReqInfo) string

// Config is the effective rate-limit configuration for one request.
// Immutable once resolved.
type Config struct {
	Limit        int
	Window       time.Duration
	Type         LimitType
	Message      string
	KeyGenerator KeyGenerator
}

// Override is a partial configuration layered over a lower-precedence one.
// Nil fields inherit.
type Override struct {
	Limit        *int
	Window       *time.Duration
	Type         *LimitType
	Message      *string
	KeyGenerator KeyGenerator
}

// Merge layers class-level and handler-level overrides over a default, with
// the handler level winning. Limit and Window must be positive after the
// merge; this is a configuration error surfaced at registration time, never
// per request.
func Merge(def Config, class, handler Override) (Config, error) {
	cfg := def
	apply(&cfg, class)
	apply(&cfg, handler)

	if cfg.Limit <= 0 {
		return Config{}, errors.NewError(errors.ErrorTypeBadRequest, "rate limit config requires a positive limit")
	}
	if cfg.Window <= 0 {
		return Config{}, errors.NewError(errors.ErrorTypeBadRequest, "rate limit config requires a positive window")
	}

	if cfg.Type == "" {
		cfg.Type = TypeIP
	}
	switch cfg.Type {
	case TypeIP, TypeUser, TypeIPAndUser, TypeGlobal:
	default:
		return Config{}, errors.NewError(errors.ErrorTypeBadRequest, "unknown rate limit type").
			WithDetail("type", string(cfg.Type))
	}

	return cfg, nil
}

func apply(cfg *Config, o Override) {
	if o.Limit != nil {
		cfg.Limit = *o.Limit
	}
	if o.Window != nil {
		cfg.Window = *o.Window
	}
	if o.Type != nil {
		cfg.Type = *o.Type
	}
	if o.Message != nil {
		cfg.Message = *o.Message
	}
	if o.KeyGenerator != nil {
		cfg.KeyGenerator = o.KeyGenerator
	}
}

// Key returns the bucket key for a request under the given configuration.
// Every key is path-scoped so one hot endpoint cannot starve an unrelated
// endpoint for the same caller. Identity-typed keys fall back to the IP form
// for anonymous callers.
func Key(cfg Config, req ReqInfo) string {
	if cfg.KeyGenerator != nil {
		return cfg.KeyGenerator(req)
	}

	switch cfg.Type {
	case TypeUser:
		if req.UserID != "" {
			return fmt.Sprintf("user:%s:%s", req.UserID, req.Path)
		}
	case TypeIPAndUser:
		if req.UserID != "" {
			return fmt.Sprintf("ip_user:%s:%s:%s", req.IP, req.UserID, req.Path)
		}
	case TypeGlobal:
		return fmt.Sprintf("global:%s", req.Path)
	}

	return fmt.Sprintf("ip:%s:%s", req.IP, req.Path)
}
