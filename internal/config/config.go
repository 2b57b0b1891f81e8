package config

import (
	"time"

	"rategate/internal/auth"
	"rategate/internal/gate"
	"rategate/internal/policy"
	"rategate/pkg/errors"
)

// Config holds rategate configuration
type Config struct {
	Rategate Rategate `yaml:"rategate"`
}

// Rategate configuration
type Rategate struct {
	Server          Server       `yaml:"server"`
	Store           Store        `yaml:"store"`
	Limits          Limits       `yaml:"limits"`
	SkipPaths       []string     `yaml:"skipPaths"`
	StaticWhitelist []string     `yaml:"staticWhitelist"`
	TrustedProxies  []string     `yaml:"trustedProxies"`
	BypassRoles     []string     `yaml:"bypassRoles"`
	Auth            *auth.Config `yaml:"auth,omitempty"`
	Management      Management   `yaml:"management"`
}

// Server configuration for the authorize listener
type Server struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
}

// Store configuration for the window and reputation backend
type Store struct {
	// Type is "redis" or "memory". Memory is single-instance only.
	Type          string `yaml:"type"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	DialTimeoutMs int    `yaml:"dialTimeoutMs"`
	ReadTimeoutMs int    `yaml:"readTimeoutMs"`
	PoolSize      int    `yaml:"poolSize"`
	KeyPrefix     string `yaml:"keyPrefix"`
}

// Limits configuration: the default policy plus group- and route-level
// overrides
type Limits struct {
	Default        Rule            `yaml:"default"`
	StoreTimeoutMs int             `yaml:"storeTimeoutMs"`
	Groups         map[string]Rule `yaml:"groups"`
	Routes         []Route         `yaml:"routes"`
}

// Rule is a partial rate-limit configuration; nil fields inherit from the
// level below
type Rule struct {
	Limit    *int    `yaml:"limit"`
	WindowMs *int    `yaml:"windowMs"`
	Type     *string `yaml:"type"`
	Message  *string `yaml:"message"`
}

// Route binds a path prefix to its rate-limit configuration
type Route struct {
	Path  string `yaml:"path"`
	Group string `yaml:"group"`
	Skip  bool   `yaml:"skip"`
	Rule  `yaml:",inline"`
}

// Management configuration for the admin listener
type Management struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	BasePath string `yaml:"basePath"`
	Token    string `yaml:"token"`
}

// StoreTimeout returns the configured store round-trip timeout.
func (l *Limits) StoreTimeout() time.Duration {
	return time.Duration(l.StoreTimeoutMs) * time.Millisecond
}

// override converts a partial Rule to a policy.Override.
func (r Rule) override() policy.Override {
	o := policy.Override{
		Limit:   r.Limit,
		Message: r.Message,
	}
	if r.WindowMs != nil {
		window := time.Duration(*r.WindowMs) * time.Millisecond
		o.Window = &window
	}
	if r.Type != nil {
		limitType := policy.LimitType(*r.Type)
		o.Type = &limitType
	}
	return o
}

// BuildRuleset resolves every route's effective configuration and returns
// the gate's ruleset. Any merge failure is a configuration error and aborts
// startup.
func (c *Config) BuildRuleset() (*gate.Ruleset, error) {
	rg := &c.Rategate

	def, err := policy.Merge(policy.Config{}, policy.Override{}, rg.Limits.Default.override())
	if err != nil {
		return nil, errors.Wrap(err, "default limits")
	}

	seen := make(map[string]struct{}, len(rg.Limits.Routes))
	routes := make([]gate.RouteRule, 0, len(rg.Limits.Routes))
	for _, route := range rg.Limits.Routes {
		if route.Path == "" {
			return nil, errors.NewError(errors.ErrorTypeBadRequest, "route requires a path")
		}
		if _, dup := seen[route.Path]; dup {
			return nil, errors.NewError(errors.ErrorTypeBadRequest, "duplicate route path").
				WithDetail("path", route.Path)
		}
		seen[route.Path] = struct{}{}

		if route.Skip {
			routes = append(routes, gate.RouteRule{Prefix: route.Path, Skip: true})
			continue
		}

		group := policy.Override{}
		if route.Group != "" {
			groupRule, ok := rg.Limits.Groups[route.Group]
			if !ok {
				return nil, errors.NewError(errors.ErrorTypeBadRequest, "route references unknown group").
					WithDetail("path", route.Path).
					WithDetail("group", route.Group)
			}
			group = groupRule.override()
		}

		cfg, err := policy.Merge(def, group, route.Rule.override())
		if err != nil {
			return nil, errors.Wrap(err, "route "+route.Path)
		}
		routes = append(routes, gate.RouteRule{Prefix: route.Path, Config: cfg})
	}

	return gate.NewRuleset(def, routes, rg.SkipPaths, rg.BypassRoles), nil
}
