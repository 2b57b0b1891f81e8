package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rategate/pkg/errors"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true, // Enable env vars by default
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load loads the configuration
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to read config file").WithCause(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse config").WithCause(err)
	}

	// Override with environment variables if enabled
	if l.envEnabled {
		if err := LoadEnv(&cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load env vars").WithCause(err)
		}
	}

	applyDefaults(&cfg)

	// Validate configuration
	if err := l.validate(&cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid configuration").WithCause(err)
	}

	return &cfg, nil
}

// applyDefaults fills unset fields with sane values
func applyDefaults(cfg *Config) {
	rg := &cfg.Rategate

	if rg.Server.Port == 0 {
		rg.Server.Port = 8080
	}
	if rg.Store.Type == "" {
		rg.Store.Type = "redis"
	}
	if rg.Store.Addr == "" {
		rg.Store.Addr = "localhost:6379"
	}
	if rg.Store.KeyPrefix == "" {
		rg.Store.KeyPrefix = "ratelimit:"
	}
	if rg.Limits.StoreTimeoutMs == 0 {
		rg.Limits.StoreTimeoutMs = 100
	}
	if rg.Management.Host == "" {
		rg.Management.Host = "127.0.0.1"
	}
	if rg.Management.Port == 0 {
		rg.Management.Port = 9090
	}
	if rg.Management.BasePath == "" {
		rg.Management.BasePath = "/management"
	}
}

// validate validates the configuration
func (l *Loader) validate(cfg *Config) error {
	rg := &cfg.Rategate

	if rg.Server.Port <= 0 || rg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", rg.Server.Port)
	}

	switch rg.Store.Type {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown store type: %s", rg.Store.Type)
	}

	// Default limits are required; routes and groups merge over them.
	// BuildRuleset validates every effective route config.
	if rg.Limits.Default.Limit == nil || rg.Limits.Default.WindowMs == nil {
		return fmt.Errorf("limits.default requires limit and windowMs")
	}
	if _, err := cfg.BuildRuleset(); err != nil {
		return err
	}

	return nil
}
