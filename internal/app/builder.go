package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rategate/internal/auth"
	"rategate/internal/config"
	"rategate/internal/gate"
	"rategate/internal/health"
	"rategate/internal/ip"
	"rategate/internal/limiter"
	"rategate/internal/management"
	"rategate/internal/reputation"
	"rategate/internal/server"
	"rategate/internal/storage"
	"rategate/internal/storage/memory"
	redisstore "rategate/internal/storage/redis"
	"rategate/pkg/metrics"
)

// Builder assembles the rategate application from configuration
type Builder struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger
}

// NewBuilder creates a new application builder
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	return &Builder{
		config: cfg,
		logger: logger,
	}
}

// WithConfigPath enables config reload: the file watcher and the management
// reload endpoint both re-read this path.
func (b *Builder) WithConfigPath(path string) *Builder {
	b.configPath = path
	return b
}

// Build constructs the rategate server
func (b *Builder) Build() (*Server, error) {
	rg := &b.config.Rategate

	rules, err := b.config.BuildRuleset()
	if err != nil {
		return nil, fmt.Errorf("building ruleset: %w", err)
	}

	m := metrics.New()
	checker := health.NewChecker()

	windowStore, repClient, err := b.buildStores(checker)
	if err != nil {
		return nil, err
	}

	lim := limiter.New(windowStore, b.logger,
		limiter.WithStoreTimeout(rg.Limits.StoreTimeout()),
		limiter.WithStoreFailureHook(func(op string) {
			m.StoreFailures.WithLabelValues(op).Inc()
		}),
	)

	var resolverOpts []ip.Option
	if len(rg.TrustedProxies) > 0 {
		resolverOpts = append(resolverOpts, ip.WithTrustedProxies(rg.TrustedProxies))
	}
	resolver := ip.NewResolver(b.logger, resolverOpts...)

	repStore := reputation.NewStore(repClient, rg.StaticWhitelist, b.logger)
	recorder := gate.NewRecorder(m, b.logger)

	g := gate.New(rules, resolver, lim, repStore, recorder, b.logger)

	var verifier *auth.Verifier
	if rg.Auth != nil {
		verifier, err = auth.NewVerifier(rg.Auth, b.logger)
		if err != nil {
			return nil, fmt.Errorf("creating token verifier: %w", err)
		}
	}

	svc := server.New(g, verifier, health.NewHandler(checker), b.logger)

	public := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", rg.Server.Host, rg.Server.Port),
		Handler:      svc.Handler(),
		ReadTimeout:  serverTimeout(rg.Server.ReadTimeout),
		WriteTimeout: serverTimeout(rg.Server.WriteTimeout),
	}

	var admin *http.Server
	if rg.Management.Enabled {
		api := management.NewAPI(repStore, lim, m, b.logger, management.Options{
			BasePath: rg.Management.BasePath,
			Token:    rg.Management.Token,
			Reload:   b.reloadFunc(g),
			Stats:    recorder.Stats,
		})
		adminMux := http.NewServeMux()
		api.Routes(adminMux)
		adminMux.Handle("/metrics", promhttp.Handler())
		admin = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", rg.Management.Host, rg.Management.Port),
			Handler: adminMux,
		}
	}

	return &Server{
		config:     b.config,
		configPath: b.configPath,
		gate:       g,
		store:      windowStore,
		recorder:   recorder,
		public:     public,
		admin:      admin,
		logger:     b.logger,
	}, nil
}

// buildStores creates the window store and reputation client for the
// configured backend, registering the matching health check.
func (b *Builder) buildStores(checker *health.Checker) (storage.WindowStore, reputation.Client, error) {
	rg := &b.config.Rategate
	storeConfig := &storage.Config{
		KeyPrefix:       rg.Store.KeyPrefix,
		CleanupInterval: 5 * time.Minute,
		MaxKeys:         10000,
	}

	switch rg.Store.Type {
	case "memory":
		b.logger.Warn("using in-memory store; counts are not shared across instances")
		checker.RegisterCheck("store", func(ctx context.Context) error { return nil })
		return memory.NewStore(storeConfig), reputation.NewMemoryClient(), nil

	case "redis":
		client := redisstore.NewUniversalClient(redisstore.Options{
			Addr:        rg.Store.Addr,
			Password:    rg.Store.Password,
			DB:          rg.Store.DB,
			DialTimeout: time.Duration(rg.Store.DialTimeoutMs) * time.Millisecond,
			ReadTimeout: time.Duration(rg.Store.ReadTimeoutMs) * time.Millisecond,
			PoolSize:    rg.Store.PoolSize,
		})
		adapter := redisstore.NewClientAdapter(client)
		checker.RegisterCheck("store", health.StoreCheck(adapter))
		return redisstore.NewStore(adapter, storeConfig), reputation.NewClientAdapter(client), nil

	default:
		return nil, nil, fmt.Errorf("unknown store type: %s", rg.Store.Type)
	}
}

// reloadFunc builds the management reload callback. Only the ruleset is
// swapped at runtime; store and listener changes need a restart.
func (b *Builder) reloadFunc(g *gate.Gate) func() error {
	if b.configPath == "" {
		return nil
	}
	path := b.configPath
	return func() error {
		cfg, err := config.NewLoader(path).Load()
		if err != nil {
			return err
		}
		rules, err := cfg.BuildRuleset()
		if err != nil {
			return err
		}
		g.Reload(rules)
		return nil
	}
}

// serverTimeout interprets a configured timeout in seconds; zero keeps the
// net/http default of no timeout.
func serverTimeout(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
