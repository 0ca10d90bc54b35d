// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/unbloq/internal/apiclient"
	"github.com/JakeFAU/unbloq/internal/cache"
	"github.com/JakeFAU/unbloq/internal/clock/system"
	"github.com/JakeFAU/unbloq/internal/config"
	"github.com/JakeFAU/unbloq/internal/extract"
	"github.com/JakeFAU/unbloq/internal/policy/ratelimit"
	"github.com/JakeFAU/unbloq/internal/resolver"
	"github.com/JakeFAU/unbloq/internal/scrape"
	"github.com/JakeFAU/unbloq/internal/scrape/detector"
	"github.com/JakeFAU/unbloq/internal/scrape/headless"
	"github.com/JakeFAU/unbloq/internal/scrape/probe"
	"github.com/JakeFAU/unbloq/internal/seenset"
)

// App holds the shared, long-lived services for one process. Services are
// built on first use so each command only pays for what it touches.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	redis    *redis.Client
	pool     *headless.Pool
	postgres *seenset.Postgres
}

// New creates an App. The Redis client is constructed here, without
// connecting, when a Redis URL is configured.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
	}
	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Ready pings Redis when one is configured.
func (a *App) Ready(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// CacheStore returns the resolution cache: Redis when configured, process
// memory otherwise.
func (a *App) CacheStore() (cache.Store, error) {
	if a.redis == nil {
		a.logger.Info("using in-memory resolution cache")
		return cache.NewMemoryStore(system.New()), nil
	}
	store, err := cache.NewRedisStore(a.redis)
	if err != nil {
		return nil, fmt.Errorf("init redis cache: %w", err)
	}
	return store, nil
}

// Resolver builds the archive resolver and its scrape stack.
func (a *App) Resolver() (*resolver.Resolver, error) {
	store, err := a.CacheStore()
	if err != nil {
		return nil, err
	}
	fetcher, err := a.Fetcher()
	if err != nil {
		return nil, err
	}
	res, err := resolver.New(resolver.Config{
		Host: resolver.ArchiveHost{BaseURL: a.cfg.Archive.BaseURL},
		TTL:  a.cfg.Cache.TTL,
	}, store, fetcher, extract.Default(a.cfg.Archive.NoResultsMarker), a.logger.Named("resolver"))
	if err != nil {
		return nil, fmt.Errorf("init resolver: %w", err)
	}
	return res, nil
}

// Fetcher builds the fetcher selected by scrape.mode. Headless mode renders
// every listing and fails fast without a browser; probe mode tries plain
// HTTP first and escalates to the browser when one is available.
func (a *App) Fetcher() (scrape.Fetcher, error) {
	sc := a.cfg.Scrape
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: sc.HostRPS, DefaultBurst: sc.HostBurst})

	pool, err := headless.New(headless.Config{
		MaxParallel:       sc.MaxParallel,
		AcquireTimeout:    sc.AcquireTimeout,
		NavigationTimeout: sc.NavigationTimeout,
		UserAgent:         sc.UserAgent,
		ExecPath:          sc.ExecPath,
		NoSandbox:         sc.NoSandbox,
	}, limiter, a.logger.Named("headless"))
	if err != nil {
		return nil, fmt.Errorf("init headless pool: %w", err)
	}
	startErr := pool.Start()

	if sc.Mode == config.ScrapeModeHeadless {
		if startErr != nil {
			return nil, fmt.Errorf("start headless browser: %w", startErr)
		}
		a.pool = pool
		return pool, nil
	}

	var escalate scrape.Fetcher = headless.Disabled{}
	if startErr != nil {
		a.logger.Warn("headless browser unavailable; probe results will not be escalated", zap.Error(startErr))
	} else {
		a.pool = pool
		escalate = pool
	}
	prober := probe.New(probe.Config{UserAgent: sc.UserAgent, Timeout: sc.ProbeTimeout}, limiter)
	fetcher, err := scrape.NewPromotingFetcher(prober, escalate, detector.NewHeuristic(sc.PromotionThreshold), a.logger.Named("scrape"))
	if err != nil {
		return nil, fmt.Errorf("init promoting fetcher: %w", err)
	}
	return fetcher, nil
}

// APIClient returns a client for the Resolution API.
func (a *App) APIClient() (*apiclient.Client, error) {
	client, err := apiclient.New(a.cfg.APIClient.BaseURL, &http.Client{Timeout: a.cfg.APIClient.Timeout})
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}
	return client, nil
}

// SeenSet returns the dedup backend selected by bot.seen_backend.
func (a *App) SeenSet(ctx context.Context) (seenset.Set, error) {
	switch a.cfg.Bot.SeenBackend {
	case config.SeenBackendRedis:
		if a.redis == nil {
			return nil, errors.New("seen backend redis needs cache.redis_url")
		}
		set, err := seenset.NewRedis(a.redis, a.cfg.Bot.SeenRedisKey)
		if err != nil {
			return nil, fmt.Errorf("init redis seen set: %w", err)
		}
		return set, nil
	case config.SeenBackendPostgres:
		set, err := seenset.NewPostgres(ctx, seenset.PostgresConfig{
			DSN:   a.cfg.Bot.DatabaseURL,
			Table: a.cfg.Bot.SeenTable,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres seen set: %w", err)
		}
		if err := set.EnsureSchema(ctx); err != nil {
			set.Close()
			return nil, fmt.Errorf("init postgres seen set: %w", err)
		}
		a.postgres = set
		return set, nil
	default:
		a.logger.Warn("using in-memory seen set; processed posts are forgotten on restart")
		return seenset.NewMemory(), nil
	}
}

// Close shuts down every service the App started.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("error closing redis client", zap.Error(err))
		}
	}
}
