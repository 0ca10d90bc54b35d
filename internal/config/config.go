// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Frontend  FrontendConfig  `mapstructure:"frontend"`
	APIClient APIClientConfig `mapstructure:"api_client"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Bot       BotConfig       `mapstructure:"bot"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the Resolution API listener.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FrontendConfig describes the public redirect site.
type FrontendConfig struct {
	Port          int    `mapstructure:"port"`
	SiteName      string `mapstructure:"site_name"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	GitHubURL     string `mapstructure:"github_url"`
	ContactEmail  string `mapstructure:"contact_email"`
}

// APIClientConfig points the frontend and the bot at the Resolution API.
type APIClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects the resolution cache backend. An empty RedisURL keeps
// entries in process memory.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ArchiveConfig names the archive host.
type ArchiveConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	NoResultsMarker string `mapstructure:"no_results_marker"`
}

// ScrapeConfig configures how archive listings are fetched.
type ScrapeConfig struct {
	Mode               string        `mapstructure:"mode"`
	UserAgent          string        `mapstructure:"user_agent"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	HostRPS            float64       `mapstructure:"host_rps"`
	HostBurst          int           `mapstructure:"host_burst"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
	ExecPath           string        `mapstructure:"exec_path"`
	NoSandbox          bool          `mapstructure:"no_sandbox"`
}

// BotConfig drives the sweep bot and its forum account.
type BotConfig struct {
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	ForumBaseURL      string        `mapstructure:"forum_base_url"`
	Domains           []string      `mapstructure:"domains"`
	SortMode          string        `mapstructure:"sort_mode"`
	TimeWindow        string        `mapstructure:"time_window"`
	MaxCandidates     int           `mapstructure:"max_candidates"`
	PublicBaseURL     string        `mapstructure:"public_base_url"`
	OwnDomain         string        `mapstructure:"own_domain"`
	CommentTip        string        `mapstructure:"comment_tip"`
	InterSweepDelay   time.Duration `mapstructure:"inter_sweep_delay"`
	CandidateCooldown time.Duration `mapstructure:"candidate_cooldown"`
	BackoffMargin     time.Duration `mapstructure:"backoff_margin"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout"`
	Headful           bool          `mapstructure:"headful"`
	SeenBackend       string        `mapstructure:"seen_backend"`
	SeenRedisKey      string        `mapstructure:"seen_redis_key"`
	SeenTable         string        `mapstructure:"seen_table"`
	DatabaseURL       string        `mapstructure:"database_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Scrape modes.
const (
	ScrapeModeHeadless = "headless"
	ScrapeModeProbe    = "probe"
)

// Seen-set backends.
const (
	SeenBackendMemory   = "memory"
	SeenBackendRedis    = "redis"
	SeenBackendPostgres = "postgres"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UNBLOQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindLegacyEnv keeps the unprefixed variable names deployments already set.
// The prefixed name wins when both are present.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":         {"UNBLOQ_SERVER_PORT", "PORT"},
		"frontend.port":       {"UNBLOQ_FRONTEND_PORT", "PORT"},
		"api_client.base_url": {"UNBLOQ_API_CLIENT_BASE_URL", "SCRAPE_URL"},
		"cache.redis_url":     {"UNBLOQ_CACHE_REDIS_URL", "REDIS_URL"},
		"bot.database_url":    {"UNBLOQ_BOT_DATABASE_URL", "DATABASE_URL"},
		"bot.username":        {"UNBLOQ_BOT_USERNAME"},
		"bot.password":        {"UNBLOQ_BOT_PASSWORD"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("frontend.port", 3000)
	v.SetDefault("frontend.site_name", "unbloq")
	v.SetDefault("frontend.public_base_url", "https://unbloq.us")
	v.SetDefault("frontend.github_url", "https://github.com/JakeFAU/unbloq")
	v.SetDefault("frontend.contact_email", "")
	v.SetDefault("api_client.base_url", "http://localhost:8080")
	v.SetDefault("api_client.timeout", 2*time.Minute)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("archive.base_url", "https://archive.ph")
	v.SetDefault("archive.no_results_marker", "No results")
	v.SetDefault("scrape.mode", ScrapeModeHeadless)
	v.SetDefault("scrape.user_agent", "")
	v.SetDefault("scrape.max_parallel", 4)
	v.SetDefault("scrape.acquire_timeout", 30*time.Second)
	v.SetDefault("scrape.navigation_timeout", 45*time.Second)
	v.SetDefault("scrape.probe_timeout", 15*time.Second)
	v.SetDefault("scrape.host_rps", 1.0)
	v.SetDefault("scrape.host_burst", 2)
	v.SetDefault("scrape.promotion_threshold", 2048)
	v.SetDefault("scrape.exec_path", "")
	v.SetDefault("scrape.no_sandbox", false)
	v.SetDefault("bot.username", "")
	v.SetDefault("bot.password", "")
	v.SetDefault("bot.forum_base_url", "https://old.reddit.com")
	v.SetDefault("bot.domains", []string{
		"theatlantic.com", "washingtonpost.com", "nytimes.com", "chronicle.com", "wired.com",
	})
	v.SetDefault("bot.sort_mode", "recent")
	v.SetDefault("bot.time_window", "month")
	v.SetDefault("bot.max_candidates", 0)
	v.SetDefault("bot.public_base_url", "https://unbloq.us")
	v.SetDefault("bot.own_domain", "unbloq.us")
	v.SetDefault("bot.comment_tip", "")
	v.SetDefault("bot.inter_sweep_delay", 10*time.Minute)
	v.SetDefault("bot.candidate_cooldown", 3*time.Second)
	v.SetDefault("bot.backoff_margin", 5*time.Second)
	v.SetDefault("bot.wait_timeout", 10*time.Second)
	v.SetDefault("bot.headful", false)
	v.SetDefault("bot.seen_backend", SeenBackendMemory)
	v.SetDefault("bot.seen_redis_key", "processedThreads")
	v.SetDefault("bot.seen_table", "processed_threads")
	v.SetDefault("bot.database_url", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Frontend.Port <= 0 {
		return fmt.Errorf("frontend.port must be > 0")
	}
	switch c.Scrape.Mode {
	case ScrapeModeHeadless, ScrapeModeProbe:
	default:
		return fmt.Errorf("scrape.mode must be %q or %q, got %q", ScrapeModeHeadless, ScrapeModeProbe, c.Scrape.Mode)
	}
	if c.Scrape.MaxParallel <= 0 {
		return fmt.Errorf("scrape.max_parallel must be > 0")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	switch c.Bot.SortMode {
	case "recent", "top":
	default:
		return fmt.Errorf("bot.sort_mode must be recent or top, got %q", c.Bot.SortMode)
	}
	switch c.Bot.SeenBackend {
	case SeenBackendMemory:
	case SeenBackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url must be set when bot.seen_backend is redis")
		}
	case SeenBackendPostgres:
		if c.Bot.DatabaseURL == "" {
			return fmt.Errorf("bot.database_url must be set when bot.seen_backend is postgres")
		}
	default:
		return fmt.Errorf("bot.seen_backend must be memory, redis or postgres, got %q", c.Bot.SeenBackend)
	}
	return nil
}

// ValidateCredentials checks what only the sweep bot needs.
func (b BotConfig) ValidateCredentials() error {
	if b.Username == "" || b.Password == "" {
		return errors.New("bot.username and bot.password must be set (UNBLOQ_BOT_USERNAME, UNBLOQ_BOT_PASSWORD)")
	}
	if len(b.Domains) == 0 {
		return errors.New("bot.domains must list at least one domain")
	}
	return nil
}
