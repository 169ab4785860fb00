// Package config loads and validates logohunter configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/logohunter/internal/batch"
	"github.com/JakeFAU/logohunter/internal/extract"
	"github.com/JakeFAU/logohunter/internal/hunter"
	"github.com/JakeFAU/logohunter/internal/policy/blocklist"
	"github.com/JakeFAU/logohunter/internal/storage/postgres"
	"github.com/JakeFAU/logohunter/internal/validation"
)

// EnvPrefix is the prefix of every environment override, e.g.
// LOGOHUNTER_HTTP_TIMEOUT=20s.
const EnvPrefix = "LOGOHUNTER"

// Storage backends.
const (
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Result publishing backends. An empty backend disables publishing.
const (
	PublishNone   = ""
	PublishMemory = "memory"
	PublishPubSub = "pubsub"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Validation  validation.Config `mapstructure:"validation"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Rules       RulesConfig       `mapstructure:"rules"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Batch       batch.Config      `mapstructure:"batch"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Publish     PublishConfig     `mapstructure:"publish"`
	// Database records batch results when a DSN is set.
	Database postgres.Config `mapstructure:"database"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the static fetcher, retries and host pacing.
type HTTPConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	// RateLimitRPS paces requests per host; zero disables pacing.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// BlockedHosts are never fetched; "*.example.com" matches subdomains.
	BlockedHosts []string `mapstructure:"blocked_hosts"`
}

// DiscoveryConfig controls the homepage fetch and the extractors.
type DiscoveryConfig struct {
	HomepageTimeout time.Duration `mapstructure:"homepage_timeout"`
	ManifestTimeout time.Duration `mapstructure:"manifest_timeout"`
	FallbackPaths   []string      `mapstructure:"fallback_paths"`
	Sources         []string      `mapstructure:"sources"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	Settle             time.Duration `mapstructure:"settle"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
}

// ConcurrencyConfig bounds per-run parallelism.
type ConcurrencyConfig struct {
	MaxParallelFetches int `mapstructure:"max_parallel_fetches"`
}

// RulesConfig points at an operator weight table. Empty uses the built-in one.
type RulesConfig struct {
	WeightsFile string `mapstructure:"weights_file"`
}

// StorageConfig selects where saved logos go.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	LocalDir     string `mapstructure:"local_dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	CacheControl string `mapstructure:"cache_control"`
	Prefix       string `mapstructure:"prefix"`
	// ContentAddressed appends a digest of the bytes to object names.
	ContentAddressed bool `mapstructure:"content_addressed"`
	// DigestLength is the number of hex characters kept from the digest.
	DigestLength int `mapstructure:"digest_length"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// CacheTTL is how long a hunted logo is served from memory.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	// Log mirrors every event to the logger at debug level.
	Log bool `mapstructure:"log"`
}

// PublishConfig announces batch results on a message topic.
type PublishConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from an optional file plus the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	Bind(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// Bind installs defaults and environment lookups on v.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	hc := hunter.DefaultConfig()
	vc := hc.Validation

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("http.user_agent", "logohunter/1.0 (+https://github.com/JakeFAU/logohunter)")
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.max_body_bytes", 5*1024*1024)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_attempts", hc.HomepageAttempts)
	v.SetDefault("http.backoff_initial", hc.RetryBaseDelay.String())
	v.SetDefault("http.backoff_max", hc.RetryMaxDelay.String())
	v.SetDefault("http.rate_limit_rps", 4.0)
	v.SetDefault("http.rate_limit_burst", 4)
	v.SetDefault("http.blocked_hosts", blocklist.DefaultPatterns)

	v.SetDefault("discovery.homepage_timeout", hc.HomepageTimeout.String())
	v.SetDefault("discovery.manifest_timeout", hc.Extract.ManifestTimeout.String())
	v.SetDefault("discovery.fallback_paths", extract.DefaultFallbackPaths)
	v.SetDefault("discovery.sources", []string{})

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.navigation_timeout", "25s")
	v.SetDefault("headless.settle", "500ms")
	v.SetDefault("headless.promotion_threshold", 10)

	v.SetDefault("validation.min_dimension", vc.MinDimension)
	v.SetDefault("validation.max_aspect", vc.MaxAspect)
	v.SetDefault("validation.wide_logo_max_aspect", vc.WideLogoMaxAspect)
	v.SetDefault("validation.max_pixel_area", vc.MaxPixelArea)
	v.SetDefault("validation.min_validated_score", vc.MinValidatedScore)
	v.SetDefault("validation.prefetch", vc.Prefetch)
	v.SetDefault("validation.max_attempts", vc.MaxAttempts)
	v.SetDefault("validation.domain_timeout", vc.DomainTimeout.String())
	v.SetDefault("validation.fetch_timeout", vc.FetchTimeout.String())

	v.SetDefault("concurrency.max_parallel_fetches", hc.MaxParallelFetches)
	v.SetDefault("rules.weights_file", "")

	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.local_dir", "logos")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.cache_control", "public, max-age=86400")
	v.SetDefault("storage.content_addressed", false)
	v.SetDefault("storage.digest_length", 16)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.cache_ttl", "1h")
	v.SetDefault("auth.enabled", false)

	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.queue_size", 16)
	v.SetDefault("batch.domain_timeout", "60s")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "250ms")
	v.SetDefault("progress.log", true)

	v.SetDefault("publish.backend", PublishNone)
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "logo-results")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "logo_results")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
}

// Validate enforces required values and reasonable limits. Every problem is
// reported, not just the first.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be > 0"))
	}
	if c.HTTP.MaxAttempts < 0 {
		errs = append(errs, errors.New("http.max_attempts must be >= 0"))
	}
	if c.HTTP.RateLimitRPS < 0 {
		errs = append(errs, errors.New("http.rate_limit_rps must be >= 0"))
	}
	if c.Concurrency.MaxParallelFetches <= 0 {
		errs = append(errs, errors.New("concurrency.max_parallel_fetches must be > 0"))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}
	if c.Validation.MinDimension < 0 {
		errs = append(errs, errors.New("validation.min_dimension must be >= 0"))
	}
	if c.Validation.MaxAspect != 0 && c.Validation.MaxAspect < 1 {
		errs = append(errs, errors.New("validation.max_aspect must be >= 1"))
	}
	if c.Validation.Prefetch < 0 {
		errs = append(errs, errors.New("validation.prefetch must be >= 0"))
	}
	for _, name := range c.Discovery.Sources {
		if !validSource(name) {
			errs = append(errs, fmt.Errorf("discovery.sources: unknown extractor %q", name))
		}
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir must be set for the local backend"))
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket must be set for the gcs backend"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, errors.New("auth.api_key must be set when auth is enabled"))
	}
	if c.Batch.Workers < 0 {
		errs = append(errs, errors.New("batch.workers must be >= 0"))
	}
	if c.Database.MinConns > c.Database.MaxConns && c.Database.MaxConns > 0 {
		errs = append(errs, errors.New("database.min_conns must be <= database.max_conns"))
	}
	switch c.Publish.Backend {
	case PublishNone, PublishMemory:
	case PublishPubSub:
		if c.Publish.ProjectID == "" {
			errs = append(errs, errors.New("publish.project_id must be set for the pubsub backend"))
		}
		if c.Publish.Topic == "" {
			errs = append(errs, errors.New("publish.topic must be set for the pubsub backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("publish.backend: unknown backend %q", c.Publish.Backend))
	}
	return errors.Join(errs...)
}

func validSource(name string) bool {
	return slices.Contains(extract.Names(), name)
}

// HunterConfig converts the loaded settings into a hunter.Config.
func (c Config) HunterConfig() hunter.Config {
	attempts := c.HTTP.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return hunter.Config{
		MaxParallelFetches: c.Concurrency.MaxParallelFetches,
		HomepageTimeout:    c.Discovery.HomepageTimeout,
		HomepageAttempts:   attempts,
		RetryBaseDelay:     c.HTTP.BackoffInitial,
		RetryMaxDelay:      c.HTTP.BackoffMax,
		Extract: extract.Config{
			ManifestTimeout: c.Discovery.ManifestTimeout,
			FallbackPaths:   c.Discovery.FallbackPaths,
			Sources:         c.Discovery.Sources,
		},
		Validation: c.Validation,
	}
}
