package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the feedsift pipeline and relay.
// Environment variables are automatically parsed from the FEEDSIFT_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Relay endpoint. The relay binds loopback only; this is not a public
	// service.
	RelayHost string `envconfig:"RELAY_HOST" default:"127.0.0.1"`
	RelayPort int    `envconfig:"RELAY_PORT" default:"8753"`

	// Classifier subprocess pool
	ClassifierCmd  string   `envconfig:"CLASSIFIER_CMD" default:"feedsift-classifier"`
	ClassifierArgs []string `envconfig:"CLASSIFIER_ARGS"`
	PoolSize       int      `envconfig:"POOL_SIZE" default:"3"`
	MaxBodyBytes   int64    `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	RateLimitRPS   int      `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int      `envconfig:"RATE_LIMIT_BURST" default:"10"`

	// Batching
	BatchSize      int `envconfig:"BATCH_SIZE" default:"5"`
	BatchTimeoutMs int `envconfig:"BATCH_TIMEOUT_MS" default:"3000"`

	// Verdict cache
	CacheMaxEntries   int `envconfig:"CACHE_MAX_ENTRIES" default:"500"`
	CacheTTLHours     int `envconfig:"CACHE_TTL_HOURS" default:"24"`
	CacheFlushSeconds int `envconfig:"CACHE_FLUSH_SECONDS" default:"5"`

	// Oracle transport
	MaxRetryAttempts     int `envconfig:"MAX_RETRY_ATTEMPTS" default:"2"`
	RetryDelayMs         int `envconfig:"RETRY_DELAY_MS" default:"1000"`
	OracleTimeoutSeconds int `envconfig:"ORACLE_TIMEOUT_SECONDS" default:"60"`

	// Daily usage quota
	QuotaLimitSeconds int `envconfig:"QUOTA_LIMIT_SECONDS" default:"3600"`
	QuotaTickSeconds  int `envconfig:"QUOTA_TICK_SECONDS" default:"10"`
	LockoutGraceMs    int `envconfig:"LOCKOUT_GRACE_MS" default:"3000"`

	// Classification history
	HistorySize    int  `envconfig:"HISTORY_SIZE" default:"200"`
	LoggingEnabled bool `envconfig:"LOGGING_ENABLED" default:"false"`

	// Feed reordering
	ReorderEnabled bool `envconfig:"REORDER_ENABLED" default:"true"`
	// ThreadAuthorOverride upgrades an anchored author's filtered items to
	// show in thread view.
	ThreadAuthorOverride bool `envconfig:"THREAD_AUTHOR_OVERRIDE" default:"true"`

	// Durable storage. Empty path keeps everything in memory.
	DBPath string `envconfig:"DB_PATH" default:"feedsift.db"`
}

// ResolveDefaults validates the parsed configuration and fills derived values.
func (c *Config) ResolveDefaults() error {
	if c.RelayPort <= 0 || c.RelayPort > 65535 {
		return fmt.Errorf("invalid RELAY_PORT: %d", c.RelayPort)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid BATCH_SIZE: %d", c.BatchSize)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("invalid POOL_SIZE: %d", c.PoolSize)
	}
	if c.QuotaTickSeconds <= 0 || c.QuotaLimitSeconds < c.QuotaTickSeconds {
		return fmt.Errorf("quota limit %ds must be at least one tick (%ds)", c.QuotaLimitSeconds, c.QuotaTickSeconds)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Example: FEEDSIFT_RELAY_PORT, FEEDSIFT_BATCH_SIZE.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("FEEDSIFT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("relay", cfg.RelayAddr()).
		Int("batch_size", cfg.BatchSize).
		Int("cache_max", cfg.CacheMaxEntries).
		Int("quota_limit_s", cfg.QuotaLimitSeconds).
		Bool("logging_enabled", cfg.LoggingEnabled).
		Bool("reorder_enabled", cfg.ReorderEnabled).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing.
func NewForTesting() *Config {
	return &Config{
		Environment:          EnvTesting,
		RelayHost:            "127.0.0.1",
		RelayPort:            8753,
		ClassifierCmd:        "cat",
		PoolSize:             1,
		MaxBodyBytes:         1 << 20,
		RateLimitRPS:         100,
		RateLimitBurst:       100,
		BatchSize:            5,
		BatchTimeoutMs:       50,
		CacheMaxEntries:      500,
		CacheTTLHours:        24,
		CacheFlushSeconds:    1,
		MaxRetryAttempts:     1,
		RetryDelayMs:         1,
		OracleTimeoutSeconds: 5,
		QuotaLimitSeconds:    60,
		QuotaTickSeconds:     10,
		LockoutGraceMs:       10,
		HistorySize:          50,
		ReorderEnabled:       true,
		ThreadAuthorOverride: true,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// RelayAddr returns the relay's listen address.
func (c *Config) RelayAddr() string {
	return fmt.Sprintf("%s:%d", c.RelayHost, c.RelayPort)
}

// RelayURL returns the base URL oracle clients should dial.
func (c *Config) RelayURL() string {
	return fmt.Sprintf("http://%s", c.RelayAddr())
}

// BatchTimeout returns the batch window as a duration.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutMs) * time.Millisecond
}

// CacheTTL returns the verdict cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// CacheFlushInterval returns the deferred flush cadence.
func (c *Config) CacheFlushInterval() time.Duration {
	return time.Duration(c.CacheFlushSeconds) * time.Second
}

// RetryDelay returns the fixed oracle retry backoff.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// OracleTimeout returns the overall oracle call ceiling.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.OracleTimeoutSeconds) * time.Second
}

// LockoutGrace returns the delay between the lockout notice and forced
// surface termination.
func (c *Config) LockoutGrace() time.Duration {
	return time.Duration(c.LockoutGraceMs) * time.Millisecond
}
