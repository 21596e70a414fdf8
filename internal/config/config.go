// Package config loads the a11ykit runtime configuration from the
// environment. A .env file in the working directory is honoured when present.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rcourtman/a11ykit/internal/license/storage"
	"github.com/rcourtman/a11ykit/pkg/licensing"
)

// Environment variables read by Load.
const (
	EnvCacheDir        = "A11YKIT_LICENSE_CACHE_DIR"
	EnvStore           = "A11YKIT_LICENSE_STORE"
	EnvRedisAddr       = "A11YKIT_REDIS_ADDR"
	EnvRedisPassword   = "A11YKIT_REDIS_PASSWORD"
	EnvRedisDB         = "A11YKIT_REDIS_DB"
	EnvEndpoint        = "A11YKIT_LICENSE_ENDPOINT"
	EnvTimeout         = "A11YKIT_LICENSE_TIMEOUT"
	EnvCacheTTL        = "A11YKIT_LICENSE_CACHE_TTL"
	EnvRateLimit       = "A11YKIT_LICENSE_RATE_LIMIT"
	EnvMaxUsageEntries = "A11YKIT_MAX_USAGE_ENTRIES"
	EnvPaidTiers       = "A11YKIT_PAID_TIERS"
	EnvProductID       = "A11YKIT_PRODUCT_ID"
	EnvLicenseKey      = "A11YKIT_LICENSE_KEY"
	EnvEnvironment     = "A11YKIT_ENVIRONMENT"
	EnvLogLevel        = "A11YKIT_LOG_LEVEL"
	EnvLogFormat       = "A11YKIT_LOG_FORMAT"
)

const (
	defaultRedisAddr       = "localhost:6379"
	defaultEndpoint        = "https://license.a11ykit.dev/v1/authorize"
	defaultTimeout         = 10 * time.Second
	defaultCacheTTL        = 24 * time.Hour
	defaultMaxUsageEntries = 100
	defaultEnvironment     = "production"
	appDirName             = "a11ykit"
)

// Config holds everything the CLI needs to build the authorization core.
type Config struct {
	CacheDir      string
	Store         storage.Kind
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Endpoint  string
	Timeout   time.Duration
	CacheTTL  time.Duration
	RateLimit int // requests per minute, 0 disables throttling
	ProductID string

	MaxUsageEntries int
	PaidTiers       licensing.PaidTiers

	LicenseKey  string
	Environment string

	LogLevel  string
	LogFormat string
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	store, err := storage.ParseKind(os.Getenv(EnvStore))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvStore, err)
	}
	redisDB, err := envOrDefaultInt(EnvRedisDB, 0)
	if err != nil {
		return nil, err
	}
	timeout, err := envOrDefaultDuration(EnvTimeout, defaultTimeout)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := envOrDefaultDuration(EnvCacheTTL, defaultCacheTTL)
	if err != nil {
		return nil, err
	}
	rateLimit, err := envOrDefaultInt(EnvRateLimit, 0)
	if err != nil {
		return nil, err
	}
	maxUsage, err := envOrDefaultInt(EnvMaxUsageEntries, defaultMaxUsageEntries)
	if err != nil {
		return nil, err
	}
	paid, err := licensing.ParsePaidTiers(os.Getenv(EnvPaidTiers))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvPaidTiers, err)
	}

	cfg := &Config{
		CacheDir:        envOrDefault(EnvCacheDir, defaultCacheDir()),
		Store:           store,
		RedisAddr:       envOrDefault(EnvRedisAddr, defaultRedisAddr),
		RedisPassword:   os.Getenv(EnvRedisPassword),
		RedisDB:         redisDB,
		Endpoint:        envOrDefault(EnvEndpoint, defaultEndpoint),
		Timeout:         timeout,
		CacheTTL:        cacheTTL,
		RateLimit:       rateLimit,
		ProductID:       strings.TrimSpace(os.Getenv(EnvProductID)),
		MaxUsageEntries: maxUsage,
		PaidTiers:       paid,
		LicenseKey:      strings.TrimSpace(os.Getenv(EnvLicenseKey)),
		Environment:     envOrDefault(EnvEnvironment, defaultEnvironment),
		LogLevel:        envOrDefault(EnvLogLevel, "info"),
		LogFormat:       envOrDefault(EnvLogFormat, "auto"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be greater than 0, got %s", EnvTimeout, c.Timeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%s must be greater than 0, got %s", EnvCacheTTL, c.CacheTTL)
	}
	if c.MaxUsageEntries <= 0 {
		return fmt.Errorf("%s must be greater than 0, got %d", EnvMaxUsageEntries, c.MaxUsageEntries)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%s must not be negative, got %d", EnvRateLimit, c.RateLimit)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("%s must not be negative, got %d", EnvRedisDB, c.RedisDB)
	}

	parsed, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("%s must be a valid URL: %w", EnvEndpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", EnvEndpoint)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", EnvEndpoint)
	}

	if c.Store == storage.KindFile && c.CacheDir == "" {
		return fmt.Errorf("%s is required when no user cache directory is available", EnvCacheDir)
	}
	if c.Store == storage.KindRedis && c.RedisAddr == "" {
		return fmt.Errorf("%s is required for the redis store", EnvRedisAddr)
	}
	return nil
}

// StorageOptions describes the store selected by the configuration.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Kind:          c.Store,
		Dir:           c.CacheDir,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}
