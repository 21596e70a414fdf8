package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcourtman/a11ykit/internal/config"
	"github.com/rcourtman/a11ykit/internal/license"
	"github.com/rcourtman/a11ykit/internal/license/storage"
	"github.com/rcourtman/a11ykit/internal/logging"
	"github.com/rcourtman/a11ykit/internal/usage"
	"github.com/rcourtman/a11ykit/pkg/licensing"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const packageName = "a11ykit"

// app is the wired authorization core for one CLI invocation.
type app struct {
	cfg      *config.Config
	service  *license.Service
	tracker  *usage.Tracker
	registry *prometheus.Registry

	closeStore func() error
}

// loadConfig reads the environment and applies the logging flags.
func loadConfig(flags *globalFlags, logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.LogFormat = flags.logFormat
	}
	if !logging.ValidLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	if !logging.ValidFormat(cfg.LogFormat) {
		return nil, fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: packageName,
		Output:    logOut,
	})
	return cfg, nil
}

func packageInfo(cfg *config.Config) licensing.PackageInfo {
	return licensing.PackageInfo{
		Name:        packageName,
		Version:     Version,
		Environment: cfg.Environment,
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// openStore opens the configured store. An unusable store degrades to an
// in-process one so licensing never blocks the run.
func openStore(cfg *config.Config) (storage.Store, func() error, storage.Kind) {
	store, closeStore, err := storage.Open(cfg.StorageOptions())
	if err == nil {
		return store, closeStore, cfg.Store
	}
	log.Warn().
		Err(err).
		Str("store", string(cfg.Store)).
		Msg("License store unavailable, caching in memory for this run")
	return storage.NewMemoryStore(), func() error { return nil }, storage.KindMemory
}

// newApp builds the store, client, usage tracker and Service described by cfg.
func newApp(cfg *config.Config) *app {
	store, closeStore, kind := openStore(cfg)

	registry := prometheus.NewRegistry()
	metrics := license.NewMetrics(registry)

	client := license.NewClient(license.ClientConfig{
		Endpoint:  cfg.Endpoint,
		Timeout:   cfg.Timeout,
		ProductID: cfg.ProductID,
		UserAgent: packageName + "/" + Version,
		Limiter:   newLimiter(cfg.RateLimit),
		Metrics:   metrics,
	})
	tracker := usage.NewTracker(store, usage.WithMaxEntries(cfg.MaxUsageEntries))

	service := license.NewService(license.Options{
		Store:     store,
		Checker:   client,
		Usage:     tracker,
		Package:   packageInfo(cfg),
		CacheTTL:  cfg.CacheTTL,
		PaidTiers: cfg.PaidTiers,
		Metrics:   metrics,
	})

	log.Debug().
		Str("store", string(kind)).
		Str("endpoint", client.Endpoint()).
		Str("paid_tiers", cfg.PaidTiers.String()).
		Msg("License core initialized")

	return &app{
		cfg:        cfg,
		service:    service,
		tracker:    tracker,
		registry:   registry,
		closeStore: closeStore,
	}
}

func (a *app) Close() {
	if err := a.closeStore(); err != nil {
		log.Warn().Err(err).Msg("Failed to close license store")
	}
}

// authorize resolves the key (flag first, then A11YKIT_LICENSE_KEY) and asks
// the Service for a decision.
func (a *app) authorize(ctx context.Context, key, domain string) licensing.Result {
	if strings.TrimSpace(key) == "" {
		key = a.cfg.LicenseKey
	}
	return a.service.Authorize(ctx, key, domain)
}

func (a *app) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
