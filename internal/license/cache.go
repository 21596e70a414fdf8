package license

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rcourtman/a11ykit/internal/license/storage"
	"github.com/rcourtman/a11ykit/pkg/licensing"
	"github.com/rs/zerolog/log"
)

// DefaultCacheTTL is how long a persisted decision stays usable.
const DefaultCacheTTL = 24 * time.Hour

// CacheEntry is the persisted form of one authorization decision.
type CacheEntry struct {
	Timestamp time.Time `json:"timestamp"`
	// Subject is a one-way digest of the license key the decision was made for.
	Subject string           `json:"subject,omitempty"`
	Result  licensing.Result `json:"result"`
}

// Cache persists the most recent decision in a storage.Store under
// storage.KeyLicenseCache.
type Cache struct {
	store   storage.Store
	ttl     time.Duration
	now     func() time.Time
	metrics *Metrics
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithCacheClock overrides the clock used for timestamps and expiry.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheMetrics records lookups on m.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates a Cache over store. A non-positive ttl means DefaultCacheTTL.
func NewCache(store storage.Store, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// fresh is the single expiry predicate for both the persisted entry and the
// Service's in-memory copy.
func (c *Cache) fresh(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return c.now().Sub(ts) < c.ttl
}

// Load returns the persisted entry when it is present, parseable and fresh.
func (c *Cache) Load(ctx context.Context) (CacheEntry, bool) {
	return c.load(ctx, nil)
}

// Read returns the cached result, marked FromCache, when one is fresh.
func (c *Cache) Read(ctx context.Context) (*licensing.Result, bool) {
	entry, ok := c.load(ctx, nil)
	if !ok {
		return nil, false
	}
	return &entry.Result, true
}

// Lookup is Load restricted to entries made for subject and, when domain is
// non-empty, for that normalized domain.
func (c *Cache) Lookup(ctx context.Context, subject, domain string) (CacheEntry, bool) {
	return c.load(ctx, func(e CacheEntry) bool {
		return e.matches(subject, domain)
	})
}

func (c *Cache) load(ctx context.Context, match func(CacheEntry) bool) (CacheEntry, bool) {
	data, err := c.store.Read(ctx, storage.KeyLicenseCache)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Debug().Err(err).Msg("License cache unreadable, treating as miss")
		}
		c.metrics.RecordCache(CacheMiss)
		return CacheEntry{}, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Debug().Err(err).Msg("License cache is corrupt, treating as miss")
		c.metrics.RecordCache(CacheCorrupt)
		return CacheEntry{}, false
	}
	if entry.Timestamp.IsZero() {
		c.metrics.RecordCache(CacheMiss)
		return CacheEntry{}, false
	}
	if !entry.Result.WellFormed() {
		log.Debug().Str("error", entry.Result.Error).Msg("License cache holds an inconsistent result, ignoring it")
		c.metrics.RecordCache(CacheCorrupt)
		return CacheEntry{}, false
	}
	if !c.fresh(entry.Timestamp) {
		c.metrics.RecordCache(CacheExpired)
		return CacheEntry{}, false
	}
	if match != nil && !match(entry) {
		c.metrics.RecordCache(CacheMiss)
		return CacheEntry{}, false
	}

	entry.Result.FromCache = true
	c.metrics.RecordCache(CacheHit)
	return entry, true
}

func (e CacheEntry) matches(subject, domain string) bool {
	if e.Subject != subject {
		return false
	}
	return domain == "" || e.Result.Domain == domain
}

// Write persists result without a subject binding.
func (c *Cache) Write(ctx context.Context, result licensing.Result) time.Time {
	return c.WriteFor(ctx, "", result)
}

// WriteFor persists result for subject and returns the timestamp it was
// stored under. Storage failures are logged and otherwise ignored.
func (c *Cache) WriteFor(ctx context.Context, subject string, result licensing.Result) time.Time {
	entry := CacheEntry{
		Timestamp: c.now().UTC(),
		Subject:   subject,
		Result:    result,
	}
	entry.Result.FromCache = false

	data, err := json.Marshal(entry)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode license cache entry")
		return entry.Timestamp
	}
	if err := c.store.Write(ctx, storage.KeyLicenseCache, data); err != nil {
		log.Warn().Err(err).Msg("Failed to persist license cache")
	}
	return entry.Timestamp
}

// Clear overwrites the persisted entry with an empty record.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Write(ctx, storage.KeyLicenseCache, []byte("{}")); err != nil {
		return &Error{Kind: KindCache, Op: "clear_cache", Err: err}
	}
	return nil
}
