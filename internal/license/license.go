// Package license implements the fail-open entitlement check: it validates
// the key shape locally, serves recent decisions from a cache, asks the
// license server otherwise, and records usage. Authorize never fails; every
// problem degrades to a free result carrying a tagged error string.
package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rcourtman/a11ykit/internal/license/storage"
	"github.com/rcourtman/a11ykit/pkg/licensing"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Checker performs the remote entitlement check. *Client implements it.
type Checker interface {
	Check(ctx context.Context, key, domain string, info licensing.PackageInfo) licensing.Result
}

// UsageRecorder receives one call per authorization that got past the format
// gate. Implementations must not block for long and must swallow failures.
type UsageRecorder interface {
	Record(ctx context.Context, info licensing.PackageInfo, domain string)
}

// Options configures a Service.
type Options struct {
	// Store persists the cached decision. Nil means an in-memory store.
	Store storage.Store
	// Checker performs remote checks. Nil means NewClient with defaults.
	Checker   Checker
	Usage     UsageRecorder
	Package   licensing.PackageInfo
	CacheTTL  time.Duration
	PaidTiers licensing.PaidTiers
	// Metrics defaults to DefaultMetrics.
	Metrics *Metrics
	Now     func() time.Time
}

type memo struct {
	timestamp time.Time
	entry     CacheEntry
}

// Service is the entitlement facade. It is safe for concurrent use.
type Service struct {
	cache   *Cache
	checker Checker
	usage   UsageRecorder
	pkg     licensing.PackageInfo
	paid    licensing.PaidTiers
	metrics *Metrics

	mu   sync.RWMutex
	last *memo

	group singleflight.Group
}

// NewService creates a Service from opts.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = DefaultMetrics()
	}
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	checker := opts.Checker
	if checker == nil {
		checker = NewClient(ClientConfig{Metrics: metrics, Now: now})
	}
	paid := opts.PaidTiers
	if len(paid) == 0 {
		paid = licensing.DefaultPaidTiers()
	}

	return &Service{
		cache:   NewCache(store, opts.CacheTTL, WithCacheClock(now), WithCacheMetrics(metrics)),
		checker: checker,
		usage:   opts.Usage,
		pkg:     opts.Package,
		paid:    paid,
		metrics: metrics,
	}
}

// Cache exposes the persisted decision cache.
func (s *Service) Cache() *Cache {
	return s.cache
}

// PaidTiers returns the tiers this Service treats as paid.
func (s *Service) PaidTiers() licensing.PaidTiers {
	return s.paid
}

// Authorize decides what key may do on domain. The result is always usable:
// failures produce a free result with Error set.
func (s *Service) Authorize(ctx context.Context, key, domain string) licensing.Result {
	key = strings.TrimSpace(key)
	domain = licensing.NormalizeDomain(domain)

	if key == "" {
		s.recordUsage(ctx, domain)
		s.metrics.RecordCheck(OutcomeNoKey)
		log.Debug().Str("domain", domain).Msg("No license key provided, running in free mode")
		return failOpen(domain, &Error{Kind: KindMissingInput, Op: "authorize", Err: ErrNoLicenseKey})
	}

	if !licensing.IsValidKeyFormat(key) {
		s.metrics.RecordCheck(OutcomeInvalidFormat)
		log.Warn().Str("license", licensing.MaskKey(key)).Msg("License key has an invalid format, running in free mode")
		return failOpen(domain, &Error{Kind: KindFormat, Op: "validate_format", Err: ErrInvalidKeyFormat})
	}

	// The shared check is detached from the caller and bounded by the client
	// timeout. A caller whose ctx ends first gets an uncached free result.
	subject := subjectFor(key)
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(subject+"|"+domain, func() (any, error) {
		return s.authorize(detached, key, subject, domain), nil
	})
	select {
	case res := <-ch:
		return cloneResult(res.Val.(licensing.Result))
	case <-ctx.Done():
		select {
		case res := <-ch:
			return cloneResult(res.Val.(licensing.Result))
		default:
		}
		log.Debug().Err(ctx.Err()).Str("domain", domain).Msg("Caller gave up before the license check finished")
		return failOpen(domain, NewNetworkError("authorize", ctx.Err()))
	}
}

func (s *Service) authorize(ctx context.Context, key, subject, domain string) licensing.Result {
	if result, ok := s.cached(ctx, subject, domain); ok {
		s.recordUsage(ctx, domain)
		s.metrics.RecordCheck(OutcomeCacheHit)
		return result
	}

	if domain == "" {
		s.metrics.RecordCheck(OutcomeNoDomain)
		return failOpen(domain, &Error{Kind: KindMissingInput, Op: "authorize", Err: ErrDomainRequired})
	}

	result := s.checker.Check(ctx, key, domain, s.pkg)
	if !result.WellFormed() {
		result = licensing.FreeResult(result.Domain, result.Error, result.Message)
	}
	result.FromCache = false

	ts := s.cache.WriteFor(ctx, subject, result)
	s.remember(ts, CacheEntry{Timestamp: ts, Subject: subject, Result: result})
	s.recordUsage(ctx, domain)

	if licensing.IsFullyAuthorized(result) {
		s.metrics.RecordCheck(OutcomeAuthorized)
	} else {
		s.metrics.RecordCheck(OutcomeFree)
	}
	return result
}

// cached serves the in-memory decision first and the persisted one second.
// Both go through the same Cache freshness predicate.
func (s *Service) cached(ctx context.Context, subject, domain string) (licensing.Result, bool) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last != nil && s.cache.fresh(last.timestamp) && last.entry.matches(subject, domain) {
		result := last.entry.Result
		result.FromCache = true
		return result, true
	}

	entry, ok := s.cache.Lookup(ctx, subject, domain)
	if !ok {
		return licensing.Result{}, false
	}
	s.remember(entry.Timestamp, entry)
	return entry.Result, true
}

func (s *Service) remember(ts time.Time, entry CacheEntry) {
	entry.Result.FromCache = false
	s.mu.Lock()
	s.last = &memo{timestamp: ts, entry: entry}
	s.mu.Unlock()
}

func (s *Service) recordUsage(ctx context.Context, domain string) {
	if s.usage == nil {
		return
	}
	s.usage.Record(ctx, s.pkg, domain)
}

// LastResult returns the in-memory decision, if any. Its freshness is not
// checked.
func (s *Service) LastResult() (licensing.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return licensing.Result{}, false
	}
	return cloneResult(s.last.entry.Result), true
}

// ClearCache drops the in-memory decision and empties the persisted one.
func (s *Service) ClearCache(ctx context.Context) error {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
	return s.cache.Clear(ctx)
}

// HasPaidFeatures applies this Service's paid tier set to r.
func (s *Service) HasPaidFeatures(r licensing.Result) bool {
	return s.paid.HasPaidFeatures(r)
}

// IsProOrHigher is an alias of HasPaidFeatures.
func (s *Service) IsProOrHigher(r licensing.Result) bool {
	return s.paid.IsProOrHigher(r)
}

// StatusMessage describes r using this Service's paid tier set.
func (s *Service) StatusMessage(r licensing.Result) string {
	return s.paid.StatusMessage(r)
}

// Metadata returns license details for r when it has paid features.
func (s *Service) Metadata(r licensing.Result) *licensing.LicenseMetadata {
	return s.paid.Metadata(r)
}

// subjectFor derives the cache binding for key without storing the key.
func subjectFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

func cloneResult(r licensing.Result) licensing.Result {
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		r.ExpiresAt = &exp
	}
	return r
}
