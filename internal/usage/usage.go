// Package usage keeps a small, bounded log of when and where the licensed
// package was used. The log is write-only telemetry for the authorization
// core: nothing in the authorization decision reads it.
//
// # What is recorded
//
//   - First and last use timestamps
//   - Package name and version
//   - The most recent normalized domain
//   - Up to MaxEntries individual uses (timestamp and domain)
//
// License keys are never recorded.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rcourtman/a11ykit/internal/license/storage"
	"github.com/rcourtman/a11ykit/pkg/licensing"
	"github.com/rs/zerolog/log"
)

// DefaultMaxEntries bounds Record.Uses.
const DefaultMaxEntries = 100

// Use is a single recorded use.
type Use struct {
	Timestamp time.Time `json:"timestamp"`
	Domain    string    `json:"domain,omitempty"`
}

// Record is the persisted usage log.
type Record struct {
	FirstUsed      time.Time `json:"first_used"`
	LastUsed       time.Time `json:"last_used"`
	PackageName    string    `json:"package_name,omitempty"`
	PackageVersion string    `json:"package_version,omitempty"`
	Domain         string    `json:"domain,omitempty"`
	Uses           []Use     `json:"uses"`
}

// Tracker appends uses to a Record kept in a storage.Store.
type Tracker struct {
	store      storage.Store
	maxEntries int
	now        func() time.Time

	// serializes read-modify-write within this process
	mu sync.Mutex
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithMaxEntries overrides DefaultMaxEntries. Non-positive values are ignored.
func WithMaxEntries(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxEntries = n
		}
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a Tracker persisting into store.
func NewTracker(store storage.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:      store,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaxEntries returns the bound on recorded uses.
func (t *Tracker) MaxEntries() int {
	return t.maxEntries
}

// Record appends a use of info on domain. Failures are logged at debug level
// and otherwise ignored.
func (t *Tracker) Record(ctx context.Context, info licensing.PackageInfo, domain string) {
	if t == nil || t.store == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	rec, err := t.load(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Usage record unreadable, starting a new one")
		rec = Record{}
	}
	if rec.FirstUsed.IsZero() {
		rec.FirstUsed = now
	}
	rec.LastUsed = now
	rec.PackageName = info.Name
	rec.PackageVersion = info.Version
	rec.Domain = domain
	rec.Uses = append(rec.Uses, Use{Timestamp: now, Domain: domain})
	if overflow := len(rec.Uses) - t.maxEntries; overflow > 0 {
		rec.Uses = append([]Use(nil), rec.Uses[overflow:]...)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to encode usage record")
		return
	}
	if err := t.store.Write(ctx, storage.KeyLicenseUsage, data); err != nil {
		log.Debug().Err(err).Msg("Failed to persist usage record")
	}
}

// Load returns the persisted record. A missing record yields an empty one.
func (t *Tracker) Load(ctx context.Context) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx)
}

func (t *Tracker) load(ctx context.Context) (Record, error) {
	data, err := t.store.Read(ctx, storage.KeyLicenseUsage)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
