package license

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Check outcomes recorded by Metrics.RecordCheck.
const (
	OutcomeNoKey         = "no_key"
	OutcomeInvalidFormat = "invalid_format"
	OutcomeCacheHit      = "cache_hit"
	OutcomeNoDomain      = "no_domain"
	OutcomeAuthorized    = "authorized"
	OutcomeFree          = "free"
)

// Cache lookups recorded by Metrics.RecordCache.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheCorrupt = "corrupt"
)

// Metrics holds the Prometheus instrumentation of the authorization core.
type Metrics struct {
	checksTotal    *prometheus.CounterVec
	cacheTotal     *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the metrics registered on the default registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics registers the collectors on registerer, reusing collectors that
// are already registered there.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "a11ykit",
				Subsystem: "license",
				Name:      "checks_total",
				Help:      "Total authorization decisions by outcome",
			},
			[]string{"outcome"},
		),
		cacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "a11ykit",
				Subsystem: "license",
				Name:      "cache_total",
				Help:      "Total license cache lookups by result",
			},
			[]string{"result"},
		),
		remoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "a11ykit",
				Subsystem: "license",
				Name:      "remote_duration_seconds",
				Help:      "Latency of remote license checks by result",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"result"},
		),
	}

	m.checksTotal = registerCounterVec(registerer, m.checksTotal)
	m.cacheTotal = registerCounterVec(registerer, m.cacheTotal)
	m.remoteDuration = registerHistogramVec(registerer, m.remoteDuration)

	return m
}

func registerCounterVec(registerer prometheus.Registerer, counter *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if alreadyRegisteredErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := alreadyRegisteredErr.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return counter
}

func registerHistogramVec(registerer prometheus.Registerer, hist *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := registerer.Register(hist); err != nil {
		if alreadyRegisteredErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := alreadyRegisteredErr.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return hist
}

func defaultLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// RecordCheck counts one Authorize decision.
func (m *Metrics) RecordCheck(outcome string) {
	if m == nil || m.checksTotal == nil {
		return
	}
	m.checksTotal.WithLabelValues(defaultLabel(outcome)).Inc()
}

// RecordCache counts one cache lookup.
func (m *Metrics) RecordCache(result string) {
	if m == nil || m.cacheTotal == nil {
		return
	}
	m.cacheTotal.WithLabelValues(defaultLabel(result)).Inc()
}

// ObserveRemote records the latency of one remote check.
func (m *Metrics) ObserveRemote(result string, d time.Duration) {
	if m == nil || m.remoteDuration == nil {
		return
	}
	m.remoteDuration.WithLabelValues(defaultLabel(result)).Observe(d.Seconds())
}
