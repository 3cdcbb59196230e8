package observability

import (
	"time"

	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the Timely server.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	storeDuration      *prometheus.HistogramVec
	storeErrors        *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	staleResults       *prometheus.CounterVec
	onboardingFinished *prometheus.CounterVec
	authFailures       *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

var (
	sessionStatuses = []domain.SessionStatus{
		domain.StatusLoading, domain.StatusLoggedOut, domain.StatusOnboarding, domain.StatusHome,
	}
	authKinds = []domain.AuthErrorKind{
		domain.AuthInvalidCredentials, domain.AuthEmailInUse, domain.AuthWeakPassword,
		domain.AuthNetwork, domain.AuthRateLimited, domain.AuthUserDisabled,
		domain.AuthTimeout, domain.AuthUnknown,
	}
)

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		storeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timely_store_duration_seconds",
				Help:    "Duration of document store calls by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timely_store_errors_total",
				Help: "Total document store errors by kind.",
			},
			[]string{"kind"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timely_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timely_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timely_session_transitions_total",
				Help: "Session state transitions by target status.",
			},
			[]string{"status"},
		),
		staleResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timely_stale_results_total",
				Help: "Store results discarded because their identity epoch was superseded.",
			},
			[]string{"operation"},
		),
		onboardingFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timely_onboarding_finish_total",
				Help: "Onboarding save attempts by result.",
			},
			[]string{"result"},
		),
		authFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timely_auth_failures_total",
				Help: "Credential provider failures by kind.",
			},
			[]string{"kind"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "timely_active_sessions",
				Help: "Open device sessions.",
			},
		),
	}
}

// RecordStoreDuration records the duration of a store operation.
func (m *Metrics) RecordStoreDuration(operation string, d time.Duration) {
	m.storeDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(kind domain.StoreErrorKind) {
	m.storeErrors.WithLabelValues(string(kind)).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrTransition counts a state emission.
func (m *Metrics) IncrTransition(status domain.SessionStatus) {
	m.transitions.WithLabelValues(status.String()).Inc()
}

// IncrStaleResult counts a discarded load or save result.
func (m *Metrics) IncrStaleResult(operation string) {
	m.staleResults.WithLabelValues(operation).Inc()
}

// IncrOnboardingFinish counts an onboarding save with result "success" or "error".
func (m *Metrics) IncrOnboardingFinish(result string) {
	m.onboardingFinished.WithLabelValues(result).Inc()
}

// IncrAuthFailure counts a credential provider failure.
func (m *Metrics) IncrAuthFailure(kind domain.AuthErrorKind) {
	m.authFailures.WithLabelValues(string(kind)).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

// StaleResults returns the cumulative number of discarded results for an
// operation ("load" or "save").
func (m *Metrics) StaleResults(operation string) float64 {
	return getCounterValue(m.staleResults, operation)
}

// GetSessionSnapshot returns a snapshot suitable for GET /v1/metrics/session.
func (m *Metrics) GetSessionSnapshot() *domain.SessionMetrics {
	snap := &domain.SessionMetrics{
		ActiveSessions:       getGaugeValue(m.activeSessions),
		Transitions:          make(map[string]float64, len(sessionStatuses)),
		StaleResultsDropped:  getCounterValue(m.staleResults, "load") + getCounterValue(m.staleResults, "save"),
		OnboardingCompleted:  getCounterValue(m.onboardingFinished, "success"),
		OnboardingSaveErrors: getCounterValue(m.onboardingFinished, "error"),
		AuthFailures:         make(map[string]float64),
	}
	for _, s := range sessionStatuses {
		snap.Transitions[s.String()] = getCounterValue(m.transitions, s.String())
	}
	for _, k := range authKinds {
		if v := getCounterValue(m.authFailures, string(k)); v > 0 {
			snap.AuthFailures[string(k)] = v
		}
	}
	for _, k := range []domain.StoreErrorKind{domain.StoreNetwork, domain.StorePermissionDenied, domain.StoreDecodeFailure, domain.StoreUnknown} {
		snap.StoreErrors += getCounterValue(m.storeErrors, string(k))
	}
	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil && m.Gauge.Value != nil {
		return *m.Gauge.Value
	}
	return 0
}
