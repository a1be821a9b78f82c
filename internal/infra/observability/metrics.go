package observability

import (
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the banking API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	ledgerOps       *prometheus.CounterVec
	loginAttempts   *prometheus.CounterVec
	lockoutsSet     prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acebank_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acebank_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acebank_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acebank_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		ledgerOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acebank_ledger_operations_total",
				Help: "Total ledger mutations by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		loginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acebank_login_attempts_total",
				Help: "Total login attempts by outcome.",
			},
			[]string{"outcome"},
		),
		lockoutsSet: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "acebank_lockouts_total",
				Help: "Total lockouts triggered by repeated login failures.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrLedgerOp increments the ledger operation counter.
// outcome is "success" or "error".
func (m *Metrics) IncrLedgerOp(operation, outcome string) {
	m.ledgerOps.WithLabelValues(operation, outcome).Inc()
}

// IncrLoginAttempt increments the login attempt counter.
// outcome is "success", "failure" or "locked".
func (m *Metrics) IncrLoginAttempt(outcome string) {
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

// IncrLockout increments the lockouts-triggered counter.
func (m *Metrics) IncrLockout() {
	m.lockoutsSet.Inc()
}

// GetOpsSnapshot returns a snapshot of operational metrics suitable for the
// GET /ops/metrics endpoint.
func (m *Metrics) GetOpsSnapshot() *domain.OpsMetrics {
	// Gather current values from Prometheus counters.
	// Note: Prometheus counters expose cumulative values.
	deposits := getCounterValue(m.ledgerOps, "deposit", "success")
	withdrawals := getCounterValue(m.ledgerOps, "withdraw", "success")
	transfers := getCounterValue(m.ledgerOps, "transfer", "success")
	failures := getCounterValue(m.ledgerOps, "deposit", "error") +
		getCounterValue(m.ledgerOps, "withdraw", "error") +
		getCounterValue(m.ledgerOps, "transfer", "error")

	loginSuccess := getCounterValue(m.loginAttempts, "success")
	loginFailure := getCounterValue(m.loginAttempts, "failure")
	loginLocked := getCounterValue(m.loginAttempts, "locked")

	cacheHits := getCounterValue(m.cacheHits, "email_lookup")
	cacheMisses := getCounterValue(m.cacheMisses, "email_lookup")

	total := deposits + withdrawals + transfers + failures
	errorRate := float64(0)
	cacheHitRate := float64(0)

	if total > 0 {
		errorRate = failures / total
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.OpsMetrics{
		Deposits:       int64(deposits),
		Withdrawals:    int64(withdrawals),
		Transfers:      int64(transfers),
		FailedOps:      int64(failures),
		ErrorRate:      errorRate,
		LoginSuccesses: int64(loginSuccess),
		LoginFailures:  int64(loginFailure),
		LoginsLocked:   int64(loginLocked),
		CacheHitRate:   cacheHitRate,
		Period:         "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
