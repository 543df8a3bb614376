package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision outcomes used as the "outcome" label.
const (
	OutcomeAllowed     = "allowed"
	OutcomeBlocked     = "blocked"
	OutcomeBlacklisted = "blacklisted"
)

type Metrics struct {
	Decisions              *prometheus.CounterVec
	Penalties              *prometheus.CounterVec
	PenaltyMultiplier      prometheus.Histogram
	StoreErrors            *prometheus.CounterVec
	CheckDuration          *prometheus.HistogramVec
	Degraded               prometheus.Gauge
	AnalyticsDropped       prometheus.Counter
	CleanupRunsTotal       *prometheus.CounterVec
	CleanupDurationSeconds prometheus.Histogram
	CleanupCountersSwept   prometheus.Counter
	CleanupPenaltiesPruned prometheus.Counter
	TrackedCounters        prometheus.Gauge
}

// New registers the ratelimit collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the ratelimit collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_ratelimit_decisions_total",
			Help: "Admission decisions by endpoint type and outcome",
		}, []string{"endpoint", "outcome"}),
		Penalties: f.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_ratelimit_penalties_total",
			Help: "Denials that carried an escalated penalty multiplier",
		}, []string{"endpoint"}),
		PenaltyMultiplier: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "boxoffice_ratelimit_penalty_multiplier",
			Help:    "Penalty multiplier applied to retry-after on denial",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_ratelimit_store_errors_total",
			Help: "Admission checks that failed on the counter store, by applied failure policy",
		}, []string{"endpoint", "policy"}),
		CheckDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boxoffice_ratelimit_check_duration_seconds",
			Help:    "Latency of admission checks",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"endpoint"}),
		Degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "boxoffice_ratelimit_degraded",
			Help: "1 while the counter store circuit is open",
		}),
		AnalyticsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "boxoffice_ratelimit_analytics_dropped_total",
			Help: "Decision events dropped because the analytics queue was full",
		}),
		CleanupRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "boxoffice_ratelimit_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		CleanupDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name: "boxoffice_ratelimit_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
		CleanupCountersSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "boxoffice_ratelimit_cleanup_counters_swept_total",
			Help: "Expired in-memory window counters removed by the cleanup worker",
		}),
		CleanupPenaltiesPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "boxoffice_ratelimit_cleanup_penalties_pruned_total",
			Help: "Fully decayed penalty records removed by the cleanup worker",
		}),
		TrackedCounters: f.NewGauge(prometheus.GaugeOpts{
			Name: "boxoffice_ratelimit_tracked_counters",
			Help: "Window counters held by the in-memory counter store",
		}),
	}
}

func (m *Metrics) IncrementDecision(endpoint, outcome string) {
	m.Decisions.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) IncrementPenalty(endpoint string, multiplier float64) {
	m.Penalties.WithLabelValues(endpoint).Inc()
	m.PenaltyMultiplier.Observe(multiplier)
}

func (m *Metrics) IncrementStoreError(endpoint string, failOpen bool) {
	policy := "fail_closed"
	if failOpen {
		policy = "fail_open"
	}
	m.StoreErrors.WithLabelValues(endpoint, policy).Inc()
}

func (m *Metrics) ObserveCheckDuration(endpoint string, durationSeconds float64) {
	m.CheckDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}

func (m *Metrics) IncrementAnalyticsDropped() {
	m.AnalyticsDropped.Inc()
}

func (m *Metrics) IncrementCleanupRuns(status string) {
	m.CleanupRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCleanupDuration(durationSeconds float64) {
	m.CleanupDurationSeconds.Observe(durationSeconds)
}

func (m *Metrics) AddCountersSwept(n int) {
	m.CleanupCountersSwept.Add(float64(n))
}

func (m *Metrics) AddPenaltiesPruned(n int) {
	m.CleanupPenaltiesPruned.Add(float64(n))
}

func (m *Metrics) SetTrackedCounters(n int) {
	m.TrackedCounters.Set(float64(n))
}
