// Package observability holds the Prometheus collectors shared by the
// cohort pipeline. A nil *Metrics is valid and records nothing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fpl_cohorts"

// Metrics groups every collector exported by the service.
type Metrics struct {
	cacheLookups     *prometheus.CounterVec
	computeDuration  prometheus.Histogram
	computes         *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	poolFailures     prometheus.Counter
	archiveWrites    *prometheus.CounterVec
	schedulerRuns    *prometheus.CounterVec
	bandSampleSize   *prometheus.GaugeVec
	breakerState     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cohort cache lookups by tier (memory, cold) and result (hit, miss, stale, error)",
			},
			[]string{"tier", "result"},
		),
		computeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compute_duration_seconds",
				Help:      "Duration of a full cohort compute run",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		computes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "computes_total",
				Help:      "Cohort compute runs by outcome",
			},
			[]string{"outcome"},
		),
		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream API calls by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		poolFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_entity_failures_total",
				Help:      "Entries dropped from a sample because their picks could not be fetched",
			},
		),
		archiveWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_writes_total",
				Help:      "Cold storage writes by outcome",
			},
			[]string{"outcome"},
		),
		schedulerRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_runs_total",
				Help:      "Scheduled gameweek computations by outcome",
			},
			[]string{"outcome"},
		),
		bandSampleSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "band_sample_size",
				Help:      "Sample size of the most recent compute per band",
			},
			[]string{"band"},
		),
		breakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_circuit_open",
				Help:      "1 while the upstream circuit breaker is open",
			},
		),
	}
}

// CacheLookup records a cache lookup.
func (m *Metrics) CacheLookup(tier, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(tier, result).Inc()
}

// Compute records a finished compute run.
func (m *Metrics) Compute(d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.computeDuration.Observe(d.Seconds())
	m.computes.WithLabelValues(outcome).Inc()
}

// Upstream records an upstream API call.
func (m *Metrics) Upstream(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
}

// PoolFailure records an entry dropped by the fetch pool.
func (m *Metrics) PoolFailure() {
	if m == nil {
		return
	}
	m.poolFailures.Inc()
}

// ArchiveWrite records a cold storage write.
func (m *Metrics) ArchiveWrite(outcome string) {
	if m == nil {
		return
	}
	m.archiveWrites.WithLabelValues(outcome).Inc()
}

// SchedulerRun records a scheduled computation.
func (m *Metrics) SchedulerRun(outcome string) {
	if m == nil {
		return
	}
	m.schedulerRuns.WithLabelValues(outcome).Inc()
}

// BandSample sets the latest sample size of a band.
func (m *Metrics) BandSample(band string, size int) {
	if m == nil {
		return
	}
	m.bandSampleSize.WithLabelValues(band).Set(float64(size))
}

// BreakerOpen flags the upstream circuit breaker state.
func (m *Metrics) BreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerState.Set(1)
		return
	}
	m.breakerState.Set(0)
}
