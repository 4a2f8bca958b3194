package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	statements    *prometheus.CounterVec
	driftProducts prometheus.Gauge
	driftUnits    prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetLedgerDrift records how many products currently disagree with their
// ledger, and the absolute unit difference summed across them.
func (m *Metrics) SetLedgerDrift(products int, units int64) {
	if m == nil {
		return
	}
	m.driftProducts.Set(float64(products))
	m.driftUnits.Set(float64(units))
}

// AddStatements counts statement generation outcomes (generated, skipped, failed).
func (m *Metrics) AddStatements(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.statements.WithLabelValues(outcome).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	statements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_statements_total",
		Help: "Monthly statements processed by the batch job, by outcome.",
	}, []string{"outcome"})
	driftProducts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_inventory_ledger_drift_products",
		Help: "Products whose cached quantity disagrees with the folded ledger.",
	})
	driftUnits := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_inventory_ledger_drift_units",
		Help: "Absolute units of disagreement between cached quantities and the ledger.",
	})
	registerer.MustRegister(runs, failures, duration, statements, driftProducts, driftUnits)
	return &Metrics{
		runs:          runs,
		failures:      failures,
		duration:      duration,
		statements:    statements,
		driftProducts: driftProducts,
		driftUnits:    driftUnits,
	}
}
