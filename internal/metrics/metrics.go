// Package metrics provides Prometheus metrics for crawl runs and
// reconciliation.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"jobvyne-crawler/internal/domain"
)

const (
	// Namespace is the namespace for all crawler metrics.
	Namespace = "jobvyne"

	// Subsystem is the subsystem for crawler metrics.
	Subsystem = "crawler"
)

// Metrics holds all Prometheus metrics for the crawler.
type Metrics struct {
	// Task metrics
	TasksTotal    *prometheus.CounterVec
	TasksInFlight *prometheus.GaugeVec

	// Run metrics
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds *prometheus.HistogramVec
	LastSuccess        *prometheus.GaugeVec

	// Reconcile metrics
	JobsReconciled     *prometheus.CounterVec
	LocationUnresolved *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}

	m.initTaskMetrics(factory)
	m.initRunMetrics(factory)
	m.initReconcileMetrics(factory)

	return m
}

func (m *Metrics) initTaskMetrics(factory promauto.Factory) {
	m.TasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "tasks_total",
			Help:      "Crawl tasks processed, by fetch mode and outcome",
		},
		[]string{"mode", "status"},
	)

	m.TasksInFlight = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "tasks_in_flight",
			Help:      "Crawl tasks currently being fetched or parsed",
		},
		[]string{"mode"},
	)
}

func (m *Metrics) initRunMetrics(factory promauto.Factory) {
	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "runs_total",
			Help:      "Employer crawl runs, by outcome",
		},
		[]string{"employer", "status"},
	)

	m.RunDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "run_duration_seconds",
			Help:      "Duration of one employer crawl run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		},
		[]string{"family"},
	)

	m.LastSuccess = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per employer",
		},
		[]string{"employer"},
	)
}

func (m *Metrics) initReconcileMetrics(factory promauto.Factory) {
	m.JobsReconciled = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "jobs_reconciled_total",
			Help:      "Catalog mutations, by operation",
		},
		[]string{"employer", "op"},
	)

	m.LocationUnresolved = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "locations_unresolved_total",
			Help:      "Raw location strings dropped because they did not resolve",
		},
		[]string{"employer"},
	)
}

// TaskStarted and TaskFinished make Metrics a crawl observer.
func (m *Metrics) TaskStarted(mode domain.FetchMode) {
	m.TasksInFlight.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) TaskFinished(mode domain.FetchMode, err error) {
	m.TasksInFlight.WithLabelValues(mode.String()).Dec()
	m.TasksTotal.WithLabelValues(mode.String(), taskStatus(err)).Inc()
}

func taskStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrParse):
		return "parse_error"
	default:
		return "fetch_error"
	}
}

// RunFinished records one run's outcome; status is ok, failed, skip_close
// or dry_run.
func (m *Metrics) RunFinished(employer, family, status string, d time.Duration) {
	m.RunsTotal.WithLabelValues(employer, status).Inc()
	m.RunDurationSeconds.WithLabelValues(family).Observe(d.Seconds())
	if status != "failed" {
		m.LastSuccess.WithLabelValues(employer).SetToCurrentTime()
	}
}

func (m *Metrics) Reconciled(employer string, created, updated, closed, unresolved int) {
	m.JobsReconciled.WithLabelValues(employer, "created").Add(float64(created))
	m.JobsReconciled.WithLabelValues(employer, "updated").Add(float64(updated))
	m.JobsReconciled.WithLabelValues(employer, "closed").Add(float64(closed))
	m.LocationUnresolved.WithLabelValues(employer).Add(float64(unresolved))
}
