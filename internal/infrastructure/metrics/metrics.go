// Package metrics exports engine activity as Prometheus collectors. A
// Metrics value satisfies the Recorder interfaces of the command and query
// packages and records scheduled job runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "outcome_engine"

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	calculations       *prometheus.CounterVec
	calculationSeconds *prometheus.HistogramVec
	resultsWritten     *prometheus.CounterVec
	outcomesEvaluated  prometheus.Counter

	mappingChanges *prometheus.CounterVec

	queries      *prometheus.CounterVec
	querySeconds *prometheus.HistogramVec

	jobRuns         *prometheus.CounterVec
	jobSeconds      *prometheus.HistogramVec
	jobLastSuccess  *prometheus.GaugeVec
	jobCoursesTotal *prometheus.GaugeVec
}

// New creates and registers every collector. Process and Go runtime
// collectors are included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "course_calculations_total",
			Help:      "Course attainment calculations by source and outcome.",
		}, []string{"source", "status"}),
		calculationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "course_calculation_duration_seconds",
			Help:      "Duration of course attainment calculations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		resultsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievement_results_written_total",
			Help:      "Achievement results upserted, by source.",
		}, []string{"source"}),
		outcomesEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_evaluated_total",
			Help:      "Course outcomes evaluated across all calculations.",
		}),

		mappingChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mapping_changes_total",
			Help:      "Outcome mappings touched by applied suggestions, by action.",
		}, []string{"action"}),

		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Read operations by name and outcome.",
		}, []string{"query", "status"}),
		querySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of read operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),

		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		}, []string{"job", "status"}),
		jobSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"job"}),
		jobLastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of each job.",
		}, []string{"job"}),
		jobCoursesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recompute_courses",
			Help:      "Courses handled by the last recompute run, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.calculations,
		m.calculationSeconds,
		m.resultsWritten,
		m.outcomesEvaluated,
		m.mappingChanges,
		m.queries,
		m.querySeconds,
		m.jobRuns,
		m.jobSeconds,
		m.jobLastSuccess,
		m.jobCoursesTotal,
	)

	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDERS
// ══════════════════════════════════════════════════════════════════════════════

// ObserveCourseCalculation records one course calculation.
func (m *Metrics) ObserveCourseCalculation(source string, outcomes, results int, d time.Duration, err error) {
	m.calculations.WithLabelValues(source, status(err)).Inc()
	m.calculationSeconds.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		return
	}
	m.outcomesEvaluated.Add(float64(outcomes))
	m.resultsWritten.WithLabelValues(source).Add(float64(results))
}

// ObserveMappingApply records the outcome of applying mapping suggestions.
func (m *Metrics) ObserveMappingApply(created, updated, removed, skipped int) {
	m.mappingChanges.WithLabelValues("created").Add(float64(created))
	m.mappingChanges.WithLabelValues("updated").Add(float64(updated))
	m.mappingChanges.WithLabelValues("removed").Add(float64(removed))
	m.mappingChanges.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveQuery records one read operation.
func (m *Metrics) ObserveQuery(name string, d time.Duration, err error) {
	m.queries.WithLabelValues(name, status(err)).Inc()
	m.querySeconds.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveJobRun records one scheduled job run.
func (m *Metrics) ObserveJobRun(job string, finishedAt time.Time, d time.Duration, err error) {
	m.jobRuns.WithLabelValues(job, status(err)).Inc()
	m.jobSeconds.WithLabelValues(job).Observe(d.Seconds())
	if err == nil {
		m.jobLastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
	}
}

// ObserveRecompute records the course tallies of the last recompute run.
func (m *Metrics) ObserveRecompute(succeeded, failed, skipped int) {
	m.jobCoursesTotal.WithLabelValues("succeeded").Set(float64(succeeded))
	m.jobCoursesTotal.WithLabelValues("failed").Set(float64(failed))
	m.jobCoursesTotal.WithLabelValues("skipped").Set(float64(skipped))
}
