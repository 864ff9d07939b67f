package metrics

import (
	"net/http"
	"strconv"
	"time"

	"ghg-data-pipeline/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcome labels.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusInvalid = "invalid"
)

// Collector provides pipeline run metrics
type Collector struct {
	// Run Metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Row Metrics
	RowsInTotal      *prometheus.CounterVec
	RowsDroppedTotal *prometheus.CounterVec
	RowsFlaggedTotal *prometheus.CounterVec
	UnresolvedTotal  *prometheus.CounterVec

	// Validation Metrics
	ValidationFailuresTotal *prometheus.CounterVec

	// API Metrics
	APIRequestsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector registers the pipeline metrics on a fresh registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	return NewCollectorWith(namespace, reg, reg)
}

// NewCollectorWith registers on reg and serves from gatherer.
func NewCollectorWith(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by dataset kind and outcome",
			},
			[]string{"kind", "status"},
		),

		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "run_duration_seconds",
				Help:      "Pipeline run duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
			},
			[]string{"kind"},
		),

		RowsInTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "rows_in_total",
				Help:      "Total number of rows handed to the pipeline",
			},
			[]string{"kind"},
		),

		RowsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "rows_dropped_total",
				Help:      "Total number of rows excluded by error-severity checks",
			},
			[]string{"kind"},
		),

		RowsFlaggedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "rows_flagged_total",
				Help:      "Total number of rows kept but flagged by a failed check",
			},
			[]string{"kind"},
		),

		UnresolvedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "unresolved_rows_total",
				Help:      "Total number of rows an aggregation could not place in a group",
			},
			[]string{"kind"},
		),

		ValidationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "validation_failures_total",
				Help:      "Total number of failed validation checks by check and severity",
			},
			[]string{"check", "severity"},
		),

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		gatherer: gatherer,
	}
}

// RecordRun records one completed run. A nil report with an error counts as an invalid run.
func (c *Collector) RecordRun(kind model.DatasetKind, report *model.PipelineReport, duration time.Duration, err error) {
	k := string(kind)
	if k == "" {
		k = "unknown"
	}
	c.RunDuration.WithLabelValues(k).Observe(duration.Seconds())

	if err != nil || report == nil {
		c.RunsTotal.WithLabelValues(k, StatusInvalid).Inc()
		return
	}
	status := StatusPassed
	if !report.Passed {
		status = StatusFailed
	}
	c.RunsTotal.WithLabelValues(k, status).Inc()
	c.RowsInTotal.WithLabelValues(k).Add(float64(report.RowsIn))
	c.RowsDroppedTotal.WithLabelValues(k).Add(float64(report.RowsDropped))
	c.RowsFlaggedTotal.WithLabelValues(k).Add(float64(report.RowsFlagged))
	c.UnresolvedTotal.WithLabelValues(k).Add(float64(report.UnresolvedCount))

	for _, r := range report.Results {
		if !r.Passed {
			c.ValidationFailuresTotal.WithLabelValues(r.Check, string(r.Severity)).Inc()
		}
	}
}

// RecordRequest counts one API request.
func (c *Collector) RecordRequest(endpoint, method string, status int) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
