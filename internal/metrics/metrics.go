// Package metrics records generation metrics for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourorg/shotdeck/pkg/types"
)

const namespace = "shotdeck"

// Recorder holds the collectors of one registry. A nil *Recorder records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	tasksInFlight prometheus.Gauge
	artifacts     prometheus.Counter
	tokensTotal   *prometheus.CounterVec
	costTotal     *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		tasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_total",
			Help:      "Generation tasks by result",
		}, []string{"mode", "result"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "task_duration_seconds",
			Help:      "Generation task duration in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"mode"}),
		tasksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_in_flight",
			Help:      "Generation calls currently in flight",
		}),
		artifacts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "artifacts_total",
			Help:      "Artifacts written",
		}),
		tokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "tokens_total",
			Help:      "Tokens consumed by stage and direction",
		}, []string{"stage", "direction"}),
		costTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "cost_usd_total",
			Help:      "Estimated cost in USD by stage",
		}, []string{"stage"}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by mode and status",
		}, []string{"mode", "status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// TaskStarted marks one call in flight and returns a func that records its
// completion.
func (r *Recorder) TaskStarted(mode string) func(result string, artifacts int) {
	if r == nil {
		return func(string, int) {}
	}
	start := time.Now()
	r.tasksInFlight.Inc()
	return func(result string, artifacts int) {
		r.tasksInFlight.Dec()
		r.tasksTotal.WithLabelValues(mode, result).Inc()
		r.taskDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
		r.artifacts.Add(float64(artifacts))
	}
}

// ObserveStage records the usage and cost of one pipeline stage.
func (r *Recorder) ObserveStage(s types.StageUsage) {
	if r == nil {
		return
	}
	r.tokensTotal.WithLabelValues(s.Stage, "input").Add(float64(s.Usage.PromptTokens))
	r.tokensTotal.WithLabelValues(s.Stage, "output").Add(float64(s.Usage.CompletionTokens))
	r.costTotal.WithLabelValues(s.Stage).Add(s.Cost.Total)
}

// ObserveRun counts a finished run.
func (r *Recorder) ObserveRun(mode, status string) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(mode, status).Inc()
}

// ObserveHTTP counts one served request.
func (r *Recorder) ObserveHTTP(method, route, status string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, status).Inc()
}
