// Package metrics exposes pipeline counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records pipeline activity.
type Collector interface {
	RecordRun(status string)
	RecordStage(stage string, d time.Duration)
	RecordError(stage, kind string)
	RecordEdges(strategy string, n int)
	AddRecords(kind string, n int)
}

var (
	_ Collector = (*Prometheus)(nil)
	_ Collector = Noop{}
)

// Prometheus is a Collector backed by its own registry.
type Prometheus struct {
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	edgesTotal    *prometheus.CounterVec
	records       *prometheus.GaugeVec
	registry      *prometheus.Registry
}

// NewPrometheus creates the ansuz_* metrics on a fresh registry.
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ansuz_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ansuz_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ansuz_errors_total",
			Help: "Total number of stage errors and warnings by kind",
		},
		[]string{"stage", "kind"},
	)
	edgesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ansuz_edges_total",
			Help: "Total number of edges created by strategy",
		},
		[]string{"strategy"},
	)
	records := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ansuz_records",
			Help: "Records written by this process by kind",
		},
		[]string{"kind"},
	)

	registry.MustRegister(runsTotal, stageDuration, errorsTotal, edgesTotal, records)

	return &Prometheus{
		runsTotal:     runsTotal,
		stageDuration: stageDuration,
		errorsTotal:   errorsTotal,
		edgesTotal:    edgesTotal,
		records:       records,
		registry:      registry,
	}
}

func (p *Prometheus) RecordRun(status string) {
	p.runsTotal.WithLabelValues(status).Inc()
}

func (p *Prometheus) RecordStage(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *Prometheus) RecordError(stage, kind string) {
	p.errorsTotal.WithLabelValues(stage, kind).Inc()
}

func (p *Prometheus) RecordEdges(strategy string, n int) {
	if n > 0 {
		p.edgesTotal.WithLabelValues(strategy).Add(float64(n))
	}
}

func (p *Prometheus) AddRecords(kind string, n int) {
	p.records.WithLabelValues(kind).Add(float64(n))
}

// Registry returns the registry for HTTP exposure.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Noop discards everything. Used when metrics are disabled.
type Noop struct{}

func (Noop) RecordRun(string)                  {}
func (Noop) RecordStage(string, time.Duration) {}
func (Noop) RecordError(string, string)        {}
func (Noop) RecordEdges(string, int)           {}
func (Noop) AddRecords(string, int)            {}
