// Package metrics exposes Prometheus instrumentation for the risk engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records engine metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	scoringDuration   prometheus.Histogram
	scoreDistribution prometheus.Histogram
	decisionsTotal    *prometheus.CounterVec
	scoringErrors     *prometheus.CounterVec
	modelReady        prometheus.Gauge
	trainingDuration  prometheus.Gauge
}

// NewCollector creates a collector with all engine metrics registered.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		scoringDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_scoring_duration_seconds",
			Help:    "Time taken to score a transaction",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		scoreDistribution: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_anomaly_score_distribution",
			Help:    "Distribution of anomaly scores",
			Buckets: []float64{0.1, 0.2, 0.35, 0.5, 0.65, 0.8, 0.9, 1},
		}),
		decisionsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "risk_decisions_total",
			Help: "Gate decisions by outcome",
		}, []string{"outcome"}),
		scoringErrors: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "risk_scoring_errors_total",
			Help: "Scoring failures by kind",
		}, []string{"kind"}),
		modelReady: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "risk_model_ready",
			Help: "1 when a trained model is published",
		}),
		trainingDuration: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "risk_model_training_duration_seconds",
			Help: "Duration of the last training run",
		}),
	}
}

// RecordScore observes a completed scoring pass.
func (c *Collector) RecordScore(duration time.Duration, score float64) {
	c.scoringDuration.Observe(duration.Seconds())
	c.scoreDistribution.Observe(score)
}

// RecordDecision counts a gate outcome ("admitted", "flagged", "rejected").
func (c *Collector) RecordDecision(outcome string) {
	c.decisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordError counts a scoring failure by kind.
func (c *Collector) RecordError(kind string) {
	c.scoringErrors.WithLabelValues(kind).Inc()
}

// SetModelReady flips the readiness gauge.
func (c *Collector) SetModelReady(ready bool) {
	if ready {
		c.modelReady.Set(1)
		return
	}
	c.modelReady.Set(0)
}

// SetTrainingDuration records the last training run's duration.
func (c *Collector) SetTrainingDuration(d time.Duration) {
	c.trainingDuration.Set(d.Seconds())
}

// Handler serves the registry over HTTP.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
