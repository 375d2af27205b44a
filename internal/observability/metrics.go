// Package observability holds the engine's Prometheus metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics emitted by the healing engine.
type Metrics struct {
	HealingAttemptsTotal  *prometheus.CounterVec
	HealingDuration       *prometheus.HistogramVec
	StrategyOutcomesTotal *prometheus.CounterVec
	StrategyConfidence    *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheSize        prometheus.Gauge

	FlakinessScore *prometheus.GaugeVec

	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration prometheus.Histogram
	LLMCircuitState    prometheus.Gauge

	RetriesTotal *prometheus.CounterVec
}

// NewMetrics registers and returns a new Metrics instance under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "selectorheal"
	}

	return &Metrics{
		HealingAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "healing_attempts_total",
				Help:      "Total number of heal() calls by outcome",
			},
			[]string{"outcome"}, // success, failure
		),
		HealingDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "healing_duration_seconds",
				Help:      "Duration of heal() calls in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		StrategyOutcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strategy_outcomes_total",
				Help:      "Total number of strategy executions by strategy and outcome",
			},
			[]string{"strategy", "outcome"}, // outcome: healed, no_signal, no_candidate, error
		),
		StrategyConfidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "strategy_confidence",
				Help:      "Confidence score of healed candidates by strategy",
				Buckets:   []float64{.1, .25, .4, .5, .6, .7, .8, .9, .95, 1},
			},
			[]string{"strategy"},
		),
		CacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of Healing Cache hits",
			},
		),
		CacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of Healing Cache misses",
			},
		),
		CacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_size",
				Help:      "Current number of entries in the Healing Cache",
			},
		),
		FlakinessScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "flakiness_score",
				Help:      "Healing frequency for a given original selector",
			},
			[]string{"selector"},
		),
		LLMRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of LLM backend requests by status",
			},
			[]string{"status"}, // ok, timeout, unavailable, malformed
		),
		LLMRequestDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "LLM backend request duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
			},
		),
		LLMCircuitState: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "llm_circuit_state",
				Help:      "LLM circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retry attempts by trigger",
			},
			[]string{"trigger"}, // timeout, flakiness
		),
	}
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHealing records the outcome and duration of one heal() call.
func (m *Metrics) RecordHealing(outcome string, duration time.Duration) {
	m.HealingAttemptsTotal.WithLabelValues(outcome).Inc()
	m.HealingDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStrategyOutcome records one strategy's execution outcome and,
// when it healed, the confidence it reported.
func (m *Metrics) RecordStrategyOutcome(strategy, outcome string, confidence float64) {
	m.StrategyOutcomesTotal.WithLabelValues(strategy, outcome).Inc()
	if outcome == "healed" {
		m.StrategyConfidence.WithLabelValues(strategy).Observe(confidence)
	}
}

// RecordCacheLookup records a Healing Cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// RecordLLMRequest records an LLM backend call's status and duration.
func (m *Metrics) RecordLLMRequest(status string, duration time.Duration) {
	m.LLMRequestsTotal.WithLabelValues(status).Inc()
	m.LLMRequestDuration.Observe(duration.Seconds())
}

// RecordRetry records a retry attempt triggered by timeout or flakiness.
func (m *Metrics) RecordRetry(trigger string) {
	m.RetriesTotal.WithLabelValues(trigger).Inc()
}

var globalMetrics *Metrics

// InitMetrics initializes and returns the process-wide Metrics instance.
func InitMetrics(namespace string) *Metrics {
	globalMetrics = NewMetrics(namespace)
	return globalMetrics
}

// GetMetrics returns the process-wide Metrics instance, initializing it
// with defaults if InitMetrics has not been called yet.
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		globalMetrics = NewMetrics("selectorheal")
	}
	return globalMetrics
}
