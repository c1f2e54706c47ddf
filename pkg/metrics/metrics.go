// Package metrics defines the Prometheus collectors used by the classifier
// services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the classifier services.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	PredictionsTotal     *prometheus.CounterVec
	PredictionLatency    *prometheus.HistogramVec
	CommandProbability   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	ModelsLoaded         *prometheus.GaugeVec
	ModelLoadsTotal      *prometheus.CounterVec
	StreamMessagesTotal  *prometheus.CounterVec
	RetriesTotal         *prometheus.CounterVec
	RateLimitedTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg means
// the global default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_predictions_total",
				Help: "Predictions by model and predicted label.",
			},
			[]string{"model", "label"},
		),
		PredictionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "classifier_prediction_latency_seconds",
				Help:    "Featurize-and-score latency in seconds.",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"model"},
		),
		CommandProbability: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classifier_command_probability",
				Help:    "Distribution of the command gate probability.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of prediction cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of prediction cache misses.",
			},
		),
		ModelsLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "classifier_models_loaded",
				Help: "Number of loaded models by kind.",
			},
			[]string{"kind"},
		),
		ModelLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_model_loads_total",
				Help: "Model load attempts by status.",
			},
			[]string{"status"},
		),
		StreamMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_stream_messages_total",
				Help: "Streamed utterances by outcome (classified, decode_error, error).",
			},
			[]string{"outcome"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_retries_total",
				Help: "Retried attempts by operation.",
			},
			[]string{"operation"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.PredictionsTotal,
		m.PredictionLatency,
		m.CommandProbability,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ModelsLoaded,
		m.ModelLoadsTotal,
		m.StreamMessagesTotal,
		m.RetriesTotal,
		m.RateLimitedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
