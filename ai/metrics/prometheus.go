// Package metrics provides Prometheus metrics export for the companion engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports engine metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Chat metrics
	chatLatency  *prometheus.HistogramVec
	chatRequests *prometheus.CounterVec
	chatActive   prometheus.Gauge

	// Image generation metrics
	imageRequests *prometheus.CounterVec
	imageLatency  *prometheus.HistogramVec

	// Streaming metrics
	streamChunks  prometheus.Counter
	streamAborted prometheus.Counter

	// Memory metrics
	factsExtracted prometheus.Counter
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.chatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "engine",
			Name:      "chat_latency_seconds",
			Help:      "Chat turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model", "mode"},
	)

	e.chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "engine",
			Name:      "chat_requests_total",
			Help:      "Total number of chat turns",
		},
		[]string{"model", "mode", "status"},
	)

	e.chatActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "companion",
			Subsystem: "engine",
			Name:      "chat_active",
			Help:      "Number of chat turns currently in flight",
		},
	)

	e.imageRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "engine",
			Name:      "image_requests_total",
			Help:      "Total number of image generation requests",
		},
		[]string{"model", "status"},
	)

	e.imageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "engine",
			Name:      "image_latency_seconds",
			Help:      "Image generation latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model"},
	)

	e.streamChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "engine",
			Name:      "stream_chunks_total",
			Help:      "Total number of streamed response chunks delivered",
		},
	)

	e.streamAborted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "engine",
			Name:      "stream_aborted_total",
			Help:      "Total number of streams aborted before completion",
		},
	)

	e.factsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "memory",
			Name:      "facts_extracted_total",
			Help:      "Total number of facts extracted from conversation",
		},
	)

	registry.MustRegister(
		e.chatLatency,
		e.chatRequests,
		e.chatActive,
		e.imageRequests,
		e.imageLatency,
		e.streamChunks,
		e.streamAborted,
		e.factsExtracted,
	)

	return e
}

// RecordChatRequest records a completed chat turn.
func (e *PrometheusExporter) RecordChatRequest(model, mode string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.chatRequests.WithLabelValues(model, mode, status).Inc()
	e.chatLatency.WithLabelValues(model, mode).Observe(latency.Seconds())
}

// ChatStarted marks a turn in flight. The returned func marks it done.
func (e *PrometheusExporter) ChatStarted() func() {
	e.chatActive.Inc()
	return e.chatActive.Dec
}

// RecordImageRequest records an image generation attempt.
func (e *PrometheusExporter) RecordImageRequest(model string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.imageRequests.WithLabelValues(model, status).Inc()
	e.imageLatency.WithLabelValues(model).Observe(latency.Seconds())
}

// RecordStreamChunk counts one delivered stream chunk.
func (e *PrometheusExporter) RecordStreamChunk() {
	e.streamChunks.Inc()
}

// RecordStreamAborted counts a stream that ended before completion.
func (e *PrometheusExporter) RecordStreamAborted() {
	e.streamAborted.Inc()
}

// RecordFactsExtracted counts facts pulled out of a turn.
func (e *PrometheusExporter) RecordFactsExtracted(count int) {
	e.factsExtracted.Add(float64(count))
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
