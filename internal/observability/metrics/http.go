package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIMetrics instruments the HTTP surface and the retrieval pipeline behind
// it: request rates, retrieval outcomes, retrieved-passage distributions and
// tool usage during chat streams.
type APIMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalOutcomes  *prometheus.CounterVec
	retrievedPassages  *prometheus.HistogramVec
	retrievalDuration  *prometheus.HistogramVec
	noiseFilterSkipped *prometheus.CounterVec
	toolCallsTotal     *prometheus.CounterVec
	streamsTotal       *prometheus.CounterVec
}

func NewAPIMetrics(service string) *APIMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chantier",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chantier",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chantier",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chantier",
			Subsystem: "retrieval",
			Name:      "outcomes_total",
			Help:      "Retrieval pipeline outcomes (ok, no_results, out_of_scope).",
		},
		[]string{"service", "outcome"},
	)
	retrievedPassages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chantier",
			Subsystem: "retrieval",
			Name:      "passages",
			Help:      "Distribution of passages returned per successful retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chantier",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	noiseFilterSkipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chantier",
			Subsystem: "retrieval",
			Name:      "noise_filter_skipped_total",
			Help:      "Retrievals where boilerplate filtering was abandoned to keep results.",
		},
		[]string{"service"},
	)
	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chantier",
			Subsystem: "chat",
			Name:      "tool_calls_total",
			Help:      "Tool invocations during chat streams.",
		},
		[]string{"service", "tool"},
	)
	streamsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chantier",
			Subsystem: "chat",
			Name:      "streams_total",
			Help:      "Completed chat streams by terminal event.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalOutcomes,
		retrievedPassages,
		retrievalDuration,
		noiseFilterSkipped,
		toolCallsTotal,
		streamsTotal,
	)

	return &APIMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		retrievalOutcomes:  retrievalOutcomes,
		retrievedPassages:  retrievedPassages,
		retrievalDuration:  retrievalDuration,
		noiseFilterSkipped: noiseFilterSkipped,
		toolCallsTotal:     toolCallsTotal,
		streamsTotal:       streamsTotal,
	}
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *APIMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(service, r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	if strings.HasPrefix(path, "/v1/documents/") {
		return "/v1/documents/{document_id}"
	}
	return path
}

func (m *APIMetrics) RecordRetrieval(service, outcome string, passages int, skippedFilter bool, duration time.Duration) {
	m.retrievalOutcomes.WithLabelValues(service, outcome).Inc()
	m.retrievalDuration.WithLabelValues(service).Observe(duration.Seconds())
	if outcome == "ok" {
		m.retrievedPassages.WithLabelValues(service).Observe(float64(passages))
	}
	if skippedFilter {
		m.noiseFilterSkipped.WithLabelValues(service).Inc()
	}
}

func (m *APIMetrics) RecordToolCall(service, tool string) {
	if tool == "" {
		tool = "unknown"
	}
	m.toolCallsTotal.WithLabelValues(service, tool).Inc()
}

func (m *APIMetrics) RecordStream(service, result string) {
	if result == "" {
		result = "unknown"
	}
	m.streamsTotal.WithLabelValues(service, result).Inc()
}

// statusRecorder keeps streaming endpoints working through the middleware:
// SSE needs Flush, websocket-style upgrades need Hijack.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
