package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerMetrics carries the process registry plus the HTTP and retrieval
// instruments. One instance per process, registered once at bootstrap.
type ServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal         *prometheus.CounterVec
	retrievalDuration      *prometheus.HistogramVec
	retrievalCandidates    *prometheus.HistogramVec
	retrievalContextTokens *prometheus.HistogramVec
	retrievalWarningsTotal *prometheus.CounterVec
	judgeFallbacksTotal    *prometheus.CounterVec
}

func NewServerMetrics(service string) *ServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval requests by routed intent and outcome.",
		},
		[]string{"service", "intent", "status"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "intent"},
	)
	retrievalCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "returned_chunks",
			Help:      "Distribution of chunks returned per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "intent"},
	)
	retrievalContextTokens := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "context_tokens",
			Help:      "Distribution of assembled context size in tokens.",
			Buckets:   []float64{256, 512, 1024, 2048, 4096, 8192, 16384},
		},
		[]string{"service", "intent"},
	)
	retrievalWarningsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "warnings_total",
			Help:      "Total degraded-mode warnings surfaced to callers.",
		},
		[]string{"service"},
	)
	judgeFallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "judge_fallbacks_total",
			Help:      "Total chunks scored with the neutral fallback after a judge failure.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalDuration,
		retrievalCandidates,
		retrievalContextTokens,
		retrievalWarningsTotal,
		judgeFallbacksTotal,
	)

	return &ServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		retrievalTotal:         retrievalTotal,
		retrievalDuration:      retrievalDuration,
		retrievalCandidates:    retrievalCandidates,
		retrievalContextTokens: retrievalContextTokens,
		retrievalWarningsTotal: retrievalWarningsTotal,
		judgeFallbacksTotal:    judgeFallbacksTotal,
	}
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *ServerMetrics) RecordRetrieval(service, intent, status string, returnedChunks, contextTokens int, duration time.Duration) {
	if intent == "" {
		intent = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.retrievalTotal.WithLabelValues(service, intent, status).Inc()
	if status != "ok" {
		return
	}
	m.retrievalDuration.WithLabelValues(service, intent).Observe(duration.Seconds())
	m.retrievalCandidates.WithLabelValues(service, intent).Observe(float64(returnedChunks))
	m.retrievalContextTokens.WithLabelValues(service, intent).Observe(float64(contextTokens))
}

func (m *ServerMetrics) RecordWarnings(service string, count int) {
	if count <= 0 {
		return
	}
	m.retrievalWarningsTotal.WithLabelValues(service).Add(float64(count))
}

func (m *ServerMetrics) RecordJudgeFallbacks(service string, count int) {
	if count <= 0 {
		return
	}
	m.judgeFallbacksTotal.WithLabelValues(service).Add(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
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
