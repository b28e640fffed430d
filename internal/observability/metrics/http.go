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

// HTTPServerMetrics instruments the API service: request handling plus
// classification outcomes by strategy and method.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	classificationsTotal   *prometheus.CounterVec
	classificationDuration *prometheus.HistogramVec
	escalationsTotal       *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cascade",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cascade",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	classificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "classify",
			Name:      "requests_total",
			Help:      "Total classification requests by strategy and final method.",
		},
		[]string{"service", "strategy", "method"},
	)
	classificationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cascade",
			Subsystem: "classify",
			Name:      "duration_seconds",
			Help:      "Classification duration in seconds by strategy.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	escalationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "hil",
			Name:      "escalations_total",
			Help:      "Total classifications escalated to human review.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		classificationsTotal,
		classificationDuration,
		escalationsTotal,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		classificationsTotal:   classificationsTotal,
		classificationDuration: classificationDuration,
		escalationsTotal:       escalationsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
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
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses id-bearing routes to keep label cardinality flat.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/categorizers/"):
		return "/v1/categorizers/{categorizer_id}"
	case strings.HasPrefix(path, "/v1/hil/review/"):
		return "/v1/hil/review/{review_id}"
	case strings.HasPrefix(path, "/v1/hil/stats/"):
		return "/v1/hil/stats/{categorizer_id}"
	case strings.HasPrefix(path, "/v1/webhooks/"):
		return "/v1/webhooks/{webhook_id}"
	case strings.HasPrefix(path, "/v1/curation/status/"):
		return "/v1/curation/status/{categorizer_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordClassification(service, strategy, method string, duration time.Duration) {
	if method == "" {
		method = "unknown"
	}
	m.classificationsTotal.WithLabelValues(service, strategy, method).Inc()
	m.classificationDuration.WithLabelValues(service, strategy).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordEscalation(service string) {
	m.escalationsTotal.WithLabelValues(service).Inc()
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
