package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments the curation worker: sample scoring, curation
// runs and webhook deliveries.
type WorkerMetrics struct {
	registry *prometheus.Registry

	samplesScoredTotal  *prometheus.CounterVec
	sampleScoreDuration *prometheus.HistogramVec
	curationRunsTotal   *prometheus.CounterVec
	archivedTotal       *prometheus.CounterVec
	deliveriesTotal     *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	samplesScoredTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "quality",
			Name:      "samples_scored_total",
			Help:      "Total training samples scored by status.",
		},
		[]string{"service", "status"},
	)
	sampleScoreDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cascade",
			Subsystem: "quality",
			Name:      "sample_score_duration_seconds",
			Help:      "Quality scoring duration per sample in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	curationRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "curation",
			Name:      "runs_total",
			Help:      "Total curation pipeline runs by status.",
		},
		[]string{"service", "status"},
	)
	archivedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "curation",
			Name:      "archived_samples_total",
			Help:      "Total samples archived by the curation pipeline by reason.",
		},
		[]string{"service", "reason"},
	)
	deliveriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cascade",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Total webhook delivery attempts by outcome.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		samplesScoredTotal,
		sampleScoreDuration,
		curationRunsTotal,
		archivedTotal,
		deliveriesTotal,
	)

	return &WorkerMetrics{
		registry:            registry,
		samplesScoredTotal:  samplesScoredTotal,
		sampleScoreDuration: sampleScoreDuration,
		curationRunsTotal:   curationRunsTotal,
		archivedTotal:       archivedTotal,
		deliveriesTotal:     deliveriesTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) SampleScored(service string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.samplesScoredTotal.WithLabelValues(service, status).Inc()
	m.sampleScoreDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *WorkerMetrics) CurationRun(service string, archivedLowQuality, archivedExcess int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.curationRunsTotal.WithLabelValues(service, status).Inc()
	if archivedLowQuality > 0 {
		m.archivedTotal.WithLabelValues(service, "low_quality").Add(float64(archivedLowQuality))
	}
	if archivedExcess > 0 {
		m.archivedTotal.WithLabelValues(service, "excess").Add(float64(archivedExcess))
	}
}

func (m *WorkerMetrics) WebhookDelivery(service, status string) {
	if status == "" {
		status = "unknown"
	}
	m.deliveriesTotal.WithLabelValues(service, status).Inc()
}
