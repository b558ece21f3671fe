package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TrainingMetrics backs the monitor process that tails the training event
// stream from the queue.
type TrainingMetrics struct {
	registry *prometheus.Registry

	eventsTotal *prometheus.CounterVec
	jobsTotal   *prometheus.CounterVec
	jobProgress *prometheus.GaugeVec
	eventLag    *prometheus.HistogramVec
}

func NewTrainingMetrics(service string) *TrainingMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail",
			Subsystem: "monitor",
			Name:      "training_events_total",
			Help:      "Total training events consumed by family and status.",
		},
		[]string{"service", "family", "status"},
	)
	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail",
			Subsystem: "monitor",
			Name:      "training_jobs_total",
			Help:      "Total training jobs reaching a terminal status.",
		},
		[]string{"service", "family", "status"},
	)
	jobProgress := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "retail",
			Subsystem: "monitor",
			Name:      "training_job_progress",
			Help:      "Latest reported progress percentage per family.",
		},
		[]string{"service", "family"},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retail",
			Subsystem: "monitor",
			Name:      "event_lag_seconds",
			Help:      "Delay between event emission and consumption.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service"},
	)
	registry.MustRegister(eventsTotal, jobsTotal, jobProgress, eventLag)

	return &TrainingMetrics{
		registry:    registry,
		eventsTotal: eventsTotal,
		jobsTotal:   jobsTotal,
		jobProgress: jobProgress,
		eventLag:    eventLag,
	}
}

func (m *TrainingMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *TrainingMetrics) RecordEvent(service, family, status string, terminal bool, progress int, emittedAt time.Time) {
	m.eventsTotal.WithLabelValues(service, family, status).Inc()
	m.jobProgress.WithLabelValues(service, family).Set(float64(progress))
	if terminal {
		m.jobsTotal.WithLabelValues(service, family, status).Inc()
	}
	if !emittedAt.IsZero() {
		if lag := time.Since(emittedAt); lag >= 0 {
			m.eventLag.WithLabelValues(service).Observe(lag.Seconds())
		}
	}
}
