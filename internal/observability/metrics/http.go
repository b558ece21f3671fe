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

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal       *prometheus.CounterVec
	uploadSheets       *prometheus.HistogramVec
	uploadDuration     *prometheus.HistogramVec
	qualityIssuesTotal *prometheus.CounterVec
	trainingJobsTotal  *prometheus.CounterVec
	forecastRequests   *prometheus.CounterVec
	recommendRequests  *prometheus.CounterVec
	wsClientsConnected prometheus.Gauge
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retail",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "retail",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total workbook uploads by outcome.",
		},
		[]string{"service", "status"},
	)
	uploadSheets := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retail",
			Subsystem: "ingest",
			Name:      "identified_sheets",
			Help:      "Distribution of canonical sheets identified per upload.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8},
		},
		[]string{"service"},
	)
	uploadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retail",
			Subsystem: "ingest",
			Name:      "upload_duration_seconds",
			Help:      "Upload pipeline duration in seconds, parse through commit.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	qualityIssuesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail",
			Subsystem: "quality",
			Name:      "issues_total",
			Help:      "Total quality issues recorded across uploads by severity.",
		},
		[]string{"service", "severity", "category"},
	)
	trainingJobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail",
			Subsystem: "training",
			Name:      "jobs_total",
			Help:      "Total finished training jobs by family and status.",
		},
		[]string{"service", "family", "status"},
	)
	forecastRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail",
			Subsystem: "forecast",
			Name:      "requests_total",
			Help:      "Total forecast queries by method.",
		},
		[]string{"service", "method"},
	)
	recommendRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retail",
			Subsystem: "recommend",
			Name:      "requests_total",
			Help:      "Total recommendation queries by method.",
		},
		[]string{"service", "method"},
	)
	wsClientsConnected := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "retail",
			Subsystem: "training",
			Name:      "ws_clients_connected",
			Help:      "Currently connected training progress websocket clients.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadsTotal,
		uploadSheets,
		uploadDuration,
		qualityIssuesTotal,
		trainingJobsTotal,
		forecastRequests,
		recommendRequests,
		wsClientsConnected,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		uploadsTotal:       uploadsTotal,
		uploadSheets:       uploadSheets,
		uploadDuration:     uploadDuration,
		qualityIssuesTotal: qualityIssuesTotal,
		trainingJobsTotal:  trainingJobsTotal,
		forecastRequests:   forecastRequests,
		recommendRequests:  recommendRequests,
		wsClientsConnected: wsClientsConnected,
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

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/train/"):
		return "/v1/train/{family}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordUpload(service string, success bool, identifiedSheets int, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.uploadsTotal.WithLabelValues(service, status).Inc()
	if success {
		m.uploadSheets.WithLabelValues(service).Observe(float64(identifiedSheets))
	}
	m.uploadDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordQualityIssue(service, severity, category string) {
	if severity == "" {
		severity = "unknown"
	}
	if category == "" {
		category = "unknown"
	}
	m.qualityIssuesTotal.WithLabelValues(service, severity, category).Inc()
}

func (m *HTTPServerMetrics) RecordTrainingJob(service, family, status string) {
	m.trainingJobsTotal.WithLabelValues(service, family, status).Inc()
}

func (m *HTTPServerMetrics) RecordForecastRequest(service, method string) {
	if method == "" {
		method = "unknown"
	}
	m.forecastRequests.WithLabelValues(service, method).Inc()
}

func (m *HTTPServerMetrics) RecordRecommendRequest(service, method string) {
	if method == "" {
		method = "unknown"
	}
	m.recommendRequests.WithLabelValues(service, method).Inc()
}

func (m *HTTPServerMetrics) WSClientConnected() {
	m.wsClientsConnected.Inc()
}

func (m *HTTPServerMetrics) WSClientDisconnected() {
	m.wsClientsConnected.Dec()
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
