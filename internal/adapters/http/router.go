package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/core/ports"
)

// Options tunes the traffic-control middleware. Zero values disable the
// corresponding gate.
type Options struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
	MaxUploadBytes   int64
	Recorder         DomainRecorder
	Metrics          func(http.Handler) http.Handler
	MetricsEndpoint  http.Handler
}

// DomainRecorder receives business-level observations from the handlers.
// A nil recorder disables them; the HTTP request metrics middleware is
// wired separately through Options.Metrics.
type DomainRecorder interface {
	RecordUpload(success bool, identifiedSheets int, elapsed time.Duration)
	RecordQualityIssue(severity, category string)
	RecordForecastRequest(method string)
	RecordRecommendRequest(method string)
}

type Router struct {
	uploads  ports.UploadIngestor
	training ports.TrainingOrchestrator
	forecast ports.ForecastService
	recs     ports.RecommendService
	versions ports.VersionReader
	hub      *TrainingHub
	opts     Options
}

func NewRouter(
	uploads ports.UploadIngestor,
	training ports.TrainingOrchestrator,
	forecast ports.ForecastService,
	recs ports.RecommendService,
	versions ports.VersionReader,
	hub *TrainingHub,
	opts Options,
) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	if opts.BackpressureWait <= 0 {
		opts.BackpressureWait = 100 * time.Millisecond
	}
	return &Router{
		uploads:  uploads,
		training: training,
		forecast: forecast,
		recs:     recs,
		versions: versions,
		hub:      hub,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/uploads", rt.upload)
	mux.HandleFunc("/v1/versions", rt.listVersions)
	mux.HandleFunc("/v1/data/summary", rt.dataSummary)
	mux.HandleFunc("/v1/data/quality", rt.dataQuality)
	mux.HandleFunc("/v1/train/", rt.train)
	mux.HandleFunc("/v1/training/status", rt.trainingStatus)
	mux.HandleFunc("/v1/forecast", rt.getForecast)
	mux.HandleFunc("/v1/forecast/batch", rt.batchForecast)
	mux.HandleFunc("/v1/recommendations", rt.recommendations)
	mux.HandleFunc("/v1/recommendations/popular", rt.popular)
	if rt.hub != nil {
		mux.Handle("/v1/training/ws", rt.hub)
	}
	if rt.opts.MetricsEndpoint != nil {
		mux.Handle("/metrics", rt.opts.MetricsEndpoint)
	}

	handler := http.Handler(mux)
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics(handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	start := time.Now()
	result, err := rt.uploads.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		if rt.opts.Recorder != nil {
			rt.opts.Recorder.RecordUpload(false, 0, time.Since(start))
		}
		writeError(w, err)
		return
	}
	if rt.opts.Recorder != nil {
		rt.opts.Recorder.RecordUpload(true, len(result.Parse.IdentifiedSheets), time.Since(start))
		if result.Quality != nil {
			for _, issue := range result.Quality.Issues {
				rt.opts.Recorder.RecordQualityIssue(string(issue.Severity), issue.Category)
			}
		}
	}
	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) listVersions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	versions, err := rt.versions.ListVersions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (rt *Router) dataSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	summary, details, err := rt.versions.DataSummary(r.Context(), r.URL.Query().Get("version"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"sheets":  details,
	})
}

func (rt *Router) dataQuality(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	report, err := rt.versions.QualityReport(r.Context(), r.URL.Query().Get("version"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// train arms /v1/train/forecast and /v1/train/recommend. Re-arming a
// finished job retrains; an active job is a conflict.
func (rt *Router) train(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	family := domain.ModelFamily(strings.TrimPrefix(r.URL.Path, "/v1/train/"))

	var req struct {
		Version string `json:"version"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	if req.Version == "" {
		req.Version = r.URL.Query().Get("version")
	}

	job, err := rt.training.Schedule(r.Context(), req.Version, family)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) trainingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	jobs, err := rt.training.Status(r.Context(), r.URL.Query().Get("version"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (rt *Router) getForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	q := r.URL.Query()

	horizon := 7
	if raw := q.Get("horizon"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "horizon must be an integer"})
			return
		}
		horizon = parsed
	}
	useBaseline := q.Get("use_baseline") == "true"

	result, err := rt.forecast.Forecast(r.Context(), q.Get("version"), q.Get("product_id"), q.Get("store_id"), horizon, useBaseline)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.opts.Recorder != nil {
		rt.opts.Recorder.RecordForecastRequest(result.Method)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) batchForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Version string                `json:"version"`
		Horizon int                   `json:"horizon"`
		Pairs   []domain.ForecastPair `json:"pairs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Horizon == 0 {
		req.Horizon = 7
	}

	items, err := rt.forecast.ForecastBatch(r.Context(), req.Version, req.Pairs, req.Horizon)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.opts.Recorder != nil {
		rt.opts.Recorder.RecordForecastRequest("batch")
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (rt *Router) recommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	q := r.URL.Query()

	topK, ok := parseTopK(w, q.Get("top_k"))
	if !ok {
		return
	}
	result, err := rt.recs.Recommend(r.Context(), q.Get("version"), q.Get("customer_id"), topK)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.opts.Recorder != nil {
		rt.opts.Recorder.RecordRecommendRequest(result.Method)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) popular(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	q := r.URL.Query()

	topK, ok := parseTopK(w, q.Get("top_k"))
	if !ok {
		return
	}
	result, err := rt.recs.Popular(r.Context(), q.Get("version"), topK, q.Get("store_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.opts.Recorder != nil {
		rt.opts.Recorder.RecordRecommendRequest(result.Method)
	}
	writeJSON(w, http.StatusOK, result)
}

func parseTopK(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	topK, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top_k must be an integer"})
		return 0, false
	}
	return topK, true
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
