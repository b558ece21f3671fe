package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

type fakeIngestor struct {
	result *domain.UploadResult
	err    error

	gotFilename string
}

func (f *fakeIngestor) Upload(_ context.Context, filename string, body io.Reader) (*domain.UploadResult, error) {
	f.gotFilename = filename
	_, _ = io.Copy(io.Discard, body)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeOrchestrator struct {
	job *domain.TrainingJob
	err error

	gotVersion string
	gotFamily  domain.ModelFamily
}

func (f *fakeOrchestrator) Schedule(_ context.Context, versionID string, family domain.ModelFamily) (*domain.TrainingJob, error) {
	f.gotVersion = versionID
	f.gotFamily = family
	return f.job, f.err
}

func (f *fakeOrchestrator) Retrain(ctx context.Context, versionID string, family domain.ModelFamily) (*domain.TrainingJob, error) {
	return f.Schedule(ctx, versionID, family)
}

func (f *fakeOrchestrator) Status(_ context.Context, _ string) (map[domain.ModelFamily]*domain.TrainingJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[domain.ModelFamily]*domain.TrainingJob{domain.FamilyForecast: f.job}, nil
}

type fakeForecaster struct {
	result *domain.ForecastResult
	items  []domain.BatchForecastItem
	err    error

	gotHorizon  int
	gotBaseline bool
}

func (f *fakeForecaster) Forecast(_ context.Context, _, _, _ string, horizon int, useBaseline bool) (*domain.ForecastResult, error) {
	f.gotHorizon = horizon
	f.gotBaseline = useBaseline
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeForecaster) ForecastBatch(_ context.Context, _ string, pairs []domain.ForecastPair, horizon int) ([]domain.BatchForecastItem, error) {
	f.gotHorizon = horizon
	if f.err != nil {
		return nil, f.err
	}
	if f.items != nil {
		return f.items, nil
	}
	items := make([]domain.BatchForecastItem, 0, len(pairs))
	for _, pair := range pairs {
		items = append(items, domain.BatchForecastItem{ProductID: pair.ProductID, StoreID: pair.StoreID, Result: f.result})
	}
	return items, nil
}

type fakeRecommender struct {
	result *domain.RecommendationResult
	err    error

	gotTopK int
}

func (f *fakeRecommender) Recommend(_ context.Context, _, _ string, topK int) (*domain.RecommendationResult, error) {
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRecommender) Popular(_ context.Context, _ string, topK int, _ string) (*domain.RecommendationResult, error) {
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeVersionReader struct {
	summaries []domain.VersionSummary
	summary   *domain.QualitySummary
	sheets    map[string]domain.SheetDetail
	report    *domain.QualityReport
	err       error
}

func (f *fakeVersionReader) ListVersions(_ context.Context) ([]domain.VersionSummary, error) {
	return f.summaries, f.err
}

func (f *fakeVersionReader) DataSummary(_ context.Context, _ string) (*domain.QualitySummary, map[string]domain.SheetDetail, error) {
	return f.summary, f.sheets, f.err
}

func (f *fakeVersionReader) QualityReport(_ context.Context, _ string) (*domain.QualityReport, error) {
	return f.report, f.err
}

type routerFakes struct {
	uploads  *fakeIngestor
	training *fakeOrchestrator
	forecast *fakeForecaster
	recs     *fakeRecommender
	versions *fakeVersionReader
}

func newTestHandler(opts Options) (http.Handler, *routerFakes) {
	fakes := &routerFakes{
		uploads:  &fakeIngestor{result: &domain.UploadResult{Success: true, VersionID: "20240301_120000_abc12345"}},
		training: &fakeOrchestrator{job: &domain.TrainingJob{Family: domain.FamilyForecast, VersionID: "v1", Status: domain.JobPending, Progress: 5}},
		forecast: &fakeForecaster{result: &domain.ForecastResult{ProductID: "P1", Horizon: 7, Method: "ml", Predictions: []float64{1, 2, 3, 4, 5, 6, 7}}},
		recs:     &fakeRecommender{result: &domain.RecommendationResult{CustomerID: "C1", Method: "hybrid"}},
		versions: &fakeVersionReader{summaries: []domain.VersionSummary{{ID: "v1", Current: true}}},
	}
	router := NewRouter(fakes.uploads, fakes.training, fakes.forecast, fakes.recs, fakes.versions, nil, opts)
	return router.Handler(), fakes
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Error("expected request id header on every response")
	}
}

func TestUploadAcceptsMultipart(t *testing.T) {
	handler, fakes := newTestHandler(Options{})

	body, contentType := multipartUpload(t, "retail.xlsx", "workbook bytes")
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", res.Code, res.Body.String())
	}
	if fakes.uploads.gotFilename != "retail.xlsx" {
		t.Errorf("filename = %q", fakes.uploads.gotFilename)
	}

	var result domain.UploadResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success || result.VersionID == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	handler, _ := newTestHandler(Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", strings.NewReader("not multipart"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestUploadRejectsNonPost(t *testing.T) {
	handler, _ := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/uploads", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("not a workbook")), http.StatusBadRequest},
		{"not found", domain.WrapError(domain.ErrNotFound, "upload", errors.New("no version")), http.StatusNotFound},
		{"conflict", domain.WrapError(domain.ErrConflict, "upload", errors.New("active job")), http.StatusConflict},
		{"validation", domain.WrapError(domain.ErrValidation, "upload", errors.New("blocking issues")), http.StatusUnprocessableEntity},
		{"temporary", domain.WrapError(domain.ErrTemporary, "upload", errors.New("broker down")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, fakes := newTestHandler(Options{})
			fakes.uploads.err = tc.err

			body, contentType := multipartUpload(t, "retail.xlsx", "x")
			req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
			req.Header.Set("Content-Type", contentType)

			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.want {
				t.Fatalf("status = %d, want %d", res.Code, tc.want)
			}

			var resp map[string]string
			if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp["error"] == "" {
				t.Error("expected error message in body")
			}
		})
	}
}

func TestTrainSchedulesFamilyFromPath(t *testing.T) {
	handler, fakes := newTestHandler(Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/train/forecast", strings.NewReader(`{"version":"v7"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", res.Code, res.Body.String())
	}
	if fakes.training.gotFamily != domain.FamilyForecast || fakes.training.gotVersion != "v7" {
		t.Errorf("schedule call = (%s, %s)", fakes.training.gotFamily, fakes.training.gotVersion)
	}

	var job domain.TrainingJob
	if err := json.NewDecoder(res.Body).Decode(&job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Status != domain.JobPending {
		t.Errorf("job = %+v", job)
	}
}

func TestTrainRecommendWithEmptyBody(t *testing.T) {
	handler, fakes := newTestHandler(Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/train/recommend?version=latest", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", res.Code, res.Body.String())
	}
	if fakes.training.gotFamily != domain.FamilyRecommend || fakes.training.gotVersion != "latest" {
		t.Errorf("schedule call = (%s, %s)", fakes.training.gotFamily, fakes.training.gotVersion)
	}
}

func TestTrainConflictWhileJobActive(t *testing.T) {
	handler, fakes := newTestHandler(Options{})
	fakes.training.job = nil
	fakes.training.err = domain.WrapError(domain.ErrConflict, "training.schedule", fmt.Errorf("forecast job already running"))

	req := httptest.NewRequest(http.MethodPost, "/v1/train/forecast", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestTrainingStatus(t *testing.T) {
	handler, _ := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/training/status?version=v1", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}

	var jobs map[domain.ModelFamily]*domain.TrainingJob
	if err := json.NewDecoder(res.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if jobs[domain.FamilyForecast] == nil {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestForecastDefaultsHorizon(t *testing.T) {
	handler, fakes := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/forecast?product_id=P1&store_id=S1", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", res.Code, res.Body.String())
	}
	if fakes.forecast.gotHorizon != 7 {
		t.Errorf("horizon = %d", fakes.forecast.gotHorizon)
	}
	if fakes.forecast.gotBaseline {
		t.Error("baseline should default to false")
	}
}

func TestForecastParsesParams(t *testing.T) {
	handler, fakes := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/forecast?product_id=P1&horizon=30&use_baseline=true", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if fakes.forecast.gotHorizon != 30 || !fakes.forecast.gotBaseline {
		t.Errorf("horizon = %d baseline = %v", fakes.forecast.gotHorizon, fakes.forecast.gotBaseline)
	}
}

func TestForecastRejectsBadHorizon(t *testing.T) {
	handler, _ := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/forecast?product_id=P1&horizon=soon", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestForecastUnknownPairIs404(t *testing.T) {
	handler, fakes := newTestHandler(Options{})
	fakes.forecast.err = domain.WrapError(domain.ErrNotFound, "forecast", errors.New("no history for pair"))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/forecast?product_id=P9&store_id=S9", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestForecastBatch(t *testing.T) {
	handler, fakes := newTestHandler(Options{})

	body := `{"horizon":14,"pairs":[{"product_id":"P1","store_id":"S1"},{"product_id":"P2","store_id":"S1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/forecast/batch", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", res.Code, res.Body.String())
	}
	if fakes.forecast.gotHorizon != 14 {
		t.Errorf("horizon = %d", fakes.forecast.gotHorizon)
	}

	var resp struct {
		Results []domain.BatchForecastItem `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestForecastBatchRejectsInvalidJSON(t *testing.T) {
	handler, _ := newTestHandler(Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/forecast/batch", strings.NewReader("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestRecommendationsPassTopK(t *testing.T) {
	handler, fakes := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/recommendations?customer_id=C1&top_k=25", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if fakes.recs.gotTopK != 25 {
		t.Errorf("top_k = %d", fakes.recs.gotTopK)
	}
}

func TestRecommendationsRejectBadTopK(t *testing.T) {
	handler, _ := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/recommendations?customer_id=C1&top_k=many", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestPopularWithoutTopKUsesDefault(t *testing.T) {
	handler, fakes := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/recommendations/popular", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if fakes.recs.gotTopK != 0 {
		t.Errorf("top_k = %d, want 0 so the service applies its default", fakes.recs.gotTopK)
	}
}

func TestListVersions(t *testing.T) {
	handler, _ := newTestHandler(Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/versions", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}

	var resp struct {
		Versions []domain.VersionSummary `json:"versions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Versions) != 1 || !resp.Versions[0].Current {
		t.Errorf("versions = %+v", resp.Versions)
	}
}

func TestDataSummaryWithoutUploadIs404(t *testing.T) {
	handler, fakes := newTestHandler(Options{})
	fakes.versions.err = domain.WrapError(domain.ErrNotFound, "versions.summary", errors.New("no uploads yet"))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/data/summary", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d", res.Code)
	}
}
