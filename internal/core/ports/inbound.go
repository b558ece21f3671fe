package ports

import (
	"context"
	"io"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// UploadIngestor is the inbound contract for spreadsheet upload orchestration.
type UploadIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.UploadResult, error)
}

// TrainingOrchestrator is the inbound contract for asynchronous model training.
type TrainingOrchestrator interface {
	Schedule(ctx context.Context, versionID string, family domain.ModelFamily) (*domain.TrainingJob, error)
	Retrain(ctx context.Context, versionID string, family domain.ModelFamily) (*domain.TrainingJob, error)
	Status(ctx context.Context, versionID string) (map[domain.ModelFamily]*domain.TrainingJob, error)
}

// ForecastService is the inbound contract for demand forecasting queries.
type ForecastService interface {
	Forecast(ctx context.Context, versionID, productID, storeID string, horizon int, useBaseline bool) (*domain.ForecastResult, error)
	ForecastBatch(ctx context.Context, versionID string, pairs []domain.ForecastPair, horizon int) ([]domain.BatchForecastItem, error)
}

// RecommendService is the inbound contract for recommendation queries.
type RecommendService interface {
	Recommend(ctx context.Context, versionID, customerID string, topK int) (*domain.RecommendationResult, error)
	Popular(ctx context.Context, versionID string, topK int, storeID string) (*domain.RecommendationResult, error)
}

// VersionReader is the inbound read model for upload versions and their reports.
type VersionReader interface {
	ListVersions(ctx context.Context) ([]domain.VersionSummary, error)
	DataSummary(ctx context.Context, versionID string) (*domain.QualitySummary, map[string]domain.SheetDetail, error)
	QualityReport(ctx context.Context, versionID string) (*domain.QualityReport, error)
}
