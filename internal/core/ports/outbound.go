package ports

import (
	"context"
	"io"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/feature"
)

// WorkbookParser reads an uploaded spreadsheet into its raw form.
type WorkbookParser interface {
	Parse(ctx context.Context, filename string, body io.Reader) (*domain.RawWorkbook, error)
}

// VersionStore keeps committed upload versions. Committed versions are
// immutable except for the training job and model slots; Get and Current
// return consistent snapshots, so callers never observe a half-applied
// transition.
type VersionStore interface {
	Commit(ctx context.Context, version *domain.UploadVersion) error
	Get(ctx context.Context, id string) (*domain.UploadVersion, error)
	Current(ctx context.Context) (*domain.UploadVersion, error)
	List(ctx context.Context) ([]domain.VersionSummary, error)
	SaveJob(ctx context.Context, versionID string, job *domain.TrainingJob) error
	SaveForecastModel(ctx context.Context, versionID string, model domain.ForecastModel) error
	SaveRecommendationModel(ctx context.Context, versionID string, model domain.RecommendationModel) error
}

// ProgressPublisher pushes training job transitions to subscribers. Publish
// must not block job execution on slow consumers.
type ProgressPublisher interface {
	PublishTrainingEvent(ctx context.Context, event domain.TrainingEvent) error
}

// ForecastTrainer fits the forecast model family for one version.
type ForecastTrainer interface {
	TrainForecast(ctx context.Context, table *feature.Table, progress func(stage string, percent int)) (domain.ForecastModel, error)
}

// RecommendTrainer fits the recommendation model family for one version.
type RecommendTrainer interface {
	TrainRecommend(ctx context.Context, interactions *feature.Interactions, progress func(stage string, percent int)) (domain.RecommendationModel, error)
}
