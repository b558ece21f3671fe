package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/core/ports"
	"github.com/kirillkom/retail-analytics/internal/feature"
)

// TrainingOrchestrator owns every training job transition. A job moves
// pending -> running -> {completed, failed, skipped}; terminal jobs can be
// re-armed back to pending, anything else is a conflict.
type TrainingOrchestrator struct {
	store     ports.VersionStore
	publisher ports.ProgressPublisher
	builder   *feature.Builder
	forecasts ports.ForecastTrainer
	recs      ports.RecommendTrainer
	logger    *slog.Logger

	// mu serializes the check-and-arm step, so two concurrent schedules of
	// the same job cannot both pass the conflict check.
	mu  sync.Mutex
	now func() time.Time
	wg  sync.WaitGroup
}

func NewTrainingOrchestrator(
	store ports.VersionStore,
	publisher ports.ProgressPublisher,
	builder *feature.Builder,
	forecasts ports.ForecastTrainer,
	recs ports.RecommendTrainer,
	logger *slog.Logger,
) *TrainingOrchestrator {
	return &TrainingOrchestrator{
		store:     store,
		publisher: publisher,
		builder:   builder,
		forecasts: forecasts,
		recs:      recs,
		logger:    logger,
		now:       time.Now,
	}
}

// Schedule arms a training job for the version and starts it in the
// background. An active job for the same (version, family) is a conflict.
func (uc *TrainingOrchestrator) Schedule(ctx context.Context, versionID string, family domain.ModelFamily) (*domain.TrainingJob, error) {
	return uc.arm(ctx, versionID, family)
}

// Retrain re-arms a finished job. Semantics match Schedule: only a terminal
// or absent job can be armed.
func (uc *TrainingOrchestrator) Retrain(ctx context.Context, versionID string, family domain.ModelFamily) (*domain.TrainingJob, error) {
	return uc.arm(ctx, versionID, family)
}

func (uc *TrainingOrchestrator) arm(ctx context.Context, versionID string, family domain.ModelFamily) (*domain.TrainingJob, error) {
	if family != domain.FamilyForecast && family != domain.FamilyRecommend {
		return nil, domain.WrapError(domain.ErrInvalidInput, "schedule training",
			fmt.Errorf("unknown model family %q", family))
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	version, err := uc.resolveVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if existing := version.Jobs[family]; existing != nil && !existing.Status.Terminal() {
		return nil, domain.WrapError(domain.ErrConflict, "schedule training",
			fmt.Errorf("%s training for version %s is already %s", family, version.ID, existing.Status))
	}

	job := &domain.TrainingJob{
		Family:    family,
		VersionID: version.ID,
		Status:    domain.JobPending,
		Progress:  5,
		Stage:     "init",
		UpdatedAt: uc.now().UTC(),
	}

	// Blocking quality issues skip the job outright. The version stays
	// visible and queryable; only training is off the table.
	if version.Quality != nil && version.Quality.HasBlockingIssues() {
		job.Status = domain.JobSkipped
		job.Stage = "validation"
		job.Progress = 0
		job.Error = fmt.Sprintf("version %s has blocking quality issues", version.ID)
		job.FinishedAt = job.UpdatedAt
		if err := uc.store.SaveJob(ctx, version.ID, job); err != nil {
			return nil, fmt.Errorf("save training job: %w", err)
		}
		uc.publish(ctx, job)
		snapshot := *job
		return &snapshot, nil
	}

	if err := uc.store.SaveJob(ctx, version.ID, job); err != nil {
		return nil, fmt.Errorf("save training job: %w", err)
	}
	uc.publish(ctx, job)

	uc.wg.Add(1)
	go uc.run(version.ID, family)

	snapshot := *job
	return &snapshot, nil
}

// Status returns the job records of one version, keyed by family.
func (uc *TrainingOrchestrator) Status(ctx context.Context, versionID string) (map[domain.ModelFamily]*domain.TrainingJob, error) {
	version, err := uc.resolveVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return version.Jobs, nil
}

// Wait blocks until all in-flight jobs finish. Shutdown hook.
func (uc *TrainingOrchestrator) Wait() {
	uc.wg.Wait()
}

func (uc *TrainingOrchestrator) resolveVersion(ctx context.Context, versionID string) (*domain.UploadVersion, error) {
	if versionID == "" || versionID == "latest" {
		return uc.store.Current(ctx)
	}
	return uc.store.Get(ctx, versionID)
}

// run executes one armed job. It deliberately detaches from the request
// context: an upload response returning must not cancel training.
func (uc *TrainingOrchestrator) run(versionID string, family domain.ModelFamily) {
	defer uc.wg.Done()
	ctx := context.Background()
	started := uc.now().UTC()

	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("training panicked",
				slog.String("version", versionID),
				slog.String("model", string(family)),
				slog.Any("panic", r))
			uc.finish(ctx, versionID, family, domain.JobFailed, nil,
				fmt.Sprintf("panic: %v", r), string(debug.Stack()), started)
		}
	}()

	version, err := uc.store.Get(ctx, versionID)
	if err != nil {
		uc.finish(ctx, versionID, family, domain.JobFailed, nil, err.Error(), "", started)
		return
	}

	uc.transition(ctx, versionID, family, func(job *domain.TrainingJob) {
		job.Status = domain.JobRunning
		job.Stage = featureStage(family)
		job.Progress = featureStagePercent(family)
		job.StartedAt = started
	})

	var metrics map[string]float64
	var warnings []string
	switch family {
	case domain.FamilyForecast:
		metrics, warnings, err = uc.runForecast(ctx, version)
	case domain.FamilyRecommend:
		metrics, warnings, err = uc.runRecommend(ctx, version)
	}

	switch {
	case err == nil:
		uc.transition(ctx, versionID, family, func(job *domain.TrainingJob) {
			job.Status = domain.JobCompleted
			job.Stage = "complete"
			job.Progress = 100
			job.Metrics = metrics
			job.Warnings = warnings
			job.FinishedAt = uc.now().UTC()
		})
		uc.logger.Info("training completed",
			slog.String("version", versionID),
			slog.String("model", string(family)),
			slog.Duration("elapsed", uc.now().Sub(started)))
	case domain.IsKind(err, domain.ErrInsufficientData):
		uc.finishSkipped(ctx, versionID, family, err)
	default:
		uc.logger.Error("training failed",
			slog.String("version", versionID),
			slog.String("model", string(family)),
			slog.String("error", err.Error()))
		uc.finish(ctx, versionID, family, domain.JobFailed, nil, err.Error(), "", started)
	}
}

func (uc *TrainingOrchestrator) runForecast(ctx context.Context, version *domain.UploadVersion) (map[string]float64, []string, error) {
	table, err := uc.builder.BuildTimeSeries(version.Sheets)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	if table.DroppedRows > 0 {
		warnings = append(warnings, fmt.Sprintf("%d item rows dropped: missing keys or unknown transactions", table.DroppedRows))
	}

	uc.transition(ctx, version.ID, domain.FamilyForecast, func(job *domain.TrainingJob) {
		job.Stage = "feature_done"
		job.Progress = 40
	})

	model, err := uc.forecasts.TrainForecast(ctx, table, uc.progressFunc(ctx, version.ID, domain.FamilyForecast))
	if err != nil {
		return nil, nil, err
	}
	if err := uc.store.SaveForecastModel(ctx, version.ID, model); err != nil {
		return nil, nil, fmt.Errorf("save forecast model: %w", err)
	}
	return model.Metrics(), warnings, nil
}

func (uc *TrainingOrchestrator) runRecommend(ctx context.Context, version *domain.UploadVersion) (map[string]float64, []string, error) {
	interactions, err := feature.BuildInteractions(version.Sheets)
	if err != nil {
		return nil, nil, err
	}

	uc.transition(ctx, version.ID, domain.FamilyRecommend, func(job *domain.TrainingJob) {
		job.Stage = "product_features"
		job.Progress = 40
	})

	model, err := uc.recs.TrainRecommend(ctx, interactions, uc.progressFunc(ctx, version.ID, domain.FamilyRecommend))
	if err != nil {
		return nil, nil, err
	}
	if err := uc.store.SaveRecommendationModel(ctx, version.ID, model); err != nil {
		return nil, nil, fmt.Errorf("save recommendation model: %w", err)
	}

	info := model.MatrixInfo()
	metrics := map[string]float64{
		"n_users":        float64(info.Users),
		"n_items":        float64(info.Items),
		"n_interactions": float64(info.Interactions),
	}
	return metrics, nil, nil
}

func (uc *TrainingOrchestrator) progressFunc(ctx context.Context, versionID string, family domain.ModelFamily) func(string, int) {
	return func(stage string, percent int) {
		uc.transition(ctx, versionID, family, func(job *domain.TrainingJob) {
			job.Stage = stage
			job.Progress = percent
		})
	}
}

// transition applies one mutation to the stored job record and broadcasts
// the result. Publish failures are logged, never propagated: the job record
// stays the source of truth for polling clients.
func (uc *TrainingOrchestrator) transition(ctx context.Context, versionID string, family domain.ModelFamily, mutate func(*domain.TrainingJob)) {
	version, err := uc.store.Get(ctx, versionID)
	if err != nil {
		uc.logger.Error("load version for transition", slog.String("version", versionID), slog.String("error", err.Error()))
		return
	}
	job := version.Jobs[family]
	if job == nil {
		return
	}
	mutate(job)
	job.UpdatedAt = uc.now().UTC()
	if err := uc.store.SaveJob(ctx, versionID, job); err != nil {
		uc.logger.Error("save training job", slog.String("version", versionID), slog.String("error", err.Error()))
		return
	}
	uc.publish(ctx, job)
}

func (uc *TrainingOrchestrator) finish(ctx context.Context, versionID string, family domain.ModelFamily,
	status domain.JobStatus, metrics map[string]float64, errMessage, trace string, started time.Time) {
	uc.transition(ctx, versionID, family, func(job *domain.TrainingJob) {
		job.Status = status
		// Progress stays where the job died; 100 is reserved for completion.
		job.Metrics = metrics
		job.Error = errMessage
		job.ErrorTrace = trace
		if job.StartedAt.IsZero() {
			job.StartedAt = started
		}
		job.FinishedAt = uc.now().UTC()
	})
}

func (uc *TrainingOrchestrator) finishSkipped(ctx context.Context, versionID string, family domain.ModelFamily, cause error) {
	uc.logger.Warn("training skipped",
		slog.String("version", versionID),
		slog.String("model", string(family)),
		slog.String("reason", cause.Error()))
	uc.transition(ctx, versionID, family, func(job *domain.TrainingJob) {
		job.Status = domain.JobSkipped
		job.Stage = "complete"
		job.Progress = 100
		job.Error = cause.Error()
		job.FinishedAt = uc.now().UTC()
	})
}

func (uc *TrainingOrchestrator) publish(ctx context.Context, job *domain.TrainingJob) {
	if err := uc.publisher.PublishTrainingEvent(ctx, domain.EventFromJob(job)); err != nil {
		uc.logger.Warn("publish training event",
			slog.String("version", job.VersionID),
			slog.String("model", string(job.Family)),
			slog.String("error", err.Error()))
	}
}

// Stage names differ per family: the forecast pipeline engineers one
// time-series table, the recommender assembles an interaction matrix first.
func featureStage(family domain.ModelFamily) string {
	if family == domain.FamilyForecast {
		return "feature_engine"
	}
	return "interaction_matrix"
}

func featureStagePercent(family domain.ModelFamily) int {
	if family == domain.FamilyForecast {
		return 25
	}
	return 20
}
