package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpadapter "github.com/kirillkom/retail-analytics/internal/adapters/http"
	"github.com/kirillkom/retail-analytics/internal/config"
	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/core/ports"
	"github.com/kirillkom/retail-analytics/internal/core/usecase"
	"github.com/kirillkom/retail-analytics/internal/feature"
	"github.com/kirillkom/retail-analytics/internal/forecast"
	"github.com/kirillkom/retail-analytics/internal/infrastructure/queue/nats"
	"github.com/kirillkom/retail-analytics/internal/infrastructure/resilience"
	"github.com/kirillkom/retail-analytics/internal/infrastructure/spreadsheet/xlsx"
	"github.com/kirillkom/retail-analytics/internal/infrastructure/store/memory"
	"github.com/kirillkom/retail-analytics/internal/observability/metrics"
	"github.com/kirillkom/retail-analytics/internal/quality"
	"github.com/kirillkom/retail-analytics/internal/recommend"
	"github.com/kirillkom/retail-analytics/internal/schema"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Store    *memory.Store
	Queue    *nats.Queue
	Hub      *httpadapter.TrainingHub
	Training *usecase.TrainingOrchestrator
	Handler  http.Handler

	closeFn func()
}

func New(_ context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	overrides, err := schema.LoadOverrides(cfg.SheetAliasFile)
	if err != nil {
		return nil, fmt.Errorf("load sheet aliases: %w", err)
	}
	standardizer := schema.NewStandardizer(
		schema.NewResolver(overrides),
		schema.NewInferencer(schema.InferConfig{}),
	)
	assessor := quality.NewAssessor(quality.Config{
		MissingWarnRate:  cfg.MissingWarnRate,
		MissingBlockRate: cfg.MissingBlockRate,
	})
	builder := feature.NewBuilder(feature.Config{})
	store := memory.NewStore(cfg.VersionRetention)
	parser := xlsx.NewParser(cfg.MaxSheets)

	serverMetrics := metrics.NewHTTPServerMetrics("api")

	hub := httpadapter.NewTrainingHub(logger)
	hub.OnConnect = serverMetrics.WSClientConnected
	hub.OnDisconnect = serverMetrics.WSClientDisconnected
	publishers := []ports.ProgressPublisher{hub, jobOutcomePublisher{metrics: serverMetrics}}

	var queue *nats.Queue
	if cfg.NATSEnabled {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		publishers = append(publishers, queue)
	}

	forecastTrainer := &forecastTrainerAdapter{
		trainer: forecast.NewTrainer(forecast.Config{
			MinHistoryDays: cfg.MinHistoryDays,
			MaxHorizon:     cfg.ForecastHorizon,
			Boost: forecast.BoostConfig{
				Rounds:       cfg.BoostRounds,
				LearningRate: cfg.BoostLearningRate,
			},
		}),
	}
	recommendTrainer := &recommendTrainerAdapter{
		trainer: recommend.NewTrainer(recommend.Config{
			CFWeight:      cfg.CFWeight,
			ContentWeight: cfg.ContentWeight,
			TopNeighbors:  cfg.TopNeighbors,
			DefaultTopK:   cfg.RecommendTopK,
			MaxTopK:       cfg.RecommendMaxTopK,
		}),
	}

	training := usecase.NewTrainingOrchestrator(
		store,
		newFanout(publishers),
		builder,
		forecastTrainer,
		recommendTrainer,
		logger,
	)
	uploadUC := usecase.NewUploadWorkbookUseCase(parser, standardizer, assessor, store, training)
	forecastUC := usecase.NewForecastQueryUseCase(store)
	recommendUC := usecase.NewRecommendQueryUseCase(store)
	versionUC := usecase.NewVersionQueryUseCase(store)

	router := httpadapter.NewRouter(uploadUC, training, forecastUC, recommendUC, versionUC, hub, httpadapter.Options{
		RateLimitRPS:     cfg.APIRateLimitRPS,
		RateLimitBurst:   cfg.APIRateLimitBurst,
		MaxInFlight:      cfg.APIMaxInFlight,
		BackpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
		MaxUploadBytes:   int64(cfg.MaxUploadMB) << 20,
		Recorder:         apiRecorder{metrics: serverMetrics},
		Metrics: func(next http.Handler) http.Handler {
			return serverMetrics.Middleware("api", next)
		},
		MetricsEndpoint: serverMetrics.Handler(),
	})

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Queue:    queue,
		Hub:      hub,
		Training: training,
		Handler:  router.Handler(),

		closeFn: func() {
			hub.Close()
			if queue != nil {
				queue.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newFanout(publishers []ports.ProgressPublisher) ports.ProgressPublisher {
	if len(publishers) == 1 {
		return publishers[0]
	}
	return httpadapter.NewFanoutPublisher(publishers...)
}

// apiRecorder binds the shared metrics registry to the "api" service label
// so the HTTP layer stays ignorant of Prometheus.
type apiRecorder struct {
	metrics *metrics.HTTPServerMetrics
}

func (r apiRecorder) RecordUpload(success bool, identifiedSheets int, elapsed time.Duration) {
	r.metrics.RecordUpload("api", success, identifiedSheets, elapsed)
}

func (r apiRecorder) RecordQualityIssue(severity, category string) {
	r.metrics.RecordQualityIssue("api", severity, category)
}

func (r apiRecorder) RecordForecastRequest(method string) {
	r.metrics.RecordForecastRequest("api", method)
}

func (r apiRecorder) RecordRecommendRequest(method string) {
	r.metrics.RecordRecommendRequest("api", method)
}

// jobOutcomePublisher counts terminal job transitions. It rides the same
// fanout as the websocket hub and the queue, so it sees every event once.
type jobOutcomePublisher struct {
	metrics *metrics.HTTPServerMetrics
}

func (p jobOutcomePublisher) PublishTrainingEvent(_ context.Context, event domain.TrainingEvent) error {
	if event.Status.Terminal() {
		p.metrics.RecordTrainingJob("api", string(event.Model), string(event.Status))
	}
	return nil
}

// forecastTrainerAdapter translates the trainer's sentinel into the domain
// kind the orchestrator understands, so empty sales histories end as
// skipped jobs.
type forecastTrainerAdapter struct {
	trainer *forecast.Trainer
}

func (a *forecastTrainerAdapter) TrainForecast(ctx context.Context, table *feature.Table, progress func(stage string, percent int)) (domain.ForecastModel, error) {
	model, err := a.trainer.Train(ctx, table, progress)
	if err != nil {
		if domain.IsKind(err, forecast.ErrInsufficientHistory) {
			return nil, domain.WrapError(domain.ErrInsufficientData, "train forecast", err)
		}
		return nil, err
	}
	return model, nil
}

type recommendTrainerAdapter struct {
	trainer *recommend.Trainer
}

func (a *recommendTrainerAdapter) TrainRecommend(ctx context.Context, interactions *feature.Interactions, progress func(stage string, percent int)) (domain.RecommendationModel, error) {
	model, err := a.trainer.Train(ctx, interactions, progress)
	if err != nil {
		if domain.IsKind(err, recommend.ErrNoInteractions) {
			return nil, domain.WrapError(domain.ErrInsufficientData, "train recommendations", err)
		}
		return nil, err
	}
	return model, nil
}
