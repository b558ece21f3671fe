package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/infrastructure/store/memory"
)

func TestQueriesBeforeTrainingAreInvalidInput(t *testing.T) {
	store := memory.NewStore(0)
	ctx := context.Background()
	if err := store.Commit(ctx, trainableVersion("v1")); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// An untrained version is a bad request, not a conflict: conflict is
	// reserved for retraining an active job.
	if _, err := NewForecastQueryUseCase(store).Forecast(ctx, "v1", "P1", "S1", 7, false); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("forecast before training: %v", err)
	}
	if _, err := NewForecastQueryUseCase(store).ForecastBatch(ctx, "v1", []domain.ForecastPair{{ProductID: "P1"}}, 7); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("batch forecast before training: %v", err)
	}
	if _, err := NewRecommendQueryUseCase(store).Recommend(ctx, "v1", "C1", 5); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("recommend before training: %v", err)
	}
	if _, err := NewRecommendQueryUseCase(store).Popular(ctx, "v1", 5, ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("popular before training: %v", err)
	}
}
