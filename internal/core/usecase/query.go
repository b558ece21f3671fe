package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/core/ports"
)

// ForecastQueryUseCase serves forecast reads from trained version models.
type ForecastQueryUseCase struct {
	store ports.VersionStore
}

func NewForecastQueryUseCase(store ports.VersionStore) *ForecastQueryUseCase {
	return &ForecastQueryUseCase{store: store}
}

func (uc *ForecastQueryUseCase) Forecast(ctx context.Context, versionID, productID, storeID string, horizon int, useBaseline bool) (*domain.ForecastResult, error) {
	if productID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "forecast query",
			fmt.Errorf("product_id is required"))
	}
	model, err := uc.model(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return model.Forecast(productID, storeID, horizon, useBaseline)
}

// ForecastBatch serves many pairs in one call. Per-pair failures land in the
// item's error slot; the batch itself only fails when no model exists.
func (uc *ForecastQueryUseCase) ForecastBatch(ctx context.Context, versionID string, pairs []domain.ForecastPair, horizon int) ([]domain.BatchForecastItem, error) {
	if len(pairs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "batch forecast query",
			fmt.Errorf("at least one (product, store) pair is required"))
	}
	model, err := uc.model(ctx, versionID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.BatchForecastItem, 0, len(pairs))
	for _, pair := range pairs {
		item := domain.BatchForecastItem{ProductID: pair.ProductID, StoreID: pair.StoreID}
		result, err := model.Forecast(pair.ProductID, pair.StoreID, horizon, false)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Result = result
		}
		out = append(out, item)
	}
	return out, nil
}

func (uc *ForecastQueryUseCase) model(ctx context.Context, versionID string) (domain.ForecastModel, error) {
	version, err := resolveVersion(ctx, uc.store, versionID)
	if err != nil {
		return nil, err
	}
	if version.ForecastModel == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "forecast query",
			fmt.Errorf("no trained forecast model for version %s", version.ID))
	}
	return version.ForecastModel, nil
}

// RecommendQueryUseCase serves recommendation reads from trained version
// models.
type RecommendQueryUseCase struct {
	store ports.VersionStore
}

func NewRecommendQueryUseCase(store ports.VersionStore) *RecommendQueryUseCase {
	return &RecommendQueryUseCase{store: store}
}

func (uc *RecommendQueryUseCase) Recommend(ctx context.Context, versionID, customerID string, topK int) (*domain.RecommendationResult, error) {
	if customerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "recommendation query",
			fmt.Errorf("customer_id is required"))
	}
	model, err := uc.model(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return model.Recommend(customerID, topK)
}

func (uc *RecommendQueryUseCase) Popular(ctx context.Context, versionID string, topK int, storeID string) (*domain.RecommendationResult, error) {
	model, err := uc.model(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return model.Popular(topK, storeID)
}

func (uc *RecommendQueryUseCase) model(ctx context.Context, versionID string) (domain.RecommendationModel, error) {
	version, err := resolveVersion(ctx, uc.store, versionID)
	if err != nil {
		return nil, err
	}
	if version.RecommendationModel == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "recommendation query",
			fmt.Errorf("no trained recommendation model for version %s", version.ID))
	}
	return version.RecommendationModel, nil
}

// VersionQueryUseCase is the read model over committed upload versions.
type VersionQueryUseCase struct {
	store ports.VersionStore
}

func NewVersionQueryUseCase(store ports.VersionStore) *VersionQueryUseCase {
	return &VersionQueryUseCase{store: store}
}

func (uc *VersionQueryUseCase) ListVersions(ctx context.Context) ([]domain.VersionSummary, error) {
	return uc.store.List(ctx)
}

func (uc *VersionQueryUseCase) DataSummary(ctx context.Context, versionID string) (*domain.QualitySummary, map[string]domain.SheetDetail, error) {
	version, err := resolveVersion(ctx, uc.store, versionID)
	if err != nil {
		return nil, nil, err
	}
	summary := version.Quality.Summary
	return &summary, version.Parse.SheetDetails, nil
}

func (uc *VersionQueryUseCase) QualityReport(ctx context.Context, versionID string) (*domain.QualityReport, error) {
	version, err := resolveVersion(ctx, uc.store, versionID)
	if err != nil {
		return nil, err
	}
	return version.Quality, nil
}

func resolveVersion(ctx context.Context, store ports.VersionStore, versionID string) (*domain.UploadVersion, error) {
	if versionID == "" || versionID == "latest" {
		return store.Current(ctx)
	}
	return store.Get(ctx, versionID)
}
