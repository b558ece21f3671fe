package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/feature"
)

// syntheticTable builds n days of one demand series with a weekly pattern.
func syntheticTable(n int, cfg feature.Config) *feature.Table {
	cfg = cfg.Normalize()
	start, _ := time.Parse("2006-01-02", "2024-01-01")

	targets := make([]float64, n)
	for i := range targets {
		targets[i] = 10 + 5*float64(i%7)
	}

	names := []string{"day_of_week", "day_of_month", "month", "is_weekend"}
	for _, lag := range cfg.Lags {
		names = append(names, "lag")
		_ = lag
	}
	for range cfg.Windows {
		names = append(names, "rolling_mean", "rolling_std")
	}

	table := &feature.Table{Names: names}
	for i := 0; i < n; i++ {
		date := start.AddDate(0, 0, i)
		features := feature.CalendarFeatures(date)
		for _, lag := range cfg.Lags {
			if i-lag >= 0 {
				features = append(features, targets[i-lag])
			} else {
				features = append(features, math.NaN())
			}
		}
		for _, w := range cfg.Windows {
			if i >= w {
				sum := 0.0
				for _, v := range targets[i-w : i] {
					sum += v
				}
				features = append(features, sum/float64(w), 0)
			} else {
				features = append(features, math.NaN(), math.NaN())
			}
		}
		table.Rows = append(table.Rows, feature.Row{
			ProductID: "P1",
			StoreID:   "S1",
			Date:      date,
			Target:    targets[i],
			Features:  features,
		})
	}
	return table
}

func trainTestModel(t *testing.T, days int) *Model {
	t.Helper()
	cfg := Config{MinHistoryDays: 30, Boost: BoostConfig{Rounds: 30}}
	model, err := NewTrainer(cfg).Train(context.Background(), syntheticTable(days, cfg.Features), nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	return model
}

func TestTrainShortHistoryKeepsBaselineOnly(t *testing.T) {
	cfg := Config{MinHistoryDays: 90}
	model, err := NewTrainer(cfg).Train(context.Background(), syntheticTable(30, cfg.Features), nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	result, err := model.Forecast("P1", "S1", 5, false)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if result.Method != "baseline_fallback" {
		t.Errorf("method = %s, want baseline_fallback", result.Method)
	}
	// 30 days ends mid-cycle; the trailing 7 targets still cover one full
	// weekly cycle 10..40, mean 25.
	for i, p := range result.Predictions {
		if math.Abs(p-25) > 1e-9 {
			t.Errorf("fallback[%d] = %v, want 25", i, p)
		}
	}

	explicit, err := model.Forecast("P1", "S1", 5, true)
	if err != nil {
		t.Fatalf("Forecast baseline: %v", err)
	}
	if explicit.Method != "moving_average" {
		t.Errorf("explicit baseline method = %s", explicit.Method)
	}

	metrics := model.Metrics()
	if metrics["history_days"] != 30 {
		t.Errorf("history_days = %v", metrics["history_days"])
	}
	if _, ok := metrics["mae"]; ok {
		t.Errorf("no holdout metrics expected without a boosted model: %v", metrics)
	}
}

func TestTrainEmptyTableIsInsufficient(t *testing.T) {
	_, err := NewTrainer(Config{}).Train(context.Background(), &feature.Table{}, nil)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestTrainReportsStagesAndMetrics(t *testing.T) {
	cfg := Config{MinHistoryDays: 30, Boost: BoostConfig{Rounds: 20}}
	var stages []string
	model, err := NewTrainer(cfg).Train(context.Background(), syntheticTable(120, cfg.Features),
		func(stage string, percent int) { stages = append(stages, stage) })
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	want := []string{"model_init", "model_train", "metrics"}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage[%d] = %q, want %q", i, stages[i], want[i])
		}
	}

	metrics := model.Metrics()
	for _, key := range []string{"mae", "rmse", "mape", "train_rows", "test_rows"} {
		if _, ok := metrics[key]; !ok {
			t.Errorf("metric %q missing: %v", key, metrics)
		}
	}
	// A weekly pattern with lag features is nearly learnable; the model
	// must beat a wild guess by a wide margin.
	if metrics["mae"] > 10 {
		t.Errorf("mae = %v, expected a fit better than the series amplitude", metrics["mae"])
	}
}

func TestForecastShapeAndDates(t *testing.T) {
	model := trainTestModel(t, 120)

	result, err := model.Forecast("P1", "S1", 7, false)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(result.Predictions) != 7 || len(result.Dates) != 7 {
		t.Fatalf("shape: %d predictions, %d dates", len(result.Predictions), len(result.Dates))
	}
	// History starts 2024-01-01 and spans 120 days; day one of the horizon
	// is the next calendar day.
	if result.Dates[0] != "2024-04-30" {
		t.Errorf("first forecast date = %s", result.Dates[0])
	}
	if result.Dates[6] != "2024-05-06" {
		t.Errorf("last forecast date = %s", result.Dates[6])
	}
	for i, p := range result.Predictions {
		if p < 0 {
			t.Errorf("prediction[%d] = %v, negatives must be clipped", i, p)
		}
	}
	if result.Method != "gradient_boosting" {
		t.Errorf("method = %s", result.Method)
	}

	sum := 0.0
	for _, p := range result.Predictions {
		sum += p
	}
	if math.Abs(result.TotalForecast-sum) > 1e-9 {
		t.Errorf("TotalForecast = %v, sum = %v", result.TotalForecast, sum)
	}
}

func TestForecastBaselineIsTrailingAverage(t *testing.T) {
	model := trainTestModel(t, 120)

	result, err := model.Forecast("P1", "S1", 5, true)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if result.Method != "moving_average" {
		t.Errorf("method = %s", result.Method)
	}
	// Last 7 targets cycle the full weekly pattern 10..40, mean 25.
	for i, p := range result.Predictions {
		if math.Abs(p-25) > 1e-9 {
			t.Errorf("baseline[%d] = %v, want 25", i, p)
		}
	}
}

func TestForecastUnknownSeriesIsNotFound(t *testing.T) {
	model := trainTestModel(t, 120)

	_, err := model.Forecast("P404", "S1", 7, false)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestForecastHorizonValidation(t *testing.T) {
	model := trainTestModel(t, 120)

	for _, horizon := range []int{0, -1, 91} {
		if _, err := model.Forecast("P1", "S1", horizon, false); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Errorf("horizon %d: expected invalid input, got %v", horizon, err)
		}
	}
}

func TestTrainHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{MinHistoryDays: 30}
	if _, err := NewTrainer(cfg).Train(ctx, syntheticTable(120, cfg.Features), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFitBoostedLearnsSimpleSplit(t *testing.T) {
	// y = 0 when x < 0.5, 100 otherwise; a single stump suffices.
	var x [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		v := float64(i) / 40
		x = append(x, []float64{v})
		target := 0.0
		if v >= 0.5 {
			target = 100
		}
		y = append(y, target)
	}

	model := fitBoosted(x, y, BoostConfig{Rounds: 50})
	if got := model.predict([]float64{0.1}); math.Abs(got) > 5 {
		t.Errorf("predict(0.1) = %v, want near 0", got)
	}
	if got := model.predict([]float64{0.9}); math.Abs(got-100) > 5 {
		t.Errorf("predict(0.9) = %v, want near 100", got)
	}
}
