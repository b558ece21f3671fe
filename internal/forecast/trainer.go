package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/feature"
)

// ErrInsufficientHistory marks uploads with no usable sales rows at all.
// The orchestrator turns it into a skipped job rather than a failed one.
// Short-but-nonempty histories still train: they get the baseline model,
// only the boosted variant is withheld.
var ErrInsufficientHistory = errors.New("insufficient sales history")

// Config controls training. Zero values fall back to the operational
// defaults.
type Config struct {
	MinHistoryDays int
	BaselineWindow int
	HoldoutRatio   float64
	MaxHorizon     int
	Boost          BoostConfig
	Features       feature.Config
}

func (c Config) normalize() Config {
	out := c
	if out.MinHistoryDays <= 0 {
		out.MinHistoryDays = 90
	}
	if out.BaselineWindow <= 0 {
		out.BaselineWindow = 7
	}
	if out.HoldoutRatio <= 0 || out.HoldoutRatio >= 1 {
		out.HoldoutRatio = 0.2
	}
	if out.MaxHorizon <= 0 {
		out.MaxHorizon = 90
	}
	out.Features = out.Features.Normalize()
	return out
}

// ProgressFunc receives training stage transitions.
type ProgressFunc func(stage string, percent int)

// series is the per-(product, store) demand history the model keeps for
// recursive prediction.
type series struct {
	dates   []time.Time
	targets []float64
}

// Model is the trained forecast artifact. It is immutable after training
// and safe for concurrent Forecast calls.
type Model struct {
	cfg     Config
	boosted *boostedModel
	names   []string
	series  map[seriesKey]*series
	metrics map[string]float64
}

type seriesKey struct {
	product string
	store   string
}

// Trainer fits a Model from the derived feature table.
type Trainer struct {
	cfg Config
}

func NewTrainer(cfg Config) *Trainer {
	return &Trainer{cfg: cfg.normalize()}
}

// Train always fits the moving-average baseline from the per-series history.
// The boosted model is fitted on a time-ordered holdout split only when the
// table spans at least MinHistoryDays distinct dates; below that the model
// serves baseline forecasts and carries no holdout metrics.
func (t *Trainer) Train(ctx context.Context, table *feature.Table, progress ProgressFunc) (*Model, error) {
	if progress == nil {
		progress = func(string, int) {}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: no sales rows after joining", ErrInsufficientHistory)
	}

	distinct := make(map[time.Time]struct{})
	for _, row := range table.Rows {
		distinct[row.Date] = struct{}{}
	}

	progress("model_init", 50)
	model := &Model{
		cfg:    t.cfg,
		names:  table.Names,
		series: buildSeries(table.Rows),
	}

	if len(distinct) < t.cfg.MinHistoryDays {
		progress("model_train", 85)
		progress("metrics", 95)
		model.metrics = map[string]float64{
			"history_days": float64(len(distinct)),
			"train_rows":   float64(len(table.Rows)),
		}
		return model, nil
	}

	rows := append([]feature.Row(nil), table.Rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	split := int(float64(len(rows)) * (1 - t.cfg.HoldoutRatio))
	if split < 1 {
		split = 1
	}
	trainX, trainY := denseMatrix(rows[:split])
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress("model_train", 85)
	model.boosted = fitBoosted(trainX, trainY, t.cfg.Boost)

	progress("metrics", 95)
	model.metrics = evaluate(model.boosted, rows[split:])
	model.metrics["history_days"] = float64(len(distinct))
	model.metrics["train_rows"] = float64(len(trainX))
	model.metrics["test_rows"] = float64(len(rows) - split)
	return model, nil
}

// denseMatrix fills missing features with 0, matching prediction-time
// behavior for early-history rows.
func denseMatrix(rows []feature.Row) ([][]float64, []float64) {
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, row := range rows {
		vec := make([]float64, len(row.Features))
		for j, v := range row.Features {
			if math.IsNaN(v) {
				vec[j] = 0
			} else {
				vec[j] = v
			}
		}
		x[i] = vec
		y[i] = row.Target
	}
	return x, y
}

func buildSeries(rows []feature.Row) map[seriesKey]*series {
	out := make(map[seriesKey]*series)
	for _, row := range rows {
		key := seriesKey{product: row.ProductID, store: row.StoreID}
		s := out[key]
		if s == nil {
			s = &series{}
			out[key] = s
		}
		s.dates = append(s.dates, row.Date)
		s.targets = append(s.targets, row.Target)
	}
	// Table rows arrive grouped per series in date order already; sorting
	// again keeps the invariant independent of the builder.
	for _, s := range out {
		idx := make([]int, len(s.dates))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return s.dates[idx[a]].Before(s.dates[idx[b]]) })
		dates := make([]time.Time, len(idx))
		targets := make([]float64, len(idx))
		for i, j := range idx {
			dates[i] = s.dates[j]
			targets[i] = s.targets[j]
		}
		s.dates, s.targets = dates, targets
	}
	return out
}

// evaluate computes MAE, RMSE and MAPE on the holdout rows. MAPE averages
// over positive actuals only.
func evaluate(model *boostedModel, rows []feature.Row) map[string]float64 {
	metrics := map[string]float64{"mae": 0, "rmse": 0, "mape": 0}
	if len(rows) == 0 {
		return metrics
	}
	x, y := denseMatrix(rows)

	absSum, sqSum, pctSum := 0.0, 0.0, 0.0
	pctN := 0
	for i := range x {
		pred := model.predict(x[i])
		d := pred - y[i]
		absSum += math.Abs(d)
		sqSum += d * d
		if y[i] > 0 {
			pctSum += math.Abs(d) / y[i]
			pctN++
		}
	}
	metrics["mae"] = absSum / float64(len(x))
	metrics["rmse"] = math.Sqrt(sqSum / float64(len(x)))
	if pctN > 0 {
		metrics["mape"] = pctSum / float64(pctN) * 100
	}
	return metrics
}

func (m *Model) Metrics() map[string]float64 {
	out := make(map[string]float64, len(m.metrics))
	for k, v := range m.metrics {
		out[k] = v
	}
	return out
}

// Forecast predicts daily demand for the horizon after the series' last
// observed date. Unknown (product, store) pairs are a not-found condition,
// never a zero forecast.
func (m *Model) Forecast(productID, storeID string, horizon int, useBaseline bool) (*domain.ForecastResult, error) {
	if horizon <= 0 || horizon > m.cfg.MaxHorizon {
		return nil, domain.WrapError(domain.ErrInvalidInput, "forecast",
			fmt.Errorf("horizon must be in [1, %d], got %d", m.cfg.MaxHorizon, horizon))
	}
	s, ok := m.series[seriesKey{product: productID, store: storeID}]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "forecast",
			fmt.Errorf("no sales history for product %q at store %q", productID, storeID))
	}

	var method string
	var predictions []float64
	switch {
	case useBaseline:
		method = "moving_average"
		predictions = m.baseline(s, horizon)
	case m.boosted == nil:
		method = "baseline_fallback"
		predictions = m.baseline(s, horizon)
	default:
		method = "gradient_boosting"
		predictions = m.recursive(s, horizon)
	}

	result := &domain.ForecastResult{
		ProductID:   productID,
		StoreID:     storeID,
		Horizon:     horizon,
		Method:      method,
		Predictions: predictions,
		Dates:       futureDates(s.lastDate(), horizon),
	}
	for _, p := range predictions {
		result.TotalForecast += p
	}
	result.AvgDailyForecast = result.TotalForecast / float64(horizon)
	return result, nil
}

func (s *series) lastDate() time.Time {
	return s.dates[len(s.dates)-1]
}

// baseline projects the trailing moving average of the last observations
// flat across the horizon.
func (m *Model) baseline(s *series, horizon int) []float64 {
	window := m.cfg.BaselineWindow
	if window > len(s.targets) {
		window = len(s.targets)
	}
	avg := mean(s.targets[len(s.targets)-window:])
	if avg < 0 {
		avg = 0
	}
	out := make([]float64, horizon)
	for i := range out {
		out[i] = avg
	}
	return out
}

// recursive rolls the boosted model forward one day at a time, feeding each
// prediction back into the lag and rolling features of the next step.
// Predictions are clipped at zero before re-entering the history.
func (m *Model) recursive(s *series, horizon int) []float64 {
	extended := append([]float64(nil), s.targets...)
	last := s.lastDate()

	out := make([]float64, 0, horizon)
	for h := 1; h <= horizon; h++ {
		date := last.AddDate(0, 0, h)
		features := m.stepFeatures(extended, date)
		pred := m.boosted.predict(features)
		if pred < 0 {
			pred = 0
		}
		out = append(out, pred)
		extended = append(extended, pred)
	}
	return out
}

// stepFeatures mirrors the training-time feature layout for one future
// date, with the extended history standing in for observed periods.
func (m *Model) stepFeatures(extended []float64, date time.Time) []float64 {
	features := feature.CalendarFeatures(date)
	n := len(extended)
	for _, lag := range m.cfg.Features.Lags {
		if n-lag >= 0 {
			features = append(features, extended[n-lag])
		} else {
			features = append(features, 0)
		}
	}
	for _, w := range m.cfg.Features.Windows {
		if n >= w {
			window := extended[n-w:]
			avg := mean(window)
			variance := 0.0
			for _, v := range window {
				d := v - avg
				variance += d * d
			}
			features = append(features, avg, math.Sqrt(variance/float64(w)))
		} else {
			features = append(features, 0, 0)
		}
	}
	// Context features (holiday, promotion, weather, inventory) are unknown
	// for future dates; zero matches the training-time fill for missing
	// values.
	for len(features) < len(m.names) {
		features = append(features, 0)
	}
	return features
}

func futureDates(last time.Time, horizon int) []string {
	out := make([]string, horizon)
	for i := 0; i < horizon; i++ {
		out[i] = last.AddDate(0, 0, i+1).Format("2006-01-02")
	}
	return out
}
