// Package feature derives model-ready feature tables from standardized
// sheets: daily demand series for forecasting and interaction matrices for
// recommendations.
package feature

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// Config controls series derivation. Zero values fall back to the
// operational defaults.
type Config struct {
	Lags    []int
	Windows []int
}

// Normalize fills the default lag and window sets. Training and serving
// share one normalized config so their feature layouts stay aligned.
func (c Config) Normalize() Config {
	out := c
	if len(out.Lags) == 0 {
		out.Lags = []int{1, 7, 14}
	}
	if len(out.Windows) == 0 {
		out.Windows = []int{7, 14}
	}
	return out
}

// Row is one (product, store, date) observation with its derived features.
// Feature values are NaN where the derivation has no data, most notably lag
// and rolling features before enough prior periods exist.
type Row struct {
	ProductID string
	StoreID   string
	Date      time.Time
	Target    float64
	Features  []float64
}

// Table is the forecasting design matrix. Names aligns with Row.Features.
type Table struct {
	Names       []string
	Rows        []Row
	DroppedRows int
}

// seriesKey identifies one demand series.
type seriesKey struct {
	product string
	store   string
}

// Builder derives the daily demand table. Rolling statistics cover strictly
// prior periods: the window ending at row i-1, never including row i.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg.Normalize()}
}

// BuildTimeSeries joins transaction items to their transactions, aggregates
// quantities by (product, store, date) and derives calendar, lag and rolling
// features. Optional sheets enrich the table when present.
func (b *Builder) BuildTimeSeries(sheets map[string]*domain.SheetSnapshot) (*Table, error) {
	items := sheets[string(domain.SheetTransactionItems)]
	transactions := sheets[string(domain.SheetTransaction)]
	if items == nil || transactions == nil {
		return nil, domain.WrapError(domain.ErrValidation, "build time series",
			fmt.Errorf("transaction and transaction_items sheets are required"))
	}

	txn, err := indexTransactions(transactions)
	if err != nil {
		return nil, err
	}

	daily := make(map[seriesKey]map[time.Time]float64)
	dropped := 0

	prodIdx := items.ColumnIndex("product_id")
	txnIdx := items.ColumnIndex("transaction_id")
	qtyIdx := items.ColumnIndex("quantity")
	if prodIdx < 0 || txnIdx < 0 || qtyIdx < 0 {
		return nil, domain.WrapError(domain.ErrValidation, "build time series",
			fmt.Errorf("transaction_items requires transaction_id, product_id and quantity"))
	}

	for r := 0; r < items.RowCount(); r++ {
		product := items.Rows[r][prodIdx]
		txnID := items.Rows[r][txnIdx]
		qty := items.Rows[r][qtyIdx]
		if product.Null || txnID.Null || qty.Null {
			dropped++
			continue
		}
		head, ok := txn[txnID.Str]
		if !ok || head.date.IsZero() {
			dropped++
			continue
		}
		key := seriesKey{product: product.Str, store: head.store}
		day := head.date.Truncate(24 * time.Hour)
		if daily[key] == nil {
			daily[key] = make(map[time.Time]float64)
		}
		daily[key][day] += qty.Num
	}

	enrich := newEnrichment(sheets)
	table := &Table{
		Names:       b.featureNames(enrich),
		DroppedRows: dropped,
	}

	keys := make([]seriesKey, 0, len(daily))
	for key := range daily {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].product != keys[j].product {
			return keys[i].product < keys[j].product
		}
		return keys[i].store < keys[j].store
	})

	for _, key := range keys {
		table.Rows = append(table.Rows, b.buildSeries(key, daily[key], enrich)...)
	}
	return table, nil
}

type txnHead struct {
	store string
	date  time.Time
}

func indexTransactions(sheet *domain.SheetSnapshot) (map[string]txnHead, error) {
	idIdx := sheet.ColumnIndex("transaction_id")
	dateIdx := sheet.ColumnIndex("transaction_date")
	if idIdx < 0 || dateIdx < 0 {
		return nil, domain.WrapError(domain.ErrValidation, "index transactions",
			fmt.Errorf("transaction sheet requires transaction_id and transaction_date"))
	}
	storeIdx := sheet.ColumnIndex("store_id")

	out := make(map[string]txnHead, sheet.RowCount())
	for r := 0; r < sheet.RowCount(); r++ {
		id := sheet.Rows[r][idIdx]
		date := sheet.Rows[r][dateIdx]
		if id.Null || date.Null {
			continue
		}
		head := txnHead{date: date.Time}
		if storeIdx >= 0 && !sheet.Rows[r][storeIdx].Null {
			head.store = sheet.Rows[r][storeIdx].Str
		}
		out[id.Str] = head
	}
	return out, nil
}

func (b *Builder) featureNames(enrich *enrichment) []string {
	names := []string{"day_of_week", "day_of_month", "month", "is_weekend"}
	for _, lag := range b.cfg.Lags {
		names = append(names, fmt.Sprintf("lag_%d", lag))
	}
	for _, w := range b.cfg.Windows {
		names = append(names, fmt.Sprintf("rolling_mean_%d", w), fmt.Sprintf("rolling_std_%d", w))
	}
	if enrich.holidays != nil {
		names = append(names, "is_holiday")
	}
	if enrich.promotions != nil {
		names = append(names, "on_promotion")
	}
	if enrich.weather != nil {
		names = append(names, "temperature", "precipitation")
	}
	if enrich.inventory != nil {
		names = append(names, "stock_quantity")
	}
	return names
}

// buildSeries sorts one series by date and derives row features. Lags and
// rolling windows index into the sorted observation sequence, so "7 periods
// back" means seven observed days back, not seven calendar days.
func (b *Builder) buildSeries(key seriesKey, days map[time.Time]float64, enrich *enrichment) []Row {
	dates := make([]time.Time, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	targets := make([]float64, len(dates))
	for i, d := range dates {
		targets[i] = days[d]
	}

	rows := make([]Row, 0, len(dates))
	for i, date := range dates {
		features := CalendarFeatures(date)
		for _, lag := range b.cfg.Lags {
			if i-lag >= 0 {
				features = append(features, targets[i-lag])
			} else {
				features = append(features, math.NaN())
			}
		}
		for _, w := range b.cfg.Windows {
			mean, std := priorWindow(targets, i, w)
			features = append(features, mean, std)
		}
		features = enrich.append(features, key, date)

		rows = append(rows, Row{
			ProductID: key.product,
			StoreID:   key.store,
			Date:      date,
			Target:    targets[i],
			Features:  features,
		})
	}
	return rows
}

// CalendarFeatures derives the date-only features shared between training
// and recursive prediction.
func CalendarFeatures(date time.Time) []float64 {
	isWeekend := 0.0
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		isWeekend = 1.0
	}
	return []float64{
		float64(date.Weekday()),
		float64(date.Day()),
		float64(date.Month()),
		isWeekend,
	}
}

// priorWindow computes mean and std over targets[i-w : i]. Both are NaN
// until w full prior periods exist, which keeps early rows from leaking the
// current value into their own window.
func priorWindow(targets []float64, i, w int) (float64, float64) {
	if i < w {
		return math.NaN(), math.NaN()
	}
	sum := 0.0
	for _, v := range targets[i-w : i] {
		sum += v
	}
	mean := sum / float64(w)
	variance := 0.0
	for _, v := range targets[i-w : i] {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(w))
}

// enrichment holds the optional context sheets.
type enrichment struct {
	holidays   map[time.Time]struct{}
	promotions []promoWindow
	weather    map[time.Time][2]float64
	inventory  map[seriesKey]float64
	invByStore bool
}

type promoWindow struct {
	product string
	start   time.Time
	end     time.Time
}

func newEnrichment(sheets map[string]*domain.SheetSnapshot) *enrichment {
	e := &enrichment{}
	if sheet := sheets[string(domain.SheetHoliday)]; sheet != nil {
		if idx := dateColumn(sheet); idx >= 0 {
			e.holidays = make(map[time.Time]struct{})
			for r := 0; r < sheet.RowCount(); r++ {
				if v := sheet.Rows[r][idx]; !v.Null {
					e.holidays[v.Time.Truncate(24*time.Hour)] = struct{}{}
				}
			}
		}
	}
	if sheet := sheets[string(domain.SheetPromotion)]; sheet != nil {
		startIdx := sheet.ColumnIndex("start_date")
		endIdx := sheet.ColumnIndex("end_date")
		prodIdx := sheet.ColumnIndex("product_id")
		if startIdx >= 0 && endIdx >= 0 {
			e.promotions = []promoWindow{}
			for r := 0; r < sheet.RowCount(); r++ {
				start := sheet.Rows[r][startIdx]
				end := sheet.Rows[r][endIdx]
				if start.Null || end.Null {
					continue
				}
				window := promoWindow{start: start.Time, end: end.Time}
				if prodIdx >= 0 && !sheet.Rows[r][prodIdx].Null {
					window.product = sheet.Rows[r][prodIdx].Str
				}
				e.promotions = append(e.promotions, window)
			}
		}
	}
	if sheet := sheets[string(domain.SheetInventory)]; sheet != nil {
		prodIdx := sheet.ColumnIndex("product_id")
		stockIdx := sheet.ColumnIndex("stock_quantity")
		storeIdx := sheet.ColumnIndex("store_id")
		if prodIdx >= 0 && stockIdx >= 0 {
			e.inventory = make(map[seriesKey]float64)
			e.invByStore = storeIdx >= 0
			for r := 0; r < sheet.RowCount(); r++ {
				product := sheet.Rows[r][prodIdx]
				stock := sheet.Rows[r][stockIdx]
				if product.Null || stock.Null {
					continue
				}
				key := seriesKey{product: product.Str}
				if e.invByStore && !sheet.Rows[r][storeIdx].Null {
					key.store = sheet.Rows[r][storeIdx].Str
				}
				// Last row wins: a snapshot sheet lists the newest level last.
				e.inventory[key] = stock.Num
			}
		}
	}
	if sheet := sheets[string(domain.SheetWeather)]; sheet != nil {
		dateIdx := dateColumn(sheet)
		tempIdx := sheet.ColumnIndex("temperature")
		precIdx := sheet.ColumnIndex("precipitation")
		if dateIdx >= 0 && (tempIdx >= 0 || precIdx >= 0) {
			e.weather = make(map[time.Time][2]float64)
			for r := 0; r < sheet.RowCount(); r++ {
				d := sheet.Rows[r][dateIdx]
				if d.Null {
					continue
				}
				obs := [2]float64{math.NaN(), math.NaN()}
				if tempIdx >= 0 && !sheet.Rows[r][tempIdx].Null {
					obs[0] = sheet.Rows[r][tempIdx].Num
				}
				if precIdx >= 0 && !sheet.Rows[r][precIdx].Null {
					obs[1] = sheet.Rows[r][precIdx].Num
				}
				e.weather[d.Time.Truncate(24*time.Hour)] = obs
			}
		}
	}
	return e
}

// dateColumn finds the temporal column a context sheet keys its rows by.
func dateColumn(sheet *domain.SheetSnapshot) int {
	for _, name := range []string{"transaction_date", "date", "day"} {
		if idx := sheet.ColumnIndex(name); idx >= 0 && sheet.Columns[idx].Type == domain.ColumnTemporal {
			return idx
		}
	}
	for idx, col := range sheet.Columns {
		if col.Type == domain.ColumnTemporal {
			return idx
		}
	}
	return -1
}

func (e *enrichment) append(features []float64, key seriesKey, date time.Time) []float64 {
	day := date.Truncate(24 * time.Hour)
	if e.holidays != nil {
		v := 0.0
		if _, ok := e.holidays[day]; ok {
			v = 1.0
		}
		features = append(features, v)
	}
	if e.promotions != nil {
		v := 0.0
		for _, w := range e.promotions {
			if w.product != "" && w.product != key.product {
				continue
			}
			if !day.Before(w.start) && !day.After(w.end) {
				v = 1.0
				break
			}
		}
		features = append(features, v)
	}
	if e.weather != nil {
		if obs, ok := e.weather[day]; ok {
			features = append(features, obs[0], obs[1])
		} else {
			features = append(features, math.NaN(), math.NaN())
		}
	}
	if e.inventory != nil {
		k := seriesKey{product: key.product}
		if e.invByStore {
			k.store = key.store
		}
		if v, ok := e.inventory[k]; ok {
			features = append(features, v)
		} else {
			features = append(features, math.NaN())
		}
	}
	return features
}
