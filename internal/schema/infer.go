package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// dateLayouts covers the formats observed across real exports. Tried in
// order; the first layout that parses the whole sample wins.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"02-01-2006",
	"02.01.2006",
	time.RFC3339,
}

var temporalNameTokens = []string{"date", "time", "day", "timestamp"}

var numericNameTokens = []string{"quantity", "qty", "price", "amount", "total", "count", "points"}

// InferConfig carries the tuning thresholds for type inference. Zero values
// fall back to the operational defaults.
type InferConfig struct {
	SampleSize           int
	DateParseThreshold   float64
	NumericThreshold     float64
	CategoricalThreshold float64
}

func (c InferConfig) normalize() InferConfig {
	out := c
	if out.SampleSize <= 0 {
		out.SampleSize = 100
	}
	if out.DateParseThreshold <= 0 {
		out.DateParseThreshold = 0.8
	}
	if out.NumericThreshold <= 0 {
		out.NumericThreshold = 0.8
	}
	if out.CategoricalThreshold <= 0 {
		out.CategoricalThreshold = 0.05
	}
	return out
}

// Inferencer assigns a semantic type to each standardized column and coerces
// its raw string cells into typed values.
type Inferencer struct {
	cfg InferConfig
}

func NewInferencer(cfg InferConfig) *Inferencer {
	return &Inferencer{cfg: cfg.normalize()}
}

// Infer classifies one column by its canonical name and raw values.
// Name-based identifier and temporal checks run first; a temporal-looking
// name whose sampled values fail date parsing falls through to the numeric
// rule, which is what rescues numeric columns that merely contain "date".
func (inf *Inferencer) Infer(name string, values []string) domain.ColumnType {
	if isIdentifierName(name) {
		return domain.ColumnIdentifier
	}

	sample := sampleNonNull(values, inf.cfg.SampleSize)

	if hasToken(name, temporalNameTokens) && len(sample) > 0 {
		if _, rate := bestDateLayout(sample); rate >= inf.cfg.DateParseThreshold {
			return domain.ColumnTemporal
		}
	}

	if hasToken(name, numericNameTokens) && len(sample) > 0 && numericParseRate(sample) >= inf.cfg.NumericThreshold {
		return domain.ColumnNumeric
	}
	if len(sample) > 0 && numericParseRate(sample) >= inf.cfg.NumericThreshold {
		return domain.ColumnNumeric
	}

	if isLowCardinality(values, inf.cfg.CategoricalThreshold) {
		return domain.ColumnCategorical
	}
	return domain.ColumnText
}

// Coerce converts a full column of raw cells into typed values. If a column
// classified temporal fails date parsing across the full column but parses
// numeric, it is re-coerced to numeric and the corrected type is returned.
func (inf *Inferencer) Coerce(colType domain.ColumnType, values []string) (domain.ColumnType, []domain.Value) {
	if colType == domain.ColumnTemporal {
		layout, rate := bestDateLayout(nonNull(values))
		if rate < inf.cfg.DateParseThreshold {
			if numericParseRate(nonNull(values)) >= inf.cfg.NumericThreshold {
				return domain.ColumnNumeric, coerceNumeric(values)
			}
			return domain.ColumnText, coerceText(values)
		}
		return domain.ColumnTemporal, coerceTemporal(values, layout)
	}
	if colType == domain.ColumnNumeric {
		return domain.ColumnNumeric, coerceNumeric(values)
	}
	return colType, coerceText(values)
}

func isIdentifierName(name string) bool {
	return name == "id" || strings.HasSuffix(name, "_id")
}

func hasToken(name string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}

func sampleNonNull(values []string, limit int) []string {
	out := make([]string, 0, limit)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(v))
		if len(out) == limit {
			break
		}
	}
	return out
}

func nonNull(values []string) []string {
	return sampleNonNull(values, len(values))
}

// bestDateLayout returns the layout with the highest parse success rate over
// the sample, trying the known layouts in order.
func bestDateLayout(sample []string) (string, float64) {
	if len(sample) == 0 {
		return "", 0
	}
	bestLayout, bestRate := "", 0.0
	for _, layout := range dateLayouts {
		parsed := 0
		for _, v := range sample {
			if _, err := time.Parse(layout, v); err == nil {
				parsed++
			}
		}
		rate := float64(parsed) / float64(len(sample))
		if rate > bestRate {
			bestLayout, bestRate = layout, rate
		}
		if rate == 1.0 {
			break
		}
	}
	return bestLayout, bestRate
}

func parseNumeric(v string) (float64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func numericParseRate(sample []string) float64 {
	if len(sample) == 0 {
		return 0
	}
	parsed := 0
	for _, v := range sample {
		if _, ok := parseNumeric(v); ok {
			parsed++
		}
	}
	return float64(parsed) / float64(len(sample))
}

func isLowCardinality(values []string, threshold float64) bool {
	if len(values) == 0 {
		return false
	}
	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		distinct[strings.TrimSpace(v)] = struct{}{}
	}
	return float64(len(distinct))/float64(len(values)) < threshold
}

func coerceTemporal(values []string, layout string) []domain.Value {
	out := make([]domain.Value, len(values))
	for i, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			out[i] = domain.Value{Null: true}
			continue
		}
		t, err := time.Parse(layout, trimmed)
		if err != nil {
			t, err = parseAnyLayout(trimmed)
		}
		if err != nil {
			out[i] = domain.Value{Null: true}
			continue
		}
		out[i] = domain.Value{Time: t}
	}
	return out
}

func parseAnyLayout(v string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func coerceNumeric(values []string) []domain.Value {
	out := make([]domain.Value, len(values))
	for i, v := range values {
		n, ok := parseNumeric(v)
		if !ok {
			out[i] = domain.Value{Null: true}
			continue
		}
		out[i] = domain.Value{Num: n}
	}
	return out
}

func coerceText(values []string) []domain.Value {
	out := make([]domain.Value, len(values))
	for i, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			out[i] = domain.Value{Null: true}
			continue
		}
		out[i] = domain.Value{Str: trimmed}
	}
	return out
}
