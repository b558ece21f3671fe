// Package quality computes per-version data quality reports and validates
// the referential relationships the training pipelines depend on.
package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// Config carries the assessment thresholds. Zero values fall back to the
// operational defaults.
type Config struct {
	MissingWarnRate  float64
	MissingBlockRate float64
	IQRMultiplier    float64
	ZScoreLimit      float64
	TopValueLimit    int
}

func (c Config) normalize() Config {
	out := c
	if out.MissingWarnRate <= 0 {
		out.MissingWarnRate = 0.30
	}
	if out.MissingBlockRate <= 0 {
		out.MissingBlockRate = 0.60
	}
	if out.IQRMultiplier <= 0 {
		out.IQRMultiplier = 1.5
	}
	if out.ZScoreLimit <= 0 {
		out.ZScoreLimit = 3.0
	}
	if out.TopValueLimit <= 0 {
		out.TopValueLimit = 10
	}
	return out
}

// requiredFields lists the minimum shape training needs per sheet. A missing
// sheet or field here is a blocking issue.
var requiredFields = map[domain.SheetType][]string{
	domain.SheetTransaction:      {"transaction_id", "transaction_date"},
	domain.SheetTransactionItems: {"transaction_id", "product_id", "quantity"},
	domain.SheetProduct:          {"product_id"},
}

func isRequiredField(sheetName, field string) bool {
	for _, required := range requiredFields[domain.SheetType(sheetName)] {
		if required == field {
			return true
		}
	}
	return false
}

// Assessor computes a QualityReport over standardized sheets.
type Assessor struct {
	cfg Config
	now func() time.Time
}

func NewAssessor(cfg Config) *Assessor {
	return &Assessor{cfg: cfg.normalize(), now: time.Now}
}

// Assess analyzes every sheet and derives the issue list. The report is a
// snapshot: callers must not mutate it after attaching it to a version.
func (a *Assessor) Assess(sheets map[string]*domain.SheetSnapshot) *domain.QualityReport {
	report := &domain.QualityReport{
		GeneratedAt: a.now().UTC(),
		Sheets:      make(map[string]*domain.SheetQuality, len(sheets)),
	}

	names := make([]string, 0, len(sheets))
	for name := range sheets {
		names = append(names, name)
	}
	sort.Strings(names)

	totalRows, totalFields := 0, 0
	for _, name := range names {
		sheet := sheets[name]
		sq := a.assessSheet(sheet)
		report.Sheets[name] = sq
		totalRows += sq.RowCount
		totalFields += sq.ColumnCount

		a.collectFieldIssues(report, name, sq)
		if sq.DuplicateRowRate > 0.01 {
			report.Issues = append(report.Issues, domain.ValidationIssue{
				Severity: domain.SeverityWarning,
				Category: "duplicate_rows",
				Sheet:    name,
				Message:  fmt.Sprintf("%d duplicate rows (%.1f%%)", sq.DuplicateRows, sq.DuplicateRowRate*100),
			})
		}
	}

	report.Summary = domain.QualitySummary{
		TotalSheets:     len(sheets),
		TotalRows:       totalRows,
		TotalFields:     totalFields,
		SheetsAvailable: names,
	}

	a.collectRequiredIssues(report, sheets)
	report.Recommendations = buildRecommendations(report)
	return report
}

func (a *Assessor) assessSheet(sheet *domain.SheetSnapshot) *domain.SheetQuality {
	sq := &domain.SheetQuality{
		RowCount:    sheet.RowCount(),
		ColumnCount: len(sheet.Columns),
		Fields:      make(map[string]*domain.FieldQuality, len(sheet.Columns)),
	}

	for idx, col := range sheet.Columns {
		fq := a.assessField(sheet, idx, col)
		sq.Fields[col.Name] = fq

		if col.Type == domain.ColumnTemporal {
			if rng, ok := dateRange(sheet, idx); ok {
				if sq.DateRanges == nil {
					sq.DateRanges = make(map[string]domain.DateRange)
				}
				sq.DateRanges[col.Name] = rng
			}
		}
	}

	sq.DuplicateRows = duplicateRowCount(sheet)
	if sq.RowCount > 0 {
		sq.DuplicateRowRate = float64(sq.DuplicateRows) / float64(sq.RowCount)
	}
	return sq
}

func (a *Assessor) assessField(sheet *domain.SheetSnapshot, idx int, col domain.Column) *domain.FieldQuality {
	total := sheet.RowCount()
	fq := &domain.FieldQuality{Type: col.Type, TotalCount: total}

	distinct := make(map[string]int)
	var nums []float64
	for r := 0; r < total; r++ {
		v := sheet.Rows[r][idx]
		if v.Null {
			fq.MissingCount++
			continue
		}
		key := valueKey(col.Type, v)
		distinct[key]++
		if col.Type == domain.ColumnNumeric {
			nums = append(nums, v.Num)
		}
	}

	fq.UniqueCount = len(distinct)
	if total > 0 {
		fq.MissingRate = float64(fq.MissingCount) / float64(total)
		fq.UniqueRate = float64(fq.UniqueCount) / float64(total)
	}

	switch col.Type {
	case domain.ColumnNumeric:
		if len(nums) > 0 {
			fq.Stats = numericStats(nums)
			fq.OutlierCount = iqrOutliers(nums, a.cfg.IQRMultiplier)
			fq.ZOutlierCount = zScoreOutliers(nums, a.cfg.ZScoreLimit)
			fq.OutlierRate = float64(fq.OutlierCount) / float64(len(nums))
		}
	case domain.ColumnIdentifier:
		present := total - fq.MissingCount
		fq.DuplicateKeys = present - fq.UniqueCount
		if present > 0 {
			fq.DuplicateRate = float64(fq.DuplicateKeys) / float64(present)
		}
	case domain.ColumnCategorical:
		fq.TopValues = topValues(distinct, a.cfg.TopValueLimit)
	}

	fq.QualityLevel = a.qualityLevel(fq)
	return fq
}

func (a *Assessor) qualityLevel(fq *domain.FieldQuality) string {
	switch {
	case fq.MissingRate >= a.cfg.MissingBlockRate:
		return "poor"
	case fq.MissingRate >= a.cfg.MissingWarnRate || fq.OutlierRate > 0.10:
		return "fair"
	default:
		return "good"
	}
}

func (a *Assessor) collectFieldIssues(report *domain.QualityReport, sheetName string, sq *domain.SheetQuality) {
	fields := make([]string, 0, len(sq.Fields))
	for name := range sq.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	for _, field := range fields {
		fq := sq.Fields[field]
		switch {
		case fq.MissingRate >= a.cfg.MissingBlockRate:
			// Only a gutted required field blocks training; elsewhere even
			// extreme sparsity is a warning, the models cope with gaps.
			severity := domain.SeverityWarning
			if isRequiredField(sheetName, field) {
				severity = domain.SeverityBlocking
			}
			report.Issues = append(report.Issues, domain.ValidationIssue{
				Severity: severity,
				Category: "missing_data",
				Sheet:    sheetName,
				Field:    field,
				Message:  fmt.Sprintf("missing rate %.1f%% exceeds %.0f%% limit", fq.MissingRate*100, a.cfg.MissingBlockRate*100),
			})
		case fq.MissingRate >= a.cfg.MissingWarnRate:
			report.Issues = append(report.Issues, domain.ValidationIssue{
				Severity: domain.SeverityWarning,
				Category: "missing_data",
				Sheet:    sheetName,
				Field:    field,
				Message:  fmt.Sprintf("missing rate %.1f%%", fq.MissingRate*100),
			})
		}
		if fq.Type == domain.ColumnIdentifier && fq.DuplicateKeys > 0 {
			report.Issues = append(report.Issues, domain.ValidationIssue{
				Severity: domain.SeverityWarning,
				Category: "duplicate_keys",
				Sheet:    sheetName,
				Field:    field,
				Message:  fmt.Sprintf("%d duplicate identifier values", fq.DuplicateKeys),
			})
		}
		if fq.Stats != nil && fq.Stats.NegativeCount > 0 && nonNegativeField(field) {
			report.Issues = append(report.Issues, domain.ValidationIssue{
				Severity: domain.SeverityWarning,
				Category: "invalid_values",
				Sheet:    sheetName,
				Field:    field,
				Message:  fmt.Sprintf("%d negative values", fq.Stats.NegativeCount),
			})
		}
	}
}

func (a *Assessor) collectRequiredIssues(report *domain.QualityReport, sheets map[string]*domain.SheetSnapshot) {
	types := []domain.SheetType{domain.SheetTransaction, domain.SheetTransactionItems, domain.SheetProduct}
	for _, t := range types {
		sheet := sheets[string(t)]
		if sheet == nil {
			report.Issues = append(report.Issues, domain.ValidationIssue{
				Severity: domain.SeverityBlocking,
				Category: "missing_sheet",
				Sheet:    string(t),
				Message:  fmt.Sprintf("required sheet %q not found", t),
			})
			continue
		}
		for _, field := range requiredFields[t] {
			if !sheet.HasColumn(field) {
				report.Issues = append(report.Issues, domain.ValidationIssue{
					Severity: domain.SeverityBlocking,
					Category: "missing_field",
					Sheet:    string(t),
					Field:    field,
					Message:  fmt.Sprintf("required field %q not found in sheet %q", field, t),
				})
			}
		}
	}
}

func buildRecommendations(report *domain.QualityReport) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, issue := range report.Issues {
		switch issue.Category {
		case "missing_sheet", "missing_field":
			add("supply the required transaction, transaction_items and product sheets with their key fields before training")
		case "missing_data":
			add("fill or drop columns with high missing rates to improve model quality")
		case "duplicate_keys", "duplicate_rows":
			add("deduplicate source rows before export")
		case "invalid_values":
			add("review negative quantity and amount values in the source system")
		}
	}
	return out
}

func nonNegativeField(name string) bool {
	for _, token := range []string{"quantity", "price", "amount", "total", "stock"} {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}

func valueKey(t domain.ColumnType, v domain.Value) string {
	switch t {
	case domain.ColumnNumeric:
		return fmt.Sprintf("%g", v.Num)
	case domain.ColumnTemporal:
		return v.Time.Format("2006-01-02T15:04:05")
	default:
		return v.Str
	}
}

func numericStats(nums []float64) *domain.NumericStats {
	stats := &domain.NumericStats{Min: nums[0], Max: nums[0]}
	sum := 0.0
	for _, n := range nums {
		sum += n
		if n < stats.Min {
			stats.Min = n
		}
		if n > stats.Max {
			stats.Max = n
		}
		if n < 0 {
			stats.NegativeCount++
		}
		if n == 0 {
			stats.ZeroCount++
		}
	}
	stats.Mean = sum / float64(len(nums))

	variance := 0.0
	for _, n := range nums {
		d := n - stats.Mean
		variance += d * d
	}
	stats.Std = math.Sqrt(variance / float64(len(nums)))

	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	stats.Median = percentile(sorted, 0.5)
	return stats
}

// percentile uses linear interpolation over a pre-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func iqrOutliers(nums []float64, multiplier float64) int {
	if len(nums) < 4 {
		return 0
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - multiplier*iqr
	upper := q3 + multiplier*iqr

	count := 0
	for _, n := range nums {
		if n < lower || n > upper {
			count++
		}
	}
	return count
}

func zScoreOutliers(nums []float64, limit float64) int {
	if len(nums) < 2 {
		return 0
	}
	stats := numericStats(nums)
	if stats.Std == 0 {
		return 0
	}
	count := 0
	for _, n := range nums {
		if math.Abs(n-stats.Mean)/stats.Std > limit {
			count++
		}
	}
	return count
}

func topValues(distinct map[string]int, limit int) map[string]int {
	type kv struct {
		key   string
		count int
	}
	pairs := make([]kv, 0, len(distinct))
	for k, v := range distinct {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].key < pairs[j].key
	})
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	out := make(map[string]int, len(pairs))
	for _, p := range pairs {
		out[p.key] = p.count
	}
	return out
}

func dateRange(sheet *domain.SheetSnapshot, idx int) (domain.DateRange, bool) {
	var min, max time.Time
	found := false
	for r := 0; r < sheet.RowCount(); r++ {
		v := sheet.Rows[r][idx]
		if v.Null {
			continue
		}
		if !found || v.Time.Before(min) {
			min = v.Time
		}
		if !found || v.Time.After(max) {
			max = v.Time
		}
		found = true
	}
	if !found {
		return domain.DateRange{}, false
	}
	return domain.DateRange{
		Min:      min,
		Max:      max,
		SpanDays: int(max.Sub(min).Hours()/24) + 1,
	}, true
}

func duplicateRowCount(sheet *domain.SheetSnapshot) int {
	seen := make(map[string]struct{}, sheet.RowCount())
	dups := 0
	for r := 0; r < sheet.RowCount(); r++ {
		var b strings.Builder
		for c, v := range sheet.Rows[r] {
			if v.Null {
				b.WriteString("\x00")
			} else {
				b.WriteString(valueKey(sheet.Columns[c].Type, v))
			}
			b.WriteString("\x1f")
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}
