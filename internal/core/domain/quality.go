package domain

import "time"

type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type ValidationIssue struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
	Sheet    string   `json:"sheet,omitempty"`
	Field    string   `json:"field,omitempty"`
}

type NumericStats struct {
	Mean          float64 `json:"mean"`
	Median        float64 `json:"median"`
	Std           float64 `json:"std"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	NegativeCount int     `json:"negative_count"`
	ZeroCount     int     `json:"zero_count"`
}

type FieldQuality struct {
	Type          ColumnType     `json:"type"`
	TotalCount    int            `json:"total_count"`
	MissingCount  int            `json:"missing_count"`
	MissingRate   float64        `json:"missing_rate"`
	UniqueCount   int            `json:"unique_count"`
	UniqueRate    float64        `json:"unique_rate"`
	Stats         *NumericStats  `json:"statistics,omitempty"`
	TopValues     map[string]int `json:"top_values,omitempty"`
	OutlierCount  int            `json:"outlier_count"`
	OutlierRate   float64        `json:"outlier_rate"`
	ZOutlierCount int            `json:"z_outlier_count"`
	DuplicateKeys int            `json:"duplicate_keys"`
	DuplicateRate float64        `json:"duplicate_rate"`
	QualityLevel  string         `json:"quality_level"`
}

type DateRange struct {
	Min      time.Time `json:"min"`
	Max      time.Time `json:"max"`
	SpanDays int       `json:"span_days"`
}

type SheetQuality struct {
	RowCount         int                      `json:"row_count"`
	ColumnCount      int                      `json:"column_count"`
	Fields           map[string]*FieldQuality `json:"field_analysis"`
	DateRanges       map[string]DateRange     `json:"data_range,omitempty"`
	DuplicateRows    int                      `json:"duplicate_rows"`
	DuplicateRowRate float64                  `json:"duplicate_row_rate"`
}

type QualitySummary struct {
	TotalSheets     int      `json:"total_sheets"`
	TotalRows       int      `json:"total_rows"`
	TotalFields     int      `json:"total_fields"`
	SheetsAvailable []string `json:"sheets_available"`
}

// QualityReport is computed once per version, strictly after all sheets are
// standardized, and never mutated afterwards.
type QualityReport struct {
	GeneratedAt     time.Time                `json:"timestamp"`
	Summary         QualitySummary           `json:"overall_summary"`
	Sheets          map[string]*SheetQuality `json:"sheet_reports"`
	Issues          []ValidationIssue        `json:"issues"`
	Recommendations []string                 `json:"recommendations"`
}

// HasBlockingIssues reports whether any issue forbids model training.
func (r *QualityReport) HasBlockingIssues() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

type RelationshipCheck struct {
	Relationship string `json:"relationship"`
	Valid        bool   `json:"is_valid"`
	MissingCount int    `json:"missing_count"`
	Message      string `json:"message"`
}

type ValidationResult struct {
	Valid  bool                `json:"is_valid"`
	Checks []RelationshipCheck `json:"checks"`
}
