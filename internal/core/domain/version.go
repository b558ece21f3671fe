package domain

import "time"

type SheetDetail struct {
	Rows    int      `json:"rows"`
	Columns int      `json:"columns"`
	Fields  []string `json:"fields"`
}

type ParseReport struct {
	Filename         string                 `json:"file_name"`
	ParsedAt         time.Time              `json:"parse_timestamp"`
	TotalSheets      int                    `json:"total_sheets"`
	IdentifiedSheets []string               `json:"identified_sheets"`
	UnmappedSheets   []string               `json:"unmapped_sheets,omitempty"`
	SheetDetails     map[string]SheetDetail `json:"sheet_details"`
}

// UploadVersion is one immutable upload snapshot plus its derived artifacts.
// Sheets, quality and validation never change after Commit; only the job and
// model slots transition, and only through the orchestrator.
type UploadVersion struct {
	ID         string
	Filename   string
	CreatedAt  time.Time
	Sheets     map[string]*SheetSnapshot
	Parse      ParseReport
	Quality    *QualityReport
	Validation *ValidationResult
	Jobs       map[ModelFamily]*TrainingJob

	ForecastModel       ForecastModel
	RecommendationModel RecommendationModel
}

// Sheet returns the standardized sheet for a canonical type, or nil.
func (v *UploadVersion) Sheet(t SheetType) *SheetSnapshot {
	return v.Sheets[string(t)]
}

func (v *UploadVersion) AvailableSheets() []string {
	names := make([]string, 0, len(v.Sheets))
	for name := range v.Sheets {
		names = append(names, name)
	}
	return names
}

type VersionSummary struct {
	ID        string    `json:"version"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"uploaded_at"`
	Current   bool      `json:"is_current"`
}

type UploadWarning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Impact  string `json:"impact"`
}

type UploadResult struct {
	Success    bool              `json:"success"`
	VersionID  string            `json:"version"`
	Metadata   UploadMetadata    `json:"metadata"`
	Warnings   []UploadWarning   `json:"warnings"`
	Parse      ParseReport       `json:"parse_report"`
	Quality    *QualityReport    `json:"quality_report"`
	Validation *ValidationResult `json:"validation_result"`
	Training   map[string]string `json:"auto_training"`
}

type UploadMetadata struct {
	Filename        string    `json:"filename"`
	Timestamp       time.Time `json:"timestamp"`
	AvailableSheets []string  `json:"available_sheets"`
}
