package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/core/ports"
	"github.com/kirillkom/retail-analytics/internal/quality"
	"github.com/kirillkom/retail-analytics/internal/schema"
)

// UploadWorkbookUseCase runs the ingestion pipeline: parse, standardize,
// assess, validate, commit, then auto-schedule training on the new version.
type UploadWorkbookUseCase struct {
	parser       ports.WorkbookParser
	standardizer *schema.Standardizer
	assessor     *quality.Assessor
	store        ports.VersionStore
	training     ports.TrainingOrchestrator
	now          func() time.Time
}

func NewUploadWorkbookUseCase(
	parser ports.WorkbookParser,
	standardizer *schema.Standardizer,
	assessor *quality.Assessor,
	store ports.VersionStore,
	training ports.TrainingOrchestrator,
) *UploadWorkbookUseCase {
	return &UploadWorkbookUseCase{
		parser:       parser,
		standardizer: standardizer,
		assessor:     assessor,
		store:        store,
		training:     training,
		now:          time.Now,
	}
}

func (uc *UploadWorkbookUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.UploadResult, error) {
	if err := validateFilename(filename); err != nil {
		return nil, err
	}

	workbook, err := uc.parser.Parse(ctx, filename, body)
	if err != nil {
		return nil, fmt.Errorf("parse workbook: %w", err)
	}

	sheets, parseReport, err := uc.standardizer.Standardize(workbook)
	if err != nil {
		return nil, fmt.Errorf("standardize workbook: %w", err)
	}

	qualityReport := uc.assessor.Assess(sheets)
	validation := quality.Validate(sheets)

	now := uc.now().UTC()
	version := &domain.UploadVersion{
		ID:         newVersionID(now),
		Filename:   filename,
		CreatedAt:  now,
		Sheets:     sheets,
		Parse:      parseReport,
		Quality:    qualityReport,
		Validation: validation,
		Jobs:       make(map[domain.ModelFamily]*domain.TrainingJob),
	}
	if err := uc.store.Commit(ctx, version); err != nil {
		return nil, fmt.Errorf("commit version: %w", err)
	}

	result := &domain.UploadResult{
		Success:   true,
		VersionID: version.ID,
		Metadata: domain.UploadMetadata{
			Filename:        filename,
			Timestamp:       now,
			AvailableSheets: version.AvailableSheets(),
		},
		Warnings:   collectWarnings(parseReport, qualityReport, validation),
		Parse:      parseReport,
		Quality:    qualityReport,
		Validation: validation,
		Training:   uc.autoTrain(ctx, version.ID),
	}
	return result, nil
}

// autoTrain arms both model families on the fresh version. A version with
// blocking quality issues still gets job records, set to skipped, so the
// status endpoint tells the full story.
func (uc *UploadWorkbookUseCase) autoTrain(ctx context.Context, versionID string) map[string]string {
	out := make(map[string]string, 2)
	for _, family := range []domain.ModelFamily{domain.FamilyForecast, domain.FamilyRecommend} {
		job, err := uc.training.Schedule(ctx, versionID, family)
		if err != nil {
			out[string(family)] = fmt.Sprintf("failed to schedule: %v", err)
			continue
		}
		if job.Status == domain.JobSkipped {
			out[string(family)] = "skipped: blocking quality issues"
			continue
		}
		out[string(family)] = "scheduled"
	}
	return out
}

func validateFilename(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xlsx" && ext != ".xlsm" {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload",
			fmt.Errorf("unsupported file type %q, expected .xlsx", ext))
	}
	return nil
}

// newVersionID combines the upload timestamp with a short random suffix so
// two uploads within one second never collide.
func newVersionID(now time.Time) string {
	return fmt.Sprintf("%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
}

func collectWarnings(parse domain.ParseReport, report *domain.QualityReport, validation *domain.ValidationResult) []domain.UploadWarning {
	var out []domain.UploadWarning
	for _, name := range parse.UnmappedSheets {
		out = append(out, domain.UploadWarning{
			Type:    "unmapped_sheet",
			Message: fmt.Sprintf("sheet %q matched no known layout", name),
			Impact:  "kept under its normalized name, excluded from model training",
		})
	}
	for _, issue := range report.Issues {
		if issue.Severity != domain.SeverityWarning {
			continue
		}
		out = append(out, domain.UploadWarning{
			Type:    issue.Category,
			Message: issue.Message,
			Impact:  fmt.Sprintf("sheet %q field %q may degrade model quality", issue.Sheet, issue.Field),
		})
	}
	for _, check := range validation.Checks {
		if check.Valid {
			continue
		}
		out = append(out, domain.UploadWarning{
			Type:    "broken_relationship",
			Message: fmt.Sprintf("%s: %s", check.Relationship, check.Message),
			Impact:  "orphaned rows are excluded from derived features",
		})
	}
	return out
}
