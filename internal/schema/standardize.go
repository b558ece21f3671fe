package schema

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// LoadOverrides reads an alias override file. A missing path is not an
// error: the built-in tables serve on their own.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read alias overrides: %w", err)
	}
	var out Overrides
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse alias overrides: %w", err)
	}
	return &out, nil
}

// Standardizer converts a raw workbook into canonical sheet snapshots:
// sheet and field names resolved, types inferred, cells coerced.
type Standardizer struct {
	resolver   *Resolver
	inferencer *Inferencer
	now        func() time.Time
}

func NewStandardizer(resolver *Resolver, inferencer *Inferencer) *Standardizer {
	return &Standardizer{resolver: resolver, inferencer: inferencer, now: time.Now}
}

// Standardize processes every sheet of the workbook. Sheets that resolve to
// the same canonical type keep the first occurrence in workbook order; later
// ones surface in the parse report as unmapped duplicates. Empty sheets are
// dropped.
func (s *Standardizer) Standardize(wb *domain.RawWorkbook) (map[string]*domain.SheetSnapshot, domain.ParseReport, error) {
	if wb == nil || len(wb.Sheets) == 0 {
		return nil, domain.ParseReport{}, domain.WrapError(domain.ErrInvalidInput, "standardize workbook",
			fmt.Errorf("workbook has no sheets"))
	}

	report := domain.ParseReport{
		Filename:     wb.Filename,
		ParsedAt:     s.now().UTC(),
		TotalSheets:  len(wb.Sheets),
		SheetDetails: make(map[string]domain.SheetDetail),
	}
	sheets := make(map[string]*domain.SheetSnapshot)

	for _, raw := range wb.Sheets {
		if len(raw.Header) == 0 {
			report.UnmappedSheets = append(report.UnmappedSheets, raw.Name)
			continue
		}

		sheetType, canonicalName := s.resolver.ResolveSheet(raw.Name)
		if _, taken := sheets[canonicalName]; taken {
			report.UnmappedSheets = append(report.UnmappedSheets, raw.Name)
			continue
		}

		snapshot := s.standardizeSheet(sheetType, canonicalName, raw)
		sheets[canonicalName] = snapshot

		if sheetType != domain.SheetUnknown {
			report.IdentifiedSheets = append(report.IdentifiedSheets, canonicalName)
		} else {
			report.UnmappedSheets = append(report.UnmappedSheets, raw.Name)
		}
		report.SheetDetails[canonicalName] = domain.SheetDetail{
			Rows:    snapshot.RowCount(),
			Columns: len(snapshot.Columns),
			Fields:  fieldNames(snapshot.Columns),
		}
	}

	sort.Strings(report.IdentifiedSheets)
	return sheets, report, nil
}

// standardizeSheet resolves columns left to right. When two raw columns map
// to the same canonical field, the first in document order keeps the name and
// the collision is recorded; the later column's data is dropped.
func (s *Standardizer) standardizeSheet(sheetType domain.SheetType, canonicalName string, raw domain.RawSheet) *domain.SheetSnapshot {
	snapshot := &domain.SheetSnapshot{
		Type:         sheetType,
		Name:         canonicalName,
		OriginalName: raw.Name,
	}

	keptIdx := make([]int, 0, len(raw.Header))
	seen := make(map[string]struct{}, len(raw.Header))
	for i, original := range raw.Header {
		canonical := s.resolver.ResolveField(original)
		if canonical == "" {
			continue
		}
		if _, dup := seen[canonical]; dup {
			snapshot.IgnoredCollisions = append(snapshot.IgnoredCollisions, domain.FieldCollision{
				Original:  original,
				Canonical: canonical,
			})
			continue
		}
		seen[canonical] = struct{}{}
		keptIdx = append(keptIdx, i)
		snapshot.Columns = append(snapshot.Columns, domain.Column{Name: canonical, Original: original})
		if canonical != original {
			snapshot.Renames = append(snapshot.Renames, domain.FieldRename{Original: original, Canonical: canonical})
		}
	}

	columns := make([][]string, len(keptIdx))
	for c := range keptIdx {
		columns[c] = make([]string, 0, len(raw.Rows))
	}
	for _, row := range raw.Rows {
		if rowEmpty(row) {
			continue
		}
		for c, idx := range keptIdx {
			cell := ""
			if idx < len(row) {
				cell = row[idx]
			}
			columns[c] = append(columns[c], cell)
		}
	}

	typed := make([][]domain.Value, len(keptIdx))
	for c := range snapshot.Columns {
		colType := s.inferencer.Infer(snapshot.Columns[c].Name, columns[c])
		colType, values := s.inferencer.Coerce(colType, columns[c])
		snapshot.Columns[c].Type = colType
		typed[c] = values
	}

	rowCount := 0
	if len(typed) > 0 {
		rowCount = len(typed[0])
	}
	snapshot.Rows = make([][]domain.Value, rowCount)
	for r := 0; r < rowCount; r++ {
		row := make([]domain.Value, len(typed))
		for c := range typed {
			row[c] = typed[c][r]
		}
		snapshot.Rows[r] = row
	}
	return snapshot
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

func fieldNames(columns []domain.Column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Name
	}
	return out
}
