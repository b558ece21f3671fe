// Package xlsx reads uploaded Excel workbooks into their raw sheet form.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// Parser turns an .xlsx stream into a RawWorkbook. Cells arrive as the
// formatted strings excelize renders; typing happens downstream.
type Parser struct {
	maxSheets int
}

// NewParser creates a parser rejecting workbooks with more than maxSheets
// sheets. maxSheets <= 0 disables the cap.
func NewParser(maxSheets int) *Parser {
	return &Parser{maxSheets: maxSheets}
}

func (p *Parser) Parse(ctx context.Context, filename string, body io.Reader) (*domain.RawWorkbook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := excelize.OpenReader(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook",
			fmt.Errorf("%s is not a readable xlsx file: %w", filename, err))
	}
	defer file.Close()

	names := file.GetSheetList()
	if p.maxSheets > 0 && len(names) > p.maxSheets {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook",
			fmt.Errorf("%d sheets exceeds the limit of %d", len(names), p.maxSheets))
	}

	workbook := &domain.RawWorkbook{Filename: filename}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := file.GetRows(name)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read sheet",
				fmt.Errorf("sheet %q: %w", name, err))
		}
		workbook.Sheets = append(workbook.Sheets, buildSheet(name, rows))
	}
	return workbook, nil
}

// buildSheet takes the first non-empty row as the header and pads every data
// row to the header width; excelize truncates trailing empty cells.
func buildSheet(name string, rows [][]string) domain.RawSheet {
	sheet := domain.RawSheet{Name: name}

	start := 0
	for start < len(rows) && rowBlank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return sheet
	}

	header := rows[start]
	for _, cell := range header {
		sheet.Header = append(sheet.Header, strings.TrimSpace(cell))
	}

	for _, row := range rows[start+1:] {
		padded := make([]string, len(sheet.Header))
		for i := range padded {
			if i < len(row) {
				padded[i] = strings.TrimSpace(row[i])
			}
		}
		sheet.Rows = append(sheet.Rows, padded)
	}
	return sheet
}

func rowBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
