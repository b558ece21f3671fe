package xlsx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

func workbookBytes(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	first := true
	for name, rows := range sheets {
		if first {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("SetSheetName: %v", err)
			}
			first = false
		} else {
			if _, err := f.NewSheet(name); err != nil {
				t.Fatalf("NewSheet: %v", err)
			}
		}
		for r, row := range rows {
			for c, cell := range row {
				axis, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					t.Fatalf("CoordinatesToCellName: %v", err)
				}
				if err := f.SetCellValue(name, axis, cell); err != nil {
					t.Fatalf("SetCellValue: %v", err)
				}
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestParseReadsSheetsAndCells(t *testing.T) {
	data := workbookBytes(t, map[string][][]any{
		"Transactions": {
			{"Transaction ID", "Date", "Total Amount"},
			{"T001", "2024-03-01", 1200},
			{"T002", "2024-03-02", 880},
		},
	})

	wb, err := NewParser(0).Parse(context.Background(), "retail.xlsx", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if wb.Filename != "retail.xlsx" || len(wb.Sheets) != 1 {
		t.Fatalf("workbook = %+v", wb)
	}

	sheet := wb.Sheets[0]
	if sheet.Name != "Transactions" {
		t.Errorf("sheet name = %s", sheet.Name)
	}
	if len(sheet.Header) != 3 || sheet.Header[1] != "Date" {
		t.Errorf("header = %v", sheet.Header)
	}
	if len(sheet.Rows) != 2 || sheet.Rows[0][0] != "T001" || sheet.Rows[1][2] != "880" {
		t.Errorf("rows = %v", sheet.Rows)
	}
}

func TestParsePadsShortRows(t *testing.T) {
	data := workbookBytes(t, map[string][][]any{
		"Stores": {
			{"Store ID", "Region", "Opened"},
			{"S01"}, // trailing cells empty
		},
	})

	wb, err := NewParser(0).Parse(context.Background(), "stores.xlsx", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	row := wb.Sheets[0].Rows[0]
	if len(row) != 3 || row[0] != "S01" || row[1] != "" || row[2] != "" {
		t.Errorf("row = %v", row)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := NewParser(0).Parse(context.Background(), "bad.xlsx", strings.NewReader("this is not a zip archive"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestParseEnforcesSheetLimit(t *testing.T) {
	data := workbookBytes(t, map[string][][]any{
		"One": {{"a"}},
		"Two": {{"b"}},
	})

	_, err := NewParser(1).Parse(context.Background(), "big.xlsx", bytes.NewReader(data))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
