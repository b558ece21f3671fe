package schema

import (
	"testing"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

func TestResolveSheetVariants(t *testing.T) {
	r := NewResolver(nil)

	cases := []struct {
		raw  string
		want domain.SheetType
	}{
		{"Transactions", domain.SheetTransaction},
		{"transaction items", domain.SheetTransactionItems},
		{"TRANSACTION_ITEMS", domain.SheetTransactionItems},
		{"Order-Items", domain.SheetTransactionItems},
		{"商品", domain.SheetProduct},
		{"顧客", domain.SheetCustomer},
		{"  Stores ", domain.SheetStore},
	}
	for _, tc := range cases {
		got, _ := r.ResolveSheet(tc.raw)
		if got != tc.want {
			t.Errorf("ResolveSheet(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestResolveSheetUnmappedPassesThroughNormalized(t *testing.T) {
	r := NewResolver(nil)

	got, name := r.ResolveSheet("Loyalty Tiers")
	if got != domain.SheetUnknown {
		t.Fatalf("expected unknown sheet type, got %s", got)
	}
	if name != "loyaltytiers" {
		t.Fatalf("expected normalized passthrough name, got %q", name)
	}
}

func TestResolveFieldVariantsCollapse(t *testing.T) {
	r := NewResolver(nil)

	variants := []string{"Product ID", "product_id", "PRODUCT-ID", "  product id  ", "prod_id"}
	for _, v := range variants {
		if got := r.ResolveField(v); got != "product_id" {
			t.Errorf("ResolveField(%q) = %q, want product_id", v, got)
		}
	}
}

func TestResolveFieldIdempotent(t *testing.T) {
	r := NewResolver(nil)

	first := r.ResolveField("Order Date")
	if first != "transaction_date" {
		t.Fatalf("ResolveField(Order Date) = %q", first)
	}
	if again := r.ResolveField(first); again != first {
		t.Fatalf("resolution not idempotent: %q -> %q", first, again)
	}
}

func TestResolverOverridesExtendTables(t *testing.T) {
	r := NewResolver(&Overrides{
		Sheets: map[string][]string{"transaction": {"sales ledger"}},
		Fields: map[string][]string{"product_id": {"sku"}},
	})

	if got, _ := r.ResolveSheet("Sales Ledger"); got != domain.SheetTransaction {
		t.Errorf("override sheet alias not applied, got %s", got)
	}
	if got := r.ResolveField("SKU"); got != "product_id" {
		t.Errorf("override field alias not applied, got %q", got)
	}
}

func TestInferIdentifierByName(t *testing.T) {
	inf := NewInferencer(InferConfig{})

	if got := inf.Infer("customer_id", []string{"C001", "C002"}); got != domain.ColumnIdentifier {
		t.Errorf("customer_id inferred as %s", got)
	}
	if got := inf.Infer("id", []string{"1", "2"}); got != domain.ColumnIdentifier {
		t.Errorf("id inferred as %s", got)
	}
}

func TestInferTemporalRequiresParsableValues(t *testing.T) {
	inf := NewInferencer(InferConfig{})

	if got := inf.Infer("transaction_date", []string{"2024-01-05", "2024-01-06", "2024-01-07"}); got != domain.ColumnTemporal {
		t.Errorf("date values inferred as %s", got)
	}

	// A column whose name mentions "date" but whose cells are plain numbers
	// must land on numeric, not temporal.
	if got := inf.Infer("days_since_last_update", []string{"3", "11", "42"}); got != domain.ColumnNumeric {
		t.Errorf("numeric day counts inferred as %s", got)
	}
}

func TestInferNumericAndCategorical(t *testing.T) {
	inf := NewInferencer(InferConfig{})

	if got := inf.Infer("quantity", []string{"1", "2", "3"}); got != domain.ColumnNumeric {
		t.Errorf("quantity inferred as %s", got)
	}
	if got := inf.Infer("retail_price", []string{"1,299.00", "450", "9800"}); got != domain.ColumnNumeric {
		t.Errorf("price with thousands separator inferred as %s", got)
	}

	values := make([]string, 100)
	for i := range values {
		if i%2 == 0 {
			values[i] = "male"
		} else {
			values[i] = "female"
		}
	}
	if got := inf.Infer("gender", values); got != domain.ColumnCategorical {
		t.Errorf("gender inferred as %s", got)
	}
}

func TestCoerceTemporalFallsBackToNumeric(t *testing.T) {
	inf := NewInferencer(InferConfig{})

	colType, values := inf.Coerce(domain.ColumnTemporal, []string{"7", "14", "21"})
	if colType != domain.ColumnNumeric {
		t.Fatalf("expected numeric re-coercion, got %s", colType)
	}
	if values[1].Num != 14 {
		t.Fatalf("expected 14, got %v", values[1].Num)
	}
}

func TestCoerceMarksUnparsableCellsNull(t *testing.T) {
	inf := NewInferencer(InferConfig{})

	_, values := inf.Coerce(domain.ColumnNumeric, []string{"10", "", "n/a", "30"})
	if !values[1].Null || !values[2].Null {
		t.Fatalf("empty and unparsable cells must be null: %+v", values)
	}
	if values[3].Num != 30 {
		t.Fatalf("expected 30, got %v", values[3].Num)
	}
}

func TestStandardizeCollisionFirstWins(t *testing.T) {
	s := NewStandardizer(NewResolver(nil), NewInferencer(InferConfig{}))

	wb := &domain.RawWorkbook{
		Filename: "retail.xlsx",
		Sheets: []domain.RawSheet{{
			Name:   "Transactions",
			Header: []string{"transaction_id", "Order Date", "date", "total_amount"},
			Rows: [][]string{
				{"T001", "2024-03-01", "2024-03-01", "1200"},
				{"T002", "2024-03-02", "2024-03-02", "880"},
			},
		}},
	}

	sheets, report, err := s.Standardize(wb)
	if err != nil {
		t.Fatalf("Standardize: %v", err)
	}
	sheet := sheets["transaction"]
	if sheet == nil {
		t.Fatalf("transaction sheet missing, report: %+v", report)
	}
	if len(sheet.Columns) != 3 {
		t.Fatalf("expected 3 kept columns, got %d", len(sheet.Columns))
	}
	if len(sheet.IgnoredCollisions) != 1 || sheet.IgnoredCollisions[0].Original != "date" {
		t.Fatalf("expected 'date' recorded as collision, got %+v", sheet.IgnoredCollisions)
	}
	// First occurrence keeps the canonical name and its data.
	idx := sheet.ColumnIndex("transaction_date")
	if idx < 0 {
		t.Fatalf("transaction_date column missing")
	}
	if sheet.Columns[idx].Original != "Order Date" {
		t.Fatalf("first-seen column must win, got original %q", sheet.Columns[idx].Original)
	}
}

func TestStandardizeReportAndUnknownSheets(t *testing.T) {
	s := NewStandardizer(NewResolver(nil), NewInferencer(InferConfig{}))

	wb := &domain.RawWorkbook{
		Filename: "retail.xlsx",
		Sheets: []domain.RawSheet{
			{
				Name:   "Products",
				Header: []string{"product_id", "Product Name", "Retail Price"},
				Rows:   [][]string{{"P01", "Green Tea", "450"}},
			},
			{
				Name:   "Loyalty Tiers",
				Header: []string{"tier", "threshold"},
				Rows:   [][]string{{"gold", "10000"}},
			},
		},
	}

	sheets, report, err := s.Standardize(wb)
	if err != nil {
		t.Fatalf("Standardize: %v", err)
	}
	if report.TotalSheets != 2 {
		t.Errorf("TotalSheets = %d", report.TotalSheets)
	}
	if len(report.IdentifiedSheets) != 1 || report.IdentifiedSheets[0] != "product" {
		t.Errorf("IdentifiedSheets = %v", report.IdentifiedSheets)
	}
	if len(report.UnmappedSheets) != 1 || report.UnmappedSheets[0] != "Loyalty Tiers" {
		t.Errorf("UnmappedSheets = %v", report.UnmappedSheets)
	}
	// Unknown sheets still flow through under their normalized name.
	unknown := sheets["loyaltytiers"]
	if unknown == nil || unknown.Type != domain.SheetUnknown {
		t.Fatalf("unknown sheet not retained: %+v", sheets)
	}
	if unknown.RowCount() != 1 {
		t.Errorf("unknown sheet rows = %d", unknown.RowCount())
	}
}

func TestStandardizeDropsEmptyRows(t *testing.T) {
	s := NewStandardizer(NewResolver(nil), NewInferencer(InferConfig{}))

	wb := &domain.RawWorkbook{
		Filename: "retail.xlsx",
		Sheets: []domain.RawSheet{{
			Name:   "Stores",
			Header: []string{"store_id", "region"},
			Rows: [][]string{
				{"S01", "kanto"},
				{"", ""},
				{"S02", "kansai"},
			},
		}},
	}

	sheets, _, err := s.Standardize(wb)
	if err != nil {
		t.Fatalf("Standardize: %v", err)
	}
	if got := sheets["store"].RowCount(); got != 2 {
		t.Errorf("RowCount = %d, want 2", got)
	}
}

func TestStandardizeEmptyWorkbookRejected(t *testing.T) {
	s := NewStandardizer(NewResolver(nil), NewInferencer(InferConfig{}))

	_, _, err := s.Standardize(&domain.RawWorkbook{Filename: "empty.xlsx"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}
