package domain

import "time"

// SheetType is the canonical identity of a standardized sheet.
type SheetType string

const (
	SheetTransaction        SheetType = "transaction"
	SheetTransactionItems   SheetType = "transaction_items"
	SheetProduct            SheetType = "product"
	SheetCustomer           SheetType = "customer"
	SheetStore              SheetType = "store"
	SheetPromotion          SheetType = "promotion"
	SheetInventory          SheetType = "inventory"
	SheetWeather            SheetType = "weather"
	SheetHoliday            SheetType = "holiday"
	SheetCustomerBehavior   SheetType = "customer_behavior"
	SheetProductAssociation SheetType = "product_association"
	SheetReview             SheetType = "review"

	// SheetUnknown marks sheets that matched no alias; their rows are kept
	// under the normalized sheet name so downstream consumers still see them.
	SheetUnknown SheetType = "unknown"
)

// ColumnType is the inferred semantic type of a standardized column.
type ColumnType string

const (
	ColumnTemporal    ColumnType = "temporal"
	ColumnNumeric     ColumnType = "numeric"
	ColumnCategorical ColumnType = "categorical"
	ColumnIdentifier  ColumnType = "identifier"
	ColumnText        ColumnType = "text"
)

// Value is one standardized cell. Exactly one of Str/Num/Time carries data
// depending on the owning column's type; Null marks an empty source cell or
// a failed coercion.
type Value struct {
	Str  string
	Num  float64
	Time time.Time
	Null bool
}

type Column struct {
	Name     string     `json:"name"`
	Original string     `json:"original"`
	Type     ColumnType `json:"type"`
}

// FieldRename records one original→canonical column mapping.
type FieldRename struct {
	Original  string `json:"original"`
	Canonical string `json:"canonical"`
}

// FieldCollision records a column whose canonical name was already claimed
// by an earlier column in document order. The colliding column is dropped.
type FieldCollision struct {
	Original  string `json:"original"`
	Canonical string `json:"canonical"`
}

// SheetSnapshot is one standardized sheet of an upload version. Immutable
// once the version is committed.
type SheetSnapshot struct {
	Type              SheetType        `json:"type"`
	Name              string           `json:"name"`
	OriginalName      string           `json:"original_name"`
	Columns           []Column         `json:"columns"`
	Rows              [][]Value        `json:"-"`
	Renames           []FieldRename    `json:"renames,omitempty"`
	IgnoredCollisions []FieldCollision `json:"ignored_collisions,omitempty"`
}

func (s *SheetSnapshot) RowCount() int {
	return len(s.Rows)
}

// ColumnIndex returns the position of the canonical column name, or -1.
func (s *SheetSnapshot) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (s *SheetSnapshot) HasColumn(name string) bool {
	return s.ColumnIndex(name) >= 0
}

// Cell returns the value at (row, canonical column). The second return is
// false when the column does not exist.
func (s *SheetSnapshot) Cell(row int, name string) (Value, bool) {
	idx := s.ColumnIndex(name)
	if idx < 0 || row < 0 || row >= len(s.Rows) {
		return Value{Null: true}, false
	}
	return s.Rows[row][idx], true
}

// RawWorkbook is the parsed but not yet standardized form of an upload:
// sheet names and string cells exactly as the file carried them.
type RawWorkbook struct {
	Filename string
	Sheets   []RawSheet
}

type RawSheet struct {
	Name   string
	Header []string
	Rows   [][]string
}
