package quality

import (
	"fmt"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// relationship describes one foreign-key style check between two sheets.
type relationship struct {
	name        string
	childSheet  domain.SheetType
	childField  string
	parentSheet domain.SheetType
	parentField string
}

var relationships = []relationship{
	{"transaction_items.transaction_id -> transaction.transaction_id",
		domain.SheetTransactionItems, "transaction_id", domain.SheetTransaction, "transaction_id"},
	{"transaction_items.product_id -> product.product_id",
		domain.SheetTransactionItems, "product_id", domain.SheetProduct, "product_id"},
	{"transaction.customer_id -> customer.customer_id",
		domain.SheetTransaction, "customer_id", domain.SheetCustomer, "customer_id"},
	{"transaction.store_id -> store.store_id",
		domain.SheetTransaction, "store_id", domain.SheetStore, "store_id"},
}

// Validate runs the referential checks over the standardized sheets. Checks
// whose sheets or fields are absent are skipped rather than failed; the
// quality assessor already reports absence of the required ones.
func Validate(sheets map[string]*domain.SheetSnapshot) *domain.ValidationResult {
	result := &domain.ValidationResult{Valid: true}

	for _, rel := range relationships {
		child := sheets[string(rel.childSheet)]
		parent := sheets[string(rel.parentSheet)]
		if child == nil || parent == nil {
			continue
		}
		childIdx := child.ColumnIndex(rel.childField)
		parentIdx := parent.ColumnIndex(rel.parentField)
		if childIdx < 0 || parentIdx < 0 {
			continue
		}

		known := make(map[string]struct{}, parent.RowCount())
		for r := 0; r < parent.RowCount(); r++ {
			v := parent.Rows[r][parentIdx]
			if !v.Null {
				known[v.Str] = struct{}{}
			}
		}

		missing := 0
		for r := 0; r < child.RowCount(); r++ {
			v := child.Rows[r][childIdx]
			if v.Null {
				continue
			}
			if _, ok := known[v.Str]; !ok {
				missing++
			}
		}

		check := domain.RelationshipCheck{
			Relationship: rel.name,
			Valid:        missing == 0,
			MissingCount: missing,
		}
		if missing == 0 {
			check.Message = "all references resolve"
		} else {
			check.Message = fmt.Sprintf("%d child rows reference unknown parents", missing)
			result.Valid = false
		}
		result.Checks = append(result.Checks, check)
	}
	return result
}
