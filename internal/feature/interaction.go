package feature

import (
	"fmt"
	"sort"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// ProductInfo is the catalog record used for content similarity and for
// enriching recommendation responses.
type ProductInfo struct {
	ID       string
	Name     string
	Category string
	Price    *float64
}

// Interactions is the recommendation training input: purchase counts per
// customer and product plus the product catalog.
type Interactions struct {
	// ByCustomer maps customer -> product -> purchase count.
	ByCustomer map[string]map[string]float64
	// ByStore maps store -> product -> units sold, for store-scoped
	// popularity. The empty store key aggregates all stores.
	ByStore map[string]map[string]float64
	// Catalog holds the known products in ascending id order.
	Catalog []ProductInfo
}

func (x *Interactions) Info() domain.MatrixInfo {
	interactions := 0
	items := make(map[string]struct{})
	for _, products := range x.ByCustomer {
		interactions += len(products)
		for p := range products {
			items[p] = struct{}{}
		}
	}
	return domain.MatrixInfo{
		Users:        len(x.ByCustomer),
		Items:        len(items),
		Interactions: interactions,
	}
}

func (x *Interactions) Product(id string) (ProductInfo, bool) {
	idx := sort.Search(len(x.Catalog), func(i int) bool { return x.Catalog[i].ID >= id })
	if idx < len(x.Catalog) && x.Catalog[idx].ID == id {
		return x.Catalog[idx], true
	}
	return ProductInfo{}, false
}

// BuildInteractions joins transaction items to their transactions and counts
// purchases per (customer, product). Rows whose transaction lacks a customer
// still contribute to store popularity.
func BuildInteractions(sheets map[string]*domain.SheetSnapshot) (*Interactions, error) {
	items := sheets[string(domain.SheetTransactionItems)]
	transactions := sheets[string(domain.SheetTransaction)]
	if items == nil || transactions == nil {
		return nil, domain.WrapError(domain.ErrValidation, "build interactions",
			fmt.Errorf("transaction and transaction_items sheets are required"))
	}

	txnCustomer, txnStore := indexTransactionParties(transactions)

	prodIdx := items.ColumnIndex("product_id")
	txnIdx := items.ColumnIndex("transaction_id")
	qtyIdx := items.ColumnIndex("quantity")
	if prodIdx < 0 || txnIdx < 0 {
		return nil, domain.WrapError(domain.ErrValidation, "build interactions",
			fmt.Errorf("transaction_items requires transaction_id and product_id"))
	}

	out := &Interactions{
		ByCustomer: make(map[string]map[string]float64),
		ByStore:    make(map[string]map[string]float64),
	}

	for r := 0; r < items.RowCount(); r++ {
		product := items.Rows[r][prodIdx]
		txnID := items.Rows[r][txnIdx]
		if product.Null || txnID.Null {
			continue
		}
		qty := 1.0
		if qtyIdx >= 0 && !items.Rows[r][qtyIdx].Null && items.Rows[r][qtyIdx].Num > 0 {
			qty = items.Rows[r][qtyIdx].Num
		}

		if customer, ok := txnCustomer[txnID.Str]; ok && customer != "" {
			if out.ByCustomer[customer] == nil {
				out.ByCustomer[customer] = make(map[string]float64)
			}
			out.ByCustomer[customer][product.Str] += qty
		}

		addStoreCount(out.ByStore, "", product.Str, qty)
		if store, ok := txnStore[txnID.Str]; ok && store != "" {
			addStoreCount(out.ByStore, store, product.Str, qty)
		}
	}

	out.Catalog = buildCatalog(sheets[string(domain.SheetProduct)], out.ByStore[""])
	return out, nil
}

func indexTransactionParties(sheet *domain.SheetSnapshot) (customers, stores map[string]string) {
	customers = make(map[string]string, sheet.RowCount())
	stores = make(map[string]string, sheet.RowCount())

	idIdx := sheet.ColumnIndex("transaction_id")
	custIdx := sheet.ColumnIndex("customer_id")
	storeIdx := sheet.ColumnIndex("store_id")
	if idIdx < 0 {
		return customers, stores
	}
	for r := 0; r < sheet.RowCount(); r++ {
		id := sheet.Rows[r][idIdx]
		if id.Null {
			continue
		}
		if custIdx >= 0 && !sheet.Rows[r][custIdx].Null {
			customers[id.Str] = sheet.Rows[r][custIdx].Str
		}
		if storeIdx >= 0 && !sheet.Rows[r][storeIdx].Null {
			stores[id.Str] = sheet.Rows[r][storeIdx].Str
		}
	}
	return customers, stores
}

func addStoreCount(byStore map[string]map[string]float64, store, product string, qty float64) {
	if byStore[store] == nil {
		byStore[store] = make(map[string]float64)
	}
	byStore[store][product] += qty
}

// buildCatalog reads the product sheet when present; otherwise it falls back
// to the product ids observed in the interactions.
func buildCatalog(sheet *domain.SheetSnapshot, observed map[string]float64) []ProductInfo {
	var catalog []ProductInfo
	if sheet != nil {
		idIdx := sheet.ColumnIndex("product_id")
		nameIdx := sheet.ColumnIndex("product_name")
		catIdx := sheet.ColumnIndex("category_level1")
		priceIdx := sheet.ColumnIndex("retail_price")
		if idIdx >= 0 {
			seen := make(map[string]struct{}, sheet.RowCount())
			for r := 0; r < sheet.RowCount(); r++ {
				id := sheet.Rows[r][idIdx]
				if id.Null {
					continue
				}
				if _, dup := seen[id.Str]; dup {
					continue
				}
				seen[id.Str] = struct{}{}
				info := ProductInfo{ID: id.Str}
				if nameIdx >= 0 && !sheet.Rows[r][nameIdx].Null {
					info.Name = sheet.Rows[r][nameIdx].Str
				}
				if catIdx >= 0 && !sheet.Rows[r][catIdx].Null {
					info.Category = sheet.Rows[r][catIdx].Str
				}
				if priceIdx >= 0 && !sheet.Rows[r][priceIdx].Null {
					price := sheet.Rows[r][priceIdx].Num
					info.Price = &price
				}
				catalog = append(catalog, info)
			}
		}
	}
	if catalog == nil {
		for id := range observed {
			catalog = append(catalog, ProductInfo{ID: id})
		}
	}
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].ID < catalog[j].ID })
	return catalog
}
