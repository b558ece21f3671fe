// Package schema resolves raw spreadsheet sheet/column names into the
// canonical schema and infers semantic column types.
package schema

import (
	"strings"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
)

// sheetAliases maps canonical sheet types to the surface forms seen in real
// exports. Lookup happens on normalized strings, so casing, spacing and
// separator differences never matter.
var sheetAliases = map[domain.SheetType][]string{
	domain.SheetTransaction:        {"transaction", "transactions", "orders", "order", "取引", "交易", "トランザクション"},
	domain.SheetTransactionItems:   {"transactionitems", "transaction_items", "orderitems", "order_items", "orderdetails", "取引明細", "交易明细", "トランザクション明細"},
	domain.SheetProduct:            {"product", "products", "item", "items", "商品", "プロダクト"},
	domain.SheetCustomer:           {"customer", "customers", "user", "users", "member", "客户", "顧客", "カスタマー"},
	domain.SheetStore:              {"store", "stores", "shop", "shops", "location", "门店", "店舗", "ストア"},
	domain.SheetInventory:          {"inventory", "stock", "stocklevel", "库存", "在庫", "インベントリ"},
	domain.SheetPromotion:          {"promotion", "promotions", "campaign", "促销", "プロモーション"},
	domain.SheetWeather:            {"weather", "climate", "天气", "天気"},
	domain.SheetHoliday:            {"holiday", "holidays", "festival", "节假日", "祝日", "ホリデー"},
	domain.SheetCustomerBehavior:   {"customerbehavior", "customer_behavior", "userbehavior", "客户行为", "顧客行動"},
	domain.SheetProductAssociation: {"productassociation", "product_association", "association", "商品关联", "商品関連"},
	domain.SheetReview:             {"review", "reviews", "feedback", "rating", "评价", "レビュー"},
}

// fieldAliases maps canonical field names to their surface forms.
var fieldAliases = map[string][]string{
	"transaction_id":    {"transactionid", "transaction_id", "trans_id", "order_id", "orderid"},
	"customer_id":       {"customerid", "customer_id", "cust_id", "user_id", "userid"},
	"transaction_date":  {"transactiondate", "transaction_date", "date", "order_date", "orderdate"},
	"transaction_time":  {"transactiontime", "transaction_time", "time", "order_time"},
	"store_id":          {"storeid", "store_id", "shop_id", "shopid", "location_id"},
	"total_amount":      {"totalamount", "total_amount", "amount", "total", "total_price"},
	"product_id":        {"productid", "product_id", "prod_id", "item_id", "itemid"},
	"product_name":      {"productname", "product_name", "name", "item_name"},
	"category_level1":   {"categorylevel1", "category_level1", "category1", "main_category", "category"},
	"category_level2":   {"categorylevel2", "category_level2", "category2", "sub_category"},
	"category_level3":   {"categorylevel3", "category_level3", "category3"},
	"retail_price":      {"retailprice", "retail_price", "retail_price_jpy", "price", "listprice"},
	"cost_price":        {"costprice", "cost_price", "cost"},
	"quantity":          {"quantity", "qty", "sales_quantity", "units"},
	"unit_price":        {"unitprice", "unit_price", "unit_price_jpy"},
	"line_total":        {"linetotal", "line_total", "line_total_jpy", "line_amount"},
	"age":               {"age", "customer_age"},
	"gender":            {"gender", "sex"},
	"registration_date": {"registrationdate", "registration_date", "reg_date", "join_date"},
	"start_date":        {"startdate", "start_date", "from_date", "begin_date"},
	"end_date":          {"enddate", "end_date", "to_date"},
	"stock_quantity":    {"stockquantity", "stock_quantity", "stock_level", "on_hand"},
	"reorder_point":     {"reorderpoint", "reorder_point"},
	"region":            {"region", "prefecture", "area"},
	"temperature":       {"temperature", "temperature_celsius", "temp"},
	"precipitation":     {"precipitation", "precipitation_mm", "rainfall"},
	"humidity":          {"humidity", "humidity_percent"},
	"holiday_name":      {"holidayname", "holiday_name", "festival_name"},
}

// Overrides extends the built-in alias tables from configuration, so new
// export dialects can be onboarded without a code change.
type Overrides struct {
	Sheets map[string][]string `yaml:"sheets"`
	Fields map[string][]string `yaml:"fields"`
}

// Resolver maps raw sheet and column names to canonical names. Resolution is
// a pure function of the input string: no ordering dependency, no side
// effects.
type Resolver struct {
	sheets map[string]domain.SheetType
	fields map[string]string
}

func NewResolver(overrides *Overrides) *Resolver {
	r := &Resolver{
		sheets: make(map[string]domain.SheetType),
		fields: make(map[string]string),
	}
	for canonical, aliases := range sheetAliases {
		for _, alias := range aliases {
			r.sheets[NormalizeSheetName(alias)] = canonical
		}
	}
	for canonical, aliases := range fieldAliases {
		for _, alias := range aliases {
			r.fields[NormalizeFieldName(alias)] = canonical
		}
	}
	if overrides != nil {
		for canonical, aliases := range overrides.Sheets {
			for _, alias := range aliases {
				r.sheets[NormalizeSheetName(alias)] = domain.SheetType(canonical)
			}
		}
		for canonical, aliases := range overrides.Fields {
			for _, alias := range aliases {
				r.fields[NormalizeFieldName(alias)] = canonical
			}
		}
	}
	return r
}

// NormalizeSheetName lower-cases and strips whitespace, underscores and
// hyphens, collapsing all separator variants of one surface form.
func NormalizeSheetName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case ' ', '\t', '_', '-':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeFieldName lower-cases, converts whitespace and hyphens to
// underscores, collapses runs of underscores and trims them from the edges.
func NormalizeFieldName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case ' ', '\t', '-':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '_' })
	return strings.Join(parts, "_")
}

// ResolveSheet identifies the canonical sheet type for a raw sheet name.
// Unmapped names return SheetUnknown with the normalized name so the data
// still flows downstream under a stable identifier.
func (r *Resolver) ResolveSheet(rawName string) (domain.SheetType, string) {
	normalized := NormalizeSheetName(rawName)
	if canonical, ok := r.sheets[normalized]; ok {
		return canonical, string(canonical)
	}
	return domain.SheetUnknown, normalized
}

// ResolveField maps a raw column name to its canonical field name, falling
// back to the normalized form when no alias matches.
func (r *Resolver) ResolveField(rawName string) string {
	normalized := NormalizeFieldName(rawName)
	if canonical, ok := r.fields[normalized]; ok {
		return canonical
	}
	return normalized
}
