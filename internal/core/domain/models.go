package domain

// ForecastResult is the serving contract for one (product, store, horizon)
// prediction: exactly Horizon daily values with strictly increasing dates
// starting the day after the series' last observed date.
type ForecastResult struct {
	ProductID        string    `json:"product_id"`
	StoreID          string    `json:"store_id"`
	Horizon          int       `json:"horizon"`
	Method           string    `json:"method"`
	Predictions      []float64 `json:"predictions"`
	Dates            []string  `json:"dates"`
	TotalForecast    float64   `json:"total_forecast"`
	AvgDailyForecast float64   `json:"avg_daily_forecast"`
}

// ForecastModel is the trained artifact stored on a version. Variants
// (baseline moving average, gradient-boosted) sit behind this one interface.
type ForecastModel interface {
	Forecast(productID, storeID string, horizon int, useBaseline bool) (*ForecastResult, error)
	Metrics() map[string]float64
}

// ForecastPair is one (product, store) request of a batch forecast.
type ForecastPair struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
}

// BatchForecastItem is one batch entry: either a result or an error, never
// both.
type BatchForecastItem struct {
	ProductID string          `json:"product_id"`
	StoreID   string          `json:"store_id"`
	Result    *ForecastResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type RecommendedProduct struct {
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name,omitempty"`
	Category    string   `json:"category,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Score       float64  `json:"score"`
}

type RecommendationResult struct {
	CustomerID      string               `json:"customer_id,omitempty"`
	StoreID         string               `json:"store_id,omitempty"`
	Method          string               `json:"method"`
	Recommendations []RecommendedProduct `json:"recommendations"`
}

// MatrixInfo describes the interaction matrix shape behind a trained
// recommendation model.
type MatrixInfo struct {
	Users        int `json:"n_users"`
	Items        int `json:"n_items"`
	Interactions int `json:"n_interactions"`
}

// RecommendationModel is the trained artifact for the recommendation family.
type RecommendationModel interface {
	Recommend(customerID string, topK int) (*RecommendationResult, error)
	Popular(topK int, storeID string) (*RecommendationResult, error)
	MatrixInfo() MatrixInfo
}
