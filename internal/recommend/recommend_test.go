package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/feature"
)

func price(v float64) *float64 { return &v }

// testInteractions: A and B share tea purchases, B also buys crackers. C
// only buys chocolate. Crackers should surface for A through B.
func testInteractions() *feature.Interactions {
	return &feature.Interactions{
		ByCustomer: map[string]map[string]float64{
			"A": {"tea": 3},
			"B": {"tea": 2, "crackers": 1},
			"C": {"chocolate": 5},
		},
		ByStore: map[string]map[string]float64{
			"":   {"tea": 5, "crackers": 1, "chocolate": 5},
			"S1": {"tea": 5, "crackers": 1},
		},
		Catalog: []feature.ProductInfo{
			{ID: "chocolate", Name: "Dark Chocolate", Category: "snack", Price: price(500)},
			{ID: "crackers", Name: "Rice Crackers", Category: "snack", Price: price(300)},
			{ID: "tea", Name: "Green Tea", Category: "beverage", Price: price(450)},
		},
	}
}

func trainTestModel(t *testing.T) *Model {
	t.Helper()
	model, err := NewTrainer(Config{}).Train(context.Background(), testInteractions(), nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	return model
}

func TestTrainRejectsEmptyInteractions(t *testing.T) {
	x := &feature.Interactions{ByCustomer: map[string]map[string]float64{}}
	_, err := NewTrainer(Config{}).Train(context.Background(), x, nil)
	if !errors.Is(err, ErrNoInteractions) {
		t.Fatalf("expected ErrNoInteractions, got %v", err)
	}
}

func TestRecommendBlendsNeighborPurchases(t *testing.T) {
	model := trainTestModel(t)

	result, err := model.Recommend("A", 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if result.Method != "hybrid" {
		t.Errorf("method = %s", result.Method)
	}
	if len(result.Recommendations) == 0 {
		t.Fatal("no recommendations")
	}
	if result.Recommendations[0].ProductID != "crackers" {
		t.Errorf("top recommendation = %s, want crackers via neighbor B", result.Recommendations[0].ProductID)
	}
	// Owned products never come back.
	for _, rec := range result.Recommendations {
		if rec.ProductID == "tea" {
			t.Error("recommended an already-purchased product")
		}
	}
	// Catalog enrichment flows through.
	if result.Recommendations[0].ProductName != "Rice Crackers" {
		t.Errorf("product name = %q", result.Recommendations[0].ProductName)
	}
}

func TestRecommendScoresNormalized(t *testing.T) {
	model := trainTestModel(t)

	result, err := model.Recommend("A", 5)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for i, rec := range result.Recommendations {
		if rec.Score < 0 || rec.Score > 1 {
			t.Errorf("score[%d] = %v outside [0,1]", i, rec.Score)
		}
	}
	if result.Recommendations[0].Score != 1 {
		t.Errorf("top score = %v, want 1 after normalization", result.Recommendations[0].Score)
	}
}

func TestRecommendUnknownCustomerFallsBackToPopularity(t *testing.T) {
	model := trainTestModel(t)

	result, err := model.Recommend("nobody", 3)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if result.Method != "popularity" {
		t.Errorf("method = %s", result.Method)
	}
	if result.CustomerID != "nobody" {
		t.Errorf("customer id = %s", result.CustomerID)
	}
	// tea and chocolate tie at 5 units; ascending product id breaks it.
	if result.Recommendations[0].ProductID != "chocolate" {
		t.Errorf("top popular = %s, want chocolate on tie-break", result.Recommendations[0].ProductID)
	}
}

func TestPopularStoreScoped(t *testing.T) {
	model := trainTestModel(t)

	result, err := model.Popular(5, "S1")
	if err != nil {
		t.Fatalf("Popular: %v", err)
	}
	if len(result.Recommendations) != 2 {
		t.Fatalf("recommendations = %+v", result.Recommendations)
	}
	if result.Recommendations[0].ProductID != "tea" {
		t.Errorf("top in S1 = %s", result.Recommendations[0].ProductID)
	}
}

func TestPopularUnknownStoreIsNotFound(t *testing.T) {
	model := trainTestModel(t)

	_, err := model.Popular(5, "S404")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestTopKValidationAndDefault(t *testing.T) {
	model := trainTestModel(t)

	if _, err := model.Recommend("A", -1); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("negative top_k: %v", err)
	}
	if _, err := model.Recommend("A", 101); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("oversized top_k: %v", err)
	}

	result, err := model.Popular(0, "")
	if err != nil {
		t.Fatalf("Popular: %v", err)
	}
	if len(result.Recommendations) > 10 {
		t.Errorf("default top_k exceeded: %d", len(result.Recommendations))
	}
}

func TestMatrixInfo(t *testing.T) {
	model := trainTestModel(t)

	info := model.MatrixInfo()
	if info.Users != 3 || info.Items != 3 || info.Interactions != 4 {
		t.Errorf("matrix info = %+v", info)
	}
}
