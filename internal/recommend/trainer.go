package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kirillkom/retail-analytics/internal/core/domain"
	"github.com/kirillkom/retail-analytics/internal/feature"
)

// ErrNoInteractions marks uploads without any customer purchase history.
// The orchestrator turns it into a skipped job.
var ErrNoInteractions = errors.New("no customer interactions")

// Config controls recommendation training. Zero values fall back to the
// operational defaults.
type Config struct {
	CFWeight      float64
	ContentWeight float64
	TopNeighbors  int
	DefaultTopK   int
	MaxTopK       int
}

func (c Config) normalize() Config {
	out := c
	if out.CFWeight <= 0 {
		out.CFWeight = 0.6
	}
	if out.ContentWeight <= 0 {
		out.ContentWeight = 0.4
	}
	if out.TopNeighbors <= 0 {
		out.TopNeighbors = 20
	}
	if out.DefaultTopK <= 0 {
		out.DefaultTopK = 10
	}
	if out.MaxTopK <= 0 {
		out.MaxTopK = 100
	}
	return out
}

// ProgressFunc receives training stage transitions.
type ProgressFunc func(stage string, percent int)

// Model is the trained recommendation artifact. Immutable after training
// and safe for concurrent use.
type Model struct {
	cfg           Config
	collaborative *collaborative
	content       *content
	interactions  *feature.Interactions
	info          domain.MatrixInfo
}

// Trainer fits a Model from the derived interactions.
type Trainer struct {
	cfg Config
}

func NewTrainer(cfg Config) *Trainer {
	return &Trainer{cfg: cfg.normalize()}
}

// Train precomputes the neighbor lists and content vectors. Uploads whose
// transactions carry no customer ids return ErrNoInteractions.
func (t *Trainer) Train(ctx context.Context, x *feature.Interactions, progress ProgressFunc) (*Model, error) {
	if progress == nil {
		progress = func(string, int) {}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x.ByCustomer) == 0 {
		return nil, fmt.Errorf("%w: transactions carry no customer ids", ErrNoInteractions)
	}

	progress("model_init", 55)
	cf := newCollaborative(x.ByCustomer, t.cfg.TopNeighbors)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress("model_train", 85)
	cnt := newContent(x.Catalog)

	progress("metrics", 95)
	return &Model{
		cfg:           t.cfg,
		collaborative: cf,
		content:       cnt,
		interactions:  x,
		info:          x.Info(),
	}, nil
}

func (m *Model) MatrixInfo() domain.MatrixInfo {
	return m.info
}

// Recommend blends collaborative and content scores for a known customer.
// Customers without purchase history fall back to global popularity.
func (m *Model) Recommend(customerID string, topK int) (*domain.RecommendationResult, error) {
	topK, err := m.clampTopK(topK)
	if err != nil {
		return nil, err
	}

	owned, known := m.interactions.ByCustomer[customerID]
	if !known {
		result, err := m.popularity(topK, "")
		if err != nil {
			return nil, err
		}
		result.CustomerID = customerID
		return result, nil
	}

	cfScores := normalizeScores(m.collaborative.scores(customerID))
	contentScores := normalizeScores(m.content.scores(owned))

	blended := make(map[string]float64)
	for product, score := range cfScores {
		blended[product] += m.cfg.CFWeight * score
	}
	for product, score := range contentScores {
		blended[product] += m.cfg.ContentWeight * score
	}

	if len(blended) == 0 {
		result, err := m.popularity(topK, "")
		if err != nil {
			return nil, err
		}
		result.CustomerID = customerID
		return result, nil
	}

	return &domain.RecommendationResult{
		CustomerID:      customerID,
		Method:          "hybrid",
		Recommendations: m.rank(normalizeScores(blended), topK),
	}, nil
}

// Popular returns the best sellers, optionally scoped to one store. An
// unknown store id is a not-found condition.
func (m *Model) Popular(topK int, storeID string) (*domain.RecommendationResult, error) {
	topK, err := m.clampTopK(topK)
	if err != nil {
		return nil, err
	}
	return m.popularity(topK, storeID)
}

func (m *Model) popularity(topK int, storeID string) (*domain.RecommendationResult, error) {
	counts, ok := m.interactions.ByStore[storeID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "popular products",
			fmt.Errorf("no sales recorded for store %q", storeID))
	}
	return &domain.RecommendationResult{
		StoreID:         storeID,
		Method:          "popularity",
		Recommendations: m.rank(normalizeScores(counts), topK),
	}, nil
}

func (m *Model) clampTopK(topK int) (int, error) {
	if topK == 0 {
		return m.cfg.DefaultTopK, nil
	}
	if topK < 0 || topK > m.cfg.MaxTopK {
		return 0, domain.WrapError(domain.ErrInvalidInput, "recommend",
			fmt.Errorf("top_k must be in [1, %d], got %d", m.cfg.MaxTopK, topK))
	}
	return topK, nil
}

// rank orders by descending score with ascending product id breaking ties,
// enriches from the catalog and cuts at topK.
func (m *Model) rank(scores map[string]float64, topK int) []domain.RecommendedProduct {
	products := make([]string, 0, len(scores))
	for product := range scores {
		products = append(products, product)
	}
	sort.SliceStable(products, func(i, j int) bool {
		si, sj := scores[products[i]], scores[products[j]]
		if si != sj {
			return si > sj
		}
		return products[i] < products[j]
	})
	if len(products) > topK {
		products = products[:topK]
	}

	out := make([]domain.RecommendedProduct, 0, len(products))
	for _, product := range products {
		rec := domain.RecommendedProduct{ProductID: product, Score: scores[product]}
		if info, ok := m.interactions.Product(product); ok {
			rec.ProductName = info.Name
			rec.Category = info.Category
			rec.Price = info.Price
		}
		out = append(out, rec)
	}
	return out
}

// normalizeScores maps raw scores into [0, 1] by the maximum. Relative order
// is preserved; a single-score set maps to 1.
func normalizeScores(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max == 0 {
		return scores
	}
	out := make(map[string]float64, len(scores))
	for product, s := range scores {
		out[product] = s / max
	}
	return out
}
