package recommend

import (
	"math"

	"github.com/kirillkom/retail-analytics/internal/feature"
)

// content scores products by similarity to a user's purchase profile in a
// category one-hot plus normalized price space.
type content struct {
	vectors map[string][]float64
	dims    int
}

func newContent(catalog []feature.ProductInfo) *content {
	categories := make(map[string]int)
	for _, p := range catalog {
		if p.Category == "" {
			continue
		}
		if _, ok := categories[p.Category]; !ok {
			categories[p.Category] = len(categories)
		}
	}

	minPrice, maxPrice := math.Inf(1), math.Inf(-1)
	for _, p := range catalog {
		if p.Price == nil {
			continue
		}
		minPrice = math.Min(minPrice, *p.Price)
		maxPrice = math.Max(maxPrice, *p.Price)
	}
	priceSpan := maxPrice - minPrice

	// One dimension per category plus one min-max scaled price dimension.
	dims := len(categories) + 1
	c := &content{vectors: make(map[string][]float64, len(catalog)), dims: dims}
	for _, p := range catalog {
		vec := make([]float64, dims)
		if idx, ok := categories[p.Category]; ok {
			vec[idx] = 1
		}
		if p.Price != nil && priceSpan > 0 {
			vec[dims-1] = (*p.Price - minPrice) / priceSpan
		}
		c.vectors[p.ID] = vec
	}
	return c
}

// scores builds the user profile as the purchase-count weighted mean of
// owned product vectors and ranks the rest by cosine similarity to it.
func (c *content) scores(owned map[string]float64) map[string]float64 {
	if len(owned) == 0 {
		return nil
	}
	profile := make([]float64, c.dims)
	weight := 0.0
	for product, count := range owned {
		vec, ok := c.vectors[product]
		if !ok {
			continue
		}
		for i, v := range vec {
			profile[i] += count * v
		}
		weight += count
	}
	if weight == 0 {
		return nil
	}
	for i := range profile {
		profile[i] /= weight
	}

	out := make(map[string]float64)
	for product, vec := range c.vectors {
		if _, has := owned[product]; has {
			continue
		}
		if sim := cosineVec(profile, vec); sim > 0 {
			out[product] = sim
		}
	}
	return out
}

func cosineVec(a, b []float64) float64 {
	dot, na, nb := 0.0, 0.0, 0.0
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
