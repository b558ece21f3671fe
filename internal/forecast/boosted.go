// Package forecast trains and serves per-product demand forecasts: a
// gradient-boosted model over regression stumps with a moving-average
// baseline fallback.
package forecast

import (
	"math"
	"sort"
)

// BoostConfig controls gradient boosting. Zero values fall back to the
// operational defaults.
type BoostConfig struct {
	Rounds       int
	LearningRate float64
	MinLeaf      int
	Thresholds   int
}

func (c BoostConfig) normalize() BoostConfig {
	out := c
	if out.Rounds <= 0 {
		out.Rounds = 100
	}
	if out.LearningRate <= 0 {
		out.LearningRate = 0.1
	}
	if out.MinLeaf <= 0 {
		out.MinLeaf = 5
	}
	if out.Thresholds <= 0 {
		out.Thresholds = 16
	}
	return out
}

// stump is one depth-1 regression tree: a feature split with a constant
// prediction on each side.
type stump struct {
	feature   int
	threshold float64
	left      float64
	right     float64
}

func (s stump) predict(features []float64) float64 {
	if features[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

// boostedModel is an additive ensemble: base prediction plus learning-rate
// scaled stump corrections fitted to residuals.
type boostedModel struct {
	base   float64
	rate   float64
	stumps []stump
}

// fitBoosted trains on a dense matrix. Callers fill missing features with 0
// before fitting; prediction applies the same convention.
func fitBoosted(x [][]float64, y []float64, cfg BoostConfig) *boostedModel {
	cfg = cfg.normalize()

	base := mean(y)
	model := &boostedModel{base: base, rate: cfg.LearningRate}

	residuals := make([]float64, len(y))
	for i, v := range y {
		residuals[i] = v - base
	}

	for round := 0; round < cfg.Rounds; round++ {
		s, ok := fitStump(x, residuals, cfg)
		if !ok {
			break
		}
		model.stumps = append(model.stumps, s)
		for i := range residuals {
			residuals[i] -= cfg.LearningRate * s.predict(x[i])
		}
	}
	return model
}

func (m *boostedModel) predict(features []float64) float64 {
	out := m.base
	for _, s := range m.stumps {
		out += m.rate * s.predict(features)
	}
	return out
}

// fitStump scans every feature over quantile-spaced candidate thresholds and
// keeps the split with the lowest squared error against the residuals.
func fitStump(x [][]float64, residuals []float64, cfg BoostConfig) (stump, bool) {
	if len(x) == 0 {
		return stump{}, false
	}
	nFeatures := len(x[0])

	best := stump{}
	bestErr := math.Inf(1)
	found := false

	column := make([]float64, len(x))
	for f := 0; f < nFeatures; f++ {
		for i := range x {
			column[i] = x[i][f]
		}
		for _, threshold := range candidateThresholds(column, cfg.Thresholds) {
			leftSum, leftN := 0.0, 0
			rightSum, rightN := 0.0, 0
			for i, v := range column {
				if v <= threshold {
					leftSum += residuals[i]
					leftN++
				} else {
					rightSum += residuals[i]
					rightN++
				}
			}
			if leftN < cfg.MinLeaf || rightN < cfg.MinLeaf {
				continue
			}
			left := leftSum / float64(leftN)
			right := rightSum / float64(rightN)

			sse := 0.0
			for i, v := range column {
				pred := right
				if v <= threshold {
					pred = left
				}
				d := residuals[i] - pred
				sse += d * d
			}
			if sse < bestErr {
				bestErr = sse
				best = stump{feature: f, threshold: threshold, left: left, right: right}
				found = true
			}
		}
	}
	return best, found
}

func candidateThresholds(column []float64, limit int) []float64 {
	sorted := append([]float64(nil), column...)
	sort.Float64s(sorted)

	unique := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}
	if len(unique) < 2 {
		return nil
	}

	// Midpoints between consecutive distinct values, quantile-thinned when
	// there are more than the candidate limit.
	mids := make([]float64, 0, len(unique)-1)
	for i := 1; i < len(unique); i++ {
		mids = append(mids, (unique[i-1]+unique[i])/2)
	}
	if len(mids) <= limit {
		return mids
	}
	out := make([]float64, 0, limit)
	step := float64(len(mids)-1) / float64(limit-1)
	for i := 0; i < limit; i++ {
		out = append(out, mids[int(math.Round(float64(i)*step))])
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
