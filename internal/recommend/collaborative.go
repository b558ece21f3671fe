// Package recommend trains and serves product recommendations: a hybrid of
// user-based collaborative filtering and content similarity, with popularity
// as the cold-start fallback.
package recommend

import (
	"math"
	"sort"
)

// neighbor is one similar user with its cosine similarity.
type neighbor struct {
	user string
	sim  float64
}

// collaborative holds the user-user similarity structure. Scores for a user
// come from what that user's nearest neighbors bought.
type collaborative struct {
	vectors   map[string]map[string]float64
	norms     map[string]float64
	neighbors map[string][]neighbor
}

// newCollaborative precomputes the top-k neighbor lists. Quadratic in the
// user count, which in-memory upload versions keep small enough.
func newCollaborative(byCustomer map[string]map[string]float64, topNeighbors int) *collaborative {
	c := &collaborative{
		vectors:   byCustomer,
		norms:     make(map[string]float64, len(byCustomer)),
		neighbors: make(map[string][]neighbor, len(byCustomer)),
	}
	users := make([]string, 0, len(byCustomer))
	for user, products := range byCustomer {
		users = append(users, user)
		sum := 0.0
		for _, count := range products {
			sum += count * count
		}
		c.norms[user] = math.Sqrt(sum)
	}
	sort.Strings(users)

	for _, u := range users {
		var candidates []neighbor
		for _, v := range users {
			if u == v {
				continue
			}
			if sim := c.cosine(u, v); sim > 0 {
				candidates = append(candidates, neighbor{user: v, sim: sim})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].sim != candidates[j].sim {
				return candidates[i].sim > candidates[j].sim
			}
			return candidates[i].user < candidates[j].user
		})
		if len(candidates) > topNeighbors {
			candidates = candidates[:topNeighbors]
		}
		c.neighbors[u] = candidates
	}
	return c
}

func (c *collaborative) cosine(u, v string) float64 {
	nu, nv := c.norms[u], c.norms[v]
	if nu == 0 || nv == 0 {
		return 0
	}
	a, b := c.vectors[u], c.vectors[v]
	if len(b) < len(a) {
		a, b = b, a
	}
	dot := 0.0
	for product, count := range a {
		if other, ok := b[product]; ok {
			dot += count * other
		}
	}
	return dot / (nu * nv)
}

// scores accumulates similarity-weighted purchase counts from the user's
// neighbors, excluding products the user already bought. Unknown users get
// a nil map.
func (c *collaborative) scores(user string) map[string]float64 {
	owned, known := c.vectors[user]
	if !known {
		return nil
	}
	out := make(map[string]float64)
	for _, n := range c.neighbors[user] {
		for product, count := range c.vectors[n.user] {
			if _, has := owned[product]; has {
				continue
			}
			out[product] += n.sim * count
		}
	}
	return out
}
