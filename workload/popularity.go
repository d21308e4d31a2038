package workload

import (
	"fmt"
	"math"

	xrand "golang.org/x/exp/rand"
)

// Popularity is a Zipf-like table over item ids 1..N. Item at rank r has
// weight 1/r^skew.
type Popularity struct {
	weights []float64
	total   float64
	skew    float64
}

func NewPopularity(population int, skew float64) (*Popularity, error) {
	if population < 1 {
		return nil, fmt.Errorf("population %d must be at least 1", population)
	}
	if skew < 0 || math.IsNaN(skew) || math.IsInf(skew, 0) {
		return nil, fmt.Errorf("invalid skew %g", skew)
	}

	p := &Popularity{weights: make([]float64, population), skew: skew}
	for i := range p.weights {
		w := 1 / math.Pow(float64(i+1), skew)
		p.weights[i] = w
		p.total += w
	}
	return p, nil
}

func (p *Popularity) Size() int      { return len(p.weights) }
func (p *Popularity) Skew() float64  { return p.skew }
func (p *Popularity) Total() float64 { return p.total }

// Probability returns the normalized weight of the item at rank, or 0 outside the table.
func (p *Popularity) Probability(rank int) float64 {
	if rank < 1 || rank > len(p.weights) {
		return 0
	}
	return p.weights[rank-1] / p.total
}

// Sample draws an item id.
func (p *Popularity) Sample(r *xrand.Rand) int {
	return p.pick(r.Float64() * p.total)
}

// pick scans for the first rank whose cumulative weight exceeds u.
// Rounding can leave u past the final sum, in which case the last item wins.
func (p *Popularity) pick(u float64) int {
	var sum float64
	for i, w := range p.weights {
		sum += w
		if u < sum {
			return i + 1
		}
	}
	return len(p.weights)
}
