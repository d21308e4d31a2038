package workload

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xrand "golang.org/x/exp/rand"
)

func TestPopularityWeights(t *testing.T) {
	p, err := NewPopularity(200, 1.2)
	require.NoError(t, err)
	assert.Equal(t, 200, p.Size())

	var sum float64
	for r := 1; r <= p.Size(); r++ {
		sum += p.Probability(r)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, math.Pow(2, 1.2), p.Probability(1)/p.Probability(2), 1e-9)
	assert.Zero(t, p.Probability(0))
	assert.Zero(t, p.Probability(201))
}

func TestPopularityDistribution(t *testing.T) {
	const draws = 200000
	p, err := NewPopularity(200, 1.2)
	require.NoError(t, err)
	rng := xrand.New(xrand.NewSource(42))

	counts := make([]int, p.Size()+1)
	for i := 0; i < draws; i++ {
		id := p.Sample(rng)
		require.GreaterOrEqual(t, id, 1)
		require.LessOrEqual(t, id, 200)
		counts[id]++
	}

	assert.Greater(t, counts[1], counts[2])
	assert.Greater(t, counts[2], counts[3])

	for rank := 1; rank <= 5; rank++ {
		want := p.Probability(rank) * draws
		assert.InEpsilon(t, want, float64(counts[rank]), 0.10, "rank %d", rank)
	}
}

func TestPopularityPickBoundaries(t *testing.T) {
	p, err := NewPopularity(3, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, p.pick(0))
	assert.Equal(t, 1, p.pick(0.999))
	assert.Equal(t, 2, p.pick(1.0))
	assert.Equal(t, 3, p.pick(p.Total()-1e-12))
	// Past the final cumulative sum falls back to the last item.
	assert.Equal(t, 3, p.pick(p.Total()))
	assert.Equal(t, 3, p.pick(p.Total()*2))
}

func TestPopularityUniformWhenSkewZero(t *testing.T) {
	p, err := NewPopularity(4, 0)
	require.NoError(t, err)
	for r := 1; r <= 4; r++ {
		assert.InDelta(t, 0.25, p.Probability(r), 1e-12)
	}
}

func TestPopularityInvalid(t *testing.T) {
	_, err := NewPopularity(0, 1.2)
	assert.Error(t, err)
	_, err = NewPopularity(10, -1)
	assert.Error(t, err)
	_, err = NewPopularity(10, math.NaN())
	assert.Error(t, err)
}

func TestPopularitySingleItem(t *testing.T) {
	p, err := NewPopularity(1, 1.2)
	require.NoError(t, err)
	rng := xrand.New(xrand.NewSource(1))
	for i := 0; i < 100; i++ {
		assert.Equal(t, 1, p.Sample(rng))
	}
}
