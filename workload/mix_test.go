package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xrand "golang.org/x/exp/rand"
)

func TestMixPick(t *testing.T) {
	m := DefaultMix
	assert.Equal(t, ReadOp, m.Pick(0))
	assert.Equal(t, ReadOp, m.Pick(0.69))
	assert.Equal(t, WriteOp, m.Pick(0.7))
	assert.Equal(t, WriteOp, m.Pick(0.89))
	assert.Equal(t, DeleteOp, m.Pick(0.9))
	assert.Equal(t, DeleteOp, m.Pick(0.999))
}

func TestMixForModes(t *testing.T) {
	rng := xrand.New(xrand.NewSource(7))
	for i := 0; i < 1000; i++ {
		u := rng.Float64()
		assert.Equal(t, ReadOp, MixFor(ModeRead).Pick(u))
		assert.Equal(t, WriteOp, MixFor(ModeWrite).Pick(u))
	}
	assert.Equal(t, DefaultMix, MixFor(ModeMixed))
}

func TestMixedProportions(t *testing.T) {
	const n = 100000
	rng := xrand.New(xrand.NewSource(3))
	counts := map[OperationType]int{}
	for i := 0; i < n; i++ {
		counts[DefaultMix.Pick(rng.Float64())]++
	}
	assert.InDelta(t, 0.7, float64(counts[ReadOp])/n, 0.01)
	assert.InDelta(t, 0.2, float64(counts[WriteOp])/n, 0.01)
	assert.InDelta(t, 0.1, float64(counts[DeleteOp])/n, 0.01)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Mixed ")
	require.NoError(t, err)
	assert.Equal(t, ModeMixed, m)

	_, err = ParseMode("scan")
	assert.Error(t, err)
}

func TestOperationTypeText(t *testing.T) {
	b, err := DeleteOp.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "delete", string(b))
	assert.Equal(t, "read", ReadOp.String())
	assert.Equal(t, "write", WriteOp.String())
}

func TestGenerateWorkloads(t *testing.T) {
	ops := Generate(10000, 100, ReadWrite(0.9), 1.01, 1)
	require.Len(t, ops, 10000)
	reads := 0
	for _, op := range ops {
		require.GreaterOrEqual(t, op.ID, 1)
		require.LessOrEqual(t, op.ID, 100)
		if op.Type == ReadOp {
			reads++
		}
		require.NotEqual(t, DeleteOp, op.Type)
	}
	assert.InDelta(t, 0.9, float64(reads)/10000, 0.03)

	uniform := GenerateUniform(1000, 10, ReadWrite(1))
	for _, op := range uniform {
		assert.Equal(t, ReadOp, op.Type)
		assert.True(t, op.ID >= 1 && op.ID <= 10)
	}

	table, err := NewPopularity(50, 1.2)
	require.NoError(t, err)
	for _, op := range GeneratePopularity(1000, table, DefaultMix) {
		assert.True(t, op.ID >= 1 && op.ID <= 50)
	}
}
