package workload

import (
	"time"

	xrand "golang.org/x/exp/rand"
)

// Operation is one step of a finite benchmark workload.
type Operation struct {
	Type OperationType
	ID   int
}

func newRand() *xrand.Rand {
	return xrand.New(xrand.NewSource(uint64(time.Now().UnixNano())))
}

// Generate generates a workload with a given number of operations over item ids 1..numKeys.
// mix sets the proportion of reads, writes and deletes.
// zipfS and zipfV are parameters for the Zipf distribution, controlling the skew.
func Generate(numOps, numKeys int, mix Mix, zipfS, zipfV float64) []Operation {
	ops := make([]Operation, numOps)
	rng := newRand()
	zipf := xrand.NewZipf(rng, zipfS, zipfV, uint64(numKeys-1))

	for i := 0; i < numOps; i++ {
		ops[i] = Operation{
			Type: mix.Pick(rng.Float64()),
			ID:   int(zipf.Uint64()) + 1,
		}
	}
	return ops
}

// GenerateUniform generates a workload where every item has an equal probability of being accessed.
// This represents a worst-case scenario for caching.
func GenerateUniform(numOps, numKeys int, mix Mix) []Operation {
	ops := make([]Operation, numOps)
	rng := newRand()

	for i := 0; i < numOps; i++ {
		ops[i] = Operation{
			Type: mix.Pick(rng.Float64()),
			ID:   rng.Intn(numKeys) + 1,
		}
	}
	return ops
}

// GeneratePopularity draws item ids from a popularity table, the same way live traffic does.
func GeneratePopularity(numOps int, table *Popularity, mix Mix) []Operation {
	ops := make([]Operation, numOps)
	rng := newRand()

	for i := 0; i < numOps; i++ {
		ops[i] = Operation{
			Type: mix.Pick(rng.Float64()),
			ID:   table.Sample(rng),
		}
	}
	return ops
}
