package benchmark

import (
	"context"
	"sort"
	"time"

	"cache-traffic-lab/cacheaside"
)

// Target is the cache a benchmark drives.
// This allows us to benchmark different backends with the same test harness.
type Target interface {
	// Get reads an item through the cache and reports whether it was a hit.
	Get(ctx context.Context, id int) cacheaside.Result
	// Put writes an item straight into the cache.
	Put(ctx context.Context, id int, value string) error
	// Invalidate removes an item from the cache.
	Invalidate(ctx context.Context, id int) (bool, error)
}

// Result holds the collected metrics from a single benchmark run.
type Result struct {
	StrategyName    string
	TotalOperations int64
	TotalHits       int64
	TotalMisses     int64
	TotalWrites     int64
	TotalDeletes    int64
	TotalErrors     int64
	TotalDuration   time.Duration
	HitRate         float64
	OpsPerSecond    float64
	Latencies       []time.Duration
}

// AvgLatency is the mean over all recorded operations.
func (r *Result) AvgLatency() time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range r.Latencies {
		total += lat
	}
	return total / time.Duration(len(r.Latencies))
}

// Percentile returns the latency at fraction p in (0, 1]. Latencies are sorted in place.
// Runs with 20 or fewer samples report 0.
func (r *Result) Percentile(p float64) time.Duration {
	if len(r.Latencies) <= 20 {
		return 0
	}
	sort.Slice(r.Latencies, func(i, j int) bool {
		return r.Latencies[i] < r.Latencies[j]
	})
	idx := int(float64(len(r.Latencies)) * p)
	if idx >= len(r.Latencies) {
		idx = len(r.Latencies) - 1
	}
	return r.Latencies[idx]
}
