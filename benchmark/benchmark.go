package benchmark

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cache-traffic-lab/logger"
	"cache-traffic-lab/workload"
)

type Runner struct {
	name           string
	target         Target
	workload       []workload.Operation
	concurrency    int
	valueSizeBytes int
	result         Result
	log            *slog.Logger
}

func NewRunner(name string, target Target, w []workload.Operation, concurrency, valueSizeBytes int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		name:           name,
		target:         target,
		workload:       w,
		concurrency:    concurrency,
		valueSizeBytes: valueSizeBytes,
		result: Result{
			StrategyName: name,
			Latencies:    make([]time.Duration, 0, len(w)),
		},
		log: logger.WithComponent("benchmark").With("strategy", name),
	}
}

func (r *Runner) Run(ctx context.Context) (Result, error) {
	if len(r.workload) == 0 {
		return r.result, fmt.Errorf("benchmark %s: empty workload", r.name)
	}

	var wg sync.WaitGroup
	wg.Add(r.concurrency)

	opsChan := make(chan workload.Operation, len(r.workload))
	for _, op := range r.workload {
		opsChan <- op
	}
	close(opsChan)

	latencyChan := make(chan time.Duration, len(r.workload))
	startTime := time.Now()

	r.log.Info("starting benchmark", "workers", r.concurrency, "operations", len(r.workload))
	for i := 0; i < r.concurrency; i++ {
		go r.worker(ctx, &wg, opsChan, latencyChan)
	}

	wg.Wait()
	close(latencyChan)

	r.result.TotalDuration = time.Since(startTime)

	for lat := range latencyChan {
		r.result.Latencies = append(r.result.Latencies, lat)
	}
	r.result.TotalOperations = int64(len(r.result.Latencies))

	r.calculateFinalMetrics()
	r.logResults()

	if err := ctx.Err(); err != nil {
		return r.result, fmt.Errorf("benchmark %s interrupted: %w", r.name, err)
	}
	return r.result, nil
}

func (r *Runner) worker(ctx context.Context, wg *sync.WaitGroup, ops <-chan workload.Operation, latencies chan<- time.Duration) {
	defer wg.Done()
	// Each worker generates its value once to avoid repeated allocation.
	valueToWrite := generateValue(r.valueSizeBytes)

	for op := range ops {
		if ctx.Err() != nil {
			return
		}
		var err error
		start := time.Now()
		switch op.Type {
		case workload.ReadOp:
			if r.target.Get(ctx, op.ID).Hit {
				atomic.AddInt64(&r.result.TotalHits, 1)
			} else {
				atomic.AddInt64(&r.result.TotalMisses, 1)
			}
		case workload.WriteOp:
			err = r.target.Put(ctx, op.ID, valueToWrite)
			if err == nil {
				atomic.AddInt64(&r.result.TotalWrites, 1)
			}
		case workload.DeleteOp:
			_, err = r.target.Invalidate(ctx, op.ID)
			if err == nil {
				atomic.AddInt64(&r.result.TotalDeletes, 1)
			}
		}
		latencies <- time.Since(start)

		if err != nil {
			atomic.AddInt64(&r.result.TotalErrors, 1)
		}
	}
}

func (r *Runner) calculateFinalMetrics() {
	if r.result.TotalHits+r.result.TotalMisses > 0 {
		r.result.HitRate = float64(r.result.TotalHits) / float64(r.result.TotalHits+r.result.TotalMisses)
	}
	if r.result.TotalDuration.Seconds() > 0 {
		r.result.OpsPerSecond = float64(r.result.TotalOperations) / r.result.TotalDuration.Seconds()
	}
}

func (r *Runner) logResults() {
	r.log.Info("benchmark results",
		"duration", r.result.TotalDuration,
		"operations", r.result.TotalOperations,
		"concurrency", r.concurrency,
		"ops_per_sec", fmt.Sprintf("%.2f", r.result.OpsPerSecond),
		"hit_rate_pct", fmt.Sprintf("%.2f", r.result.HitRate*100),
		"hits", r.result.TotalHits,
		"misses", r.result.TotalMisses,
		"writes", r.result.TotalWrites,
		"deletes", r.result.TotalDeletes,
		"errors", r.result.TotalErrors,
	)
}

func generateValue(size int) string {
	b := make([]byte, size)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
