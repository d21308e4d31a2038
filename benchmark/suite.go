package benchmark

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"cache-traffic-lab/backend"
	"cache-traffic-lab/cacheaside"
	"cache-traffic-lab/logger"
	"cache-traffic-lab/workload"
)

// Scenario holds the parameters for a single benchmark scenario.
type Scenario struct {
	Name           string
	NumOperations  int
	NumKeys        int
	ReadWriteRatio float64
	DeleteRatio    float64
	Concurrency    int
	ValueSizeBytes int
	Uniform        bool
	ZipfS          float64
	ZipfV          float64
}

func (s Scenario) mix() workload.Mix {
	m := workload.ReadWrite(s.ReadWriteRatio)
	if s.DeleteRatio > 0 {
		m.Write -= s.DeleteRatio
		m.Delete = s.DeleteRatio
	}
	return m
}

// Workload generates the scenario's operations.
func (s Scenario) Workload() []workload.Operation {
	if s.Uniform {
		return workload.GenerateUniform(s.NumOperations, s.NumKeys, s.mix())
	}
	return workload.Generate(s.NumOperations, s.NumKeys, s.mix(), s.ZipfS, s.ZipfV)
}

// DefaultScenarios is the standard comparison table.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name:           "Read-Heavy (90% Read, 64B Values)",
			NumOperations:  100000,
			NumKeys:        10000,
			ReadWriteRatio: 0.9,
			Concurrency:    64,
			ValueSizeBytes: 64,
			ZipfS:          1.01,
			ZipfV:          1,
		},
		{
			Name:           "Write-Heavy (50% Read, 64B Values)",
			NumOperations:  100000,
			NumKeys:        10000,
			ReadWriteRatio: 0.5,
			Concurrency:    64,
			ValueSizeBytes: 64,
			ZipfS:          1.01,
			ZipfV:          1,
		},
		{
			Name:           "Churn (70% Read, 20% Write, 10% Invalidate)",
			NumOperations:  100000,
			NumKeys:        10000,
			ReadWriteRatio: 0.7,
			DeleteRatio:    0.1,
			Concurrency:    64,
			ValueSizeBytes: 64,
			ZipfS:          1.01,
			ZipfV:          1,
		},
		{
			Name:           "Uniform Workload (Worst-Case, 90% Read)",
			NumOperations:  100000,
			NumKeys:        10000,
			ReadWriteRatio: 0.9,
			Concurrency:    64,
			ValueSizeBytes: 64,
			Uniform:        true,
		},
		{
			Name:           "Memory-Intensive (90% Read, 1KB Values)",
			NumOperations:  50000, // Reduced ops to keep test duration reasonable
			NumKeys:        10000,
			ReadWriteRatio: 0.9,
			Concurrency:    64,
			ValueSizeBytes: 1024,
			ZipfS:          1.01,
			ZipfV:          1,
		},
	}
}

// Strategy opens a fresh backend for one run.
type Strategy struct {
	Name string
	Open func(ctx context.Context) (backend.Backend, error)
}

// Suite runs every scenario against every strategy.
type Suite struct {
	Scenarios  []Scenario
	Strategies []Strategy
	Cache      cacheaside.Options
	// Prefill writes every key before a run so reads start warm.
	Prefill bool
}

// Run returns results keyed by scenario name, in scenario order.
func (s *Suite) Run(ctx context.Context) (map[string][]Result, error) {
	log := logger.WithComponent("benchmark")
	allResults := make(map[string][]Result)

	for _, sc := range s.Scenarios {
		log.Info("starting scenario", "scenario", sc.Name, "operations", sc.NumOperations,
			"keys", sc.NumKeys, "concurrency", sc.Concurrency, "read_ratio", sc.ReadWriteRatio,
			"value_bytes", sc.ValueSizeBytes)
		w := sc.Workload()

		for _, st := range s.Strategies {
			res, err := s.runOne(ctx, sc, st, w)
			if err != nil {
				if ctx.Err() != nil {
					return allResults, err
				}
				log.Error("benchmark run failed", "scenario", sc.Name, "strategy", st.Name, "error", err)
				continue
			}
			allResults[sc.Name] = append(allResults[sc.Name], res)
		}
	}
	return allResults, nil
}

func (s *Suite) runOne(ctx context.Context, sc Scenario, st Strategy, w []workload.Operation) (Result, error) {
	b, err := st.Open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", st.Name, err)
	}
	defer b.Close()

	svc := cacheaside.New(b, s.Cache)
	if s.Prefill {
		if err := prepareData(ctx, b, svc, sc); err != nil {
			return Result{}, fmt.Errorf("prepare %s: %w", st.Name, err)
		}
	} else if err := b.FlushDB(ctx); err != nil {
		return Result{}, fmt.Errorf("flush %s: %w", st.Name, err)
	}
	return NewRunner(st.Name, svc, w, sc.Concurrency, sc.ValueSizeBytes).Run(ctx)
}

// prepareData flushes the store and writes every key of the scenario.
func prepareData(ctx context.Context, b backend.Backend, svc *cacheaside.Service, sc Scenario) error {
	if err := b.FlushDB(ctx); err != nil {
		return fmt.Errorf("failed to flush datastore: %w", err)
	}
	value := generateValue(sc.ValueSizeBytes)
	for id := 1; id <= sc.NumKeys; id++ {
		if err := svc.Put(ctx, id, value); err != nil {
			return err
		}
	}
	return nil
}

// PrintComparison writes one table per scenario.
func PrintComparison(out io.Writer, scenarios []Scenario, allResults map[string][]Result) {
	fmt.Fprintln(out, "\n--- Final Benchmark Comparison ---")

	for _, sc := range scenarios {
		results, ok := allResults[sc.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "\n--- Scenario: %s ---\n", sc.Name)
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
		fmt.Fprintln(w, "Strategy\tOps/sec\tHit Rate (%)\tAvg Latency (ms)\tP95 Latency (ms)\tErrors\t")

		for i := range results {
			r := &results[i]
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.4f\t%.4f\t%d\t\n",
				r.StrategyName,
				r.OpsPerSecond,
				r.HitRate*100,
				float64(r.AvgLatency().Microseconds())/1000.0,
				float64(r.Percentile(0.95).Microseconds())/1000.0,
				r.TotalErrors,
			)
		}
		w.Flush()
	}
}
