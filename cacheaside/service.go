package cacheaside

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	xrand "golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"cache-traffic-lab/backend"
	"cache-traffic-lab/config"
	"cache-traffic-lab/logger"
	"cache-traffic-lab/metrics"
	"cache-traffic-lab/tracing"
)

// warmupWorkers bounds concurrent lookups during Warmup.
const warmupWorkers = 16

// Options configures the simulated data source behind the cache.
type Options struct {
	DefaultTTL     time.Duration
	MissLatencyMin time.Duration
	MissLatencyMax time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultTTL:     cfg.DefaultTTL,
		MissLatencyMin: cfg.MissLatencyMin,
		MissLatencyMax: cfg.MissLatencyMax,
	}
}

// Result is the outcome of one cache-aside lookup.
type Result struct {
	ID        int           `json:"id"`
	Value     string        `json:"value"`
	Hit       bool          `json:"hit"`
	Latency   time.Duration `json:"-"`
	LatencyMS int64         `json:"latency_ms"`
}

// Service reads items through the cache, fetching from a slow simulated
// source on a miss and writing the fetched value back. It never returns a
// backend failure to its caller; a failed lookup is reported as a miss.
type Service struct {
	backend backend.Backend
	opts    Options
	stats   Stats
	log     *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func New(b backend.Backend, opts Options) *Service {
	return &Service{
		backend: b,
		opts:    opts,
		log:     logger.WithComponent("cacheaside"),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Key returns the cache key for an item id.
func Key(id int) string {
	return "item:" + strconv.Itoa(id)
}

// Get returns item id, from the cache when present.
func (s *Service) Get(ctx context.Context, id int) Result {
	ctx, span := tracing.StartSpan(ctx, "cacheaside.Get", trace.WithAttributes(attribute.Int("item.id", id)))
	defer span.End()

	start := time.Now()
	key := Key(id)

	value, found, err := s.backend.Get(ctx, key)
	switch {
	case err != nil:
		s.log.Warn("cache lookup failed", "key", key, "error", err)
		span.RecordError(err)
		return s.finish(span, Result{ID: id, Value: s.synthesize(id)}, start, "error")
	case found:
		return s.finish(span, Result{ID: id, Value: value, Hit: true}, start, "hit")
	}

	s.sleep(ctx, s.missDelay())
	value = s.synthesize(id)
	if err := s.backend.Set(ctx, key, value, s.opts.DefaultTTL); err != nil {
		s.log.Warn("cache write-back failed", "key", key, "error", err)
		span.RecordError(err)
	}
	return s.finish(span, Result{ID: id, Value: value}, start, "miss")
}

func (s *Service) finish(span trace.Span, r Result, start time.Time, outcome string) Result {
	r.Latency = time.Since(start)
	r.LatencyMS = r.Latency.Milliseconds()
	if r.Hit {
		s.stats.RecordHit()
	} else {
		s.stats.RecordMiss()
	}

	metrics.CacheRequests.WithLabelValues(outcome).Inc()
	metrics.CacheRequestDuration.WithLabelValues(outcome).Observe(r.Latency.Seconds())
	span.SetAttributes(attribute.String("cache.result", outcome))
	s.log.Debug("cache get", "id", r.ID, "result", outcome, "latency_ms", r.LatencyMS)
	return r
}

// missDelay draws the simulated source latency from [min, max].
func (s *Service) missDelay() time.Duration {
	lo, hi := s.opts.MissLatencyMin, s.opts.MissLatencyMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(xrand.Int63n(int64(hi-lo)+1))
}

func (s *Service) synthesize(id int) string {
	return fmt.Sprintf("value_%d_%d", id, s.now().UnixMilli())
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Stats returns the current hit/miss counters.
func (s *Service) Stats() Snapshot {
	return s.stats.Snapshot()
}

// ResetStats zeroes the hit/miss counters.
func (s *Service) ResetStats() {
	s.stats.Reset()
}

// Put writes value for item id with the default TTL, bypassing the source.
func (s *Service) Put(ctx context.Context, id int, value string) error {
	if err := s.backend.Set(ctx, Key(id), value, s.opts.DefaultTTL); err != nil {
		return fmt.Errorf("put item %d: %w", id, err)
	}
	return nil
}

// Invalidate drops item id from the cache and reports whether it was present.
func (s *Service) Invalidate(ctx context.Context, id int) (bool, error) {
	n, err := s.backend.Del(ctx, Key(id))
	if err != nil {
		return false, fmt.Errorf("invalidate item %d: %w", id, err)
	}
	return n > 0, nil
}

// WarmupResult summarizes a Warmup run.
type WarmupResult struct {
	Warmed int   `json:"warmed"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Warmup reads items 1..count through the cache so later reads hit.
// Lookups run concurrently and count towards the regular statistics.
func (s *Service) Warmup(ctx context.Context, count int) (WarmupResult, error) {
	if count < 0 {
		return WarmupResult{}, fmt.Errorf("warmup count %d must not be negative", count)
	}

	results := make([]Result, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupWorkers)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.Get(gctx, i+1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WarmupResult{}, err
	}

	out := WarmupResult{Warmed: count}
	for _, r := range results {
		if r.Hit {
			out.Hits++
		} else {
			out.Misses++
		}
	}
	s.log.Info("cache warmed", "count", count, "hits", out.Hits, "misses", out.Misses)
	return out, nil
}
