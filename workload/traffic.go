package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	xrand "golang.org/x/exp/rand"

	"cache-traffic-lab/cacheaside"
	"cache-traffic-lab/config"
	"cache-traffic-lab/logger"
	"cache-traffic-lab/metrics"
)

// Pattern shapes the spacing between generated operations.
type Pattern string

const (
	PatternConstant Pattern = "constant"
	PatternSpike    Pattern = "spike"
	PatternWave     Pattern = "wave"
	PatternRandom   Pattern = "random"
)

const (
	spikeProbability = 0.1
	spikeDivisor     = 10
	wavePeriod       = 10 * time.Second
	waveAmplitude    = 0.5
)

func ParsePattern(s string) (Pattern, error) {
	switch p := Pattern(strings.ToLower(strings.TrimSpace(s))); p {
	case PatternConstant, PatternSpike, PatternWave, PatternRandom:
		return p, nil
	default:
		return "", fmt.Errorf("unknown traffic pattern %q", s)
	}
}

// TrafficConfig describes generated traffic.
type TrafficConfig struct {
	Rate       float64 `json:"rate"`
	Pattern    Pattern `json:"pattern"`
	Operation  Mode    `json:"operation"`
	Population int     `json:"population"`
	Skew       float64 `json:"skew"`
}

func TrafficConfigFromConfig(cfg *config.Config) TrafficConfig {
	return TrafficConfig{
		Rate:       cfg.TrafficRate,
		Pattern:    Pattern(cfg.TrafficPattern),
		Operation:  Mode(cfg.TrafficOperation),
		Population: cfg.TrafficPopulation,
		Skew:       cfg.TrafficSkew,
	}
}

func (c TrafficConfig) Validate() error {
	var errs []error
	if c.Rate <= 0 || math.IsNaN(c.Rate) || math.IsInf(c.Rate, 0) {
		errs = append(errs, fmt.Errorf("rate %g must be positive", c.Rate))
	}
	if _, err := ParsePattern(string(c.Pattern)); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseMode(string(c.Operation)); err != nil {
		errs = append(errs, err)
	}
	if c.Population < 1 {
		errs = append(errs, fmt.Errorf("population %d must be at least 1", c.Population))
	}
	if c.Skew < 0 || math.IsNaN(c.Skew) || math.IsInf(c.Skew, 0) {
		errs = append(errs, fmt.Errorf("invalid skew %g", c.Skew))
	}
	return errors.Join(errs...)
}

// Nominal is the constant-pattern interval, 1/rate.
func (c TrafficConfig) Nominal() time.Duration {
	return time.Duration(float64(time.Second) / c.Rate)
}

// ConfigUpdate changes only the fields that are set.
type ConfigUpdate struct {
	Rate       *float64 `json:"rate,omitempty"`
	Pattern    *Pattern `json:"pattern,omitempty"`
	Operation  *Mode    `json:"operation,omitempty"`
	Population *int     `json:"population,omitempty"`
	Skew       *float64 `json:"skew,omitempty"`
}

func (u ConfigUpdate) apply(c TrafficConfig) TrafficConfig {
	if u.Rate != nil {
		c.Rate = *u.Rate
	}
	if u.Pattern != nil {
		c.Pattern = Pattern(strings.ToLower(string(*u.Pattern)))
	}
	if u.Operation != nil {
		c.Operation = Mode(strings.ToLower(string(*u.Operation)))
	}
	if u.Population != nil {
		c.Population = *u.Population
	}
	if u.Skew != nil {
		c.Skew = *u.Skew
	}
	return c
}

// Getter is the cache the generator drives.
type Getter interface {
	Get(ctx context.Context, id int) cacheaside.Result
	Stats() cacheaside.Snapshot
}

// Generator issues cache lookups on a timer and publishes an Event for each.
// The timer is re-armed only after the previous tick has finished, and ticks
// additionally hold tickMu, so two lookups never run at once.
type Generator struct {
	cache Getter
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex
	cfg     TrafficConfig
	table   *Popularity
	rng     *xrand.Rand
	running bool
	epoch   uint64
	timer   *time.Timer

	tickMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[uuid.UUID]func(Event)
}

func NewGenerator(cache Getter, cfg TrafficConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := NewPopularity(cfg.Population, cfg.Skew)
	if err != nil {
		return nil, err
	}
	return &Generator{
		cache: cache,
		log:   logger.WithComponent("traffic"),
		now:   time.Now,
		cfg:   cfg,
		table: table,
		rng:   newRand(),
		subs:  make(map[uuid.UUID]func(Event)),
	}, nil
}

// Start begins scheduling. It returns false if traffic is already running.
func (g *Generator) Start() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	g.epoch++
	g.armLocked(g.intervalLocked(), g.epoch)
	g.log.Info("traffic started", "rate", g.cfg.Rate, "pattern", g.cfg.Pattern, "operation", g.cfg.Operation)
	return true
}

// Stop cancels the pending tick. A tick already in flight completes and its
// event is still published, but it schedules nothing further.
func (g *Generator) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return false
	}
	g.running = false
	g.epoch++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.log.Info("traffic stopped")
	return true
}

func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *Generator) Config() TrafficConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Configure merges u into the current settings. Changes apply from the next tick.
func (g *Generator) Configure(u ConfigUpdate) (TrafficConfig, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := u.apply(g.cfg)
	if err := next.Validate(); err != nil {
		return g.cfg, err
	}
	if next.Population != g.cfg.Population || next.Skew != g.cfg.Skew {
		table, err := NewPopularity(next.Population, next.Skew)
		if err != nil {
			return g.cfg, err
		}
		g.table = table
	}
	g.cfg = next
	g.log.Info("traffic reconfigured", "rate", next.Rate, "pattern", next.Pattern,
		"operation", next.Operation, "population", next.Population, "skew", next.Skew)
	return next, nil
}

func (g *Generator) armLocked(d time.Duration, epoch uint64) {
	g.timer = time.AfterFunc(d, func() { g.tick(epoch) })
}

// intervalLocked computes the wait before the next tick from the pattern.
func (g *Generator) intervalLocked() time.Duration {
	nominal := g.cfg.Nominal()
	switch g.cfg.Pattern {
	case PatternSpike:
		if g.rng.Float64() < spikeProbability {
			return nominal / spikeDivisor
		}
		return nominal
	case PatternWave:
		phase := float64(g.now().UnixNano()%int64(wavePeriod)) / float64(wavePeriod)
		speed := 1 + waveAmplitude*math.Sin(2*math.Pi*phase)
		return time.Duration(float64(nominal) / speed)
	case PatternRandom:
		return time.Duration(g.rng.Float64() * 2 * float64(nominal))
	default:
		return nominal
	}
}

func (g *Generator) tick(epoch uint64) {
	g.tickMu.Lock()
	defer g.tickMu.Unlock()

	g.mu.Lock()
	if !g.running || g.epoch != epoch {
		g.mu.Unlock()
		return
	}
	id := g.table.Sample(g.rng)
	op := MixFor(g.cfg.Operation).Pick(g.rng.Float64())
	g.mu.Unlock()

	start := time.Now()
	// Stop must not cancel the lookup, so it does not share a context with the scheduler.
	res := g.cache.Get(context.Background(), id)
	metrics.TrafficTicks.WithLabelValues(op.String()).Inc()

	g.publish(Event{
		Type:      EventType,
		ID:        res.ID,
		Hit:       res.Hit,
		LatencyMS: res.LatencyMS,
		Operation: op,
		Timestamp: g.now(),
		Stats:     g.cache.Stats(),
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running || g.epoch != epoch {
		return
	}
	delay := g.intervalLocked() - time.Since(start)
	if delay < 0 {
		delay = 0
	}
	g.armLocked(delay, epoch)
}
