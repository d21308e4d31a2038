package cacheaside

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cache-traffic-lab/backend"
	"cache-traffic-lab/implementations"
)

// flakyBackend fails selected operations.
type flakyBackend struct {
	backend.Backend
	mu      sync.Mutex
	failGet bool
	failSet bool
}

var errBoom = &backend.ConnectionError{Op: "test", Addr: "flaky", Err: errors.New("boom")}

func (f *flakyBackend) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return "", false, errBoom
	}
	return f.Backend.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errBoom
	}
	return f.Backend.Set(ctx, key, value, ttl)
}

func fastOptions() Options {
	return Options{DefaultTTL: time.Minute, MissLatencyMin: 0, MissLatencyMax: 0}
}

func TestGetMissThenHit(t *testing.T) {
	store := implementations.NewMockStore(0)
	s := New(store, fastOptions())
	ctx := context.Background()

	first := s.Get(ctx, 7)
	assert.False(t, first.Hit)
	assert.Equal(t, 7, first.ID)
	assert.Regexp(t, `^value_7_\d+$`, first.Value)

	stored, found, err := store.Get(ctx, "item:7")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first.Value, stored)

	second := s.Get(ctx, 7)
	assert.True(t, second.Hit)
	assert.Equal(t, first.Value, second.Value)

	assert.Equal(t, Snapshot{Hits: 1, Misses: 1, Ratio: 0.5}, s.Stats())
}

func TestGetWritesBackWithDefaultTTL(t *testing.T) {
	store := implementations.NewMockStore(0)
	s := New(store, Options{DefaultTTL: 60 * time.Second})
	s.Get(context.Background(), 1)

	info, err := store.Info(context.Background())
	require.NoError(t, err)
	assert.Contains(t, info, "db0:keys=1,expires=1")
}

func TestGetBackendErrorIsMiss(t *testing.T) {
	flaky := &flakyBackend{Backend: implementations.NewMockStore(0), failGet: true}
	s := New(flaky, Options{DefaultTTL: time.Minute, MissLatencyMin: time.Second, MissLatencyMax: time.Second})
	slept := false
	s.sleep = func(context.Context, time.Duration) { slept = true }

	r := s.Get(context.Background(), 3)
	assert.False(t, r.Hit)
	assert.Regexp(t, `^value_3_\d+$`, r.Value)
	assert.False(t, slept, "a failed lookup returns without the source delay")
	assert.Equal(t, int64(1), s.Stats().Misses)
}

func TestGetWriteBackErrorStillReturnsValue(t *testing.T) {
	flaky := &flakyBackend{Backend: implementations.NewMockStore(0), failSet: true}
	s := New(flaky, fastOptions())

	r := s.Get(context.Background(), 4)
	assert.False(t, r.Hit)
	assert.NotEmpty(t, r.Value)

	r = s.Get(context.Background(), 4)
	assert.False(t, r.Hit, "nothing was cached")
	assert.Equal(t, Snapshot{Hits: 0, Misses: 2, Ratio: 0}, s.Stats())
}

func TestMissDelayWithinBounds(t *testing.T) {
	s := New(implementations.NewMockStore(0), Options{
		DefaultTTL:     time.Minute,
		MissLatencyMin: 600 * time.Millisecond,
		MissLatencyMax: 1200 * time.Millisecond,
	})
	for i := 0; i < 1000; i++ {
		d := s.missDelay()
		require.GreaterOrEqual(t, d, 600*time.Millisecond)
		require.LessOrEqual(t, d, 1200*time.Millisecond)
	}

	s.opts.MissLatencyMax = s.opts.MissLatencyMin
	assert.Equal(t, 600*time.Millisecond, s.missDelay())
}

func TestColdAndWarmLatency(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a simulated source fetch")
	}
	s := New(implementations.NewMockStore(0), Options{
		DefaultTTL:     60 * time.Second,
		MissLatencyMin: 600 * time.Millisecond,
		MissLatencyMax: 1200 * time.Millisecond,
	})
	ctx := context.Background()

	cold := s.Get(ctx, 1)
	assert.False(t, cold.Hit)
	assert.GreaterOrEqual(t, cold.Latency, 600*time.Millisecond)
	assert.Less(t, cold.Latency, 1300*time.Millisecond)

	warm := s.Get(ctx, 1)
	assert.True(t, warm.Hit)
	assert.Less(t, warm.Latency, 10*time.Millisecond)
}

func TestGetCancelledContextSkipsDelay(t *testing.T) {
	s := New(implementations.NewMockStore(0), Options{
		DefaultTTL:     time.Minute,
		MissLatencyMin: time.Hour,
		MissLatencyMax: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan Result, 1)
	go func() { done <- s.Get(ctx, 1) }()
	select {
	case r := <-done:
		assert.False(t, r.Hit)
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not return after cancellation")
	}
}

func TestPutAndInvalidate(t *testing.T) {
	s := New(implementations.NewMockStore(0), fastOptions())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, 9, "preset"))
	r := s.Get(ctx, 9)
	assert.True(t, r.Hit)
	assert.Equal(t, "preset", r.Value)

	removed, err := s.Invalidate(ctx, 9)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Invalidate(ctx, 9)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.False(t, s.Get(ctx, 9).Hit)
}

func TestPutPropagatesBackendError(t *testing.T) {
	s := New(&flakyBackend{Backend: implementations.NewMockStore(0), failSet: true}, fastOptions())
	err := s.Put(context.Background(), 1, "v")
	assert.ErrorIs(t, err, backend.ErrConnection)
}

func TestWarmup(t *testing.T) {
	s := New(implementations.NewMockStore(0), fastOptions())
	ctx := context.Background()

	res, err := s.Warmup(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, WarmupResult{Warmed: 50, Hits: 0, Misses: 50}, res)

	res, err = s.Warmup(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Hits)
	assert.Equal(t, int64(10), res.Misses)

	_, err = s.Warmup(ctx, -1)
	assert.Error(t, err)
}

func TestResetStats(t *testing.T) {
	s := New(implementations.NewMockStore(0), fastOptions())
	s.Get(context.Background(), 1)
	s.ResetStats()
	assert.Equal(t, Snapshot{}, s.Stats())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "item:1", Key(1))
	assert.Equal(t, "item:200", Key(200))
}
