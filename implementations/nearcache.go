package implementations

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"

	"cache-traffic-lab/backend"
)

// genStripes is the number of write generations keys are hashed onto.
const genStripes = 256

// NearCache keeps recently read values in a process-local ristretto cache in
// front of another backend. Writes go through to the backend and drop the
// local copy. A local copy lives for at most ttl, and never past the expiry
// of a TTL written through this cache.
type NearCache struct {
	backend.Backend
	l1  *ristretto.Cache
	ttl time.Duration
	now func() time.Time

	// mu orders local fills against writes. A read that overlapped a write
	// to the same stripe does not fill.
	mu        sync.Mutex
	gens      [genStripes]uint64
	deadlines map[string]time.Time
}

type nearEntry struct {
	value     string
	expiresAt time.Time
}

// NewNearCache wraps next. maxCost bounds the local cache in bytes of value data.
func NewNearCache(next backend.Backend, maxCost int64, ttl time.Duration) (*NearCache, error) {
	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &NearCache{
		Backend:   next,
		l1:        l1,
		ttl:       ttl,
		now:       time.Now,
		deadlines: make(map[string]time.Time),
	}, nil
}

func (n *NearCache) Name() string {
	return n.Backend.Name() + " + near cache"
}

// Unwrap returns the backend behind the local cache.
func (n *NearCache) Unwrap() backend.Backend { return n.Backend }

func stripe(key string) int {
	return int(xxhash.Sum64String(key) % genStripes)
}

func (n *NearCache) Get(ctx context.Context, key string) (string, bool, error) {
	if val, found := n.l1.Get(key); found {
		e := val.(nearEntry)
		if n.now().Before(e.expiresAt) {
			return e.value, true, nil
		}
		n.l1.Del(key)
	}

	s := stripe(key)
	n.mu.Lock()
	gen := n.gens[s]
	n.mu.Unlock()

	value, found, err := n.Backend.Get(ctx, key)
	if err != nil {
		return value, found, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if !found {
		delete(n.deadlines, key)
		return value, false, nil
	}
	if n.gens[s] != gen {
		return value, true, nil
	}

	now := n.now()
	ttl := n.ttl
	if deadline, ok := n.deadlines[key]; ok {
		left := deadline.Sub(now)
		if left <= 0 {
			return value, true, nil
		}
		ttl = min(ttl, left)
	}
	n.l1.SetWithTTL(key, nearEntry{value: value, expiresAt: now.Add(ttl)}, int64(len(value)), ttl)
	return value, true, nil
}

// invalidate bumps the key's write generation and drops any local copy,
// including one a concurrent read queued before the write finished.
func (n *NearCache) invalidate(key string, record func()) {
	n.mu.Lock()
	n.gens[stripe(key)]++
	record()
	n.l1.Del(key)
	n.mu.Unlock()
}

func (n *NearCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	// Taken before the write so the recorded deadline is never later than the backend's.
	start := n.now()
	n.l1.Del(key)
	err := n.Backend.Set(ctx, key, value, ttl)
	n.invalidate(key, func() {
		switch {
		case err != nil:
		case ttl > 0:
			n.deadlines[key] = start.Add(ttl)
		default:
			delete(n.deadlines, key)
		}
	})
	return err
}

func (n *NearCache) Del(ctx context.Context, key string) (int64, error) {
	n.l1.Del(key)
	removed, err := n.Backend.Del(ctx, key)
	n.invalidate(key, func() { delete(n.deadlines, key) })
	return removed, err
}

func (n *NearCache) FlushDB(ctx context.Context) error {
	n.l1.Clear()
	err := n.Backend.FlushDB(ctx)

	n.mu.Lock()
	for i := range n.gens {
		n.gens[i]++
	}
	clear(n.deadlines)
	n.l1.Clear()
	n.mu.Unlock()
	return err
}

// Wait blocks until buffered local writes are applied.
func (n *NearCache) Wait() { n.l1.Wait() }

func (n *NearCache) Close() error {
	n.l1.Close()
	return n.Backend.Close()
}
