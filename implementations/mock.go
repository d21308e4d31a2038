package implementations

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is one stored value. A zero ExpiresAt means no expiry.
type Entry struct {
	Value      string
	InsertedAt time.Time
	ExpiresAt  time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// MockStore is the in-process fallback store. Expired entries are treated as
// absent on read; an optional sweeper also removes them in the background.
type MockStore struct {
	mu   sync.RWMutex
	data map[string]*Entry
	now  func() time.Time

	commands atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMockStore creates an empty store. A positive sweepInterval starts a
// goroutine that deletes expired entries on that period until Close.
func NewMockStore(sweepInterval time.Duration) *MockStore {
	m := &MockStore{
		data: make(map[string]*Entry),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go m.sweep(sweepInterval)
	}
	return m
}

func (m *MockStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *MockStore) removeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}

func (m *MockStore) Name() string { return "In-memory mock store" }

func (m *MockStore) Ping(ctx context.Context) (string, error) {
	m.commands.Add(1)
	return "PONG", nil
}

// lookup returns the live entry for key. Callers hold at least the read lock.
func (m *MockStore) lookup(key string, now time.Time) (*Entry, bool) {
	e, ok := m.data[key]
	if !ok || e.expired(now) {
		return nil, false
	}
	return e, true
}

func (m *MockStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.commands.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.lookup(key, m.now())
	if !ok {
		return "", false, nil
	}
	return e.Value, true, nil
}

func (m *MockStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.commands.Add(1)
	now := m.now()
	e := &Entry{Value: value, InsertedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}

	m.mu.Lock()
	m.data[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MockStore) Del(ctx context.Context, key string) (int64, error) {
	m.commands.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	_, live := m.lookup(key, m.now())
	delete(m.data, key)
	if !live {
		return 0, nil
	}
	return 1, nil
}

func (m *MockStore) Exists(ctx context.Context, key string) (bool, error) {
	m.commands.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.lookup(key, m.now())
	return ok, nil
}

// Keys matches live keys against a glob pattern (*, ?, [...]) and returns them sorted.
func (m *MockStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.commands.Add(1)
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("keys: invalid pattern %q: %w", pattern, err)
	}

	m.mu.RLock()
	now := m.now()
	keys := make([]string, 0, len(m.data))
	for key, e := range m.data {
		if e.expired(now) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

func (m *MockStore) FlushDB(ctx context.Context) error {
	m.commands.Add(1)
	m.mu.Lock()
	m.data = make(map[string]*Entry)
	m.mu.Unlock()
	return nil
}

func (m *MockStore) DBSize(ctx context.Context) (int64, error) {
	m.commands.Add(1)
	size, _ := m.counts()
	return size, nil
}

// counts returns the number of live keys and how many of them carry a TTL.
func (m *MockStore) counts() (size, expires int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	for _, e := range m.data {
		if e.expired(now) {
			continue
		}
		size++
		if !e.ExpiresAt.IsZero() {
			expires++
		}
	}
	return size, expires
}

// Info reports the store in the sectioned key:value format of the binary server.
func (m *MockStore) Info(ctx context.Context) (string, error) {
	m.commands.Add(1)
	size, expires := m.counts()

	var b strings.Builder
	b.WriteString("# Server\r\n")
	b.WriteString("redis_version:mock-0.1.0\r\n")
	b.WriteString("redis_mode:standalone\r\n\r\n")
	b.WriteString("# Stats\r\n")
	fmt.Fprintf(&b, "total_commands_processed:%d\r\n\r\n", m.commands.Load())
	b.WriteString("# Keyspace\r\n")
	fmt.Fprintf(&b, "db0:keys=%d,expires=%d\r\n", size, expires)
	return b.String(), nil
}

// Close stops the sweeper if one is running.
func (m *MockStore) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}
