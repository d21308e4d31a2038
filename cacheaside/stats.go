package cacheaside

import "sync"

// Snapshot is a point-in-time copy of the hit/miss counters.
type Snapshot struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Ratio  float64 `json:"ratio"`
}

// Stats counts cache-aside outcomes. The zero value is ready to use.
type Stats struct {
	mu     sync.Mutex
	hits   int64
	misses int64
}

func (s *Stats) RecordHit() {
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
}

func (s *Stats) RecordMiss() {
	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
}

// Snapshot returns the counters and hits/(hits+misses), or 0 with no traffic.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Hits: s.hits, Misses: s.misses}
	if total := s.hits + s.misses; total > 0 {
		snap.Ratio = float64(s.hits) / float64(total)
	}
	return snap
}

func (s *Stats) Reset() {
	s.mu.Lock()
	s.hits, s.misses = 0, 0
	s.mu.Unlock()
}
