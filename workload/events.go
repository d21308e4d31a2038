package workload

import (
	"time"

	"github.com/google/uuid"

	"cache-traffic-lab/cacheaside"
	"cache-traffic-lab/metrics"
)

// EventType labels every event on the stream.
const EventType = "cache_event"

// Event reports one generated operation.
type Event struct {
	Type      string              `json:"type"`
	ID        int                 `json:"id"`
	Hit       bool                `json:"hit"`
	LatencyMS int64               `json:"latency_ms"`
	Operation OperationType       `json:"operation"`
	Timestamp time.Time           `json:"timestamp"`
	Stats     cacheaside.Snapshot `json:"stats"`
}

// Subscribe registers fn for every future event. fn runs on the generator's
// goroutine and should return quickly.
func (g *Generator) Subscribe(fn func(Event)) uuid.UUID {
	id := uuid.New()
	g.subsMu.Lock()
	g.subs[id] = fn
	n := len(g.subs)
	g.subsMu.Unlock()
	metrics.TrafficSubscribers.Set(float64(n))
	return id
}

// Unsubscribe removes a subscription and reports whether it existed.
func (g *Generator) Unsubscribe(id uuid.UUID) bool {
	g.subsMu.Lock()
	_, ok := g.subs[id]
	delete(g.subs, id)
	n := len(g.subs)
	g.subsMu.Unlock()
	metrics.TrafficSubscribers.Set(float64(n))
	return ok
}

func (g *Generator) publish(e Event) {
	g.subsMu.RLock()
	fns := make([]func(Event), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subsMu.RUnlock()

	for _, fn := range fns {
		g.deliver(fn, e)
	}
}

func (g *Generator) deliver(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("event subscriber panicked", "panic", r)
		}
	}()
	fn(e)
}
