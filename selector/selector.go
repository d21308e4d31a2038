package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cache-traffic-lab/backend"
	"cache-traffic-lab/config"
	"cache-traffic-lab/implementations"
	"cache-traffic-lab/logger"
	"cache-traffic-lab/metrics"
	"cache-traffic-lab/tracing"
)

// State is a step of backend negotiation.
type State int

const (
	Unconfigured State = iota
	ProbingBinary
	ProbingStandard
	Active
)

func (s State) String() string {
	switch s {
	case ProbingBinary:
		return "probing_binary"
	case ProbingStandard:
		return "probing_standard"
	case Active:
		return "active"
	default:
		return "unconfigured"
	}
}

// Options controls which stores are probed and how long each probe may take.
type Options struct {
	UseBinary       bool
	BinaryHost      string
	BinaryPort      int
	BinaryTimeout   time.Duration
	StandardURL     string
	StandardTimeout time.Duration
	CommandTimeout  time.Duration

	MockFallback      bool
	MockSweepInterval time.Duration

	NearCache        bool
	NearCacheMaxCost int64
	NearCacheTTL     time.Duration
}

// OptionsFromConfig maps the environment configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		UseBinary:         cfg.UseBinaryBackend,
		BinaryHost:        cfg.BinaryHost,
		BinaryPort:        cfg.BinaryPort,
		BinaryTimeout:     cfg.BinaryConnectTimeout,
		StandardURL:       cfg.RedisURL,
		StandardTimeout:   cfg.StandardConnectTimeout,
		CommandTimeout:    cfg.CommandTimeout,
		MockFallback:      cfg.MockFallback,
		MockSweepInterval: cfg.MockSweepInterval,
		NearCache:         cfg.NearCacheEnabled,
		NearCacheMaxCost:  cfg.NearCacheMaxCost,
		NearCacheTTL:      cfg.NearCacheTTL,
	}
}

type dialFunc func(ctx context.Context) (backend.Backend, error)

// Selector picks one store at startup and routes every call to it.
// Failures while probing move negotiation to the next candidate; failures
// on the active store are returned to the caller unchanged.
type Selector struct {
	opts Options
	log  *slog.Logger

	negotiateMu sync.Mutex

	mu     sync.RWMutex
	state  State
	kind   backend.Kind
	active backend.Backend

	binaryDial   dialFunc
	standardDial dialFunc
}

func New(opts Options) *Selector {
	s := &Selector{
		opts: opts,
		log:  logger.WithComponent("selector"),
	}
	s.binaryDial = func(ctx context.Context) (backend.Backend, error) {
		return implementations.DialBinary(ctx, opts.BinaryHost, opts.BinaryPort, opts.BinaryTimeout, opts.CommandTimeout)
	}
	s.standardDial = func(ctx context.Context) (backend.Backend, error) {
		return implementations.DialStandard(ctx, opts.StandardURL, opts.StandardTimeout, opts.CommandTimeout)
	}
	return s
}

// Negotiate runs the probe sequence once. It is a no-op when a store is already active.
func (s *Selector) Negotiate(ctx context.Context) error {
	s.negotiateMu.Lock()
	defer s.negotiateMu.Unlock()

	if s.State() == Active {
		return nil
	}
	return s.negotiateLocked(ctx)
}

// Renegotiate probes again from the start and replaces the active store.
// The previous store is closed once the new one is in place.
func (s *Selector) Renegotiate(ctx context.Context) error {
	s.negotiateMu.Lock()
	defer s.negotiateMu.Unlock()

	s.mu.RLock()
	prev := s.active
	s.mu.RUnlock()

	err := s.negotiateLocked(ctx)

	s.mu.RLock()
	replaced := s.active != prev
	s.mu.RUnlock()
	if prev != nil && replaced {
		if cerr := prev.Close(); cerr != nil {
			s.log.Warn("closing previous backend", "error", cerr)
		}
	}
	return err
}

func (s *Selector) negotiateLocked(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "selector.Negotiate")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	kind, b, err := s.probeAll(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = Unconfigured
		s.kind = backend.KindNone
		s.active = nil
		s.mu.Unlock()
		metrics.SetActiveBackend(backend.KindNone.String(), allKinds...)
		s.log.Error("backend negotiation failed", "error", err)
		return err
	}

	if s.opts.NearCache {
		nc, ncErr := implementations.NewNearCache(b, s.opts.NearCacheMaxCost, s.opts.NearCacheTTL)
		if ncErr != nil {
			s.log.Warn("near cache disabled", "error", ncErr)
		} else {
			b = nc
		}
	}

	s.mu.Lock()
	s.state = Active
	s.kind = kind
	s.active = b
	s.mu.Unlock()

	metrics.SetActiveBackend(kind.String(), allKinds...)
	span.SetAttributes(attribute.String("backend.kind", kind.String()))
	s.log.Info("backend active", "kind", kind.String(), "backend", b.Name())
	return nil
}

var allKinds = []string{
	backend.KindNone.String(),
	backend.KindBinary.String(),
	backend.KindStandard.String(),
	backend.KindMock.String(),
}

func (s *Selector) probeAll(ctx context.Context) (backend.Kind, backend.Backend, error) {
	if s.opts.UseBinary {
		s.setState(ProbingBinary)
		if b, err := s.probe(ctx, backend.KindBinary, s.opts.BinaryTimeout, s.binaryDial); err == nil {
			return backend.KindBinary, b, nil
		}
	}

	s.setState(ProbingStandard)
	if b, err := s.probe(ctx, backend.KindStandard, s.opts.StandardTimeout, s.standardDial); err == nil {
		return backend.KindStandard, b, nil
	}

	if !s.opts.MockFallback {
		return backend.KindNone, nil, backend.ErrBackendUnavailable
	}
	s.log.Warn("no server reachable, serving from in-memory mock store")
	metrics.NegotiationAttempts.WithLabelValues(backend.KindMock.String(), "success").Inc()
	return backend.KindMock, implementations.NewMockStore(s.opts.MockSweepInterval), nil
}

// probe connects and pings within timeout. Only a "PONG" reply counts.
func (s *Selector) probe(ctx context.Context, kind backend.Kind, timeout time.Duration, dial dialFunc) (backend.Backend, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	b, err := dial(ctx)
	if err == nil {
		var pong string
		pong, err = b.Ping(ctx)
		if err == nil && pong != "PONG" {
			err = &backend.ProtocolError{Op: "ping", Detail: fmt.Sprintf("expected PONG, got %q", pong)}
		}
		if err != nil {
			_ = b.Close()
		}
	}

	if err != nil {
		metrics.NegotiationAttempts.WithLabelValues(kind.String(), "failure").Inc()
		s.log.Warn("backend probe failed", "kind", kind.String(), "error", err)
		return nil, err
	}
	metrics.NegotiationAttempts.WithLabelValues(kind.String(), "success").Inc()
	s.log.Info("backend probe succeeded", "kind", kind.String(), "backend", b.Name())
	return b, nil
}

func (s *Selector) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the current negotiation state.
func (s *Selector) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Kind returns the active store kind, KindNone before negotiation completes.
func (s *Selector) Kind() backend.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

// Description is the diagnostic view of the selector.
type Description struct {
	State   string `json:"state"`
	Kind    string `json:"kind"`
	Backend string `json:"backend"`
}

// Describe reports which store is serving requests.
func (s *Selector) Describe() Description {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := Description{State: s.state.String(), Kind: s.kind.String()}
	if s.active != nil {
		d.Backend = s.active.Name()
	}
	return d
}

// Close closes the active store and returns the selector to Unconfigured.
func (s *Selector) Close() error {
	s.negotiateMu.Lock()
	defer s.negotiateMu.Unlock()

	s.mu.Lock()
	b := s.active
	s.active = nil
	s.state = Unconfigured
	s.kind = backend.KindNone
	s.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Close()
}

// current returns the active store or ErrBackendUnavailable.
func (s *Selector) current() (backend.Backend, error) {
	s.mu.RLock()
	b := s.active
	s.mu.RUnlock()
	if b == nil {
		return nil, backend.ErrBackendUnavailable
	}
	return b, nil
}

func (s *Selector) observe(op string, err error) error {
	if err != nil && !errors.Is(err, backend.ErrBackendUnavailable) {
		metrics.BackendErrors.WithLabelValues(op).Inc()
	}
	return err
}
