package selector

import (
	"context"
	"time"

	"cache-traffic-lab/backend"
)

var _ backend.Backend = (*Selector)(nil)

// Name returns the active store's name.
func (s *Selector) Name() string {
	if d := s.Describe(); d.Backend != "" {
		return d.Backend
	}
	return "no backend"
}

func (s *Selector) Ping(ctx context.Context) (string, error) {
	b, err := s.current()
	if err != nil {
		return "", err
	}
	v, err := b.Ping(ctx)
	return v, s.observe("ping", err)
}

func (s *Selector) Get(ctx context.Context, key string) (string, bool, error) {
	b, err := s.current()
	if err != nil {
		return "", false, err
	}
	v, found, err := b.Get(ctx, key)
	return v, found, s.observe("get", err)
}

func (s *Selector) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	b, err := s.current()
	if err != nil {
		return err
	}
	return s.observe("set", b.Set(ctx, key, value, ttl))
}

func (s *Selector) Del(ctx context.Context, key string) (int64, error) {
	b, err := s.current()
	if err != nil {
		return 0, err
	}
	n, err := b.Del(ctx, key)
	return n, s.observe("del", err)
}

func (s *Selector) Exists(ctx context.Context, key string) (bool, error) {
	b, err := s.current()
	if err != nil {
		return false, err
	}
	ok, err := b.Exists(ctx, key)
	return ok, s.observe("exists", err)
}

func (s *Selector) Keys(ctx context.Context, pattern string) ([]string, error) {
	b, err := s.current()
	if err != nil {
		return nil, err
	}
	keys, err := b.Keys(ctx, pattern)
	return keys, s.observe("keys", err)
}

func (s *Selector) FlushDB(ctx context.Context) error {
	b, err := s.current()
	if err != nil {
		return err
	}
	return s.observe("flushdb", b.FlushDB(ctx))
}

func (s *Selector) Info(ctx context.Context) (string, error) {
	b, err := s.current()
	if err != nil {
		return "", err
	}
	v, err := b.Info(ctx)
	return v, s.observe("info", err)
}

func (s *Selector) DBSize(ctx context.Context) (int64, error) {
	b, err := s.current()
	if err != nil {
		return 0, err
	}
	n, err := b.DBSize(ctx)
	return n, s.observe("dbsize", err)
}
