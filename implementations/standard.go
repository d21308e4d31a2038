package implementations

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/rueidis"

	"cache-traffic-lab/backend"
)

// StandardClient talks RESP to a stock Redis-compatible server through rueidis.
type StandardClient struct {
	client rueidis.Client
	addr   string
}

// DialStandard connects using a redis:// connection string. rueidis dials
// eagerly, so an unreachable server fails here within timeout.
func DialStandard(ctx context.Context, url string, timeout, cmdTimeout time.Duration) (*StandardClient, error) {
	opt, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.Dialer = net.Dialer{Timeout: timeout}
	opt.ConnWriteTimeout = cmdTimeout
	// Client-side caching needs RESP3 tracking; plain servers and the
	// cache-aside layer above do not want it.
	opt.DisableCache = true

	addr := url
	if len(opt.InitAddress) > 0 {
		addr = opt.InitAddress[0]
	}

	type result struct {
		c   rueidis.Client
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := rueidis.NewClient(opt)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, &backend.ConnectionError{Op: "dial", Addr: addr, Err: r.err}
		}
		return &StandardClient{client: r.c, addr: addr}, nil
	case <-ctx.Done():
		// Reap a client that connects after we gave up.
		go func() {
			if r := <-done; r.err == nil {
				r.c.Close()
			}
		}()
		return nil, &backend.ConnectionError{Op: "dial", Addr: addr, Err: ctx.Err()}
	}
}

func (s *StandardClient) Name() string {
	return "Standard RESP server (" + s.addr + ")"
}

// wrap maps rueidis failures onto the backend error taxonomy.
func (s *StandardClient) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if redisErr, ok := rueidis.IsRedisErr(err); ok {
		return &backend.ReplyError{Op: op, Msg: redisErr.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, rueidis.ErrClosing) {
		return &backend.ConnectionError{Op: op, Addr: s.addr, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *StandardClient) Ping(ctx context.Context) (string, error) {
	v, err := s.client.Do(ctx, s.client.B().Ping().Build()).ToString()
	return v, s.wrap("ping", err)
}

func (s *StandardClient) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if rueidis.IsRedisNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap("get", err)
	}
	return v, true, nil
}

func (s *StandardClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var cmd rueidis.Completed
	if secs := ttlSeconds(ttl); secs > 0 {
		cmd = s.client.B().Set().Key(key).Value(value).ExSeconds(secs).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(value).Build()
	}
	return s.wrap("set", s.client.Do(ctx, cmd).Error())
}

func (s *StandardClient) Del(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).AsInt64()
	return n, s.wrap("del", err)
}

func (s *StandardClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(key).Build()).AsInt64()
	return n > 0, s.wrap("exists", err)
}

func (s *StandardClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.client.Do(ctx, s.client.B().Keys().Pattern(pattern).Build()).AsStrSlice()
	return keys, s.wrap("keys", err)
}

func (s *StandardClient) FlushDB(ctx context.Context) error {
	return s.wrap("flushdb", s.client.Do(ctx, s.client.B().Flushdb().Build()).Error())
}

func (s *StandardClient) Info(ctx context.Context) (string, error) {
	v, err := s.client.Do(ctx, s.client.B().Info().Build()).ToString()
	return v, s.wrap("info", err)
}

func (s *StandardClient) DBSize(ctx context.Context) (int64, error) {
	n, err := s.client.Do(ctx, s.client.B().Dbsize().Build()).AsInt64()
	return n, s.wrap("dbsize", err)
}

func (s *StandardClient) Close() error {
	s.client.Close()
	return nil
}
