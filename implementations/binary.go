package implementations

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"cache-traffic-lab/backend"
	"cache-traffic-lab/wire"
)

// KeysDelimiter separates keys when a server answers KEYS with a single bulk string.
// Keys that contain it cannot be told apart.
const KeysDelimiter = "\n"

// BinaryClient owns one connection to a server speaking the framed binary protocol.
// Each call writes one command and reads exactly one reply. Calls are serialized
// so concurrent callers queue rather than interleave on the socket.
type BinaryClient struct {
	addr       string
	cmdTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

// DialBinary connects to host:port. The dial fails with a backend.ConnectionError
// on refusal or when timeout elapses.
func DialBinary(ctx context.Context, host string, port int, timeout, cmdTimeout time.Duration) (*BinaryClient, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &backend.ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	if cmdTimeout <= 0 {
		cmdTimeout = timeout
	}
	return &BinaryClient{
		addr:       addr,
		cmdTimeout: cmdTimeout,
		conn:       conn,
		rd:         bufio.NewReader(conn),
	}, nil
}

func (c *BinaryClient) Name() string {
	return "Binary protocol server (" + c.addr + ")"
}

// Addr returns the peer address.
func (c *BinaryClient) Addr() string { return c.addr }

// do sends args as one command and returns the single reply.
func (c *BinaryClient) do(ctx context.Context, op string, args ...string) (wire.Message, error) {
	frame, err := wire.EncodeCommand(args...)
	if err != nil {
		return wire.Message{}, fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return wire.Message{}, &backend.ConnectionError{Op: op, Addr: c.addr}
	}
	if err := ctx.Err(); err != nil {
		return wire.Message{}, err
	}

	deadline := time.Now().Add(c.cmdTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return wire.Message{}, c.fail(op, err)
	}

	if _, err := c.conn.Write(frame); err != nil {
		return wire.Message{}, c.fail(op, err)
	}

	reply, err := wire.ReadMessage(c.rd)
	if err != nil {
		// A frame we cannot parse leaves the stream unsynchronized, so the
		// connection is dropped either way.
		if errors.Is(err, wire.ErrMalformed) {
			c.closeLocked()
			return wire.Message{}, &backend.ProtocolError{Op: op, Detail: "malformed reply", Err: err}
		}
		return wire.Message{}, c.fail(op, err)
	}
	if reply.Type == wire.TypeError {
		return reply, &backend.ReplyError{Op: op, Msg: reply.Str}
	}
	return reply, nil
}

func (c *BinaryClient) fail(op string, err error) error {
	c.closeLocked()
	return &backend.ConnectionError{Op: op, Addr: c.addr, Err: err}
}

func (c *BinaryClient) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.rd = nil
	}
}

func unexpectedReply(op string, m wire.Message) error {
	return &backend.ProtocolError{Op: op, Detail: fmt.Sprintf("unexpected %s reply %s", m.Type, m)}
}

func (c *BinaryClient) Ping(ctx context.Context) (string, error) {
	reply, err := c.do(ctx, "ping", "PING")
	if err != nil {
		return "", err
	}
	if !reply.IsString() {
		return "", unexpectedReply("ping", reply)
	}
	return reply.Str, nil
}

func (c *BinaryClient) Get(ctx context.Context, key string) (string, bool, error) {
	reply, err := c.do(ctx, "get", "GET", key)
	if err != nil {
		return "", false, err
	}
	switch {
	case reply.Type == wire.TypeNull:
		return "", false, nil
	case reply.IsString():
		return reply.Str, true, nil
	default:
		return "", false, unexpectedReply("get", reply)
	}
}

func (c *BinaryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := []string{"SET", key, value}
	if secs := ttlSeconds(ttl); secs > 0 {
		args = append(args, "EX", strconv.FormatInt(secs, 10))
	}
	reply, err := c.do(ctx, "set", args...)
	if err != nil {
		return err
	}
	if !reply.IsString() {
		return unexpectedReply("set", reply)
	}
	return nil
}

func (c *BinaryClient) integer(ctx context.Context, op string, args ...string) (int64, error) {
	reply, err := c.do(ctx, op, args...)
	if err != nil {
		return 0, err
	}
	if reply.Type != wire.TypeInteger {
		return 0, unexpectedReply(op, reply)
	}
	return reply.Int, nil
}

func (c *BinaryClient) Del(ctx context.Context, key string) (int64, error) {
	return c.integer(ctx, "del", "DEL", key)
}

func (c *BinaryClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.integer(ctx, "exists", "EXISTS", key)
	return n > 0, err
}

// Keys accepts either an array of bulk strings or one bulk string of
// KeysDelimiter-separated keys.
func (c *BinaryClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	reply, err := c.do(ctx, "keys", "KEYS", pattern)
	if err != nil {
		return nil, err
	}
	switch {
	case reply.Type == wire.TypeArray:
		keys := make([]string, 0, len(reply.Array))
		for _, e := range reply.Array {
			if !e.IsString() {
				return nil, unexpectedReply("keys", e)
			}
			keys = append(keys, e.Str)
		}
		return keys, nil
	case reply.IsString():
		if reply.Str == "" {
			return []string{}, nil
		}
		return strings.Split(reply.Str, KeysDelimiter), nil
	case reply.Type == wire.TypeNull:
		return []string{}, nil
	default:
		return nil, unexpectedReply("keys", reply)
	}
}

func (c *BinaryClient) FlushDB(ctx context.Context) error {
	reply, err := c.do(ctx, "flushdb", "FLUSHDB")
	if err != nil {
		return err
	}
	if !reply.IsString() {
		return unexpectedReply("flushdb", reply)
	}
	return nil
}

func (c *BinaryClient) Info(ctx context.Context) (string, error) {
	reply, err := c.do(ctx, "info", "INFO")
	if err != nil {
		return "", err
	}
	if !reply.IsString() {
		return "", unexpectedReply("info", reply)
	}
	return reply.Str, nil
}

func (c *BinaryClient) DBSize(ctx context.Context) (int64, error) {
	return c.integer(ctx, "dbsize", "DBSIZE")
}

// Close tears down the socket. Later calls fail with backend.ErrConnection.
func (c *BinaryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.rd = nil
	return err
}

// ttlSeconds rounds ttl up to whole seconds so a sub-second TTL still expires.
func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Second - 1) / time.Second)
}
