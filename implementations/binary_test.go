package implementations

import (
	"bufio"
	"context"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cache-traffic-lab/backend"
	"cache-traffic-lab/wire"
)

// fakePeer is an in-process server speaking the binary protocol.
type fakePeer struct {
	ln      net.Listener
	handle  func(args []string) wire.Message
	mu      sync.Mutex
	seen    [][]string
	wg      sync.WaitGroup
	closing chan struct{}
}

func startPeer(t *testing.T, handle func(args []string) wire.Message) *fakePeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &fakePeer{ln: ln, handle: handle, closing: make(chan struct{})}
	p.wg.Add(1)
	go p.serve()
	t.Cleanup(p.close)
	return p
}

func (p *fakePeer) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer conn.Close()
			go func() {
				<-p.closing
				conn.Close()
			}()
			r := bufio.NewReader(conn)
			for {
				cmd, err := wire.ReadMessage(r)
				if err != nil {
					return
				}
				args := make([]string, len(cmd.Array))
				for i, e := range cmd.Array {
					args[i] = e.Str
				}
				p.mu.Lock()
				p.seen = append(p.seen, args)
				p.mu.Unlock()
				if err := wire.WriteMessage(conn, p.handle(args)); err != nil {
					return
				}
			}
		}()
	}
}

func (p *fakePeer) close() {
	select {
	case <-p.closing:
	default:
		close(p.closing)
	}
	p.ln.Close()
	p.wg.Wait()
}

func (p *fakePeer) hostPort(t *testing.T) (string, int) {
	host, portStr, err := net.SplitHostPort(p.ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func (p *fakePeer) commands() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.seen...)
}

// storeHandler answers commands from a MockStore the way the binary server does.
func storeHandler(store *MockStore) func(args []string) wire.Message {
	ctx := context.Background()
	return func(args []string) wire.Message {
		switch strings.ToUpper(args[0]) {
		case "PING":
			return wire.SimpleString("PONG")
		case "GET":
			v, ok, _ := store.Get(ctx, args[1])
			if !ok {
				return wire.Null()
			}
			return wire.BulkString(v)
		case "SET":
			var ttl time.Duration
			if len(args) == 5 && strings.EqualFold(args[3], "EX") {
				secs, _ := strconv.Atoi(args[4])
				ttl = time.Duration(secs) * time.Second
			}
			_ = store.Set(ctx, args[1], args[2], ttl)
			return wire.SimpleString("OK")
		case "DEL":
			n, _ := store.Del(ctx, args[1])
			return wire.Integer(n)
		case "EXISTS":
			ok, _ := store.Exists(ctx, args[1])
			if ok {
				return wire.Integer(1)
			}
			return wire.Integer(0)
		case "KEYS":
			keys, _ := store.Keys(ctx, args[1])
			elems := make([]wire.Message, len(keys))
			for i, k := range keys {
				elems[i] = wire.BulkString(k)
			}
			return wire.Array(elems...)
		case "FLUSHDB":
			_ = store.FlushDB(ctx)
			return wire.SimpleString("OK")
		case "INFO":
			info, _ := store.Info(ctx)
			return wire.BulkString(info)
		case "DBSIZE":
			n, _ := store.DBSize(ctx)
			return wire.Integer(n)
		default:
			return wire.Error("ERR unknown command '" + args[0] + "'")
		}
	}
}

func dialPeer(t *testing.T, p *fakePeer) *BinaryClient {
	t.Helper()
	host, port := p.hostPort(t)
	c, err := DialBinary(context.Background(), host, port, time.Second, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBinaryClientCommands(t *testing.T) {
	peer := startPeer(t, storeHandler(NewMockStore(0)))
	c := dialPeer(t, peer)
	ctx := context.Background()

	pong, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)

	_, found, err := c.Get(ctx, "item:1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "item:1", "value_1", 60*time.Second))
	require.NoError(t, c.Set(ctx, "item:2", "value_2", 0))

	v, found, err := c.Get(ctx, "item:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value_1", v)

	ok, err := c.Exists(ctx, "item:2")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := c.Keys(ctx, "item:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"item:1", "item:2"}, keys)

	size, err := c.DBSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	n, err := c.Del(ctx, "item:2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Contains(t, info, "db0:keys=1")

	require.NoError(t, c.FlushDB(ctx))
	size, err = c.DBSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	cmds := peer.commands()
	assert.Equal(t, []string{"SET", "item:1", "value_1", "EX", "60"}, cmds[2])
	assert.Equal(t, []string{"SET", "item:2", "value_2"}, cmds[3])
}

func TestBinaryClientKeysDelimitedReply(t *testing.T) {
	peer := startPeer(t, func(args []string) wire.Message {
		return wire.BulkString("item:1\nitem:2\nitem:3")
	})
	c := dialPeer(t, peer)

	keys, err := c.Keys(context.Background(), "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"item:1", "item:2", "item:3"}, keys)
}

func TestBinaryClientReplyError(t *testing.T) {
	peer := startPeer(t, func(args []string) wire.Message {
		return wire.Error("ERR wrong number of arguments for 'GET'")
	})
	c := dialPeer(t, peer)

	_, _, err := c.Get(context.Background(), "k")
	var reply *backend.ReplyError
	require.ErrorAs(t, err, &reply)
	assert.Contains(t, reply.Msg, "wrong number")

	// An error reply keeps the connection usable.
	_, err = c.Ping(context.Background())
	require.ErrorAs(t, err, &reply)
}

func TestBinaryClientUnexpectedShape(t *testing.T) {
	peer := startPeer(t, func(args []string) wire.Message {
		return wire.Integer(7)
	})
	c := dialPeer(t, peer)

	_, _, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, backend.ErrProtocol)
}

func TestBinaryClientMalformedReplyClosesConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte{0x7f, 0, 0, 0, 0})
		time.Sleep(200 * time.Millisecond)
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	c, err := DialBinary(context.Background(), host, port, time.Second, time.Second)
	require.NoError(t, err)

	_, err = c.Ping(context.Background())
	assert.ErrorIs(t, err, backend.ErrProtocol)

	_, err = c.Ping(context.Background())
	assert.ErrorIs(t, err, backend.ErrConnection)
}

func TestBinaryClientOversizedHeaderThenClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 64)
		_, _ = conn.Read(buf)
		// Bulk string header claiming 500 MiB, then nothing.
		_, _ = conn.Write([]byte{0x04, 0x00, 0x00, 0x40, 0x1f})
		conn.Close()
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	c, err := DialBinary(context.Background(), host, port, time.Second, time.Second)
	require.NoError(t, err)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err = c.Ping(context.Background())
	runtime.ReadMemStats(&after)

	assert.ErrorIs(t, err, backend.ErrConnection)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))

	_, err = c.Ping(context.Background())
	assert.ErrorIs(t, err, backend.ErrConnection)
}

func TestBinaryClientDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	start := time.Now()
	_, err = DialBinary(context.Background(), "127.0.0.1", addr.Port, 500*time.Millisecond, time.Second)
	assert.ErrorIs(t, err, backend.ErrConnection)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBinaryClientReadTimeout(t *testing.T) {
	peer := startPeer(t, func(args []string) wire.Message {
		time.Sleep(300 * time.Millisecond)
		return wire.SimpleString("PONG")
	})
	host, port := peer.hostPort(t)
	c, err := DialBinary(context.Background(), host, port, time.Second, 50*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Ping(context.Background())
	assert.ErrorIs(t, err, backend.ErrConnection)
}

func TestBinaryClientDisconnect(t *testing.T) {
	peer := startPeer(t, storeHandler(NewMockStore(0)))
	c := dialPeer(t, peer)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, _, err := c.Get(context.Background(), "item:1")
	assert.ErrorIs(t, err, backend.ErrConnection)
}

func TestBinaryClientSerializesCallers(t *testing.T) {
	peer := startPeer(t, storeHandler(NewMockStore(0)))
	c := dialPeer(t, peer)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "item:" + strconv.Itoa(i)
			val := "value_" + strconv.Itoa(i)
			assert.NoError(t, c.Set(ctx, key, val, 0))
			got, found, err := c.Get(ctx, key)
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, val, got)
		}(i)
	}
	wg.Wait()
}

func TestTTLSeconds(t *testing.T) {
	assert.Equal(t, int64(0), ttlSeconds(0))
	assert.Equal(t, int64(1), ttlSeconds(200*time.Millisecond))
	assert.Equal(t, int64(60), ttlSeconds(60*time.Second))
	assert.Equal(t, int64(2), ttlSeconds(1500*time.Millisecond))
}
