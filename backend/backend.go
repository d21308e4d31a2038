package backend

import (
	"context"
	"time"
)

// Kind identifies which concrete store serves the cache.
type Kind int

const (
	KindNone Kind = iota
	KindBinary
	KindStandard
	KindMock
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindStandard:
		return "standard"
	case KindMock:
		return "mock"
	default:
		return "none"
	}
}

// Backend defines the command surface shared by every store implementation.
// This allows the cache service to target a binary-protocol server, a RESP server
// or the in-process mock through the same calls.
type Backend interface {
	// Name returns a human readable description of the store.
	Name() string
	// Ping checks the connection. A healthy store answers "PONG".
	Ping(ctx context.Context) (string, error)
	// Get returns the value for key. found is false when the key is missing or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set stores value under key. A zero ttl stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes key and returns the number of keys removed.
	Del(ctx context.Context, key string) (int64, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys lists the keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// FlushDB removes every key.
	FlushDB(ctx context.Context) error
	// Info returns the store's diagnostic text.
	Info(ctx context.Context) (string, error)
	// DBSize returns the number of keys.
	DBSize(ctx context.Context) (int64, error)
	// Close releases the connection or background resources.
	Close() error
}
