package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cache-traffic-lab/backend"
)

// ErrUsage is returned for malformed or unsupported command lines.
var ErrUsage = errors.New("invalid command")

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// Execute runs one whitespace-separated command line against b.
// GET of a missing key yields a nil result.
func Execute(ctx context.Context, b backend.Backend, line string) (any, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil, usage("no command provided")
	}
	cmd := strings.ToUpper(parts[0])
	args := parts[1:]

	switch cmd {
	case "PING":
		return b.Ping(ctx)

	case "GET":
		if len(args) != 1 {
			return nil, usage("GET requires exactly 1 argument")
		}
		v, found, err := b.Get(ctx, args[0])
		if err != nil || !found {
			return nil, err
		}
		return v, nil

	case "SET":
		if len(args) < 2 {
			return nil, usage("SET requires at least 2 arguments")
		}
		value, ttl, err := parseSet(args[1:])
		if err != nil {
			return nil, err
		}
		if err := b.Set(ctx, args[0], value, ttl); err != nil {
			return nil, err
		}
		return "OK", nil

	case "DEL":
		if len(args) != 1 {
			return nil, usage("DEL requires exactly 1 argument")
		}
		return b.Del(ctx, args[0])

	case "EXISTS":
		if len(args) != 1 {
			return nil, usage("EXISTS requires exactly 1 argument")
		}
		ok, err := b.Exists(ctx, args[0])
		if err != nil {
			return nil, err
		}
		if ok {
			return int64(1), nil
		}
		return int64(0), nil

	case "KEYS":
		if len(args) != 1 {
			return nil, usage("KEYS requires exactly 1 argument")
		}
		return b.Keys(ctx, args[0])

	case "FLUSHDB":
		if err := b.FlushDB(ctx); err != nil {
			return nil, err
		}
		return "OK", nil

	case "INFO":
		return b.Info(ctx)

	case "DBSIZE":
		return b.DBSize(ctx)

	default:
		return nil, usage("unknown command %s", cmd)
	}
}

// parseSet splits "value... [EX seconds]". Values may contain spaces.
func parseSet(rest []string) (string, time.Duration, error) {
	n := len(rest)
	if n >= 3 && strings.EqualFold(rest[n-2], "EX") {
		secs, err := strconv.Atoi(rest[n-1])
		if err != nil || secs <= 0 {
			return "", 0, usage("EX requires a positive number of seconds, got %q", rest[n-1])
		}
		return strings.Join(rest[:n-2], " "), time.Duration(secs) * time.Second, nil
	}
	return strings.Join(rest, " "), 0, nil
}
