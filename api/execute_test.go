package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cache-traffic-lab/implementations"
)

func TestExecute(t *testing.T) {
	store := implementations.NewMockStore(0)
	ctx := context.Background()

	steps := []struct {
		line string
		want any
	}{
		{"PING", "PONG"},
		{"get item:1", nil},
		{"SET item:1 hello world", "OK"},
		{"GET item:1", "hello world"},
		{"SET item:2 v EX 60", "OK"},
		{"EXISTS item:2", int64(1)},
		{"EXISTS nope", int64(0)},
		{"KEYS item:*", []string{"item:1", "item:2"}},
		{"DBSIZE", int64(2)},
		{"DEL item:1", int64(1)},
		{"DEL item:1", int64(0)},
		{"FLUSHDB", "OK"},
		{"DBSIZE", int64(0)},
	}
	for _, st := range steps {
		got, err := Execute(ctx, store, st.line)
		require.NoError(t, err, st.line)
		assert.Equal(t, st.want, got, st.line)
	}

	info, err := Execute(ctx, store, "INFO")
	require.NoError(t, err)
	assert.Contains(t, info, "# Keyspace")

	info2, _ := store.Info(ctx)
	assert.Contains(t, info2, "expires=0")
}

func TestExecuteSetWithTTL(t *testing.T) {
	store := implementations.NewMockStore(0)
	ctx := context.Background()

	_, err := Execute(ctx, store, "SET k some value EX 30")
	require.NoError(t, err)
	v, _, _ := store.Get(ctx, "k")
	assert.Equal(t, "some value", v)

	info, _ := store.Info(ctx)
	assert.Contains(t, info, "db0:keys=1,expires=1")
}

func TestExecuteUsageErrors(t *testing.T) {
	store := implementations.NewMockStore(0)
	for _, line := range []string{
		"",
		"   ",
		"GET",
		"GET a b",
		"SET a",
		"SET a v EX soon",
		"SET a v EX -5",
		"DEL",
		"EXISTS",
		"KEYS",
		"ZADD s 1 m",
	} {
		_, err := Execute(context.Background(), store, line)
		assert.ErrorIs(t, err, ErrUsage, "%q", line)
	}
}
