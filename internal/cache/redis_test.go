package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := OpenRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	value := json.RawMessage(`{"text":"hello"}`)

	require.NoError(t, store.Put(ctx, "summary:BV1", value, "BV1", time.Hour))

	got, ok, err := store.Get(ctx, "summary:BV1", "BV1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(value), string(got))
}

func TestRedisIdentityMismatch(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "summary:BV1", json.RawMessage(`1`), "BV1", time.Hour))

	_, ok, err := store.Get(ctx, "summary:BV1", "BV2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisExpiry(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	store.now = func() time.Time { return base }
	require.NoError(t, store.Put(ctx, "k", json.RawMessage(`1`), "id", time.Hour))

	store.now = func() time.Time { return base.Add(61 * time.Minute) }
	_, ok, err := store.Get(ctx, "k", "id")
	require.NoError(t, err)
	assert.False(t, ok, "entry past TTL even while the redis key still exists")
}

func TestRedisCorruptEntryIsMiss(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set(redisNamespace+"k", "not json"))

	_, ok, err := store.Get(context.Background(), "k", "id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSweep(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "summary:BV1", json.RawMessage(`1`), "BV1", time.Hour))
	require.NoError(t, store.Put(ctx, "summary:BV2", json.RawMessage(`2`), "BV2", time.Hour))
	require.NoError(t, store.Put(ctx, "subtitle:BV1", json.RawMessage(`3`), "BV1", time.Hour))
	// A key outside the namespace, as if another app shared the instance.
	require.NoError(t, mr.Set("otherapp:summary:BV1", "x"))

	removed, err := store.Sweep(ctx, "summary:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok, err := store.Get(ctx, "subtitle:BV1", "BV1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("otherapp:summary:BV1"), "keys outside the namespace untouched")
}

func TestRedisSweepPrefixIsLiteral(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "summary:BV1", json.RawMessage(`1`), "BV1", time.Hour))

	// Glob metacharacters in the prefix must not widen the match.
	removed, err := store.Sweep(ctx, "s*")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, ok, err := store.Get(ctx, "summary:BV1", "BV1")
	require.NoError(t, err)
	assert.True(t, ok)
}
