package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/stratacache"
	"github.com/unkn0wn-root/stratacache/codec"
)

func newTestBackend(t *testing.T, cfg Config) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if cfg.Namespace == "" {
		cfg.Namespace = "test"
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Msgpack{}
	}
	cfg.Client = client

	b, err := New(cfg)
	require.NoError(t, err)
	return b, mr
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)

	client := goredis.NewClient(&goredis.Options{Addr: "localhost:0"})
	defer client.Close()

	_, err = New(Config{Client: client})
	assert.Error(t, err) // missing namespace

	_, err = New(Config{Client: client, Namespace: "x"})
	assert.Error(t, err) // missing codec
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, Config{})

	obj, err := b.Set(ctx, "k", "v")
	require.NoError(t, err)
	assert.Equal(t, "k", obj.Key)
	assert.NotZero(t, obj.Version)

	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", got.Value)
	assert.Equal(t, obj.Version, got.Version)

	_, ok, err = b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Delete(ctx, "k"))
	ok, err = b.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a, err := New(Config{Client: client, Namespace: "a", Codec: codec.JSON{}})
	require.NoError(t, err)
	b, err := New(Config{Client: client, Namespace: "b", Codec: codec.JSON{}})
	require.NoError(t, err)

	_, err = a.Set(ctx, "k", "from-a")
	require.NoError(t, err)
	_, err = b.Set(ctx, "other", "from-b")
	require.NoError(t, err)

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "namespace b sees namespace a's key")

	keys, err := a.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	// flushing one namespace leaves the other intact
	require.NoError(t, a.Flush(ctx))
	n, err := a.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	ok, err = b.Has(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestBackend(t, Config{})

	_, err := b.Set(ctx, "k", "v", stratacache.WithTTL(time.Minute))
	require.NoError(t, err)

	ok, err := b.Has(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry survived its TTL")
}

func TestDefaultTTL(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestBackend(t, Config{DefaultTTL: time.Minute})

	_, err := b.Set(ctx, "k", "v")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVersionCheckedWrites(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, Config{})

	stored, err := b.Set(ctx, "k", "v1")
	require.NoError(t, err)

	var vc *stratacache.VersionConflictError
	_, err = b.Set(ctx, "k", "v2", stratacache.WithVersion(stored.Version+1))
	require.ErrorAs(t, err, &vc)
	assert.Equal(t, stored.Version, vc.Got)

	got, _, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Value, "stale write changed the value")

	updated, err := b.Set(ctx, "k", "v2", stratacache.WithVersion(stored.Version))
	require.NoError(t, err)
	assert.NotEqual(t, stored.Version, updated.Version)

	err = b.Delete(ctx, "k", stratacache.WithVersion(stored.Version))
	require.ErrorAs(t, err, &vc, "delete against the superseded version")

	require.NoError(t, b.Delete(ctx, "k", stratacache.WithVersion(updated.Version)))
	ok, err := b.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// version precondition on an absent key
	err = b.Delete(ctx, "k", stratacache.WithVersion(updated.Version))
	require.ErrorAs(t, err, &vc)
	assert.Zero(t, vc.Got)
}

func TestEnumeration(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, Config{})

	for _, k := range []string{"a", "b", "c"} {
		_, err := b.Set(ctx, k, "v:"+k)
		require.NoError(t, err)
	}

	n, err := b.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)

	m, err := b.ToMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "v:a", "b": "v:b", "c": "v:c"}, m)

	objs, err := b.ToMap(ctx, stratacache.WithReturn(stratacache.ReturnObject))
	require.NoError(t, err)
	obj, ok := objs["a"].(*stratacache.Object)
	require.True(t, ok)
	assert.Equal(t, "v:a", obj.Value)
	assert.NotZero(t, obj.Version)

	count, err := b.Reduce(ctx, 0, func(acc any, _ *stratacache.Object) any {
		return acc.(int) + 1
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUpdateCounter(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, Config{})

	n, err := b.UpdateCounter(ctx, "c", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	n, err = b.UpdateCounter(ctx, "c", -2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// the counter round-trips through the codec as a plain numeric value
	got, ok, err := b.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, int64(3), got.Value)

	_, err = b.Set(ctx, "c", "text")
	require.NoError(t, err)
	_, err = b.UpdateCounter(ctx, "c", 1)
	assert.Error(t, err)
}

func TestCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestBackend(t, Config{})

	require.NoError(t, mr.Set("test:k", "not a wire envelope"))

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "corrupt entry surfaced as a hit")

	// the corrupt entry was deleted on read
	assert.False(t, mr.Exists("test:k"))
}

func TestCloseHonorsOwnership(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	shared, err := New(Config{Client: client, Namespace: "x", Codec: codec.JSON{}})
	require.NoError(t, err)
	require.NoError(t, shared.Close(ctx))
	// the shared client is still usable
	require.NoError(t, client.Ping(ctx).Err())

	owner, err := New(Config{Client: client, Namespace: "y", Codec: codec.JSON{}, CloseClient: true})
	require.NoError(t, err)
	require.NoError(t, owner.Close(ctx))
	require.NoError(t, owner.Close(ctx), "Close must be idempotent")
	assert.Error(t, client.Ping(ctx).Err())
}
