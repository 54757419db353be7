package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, DefaultConfig())
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user:read:u1", []byte(`{"id":"u1"}`), time.Minute))

	// Keys land under the configured prefix.
	assert.True(t, mr.Exists("bq:user:read:u1"))

	value, err := store.Get(ctx, "user:read:u1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"u1"}`), value)

	_, err = store.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_DefaultTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, 5*time.Minute, mr.TTL("bq:k"))
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := store.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_Delete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisStore_DeletePattern(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user:read:u1", []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, "user:list", []byte("b"), time.Minute))
	require.NoError(t, store.Set(ctx, "post:read:p1", []byte("c"), time.Minute))

	deleted, err := store.DeletePattern(ctx, "user:*")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.Get(ctx, "user:list")
	assert.True(t, IsCacheMiss(err))
	_, err = store.Get(ctx, "post:read:p1")
	assert.NoError(t, err)
}

func TestRedisStore_Clear(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
}
