package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClosedStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMemoryStore_SetGet(t *testing.T) {
	store := newClosedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user:read:u1", []byte(`{"id":"u1"}`), time.Minute))

	value, err := store.Get(ctx, "user:read:u1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"u1"}`), value)

	_, err = store.Get(ctx, "user:read:u2")
	require.Error(t, err)
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := newClosedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Millisecond))

	_, err := store.Get(ctx, "k")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = store.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryStore_NegativeTTLNeverExpires(t *testing.T) {
	store := newClosedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), -1))
	time.Sleep(10 * time.Millisecond)

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := newClosedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryStore_DeletePattern(t *testing.T) {
	store := newClosedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user:read:u1", []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, "user:list", []byte("b"), time.Minute))
	require.NoError(t, store.Set(ctx, "post:read:p1", []byte("c"), time.Minute))

	deleted, err := store.DeletePattern(ctx, "user:*")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.Get(ctx, "user:read:u1")
	assert.True(t, IsCacheMiss(err))
	_, err = store.Get(ctx, "post:read:p1")
	assert.NoError(t, err)
}

func TestMemoryStore_Clear(t *testing.T) {
	store := newClosedStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
	_, err = store.Get(ctx, "b")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := newClosedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
