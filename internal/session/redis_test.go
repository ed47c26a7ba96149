package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, nil), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", sampleState(), 30*time.Minute))
	assert.True(t, mr.Exists("chat_session:s1"))
	assert.Equal(t, 30*time.Minute, mr.TTL("chat_session:s1"))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sampleState(), loaded)
	assert.NotContains(t, mustGet(t, mr, "chat_session:s1"), "password")
}

func TestRedisStore_MissingIsNil(t *testing.T) {
	store, _ := newRedisStore(t)
	st, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", sampleState(), time.Minute))
	mr.FastForward(2 * time.Minute)

	st, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRedisStore_DeleteAndSaveNil(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", sampleState(), time.Minute))
	require.NoError(t, store.Delete(ctx, "s1"))
	assert.False(t, mr.Exists("chat_session:s1"))

	require.NoError(t, store.Save(ctx, "s2", sampleState(), time.Minute))
	require.NoError(t, store.Save(ctx, "s2", nil, time.Minute))
	assert.False(t, mr.Exists("chat_session:s2"))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("chat_session:bad", "{not json"))

	_, err := store.Load(context.Background(), "bad")
	assert.Error(t, err)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Load(context.Background(), "s1")
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), "s1", sampleState(), time.Minute))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
