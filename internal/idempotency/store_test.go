package idempotency

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis unavailable in this environment: %v", err)
	}
	t.Cleanup(srv.Close)

	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	return NewRedisStore(client)
}

func TestRedisStore_AcquireLock_SecondCallerBlocked(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "create_payment", "key-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "create_payment", "key-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_StoreResult_ReplaysAndReleasesLock(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "create_payment", "key-2")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.StoreResult(ctx, "create_payment", "key-2", []byte(`{"id":"abc"}`)))

	result, found, err := s.GetResult(ctx, "create_payment", "key-2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `{"id":"abc"}`, string(result))

	ok, err = s.AcquireLock(ctx, "create_payment", "key-2")
	require.NoError(t, err)
	assert.True(t, ok, "lock should be released once a result is stored")
}

func TestRedisStore_GetResult_MissingKey(t *testing.T) {
	s := newTestRedisStore(t)
	_, found, err := s.GetResult(context.Background(), "create_payment", "nonexistent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_ReleaseLock_AllowsRetry(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "create_refund", "key-3")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "create_refund", "key-3"))

	ok, err = s.AcquireLock(ctx, "create_refund", "key-3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_IsProcessed_TrueWhileLockedAndAfterResultStored(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	processed, err := s.IsProcessed(ctx, "create_payment", "key-4")
	require.NoError(t, err)
	assert.False(t, processed)

	ok, err := s.AcquireLock(ctx, "create_payment", "key-4")
	require.NoError(t, err)
	require.True(t, ok)

	processed, err = s.IsProcessed(ctx, "create_payment", "key-4")
	require.NoError(t, err)
	assert.True(t, processed, "held lock counts as processed/in-flight")

	require.NoError(t, s.StoreResult(ctx, "create_payment", "key-4", []byte("payload")))

	processed, err = s.IsProcessed(ctx, "create_payment", "key-4")
	require.NoError(t, err)
	assert.True(t, processed, "stored result counts as processed")
}

func TestMemoryStore_AcquireLock_SecondCallerBlockedUntilReleased(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "create_payment", "key-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "create_payment", "key-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "create_payment", "key-1"))

	ok, err = s.AcquireLock(ctx, "create_payment", "key-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_StoreResult_Replays(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := s.AcquireLock(ctx, "create_payment", "key-2")
	require.NoError(t, err)

	require.NoError(t, s.StoreResult(ctx, "create_payment", "key-2", []byte("payload")))

	result, found, err := s.GetResult(ctx, "create_payment", "key-2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "payload", string(result))
}

func TestMemoryStore_IsProcessed_TrueWhileLockedAndAfterResultStored(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	processed, err := s.IsProcessed(ctx, "create_payment", "key-3")
	require.NoError(t, err)
	assert.False(t, processed)

	ok, err := s.AcquireLock(ctx, "create_payment", "key-3")
	require.NoError(t, err)
	require.True(t, ok)

	processed, err = s.IsProcessed(ctx, "create_payment", "key-3")
	require.NoError(t, err)
	assert.True(t, processed)

	require.NoError(t, s.StoreResult(ctx, "create_payment", "key-3", []byte("payload")))

	processed, err = s.IsProcessed(ctx, "create_payment", "key-3")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestMemoryStore_DistinctOperationsDoNotCollide(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "create_payment", "shared-key")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "create_refund", "shared-key")
	require.NoError(t, err)
	assert.True(t, ok, "locks are scoped per-operation")
}
