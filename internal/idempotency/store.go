// Package idempotency implements the C5 idempotency store: a Redis-backed
// lock-and-replay cache keyed on (operation, idempotency key), with an
// in-memory fallback for development environments with no Redis.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LockDuration bounds how long a single in-flight request holds its lock
// before another caller is allowed to retry (guards against a crashed
// worker wedging a key forever).
const LockDuration = 30 * time.Second

// RetentionDuration is how long a completed result stays replayable.
const RetentionDuration = 24 * time.Hour

// Store is the persistence boundary the orchestrators use to make
// CreatePayment/CreateRefund idempotent under the (operation, key) scheme.
type Store interface {
	// IsProcessed reports whether (operation, key) already has a stored
	// result or is currently PROCESSING under a held lock.
	IsProcessed(ctx context.Context, operation, key string) (bool, error)
	// AcquireLock claims key for operation. ok is false when another
	// request already holds the lock (still PROCESSING).
	AcquireLock(ctx context.Context, operation, key string) (ok bool, err error)
	// ReleaseLock releases a lock acquired by AcquireLock, used on panic
	// recovery/early-return paths that never reach StoreResult.
	ReleaseLock(ctx context.Context, operation, key string) error
	// StoreResult records the final serialized result for replay and
	// releases the lock.
	StoreResult(ctx context.Context, operation, key string, result []byte) error
	// GetResult returns the previously stored result for (operation, key),
	// or ok=false if no result has been stored (including: still locked).
	GetResult(ctx context.Context, operation, key string) (result []byte, ok bool, err error)
}

// RedisStore implements Store against Redis, using SETNX for the lock and a
// regular SET for the replay cache, mirroring the teacher's idempotency
// middleware scheme but scoped per-operation instead of per-user.
type RedisStore struct {
	client *goredis.Client
}

// NewRedisStore builds a RedisStore.
func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func lockKey(operation, key string) string { return fmt.Sprintf("idem:lock:%s:%s", operation, key) }
func resultKey(operation, key string) string { return fmt.Sprintf("idem:result:%s:%s", operation, key) }

func (s *RedisStore) IsProcessed(ctx context.Context, operation, key string) (bool, error) {
	n, err := s.client.Exists(ctx, resultKey(operation, key), lockKey(operation, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) AcquireLock(ctx context.Context, operation, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKey(operation, key), "processing", LockDuration).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, operation, key string) error {
	return s.client.Del(ctx, lockKey(operation, key)).Err()
}

func (s *RedisStore) StoreResult(ctx context.Context, operation, key string, result []byte) error {
	if err := s.client.Set(ctx, resultKey(operation, key), result, RetentionDuration).Err(); err != nil {
		return err
	}
	return s.client.Del(ctx, lockKey(operation, key)).Err()
}

func (s *RedisStore) GetResult(ctx context.Context, operation, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, resultKey(operation, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// MemoryStore is an in-process fallback used when no Redis endpoint is
// configured. It is not safe across process restarts or multiple replicas;
// callers should log a warning on construction.
type MemoryStore struct {
	mu      sync.Mutex
	locks   map[string]time.Time
	results map[string][]byte
}

// NewMemoryStore builds a MemoryStore and logs a warning, since running
// without Redis means idempotency guarantees do not survive a restart or
// hold across multiple replicas.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger != nil {
		logger.Warn("idempotency: using in-memory store; guarantees do not survive restarts or multiple replicas")
	}
	return &MemoryStore{
		locks:   make(map[string]time.Time),
		results: make(map[string][]byte),
	}
}

func (s *MemoryStore) IsProcessed(ctx context.Context, operation, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[resultKey(operation, key)]; ok {
		return true, nil
	}
	if expiry, ok := s.locks[lockKey(operation, key)]; ok && time.Now().Before(expiry) {
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) AcquireLock(ctx context.Context, operation, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := lockKey(operation, key)
	if expiry, ok := s.locks[k]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	s.locks[k] = time.Now().Add(LockDuration)
	return true, nil
}

func (s *MemoryStore) ReleaseLock(ctx context.Context, operation, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, lockKey(operation, key))
	return nil
}

func (s *MemoryStore) StoreResult(ctx context.Context, operation, key string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[resultKey(operation, key)] = result
	delete(s.locks, lockKey(operation, key))
	return nil
}

func (s *MemoryStore) GetResult(ctx context.Context, operation, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[resultKey(operation, key)]
	return result, ok, nil
}
