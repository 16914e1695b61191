// Package store provides the namespace-partitioned Redis store that every
// warren component shares. It is the only synchronization point in the
// system: producers, consumers, and the health aggregator hold no other
// shared state.
//
// A RedisStore is bound to exactly one identity (role + credential) at
// construction, and evaluates the capability table on every operation, not
// at connection time. No component is trusted to self-police: a denied call
// fails with broker.ErrAccessDenied and performs no mutation.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warrenlabs/warren/internal/policy"
	"github.com/warrenlabs/warren/pkg/broker"
)

// RedisStore implements broker.Store over a Redis connection, plus the
// manager-only destructive operations the broker deliberately has no
// access to.
//
// All logical keys are namespaced as warren:{instance}:{key}, so multiple
// warren instances can safely coexist on a single Redis server. The store is
// safe for concurrent use from multiple goroutines.
type RedisStore struct {
	rdb      *redis.Client
	instance string
	role     policy.Role
	table    *policy.Table
}

// New creates a store bound to one instance namespace and one identity.
// The redis options carry the identity's credential; the role selects its
// grants in the capability table.
func New(opts *redis.Options, instance string, role policy.Role, table *policy.Table) (*RedisStore, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if err := role.Validate(); err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capability table: %w", err)
	}

	return &RedisStore{
		rdb:      redis.NewClient(opts),
		instance: instance,
		role:     role,
		table:    table,
	}, nil
}

// Role returns the identity this store is bound to.
func (s *RedisStore) Role() policy.Role {
	return s.role
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Used by health probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return s.unavailable("ping", err)
	}
	return nil
}

// Get returns the value at the logical key.
// Returns an error matching broker.ErrNotFound when the key is absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	if err := s.authorize(key, policy.OpRead); err != nil {
		return "", err
	}

	val, err := s.rdb.Get(ctx, s.namespaced(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("key %s: %w", key, broker.ErrNotFound)
	}
	if err != nil {
		return "", s.unavailable("get", err)
	}
	return val, nil
}

// Set writes the value at the logical key, overwriting any existing value.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.authorize(key, policy.OpWrite); err != nil {
		return err
	}

	if err := s.rdb.Set(ctx, s.namespaced(key), value, 0).Err(); err != nil {
		return s.unavailable("set", err)
	}
	return nil
}

// SetNX writes the value only if the key does not exist. Returns false when
// the key was already present.
func (s *RedisStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	if err := s.authorize(key, policy.OpWrite); err != nil {
		return false, err
	}

	created, err := s.rdb.SetNX(ctx, s.namespaced(key), value, 0).Result()
	if err != nil {
		return false, s.unavailable("setnx", err)
	}
	return created, nil
}

// PushQueue appends a value to the queue at the logical key (LPUSH; the
// matching pop is BRPOP, so delivery within one queue is FIFO).
func (s *RedisStore) PushQueue(ctx context.Context, key, value string) error {
	if err := s.authorize(key, policy.OpPush); err != nil {
		return err
	}

	if err := s.rdb.LPush(ctx, s.namespaced(key), value).Err(); err != nil {
		return s.unavailable("push", err)
	}
	return nil
}

// PopQueueBlocking removes and returns the oldest queue entry, suspending
// the caller until one is available or timeout elapses. Each entry is
// delivered to exactly one popping caller, so multiple consumers may
// safely share one queue with no external locking.
//
// On timeout it returns an error matching broker.ErrTimeout; context
// cancellation is passed through unchanged.
func (s *RedisStore) PopQueueBlocking(ctx context.Context, key string, timeout time.Duration) (string, error) {
	if err := s.authorize(key, policy.OpPop); err != nil {
		return "", err
	}

	vals, err := s.rdb.BRPop(ctx, timeout, s.namespaced(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("queue %s empty after %s: %w", key, timeout, broker.ErrTimeout)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", s.unavailable("pop", err)
	}

	// BRPOP returns (key, value).
	if len(vals) != 2 {
		return "", s.unavailable("pop", fmt.Errorf("unexpected BRPOP reply of length %d", len(vals)))
	}
	return vals[1], nil
}

// QueueLength returns the number of entries in the queue at the logical key.
func (s *RedisStore) QueueLength(ctx context.Context, key string) (int64, error) {
	if err := s.authorize(key, policy.OpRead); err != nil {
		return 0, err
	}

	n, err := s.rdb.LLen(ctx, s.namespaced(key)).Result()
	if err != nil {
		return 0, s.unavailable("llen", err)
	}
	return n, nil
}

// ScanPrefix returns all logical keys under the given prefix. Requires read
// on the prefix; uses SCAN so it never blocks the server on large keyspaces.
func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.authorize(prefix, policy.OpRead); err != nil {
		return nil, err
	}

	namespace := s.namespaced("")
	var keys []string

	iter := s.rdb.Scan(ctx, 0, s.namespaced(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, s.unavailable("scan", err)
	}
	return keys, nil
}

// Delete removes a key. Destructive: manager only.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.authorize(key, policy.OpAdmin); err != nil {
		return err
	}

	if err := s.rdb.Del(ctx, s.namespaced(key)).Err(); err != nil {
		return s.unavailable("del", err)
	}
	return nil
}

// FlushQueue discards every entry in the queue at the logical key and
// returns how many were dropped. Destructive: manager only.
func (s *RedisStore) FlushQueue(ctx context.Context, key string) (int64, error) {
	if err := s.authorize(key, policy.OpAdmin); err != nil {
		return 0, err
	}

	nskey := s.namespaced(key)
	n, err := s.rdb.LLen(ctx, nskey).Result()
	if err != nil {
		return 0, s.unavailable("llen", err)
	}
	if err := s.rdb.Del(ctx, nskey).Err(); err != nil {
		return 0, s.unavailable("del", err)
	}
	return n, nil
}

// namespaced converts a logical key to its Redis key.
// Pattern: warren:{instance}:{key}
func (s *RedisStore) namespaced(key string) string {
	return fmt.Sprintf("warren:%s:%s", s.instance, key)
}

// authorize evaluates the capability table for this store's identity.
// Denial is a policy outcome, not a transport failure, and is never retried.
func (s *RedisStore) authorize(key string, op policy.Operation) error {
	if !s.table.Authorize(s.role, key, op) {
		return fmt.Errorf("role %q may not %s %q: %w", s.role, op, key, broker.ErrAccessDenied)
	}
	return nil
}

// unavailable classifies a transport-level failure.
func (s *RedisStore) unavailable(op string, err error) error {
	return fmt.Errorf("redis %s failed: %w: %w", op, broker.ErrStoreUnavailable, err)
}
