// Package redisstore implements the instance and temporary tiers of
// ledger.Store on top of Redis. Instance keys never expire; temporary keys
// carry a fixed TTL, mirroring the host's bounded-lifetime storage tier.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/lifebank/internal/ledger"
)

const instancePrefix = "inst:"
const temporaryPrefix = "temp:"

// Store is a Redis-backed ledger.Store covering the instance and temporary
// tiers; persistent entries are rejected since this repo routes those to
// internal/ledger/pgstore instead.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps an existing redis.Client. ttl governs how long temporary-tier
// keys live; it has no effect on instance-tier keys.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) prefixedKey(t ledger.Tier, key string) (string, error) {
	switch t {
	case ledger.Instance:
		return instancePrefix + key, nil
	case ledger.Temporary:
		return temporaryPrefix + key, nil
	default:
		return "", fmt.Errorf("redisstore: tier %d not supported", t)
	}
}

// Get implements ledger.Store.
func (s *Store) Get(ctx context.Context, t ledger.Tier, key string) ([]byte, bool, error) {
	pk, err := s.prefixedKey(t, key)
	if err != nil {
		return nil, false, err
	}
	value, err := s.client.Get(ctx, pk).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements ledger.Store.
func (s *Store) Set(ctx context.Context, t ledger.Tier, key string, value []byte) error {
	pk, err := s.prefixedKey(t, key)
	if err != nil {
		return err
	}
	ttl := time.Duration(0)
	if t == ledger.Temporary {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, pk, value, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", key, err)
	}
	return nil
}

// Has implements ledger.Store.
func (s *Store) Has(ctx context.Context, t ledger.Tier, key string) (bool, error) {
	pk, err := s.prefixedKey(t, key)
	if err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, pk).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: has %q: %w", key, err)
	}
	return n > 0, nil
}

// Remove implements ledger.Store.
func (s *Store) Remove(ctx context.Context, t ledger.Tier, key string) error {
	pk, err := s.prefixedKey(t, key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, pk).Err(); err != nil {
		return fmt.Errorf("redisstore: remove %q: %w", key, err)
	}
	return nil
}

var _ ledger.Store = (*Store)(nil)
