// Package pgstore implements the persistent tier of ledger.Store on top of
// PostgreSQL via pgx, using a single flat key/value table mirroring the
// host's persistent storage space.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/lifebank/internal/ledger"
)

// Store is a PostgreSQL-backed ledger.Store covering the persistent tier
// only; instance and temporary entries are rejected since this repo routes
// those to internal/ledger/redisstore instead.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pgxpool.Pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get implements ledger.Store.
func (s *Store) Get(ctx context.Context, t ledger.Tier, key string) ([]byte, bool, error) {
	if t != ledger.Persistent {
		return nil, false, fmt.Errorf("pgstore: tier %d not supported", t)
	}
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM ledger_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: get %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements ledger.Store.
func (s *Store) Set(ctx context.Context, t ledger.Tier, key string, value []byte) error {
	if t != ledger.Persistent {
		return fmt.Errorf("pgstore: tier %d not supported", t)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("pgstore: set %q: %w", key, err)
	}
	return nil
}

// Has implements ledger.Store.
func (s *Store) Has(ctx context.Context, t ledger.Tier, key string) (bool, error) {
	if t != ledger.Persistent {
		return false, fmt.Errorf("pgstore: tier %d not supported", t)
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_kv WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgstore: has %q: %w", key, err)
	}
	return exists, nil
}

// Remove implements ledger.Store.
func (s *Store) Remove(ctx context.Context, t ledger.Tier, key string) error {
	if t != ledger.Persistent {
		return fmt.Errorf("pgstore: tier %d not supported", t)
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM ledger_kv WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("pgstore: remove %q: %w", key, err)
	}
	return nil
}

var _ ledger.Store = (*Store)(nil)
