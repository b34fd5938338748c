// Package memstore provides an in-memory ledger.Store for unit tests,
// mirroring Soroban's in-memory test-host storage.
package memstore

import (
	"context"
	"sync"

	"github.com/wisbric/lifebank/internal/ledger"
)

// Store is a goroutine-safe, in-memory implementation of ledger.Store. Each
// tier is kept in its own map so collisions across tiers are impossible,
// matching the host's separate persistent/instance/temporary key spaces.
type Store struct {
	mu   sync.RWMutex
	data [3]map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.data {
		s.data[i] = make(map[string][]byte)
	}
	return s
}

func (s *Store) tier(t ledger.Tier) map[string][]byte {
	return s.data[t]
}

// Get implements ledger.Store.
func (s *Store) Get(_ context.Context, t ledger.Tier, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tier(t)[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// Set implements ledger.Store.
func (s *Store) Set(_ context.Context, t ledger.Tier, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.tier(t)[key] = cp
	return nil
}

// Has implements ledger.Store.
func (s *Store) Has(_ context.Context, t ledger.Tier, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tier(t)[key]
	return ok, nil
}

// Remove implements ledger.Store.
func (s *Store) Remove(_ context.Context, t ledger.Tier, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tier(t), key)
	return nil
}
