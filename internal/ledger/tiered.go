package ledger

import "context"

// TieredStore composes one Store per lifetime tier into a single Store,
// routing each call by its tier argument. Production wiring routes the
// persistent tier to Postgres and the instance/temporary tiers to Redis;
// tests use a single in-memory store for all three instead.
type TieredStore struct {
	PersistentStore Store
	InstanceStore   Store
	TemporaryStore  Store
}

func (s *TieredStore) route(t Tier) Store {
	switch t {
	case Instance:
		return s.InstanceStore
	case Temporary:
		return s.TemporaryStore
	default:
		return s.PersistentStore
	}
}

// Get implements Store.
func (s *TieredStore) Get(ctx context.Context, t Tier, key string) ([]byte, bool, error) {
	return s.route(t).Get(ctx, t, key)
}

// Set implements Store.
func (s *TieredStore) Set(ctx context.Context, t Tier, key string, value []byte) error {
	return s.route(t).Set(ctx, t, key, value)
}

// Has implements Store.
func (s *TieredStore) Has(ctx context.Context, t Tier, key string) (bool, error) {
	return s.route(t).Has(ctx, t, key)
}

// Remove implements Store.
func (s *TieredStore) Remove(ctx context.Context, t Tier, key string) error {
	return s.route(t).Remove(ctx, t, key)
}

var _ Store = (*TieredStore)(nil)
