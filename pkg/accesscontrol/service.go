package accesscontrol

import (
	"context"
	"log/slog"
	"sort"

	"github.com/wisbric/lifebank/internal/ledger"
	"github.com/wisbric/lifebank/internal/telemetry"
)

// Service implements the access-control state machine. It holds no
// per-request state; every method takes the ledger.Env for the current
// transaction.
type Service struct {
	logger *slog.Logger
}

// NewService creates an access-control Service.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// GrantRole removes any existing grant for the same role, then inserts a
// freshly granted one in role-ordinal sort order. Requires env.Caller to be
// authorized by the host (grantor authorization, not the grantee, mirrors
// address.require_auth() being called on the admin performing the grant in
// the original contract's handler wiring).
func (s *Service) GrantRole(ctx context.Context, env *ledger.Env, address ledger.Address, role Role, expiresAt *uint64) (RoleGrant, error) {
	if err := env.RequireAuth(env.Caller); err != nil {
		return RoleGrant{}, err
	}

	roles, err := loadRoles(ctx, env, address)
	if err != nil {
		return RoleGrant{}, err
	}

	grant := RoleGrant{Role: role, GrantedAt: env.Now(), ExpiresAt: expiresAt}

	filtered := roles[:0:0]
	for _, g := range roles {
		if g.Role != role {
			filtered = append(filtered, g)
		}
	}
	filtered = append(filtered, grant)
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Role < filtered[j].Role })

	if err := saveRoles(ctx, env, address, filtered); err != nil {
		return RoleGrant{}, err
	}

	telemetry.RolesGrantedTotal.WithLabelValues(role.String()).Inc()
	s.logger.Info("role granted", "address", address, "role", role, "expires_at", expiresAt)

	return grant, nil
}

// RevokeRole removes the matching grant. If the resulting list is empty the
// address's storage entry is removed entirely.
func (s *Service) RevokeRole(ctx context.Context, env *ledger.Env, address ledger.Address, role Role) error {
	if err := env.RequireAuth(env.Caller); err != nil {
		return err
	}

	roles, err := loadRoles(ctx, env, address)
	if err != nil {
		return err
	}

	filtered := roles[:0:0]
	for _, g := range roles {
		if g.Role != role {
			filtered = append(filtered, g)
		}
	}

	if err := saveRoles(ctx, env, address, filtered); err != nil {
		return err
	}

	telemetry.RolesRevokedTotal.WithLabelValues(role.String()).Inc()
	s.logger.Info("role revoked", "address", address, "role", role)

	return nil
}

// HasRole returns true iff a non-expired grant exists for (address, role).
// A grant found to be expired is lazily deleted as a side effect of the
// query; other grants for the address are preserved, and the address entry
// is removed if that deletion empties the list.
func (s *Service) HasRole(ctx context.Context, env *ledger.Env, address ledger.Address, role Role) (bool, error) {
	roles, err := loadRoles(ctx, env, address)
	if err != nil {
		return false, err
	}

	now := env.Now()
	for i, g := range roles {
		if g.Role != role {
			continue
		}
		if g.Expired(now) {
			remaining := append(append([]RoleGrant{}, roles[:i]...), roles[i+1:]...)
			if err := saveRoles(ctx, env, address, remaining); err != nil {
				return false, err
			}
			telemetry.RolesExpiredTotal.Inc()
			s.logger.Info("role lazily expired", "address", address, "role", role)
			return false, nil
		}
		return true, nil
	}

	return false, nil
}

// GetRoles returns the full stored role list, including any not-yet-lazily-
// deleted expired grants.
func (s *Service) GetRoles(ctx context.Context, env *ledger.Env, address ledger.Address) ([]RoleGrant, error) {
	return loadRoles(ctx, env, address)
}

// CleanupExpiredRoles removes every grant whose expiry has passed and
// returns the count removed.
func (s *Service) CleanupExpiredRoles(ctx context.Context, env *ledger.Env, address ledger.Address) (uint32, error) {
	if err := env.RequireAuth(env.Caller); err != nil {
		return 0, err
	}

	roles, err := loadRoles(ctx, env, address)
	if err != nil {
		return 0, err
	}

	now := env.Now()
	var removed uint32
	kept := roles[:0:0]
	for _, g := range roles {
		if g.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, g)
	}

	if removed == 0 {
		return 0, nil
	}

	if err := saveRoles(ctx, env, address, kept); err != nil {
		return 0, err
	}

	telemetry.RolesExpiredTotal.Add(float64(removed))
	s.logger.Info("expired roles cleaned up", "address", address, "removed", removed)

	return removed, nil
}
