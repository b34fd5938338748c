package accesscontrol

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/wisbric/lifebank/internal/ledger"
	"github.com/wisbric/lifebank/internal/ledger/memclock"
	"github.com/wisbric/lifebank/internal/ledger/memstore"
)

func newRoleStore(t *testing.T) (*Service, *ledger.Env, *memclock.Clock) {
	t.Helper()
	clock := memclock.New(1000)
	env := &ledger.Env{
		Clock:  clock,
		Store:  memstore.New(),
		Caller: "grantor",
	}
	return NewService(slog.New(slog.DiscardHandler)), env, clock
}

func u64ptr(v uint64) *uint64 { return &v }

func TestGrantRole_SortedByOrdinal(t *testing.T) {
	svc, env, _ := newRoleStore(t)
	ctx := context.Background()

	// Granted out of order; stored sorted Admin < Hospital < Rider.
	for _, role := range []Role{RoleRider, RoleAdmin, RoleHospital} {
		if _, err := svc.GrantRole(ctx, env, "addr-1", role, nil); err != nil {
			t.Fatalf("GrantRole(%v): %v", role, err)
		}
	}

	roles, err := svc.GetRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	want := []Role{RoleAdmin, RoleHospital, RoleRider}
	if len(roles) != len(want) {
		t.Fatalf("roles = %d, want %d", len(roles), len(want))
	}
	for i, g := range roles {
		if g.Role != want[i] {
			t.Errorf("roles[%d] = %v, want %v", i, g.Role, want[i])
		}
	}
	for i := 1; i < len(roles); i++ {
		if roles[i-1].Role >= roles[i].Role {
			t.Errorf("role list not strictly increasing at %d: %v, %v", i, roles[i-1].Role, roles[i].Role)
		}
	}
}

func TestGrantRole_ReplacesExisting(t *testing.T) {
	svc, env, clock := newRoleStore(t)
	ctx := context.Background()

	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleDonor, nil); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	clock.Advance(500)
	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleDonor, u64ptr(9999)); err != nil {
		t.Fatalf("GrantRole again: %v", err)
	}

	roles, err := svc.GetRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	if len(roles) != 1 {
		t.Fatalf("roles = %d, want 1 (no duplicates)", len(roles))
	}
	if roles[0].GrantedAt != 1500 {
		t.Errorf("granted_at = %d, want 1500 (latest grant wins)", roles[0].GrantedAt)
	}
	if roles[0].ExpiresAt == nil || *roles[0].ExpiresAt != 9999 {
		t.Errorf("expires_at = %v, want 9999", roles[0].ExpiresAt)
	}
}

func TestGrantRole_RequiresCaller(t *testing.T) {
	svc, env, _ := newRoleStore(t)
	env.Caller = ""

	if _, err := svc.GrantRole(context.Background(), env, "addr-1", RoleDonor, nil); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("GrantRole without caller error = %v, want ErrUnauthorized", err)
	}
}

func TestRevokeRole(t *testing.T) {
	svc, env, _ := newRoleStore(t)
	ctx := context.Background()

	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleDonor, nil); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleRider, nil); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	if err := svc.RevokeRole(ctx, env, "addr-1", RoleDonor); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}

	roles, err := svc.GetRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	if len(roles) != 1 || roles[0].Role != RoleRider {
		t.Errorf("roles after revoke = %v, want just Rider", roles)
	}

	// Revoking the last role reclaims the whole address entry.
	if err := svc.RevokeRole(ctx, env, "addr-1", RoleRider); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	has, err := env.Store.Has(ctx, ledger.Persistent, "AddressRoles(addr-1)")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if has {
		t.Error("address entry still present after last role revoked")
	}
}

func TestHasRole(t *testing.T) {
	svc, env, _ := newRoleStore(t)
	ctx := context.Background()

	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleHospital, nil); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	has, err := svc.HasRole(ctx, env, "addr-1", RoleHospital)
	if err != nil {
		t.Fatalf("HasRole: %v", err)
	}
	if !has {
		t.Error("HasRole = false for granted role")
	}

	has, err = svc.HasRole(ctx, env, "addr-1", RoleAdmin)
	if err != nil {
		t.Fatalf("HasRole: %v", err)
	}
	if has {
		t.Error("HasRole = true for ungranted role")
	}

	has, err = svc.HasRole(ctx, env, "nobody", RoleAdmin)
	if err != nil {
		t.Fatalf("HasRole: %v", err)
	}
	if has {
		t.Error("HasRole = true for unknown address")
	}
}

func TestHasRole_ExpiryBoundary(t *testing.T) {
	svc, env, clock := newRoleStore(t)
	ctx := context.Background()

	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleDonor, u64ptr(2000)); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	// Strictly before expiry: valid.
	clock.Set(1999)
	has, err := svc.HasRole(ctx, env, "addr-1", RoleDonor)
	if err != nil {
		t.Fatalf("HasRole: %v", err)
	}
	if !has {
		t.Error("HasRole = false at now < expires_at")
	}

	// At the expiry instant the grant is gone.
	clock.Set(2000)
	has, err = svc.HasRole(ctx, env, "addr-1", RoleDonor)
	if err != nil {
		t.Fatalf("HasRole: %v", err)
	}
	if has {
		t.Error("HasRole = true at now == expires_at")
	}
}

func TestHasRole_LazyDeletion(t *testing.T) {
	svc, env, clock := newRoleStore(t)
	ctx := context.Background()

	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleDonor, u64ptr(2000)); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleRider, nil); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	clock.Set(2001)
	has, err := svc.HasRole(ctx, env, "addr-1", RoleDonor)
	if err != nil {
		t.Fatalf("HasRole: %v", err)
	}
	if has {
		t.Error("HasRole = true for expired grant")
	}

	// The expired grant was deleted as a side effect; the other grant
	// survives.
	roles, err := svc.GetRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	if len(roles) != 1 || roles[0].Role != RoleRider {
		t.Errorf("roles after lazy deletion = %v, want just Rider", roles)
	}
}

func TestHasRole_LazyDeletionEmptiesEntry(t *testing.T) {
	svc, env, clock := newRoleStore(t)
	ctx := context.Background()

	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleDonor, u64ptr(2000)); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	clock.Set(2001)
	if has, err := svc.HasRole(ctx, env, "addr-1", RoleDonor); err != nil || has {
		t.Fatalf("HasRole = %v, %v; want false, nil", has, err)
	}

	roles, err := svc.GetRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("roles = %d, want 0 after lazy deletion of sole grant", len(roles))
	}
	has, err := env.Store.Has(ctx, ledger.Persistent, "AddressRoles(addr-1)")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if has {
		t.Error("address entry still present after sole grant lazily deleted")
	}
}

func TestGetRoles_IncludesNotYetCollectedExpired(t *testing.T) {
	svc, env, clock := newRoleStore(t)
	ctx := context.Background()

	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleDonor, u64ptr(2000)); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	// Past expiry but no query or sweep has touched the grant yet.
	clock.Set(3000)
	roles, err := svc.GetRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	if len(roles) != 1 {
		t.Errorf("roles = %d, want 1 (expired but not yet lazily deleted)", len(roles))
	}
}

func TestCleanupExpiredRoles(t *testing.T) {
	svc, env, clock := newRoleStore(t)
	ctx := context.Background()

	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleAdmin, u64ptr(1500)); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleDonor, u64ptr(1600)); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleRider, nil); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	clock.Set(1700)
	removed, err := svc.CleanupExpiredRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("CleanupExpiredRoles: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	roles, err := svc.GetRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	if len(roles) != 1 || roles[0].Role != RoleRider {
		t.Errorf("surviving roles = %v, want just Rider", roles)
	}

	// Idempotent at the same timestamp.
	removed, err = svc.CleanupExpiredRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("CleanupExpiredRoles again: %v", err)
	}
	if removed != 0 {
		t.Errorf("second sweep removed = %d, want 0", removed)
	}
}

func TestCleanupExpiredRoles_EmptiesEntry(t *testing.T) {
	svc, env, clock := newRoleStore(t)
	ctx := context.Background()

	if _, err := svc.GrantRole(ctx, env, "addr-1", RoleAdmin, u64ptr(1500)); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	clock.Set(1501)
	removed, err := svc.CleanupExpiredRoles(ctx, env, "addr-1")
	if err != nil {
		t.Fatalf("CleanupExpiredRoles: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	has, err := env.Store.Has(ctx, ledger.Persistent, "AddressRoles(addr-1)")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if has {
		t.Error("address entry still present after all grants swept")
	}
}

func TestRoleOrdinalOrder(t *testing.T) {
	// The sort key underpinning the stored-list invariant.
	order := []Role{RoleAdmin, RoleHospital, RoleDonor, RoleRider, RoleBloodBank}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("ordinal order broken: %v >= %v", order[i-1], order[i])
		}
	}
}
