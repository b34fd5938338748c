package accesscontrol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wisbric/lifebank/internal/ledger"
)

func addressRolesKey(address ledger.Address) string {
	return fmt.Sprintf("AddressRoles(%s)", address)
}

// loadRoles reads an address's role list. A missing entry is an empty list,
// not an error.
func loadRoles(ctx context.Context, env *ledger.Env, address ledger.Address) ([]RoleGrant, error) {
	raw, ok, err := env.Store.Get(ctx, ledger.Persistent, addressRolesKey(address))
	if err != nil {
		return nil, fmt.Errorf("accesscontrol: loading roles for %s: %w", address, err)
	}
	if !ok {
		return nil, nil
	}
	var roles []RoleGrant
	if err := json.Unmarshal(raw, &roles); err != nil {
		return nil, fmt.Errorf("accesscontrol: decoding roles for %s: %w", address, err)
	}
	return roles, nil
}

// saveRoles persists the role list, or removes the storage entry entirely
// when the list is empty, reclaiming the storage slot.
func saveRoles(ctx context.Context, env *ledger.Env, address ledger.Address, roles []RoleGrant) error {
	key := addressRolesKey(address)
	if len(roles) == 0 {
		if err := env.Store.Remove(ctx, ledger.Persistent, key); err != nil {
			return fmt.Errorf("accesscontrol: removing roles for %s: %w", address, err)
		}
		return nil
	}
	raw, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("accesscontrol: encoding roles for %s: %w", address, err)
	}
	if err := env.Store.Set(ctx, ledger.Persistent, key, raw); err != nil {
		return fmt.Errorf("accesscontrol: saving roles for %s: %w", address, err)
	}
	return nil
}
