// Package accesscontrol tracks per-address role grants: assignment,
// expiration, and lazy deletion. It is the leaf dependency of the other two
// LifeBank cores — bloodunit and coldchain policy checks are enforced by the
// caller layer (internal/callerauth) consulting this package, never by
// accesscontrol calling back into them.
package accesscontrol

import "fmt"

// Role is one of the five LifeBank participant roles. The ordinal order
// below (Admin < Hospital < Donor < Rider < BloodBank) is the sort key for
// an address's stored role list.
type Role int

const (
	RoleAdmin Role = iota
	RoleHospital
	RoleDonor
	RoleRider
	RoleBloodBank
)

// String renders the role for logging, metrics labels, and JSON.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleHospital:
		return "Hospital"
	case RoleDonor:
		return "Donor"
	case RoleRider:
		return "Rider"
	case RoleBloodBank:
		return "BloodBank"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole maps a role's canonical name back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "Admin":
		return RoleAdmin, nil
	case "Hospital":
		return RoleHospital, nil
	case "Donor":
		return RoleDonor, nil
	case "Rider":
		return RoleRider, nil
	case "BloodBank":
		return RoleBloodBank, nil
	default:
		return 0, fmt.Errorf("accesscontrol: unknown role %q", s)
	}
}

// MarshalJSON renders the role as its canonical name.
func (r Role) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON parses the role from its canonical name.
func (r *Role) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	role, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// RoleGrant is one role binding for an address.
type RoleGrant struct {
	Role      Role    `json:"role"`
	GrantedAt uint64  `json:"granted_at"`
	ExpiresAt *uint64 `json:"expires_at,omitempty"`
}

// Expired reports whether the grant has expired as of now.
func (g RoleGrant) Expired(now uint64) bool {
	return g.ExpiresAt != nil && now >= *g.ExpiresAt
}

// Error is the flat error enum for the access-control core.
type Error int

const (
	ErrNone Error = iota
	ErrUnauthorized
)

func (e Error) Error() string {
	switch e {
	case ErrUnauthorized:
		return "accesscontrol: unauthorized"
	default:
		return "accesscontrol: unknown error"
	}
}
