// ABOUTME: Club role enumeration used for authorization
// ABOUTME: Roles are ordered owner > admin > member so hierarchy checks are total

package store

import (
	"fmt"
)

// Role is a member's rank within a club. The zero value RoleNone means no
// active membership.
type Role int

const (
	RoleNone Role = iota
	RoleMember
	RoleAdmin
	RoleOwner
)

// ValidRoles lists all assignable roles, highest first
var ValidRoles = []Role{
	RoleOwner,
	RoleAdmin,
	RoleMember,
}

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	case RoleMember:
		return "member"
	default:
		return "none"
	}
}

// ParseRole converts the stored or wire form of a role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "owner":
		return RoleOwner, nil
	case "admin":
		return RoleAdmin, nil
	case "member":
		return RoleMember, nil
	case "", "none":
		return RoleNone, nil
	default:
		return RoleNone, fmt.Errorf("unknown role %q", s)
	}
}

// Outranks reports whether r is strictly higher than other. Actors may only
// act on strictly lower roles.
func (r Role) Outranks(other Role) bool {
	return r > other
}

// AtLeast reports whether r is other or higher.
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

// IsMember reports whether the role denotes an active membership.
func (r Role) IsMember() bool {
	return r != RoleNone
}

// CanModerate reports whether the role may edit or delete other members' posts
// and update club settings.
func (r Role) CanModerate() bool {
	return r >= RoleAdmin
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
