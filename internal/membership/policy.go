// ABOUTME: Pure authorization rules for membership changes
// ABOUTME: Each check returns the typed error a request would fail with, or nil

package membership

import (
	"github.com/2389/fanclub-gateway/internal/apperr"
	"github.com/2389/fanclub-gateway/internal/store"
)

// CheckRoleChange decides whether requester may set target's role to newRole.
//
// Rules, in the order they are applied:
//   - only the owner may change roles (AUTHORIZATION)
//   - ownership cannot be granted through a role change (CONFLICT)
//   - the target must be an active member (NOT_FOUND)
//   - the owner's own role cannot change (INVARIANT_VIOLATION)
//   - newRole must be admin or member (VALIDATION)
func CheckRoleChange(requester, target, newRole store.Role) error {
	if requester != store.RoleOwner {
		return apperr.Authorization("only the club owner can change member roles")
	}
	if newRole == store.RoleOwner {
		return apperr.Conflict("a club has exactly one owner")
	}
	if !target.IsMember() {
		return apperr.NotFound("member not found")
	}
	if target == store.RoleOwner {
		return apperr.Invariant("the owner's role cannot be changed")
	}
	if newRole != store.RoleAdmin && newRole != store.RoleMember {
		return apperr.Validation("role must be admin or member")
	}
	return nil
}

// CheckRemoval decides whether requester may remove target from the club.
//
// Rules:
//   - requester must be an owner or admin (AUTHORIZATION)
//   - the target must be an active member (NOT_FOUND)
//   - requester must strictly outrank the target (AUTHORIZATION)
func CheckRemoval(requester, target store.Role) error {
	if !requester.CanModerate() {
		return apperr.Authorization("only owners and admins can remove members")
	}
	if !target.IsMember() {
		return apperr.NotFound("member not found")
	}
	if !requester.Outranks(target) {
		return apperr.Authorization("cannot remove a member of equal or higher rank")
	}
	return nil
}

// CheckQuit decides whether a principal holding role may leave the club.
func CheckQuit(role store.Role) error {
	if !role.IsMember() {
		return apperr.NotFound("not a member of this club")
	}
	if role == store.RoleOwner {
		return apperr.Invariant("the owner cannot quit the club; disband it instead")
	}
	return nil
}
