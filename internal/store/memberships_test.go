// ABOUTME: Tests for membership store operations
// ABOUTME: Covers activation, rejoin, role changes, the single-owner index and ordering

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivateMembership_AlreadyActiveIsConstraint(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	seedMember(t, store, club.ID, "m1", RoleMember)

	err := store.WithTx(ctx, func(tx *Tx) error {
		return tx.ActivateMembership(ctx, &Membership{ClubID: club.ID, PrincipalID: "m1", Role: RoleMember})
	})
	assert.ErrorIs(t, err, ErrConstraint)
}

func TestActivateMembership_ReactivatesRemovedRow(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	seedMember(t, store, club.ID, "m1", RoleAdmin)

	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		return tx.RemoveMembership(ctx, club.ID, "m1")
	}))
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		return tx.ActivateMembership(ctx, &Membership{ClubID: club.ID, PrincipalID: "m1", Role: RoleMember})
	}))

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		m, err := tx.GetMembership(ctx, club.ID, "m1")
		require.NoError(t, err)
		assert.Equal(t, MembershipActive, m.Status)
		assert.Equal(t, RoleMember, m.Role, "rejoining resets the role")
		return nil
	}))
}

func TestActiveRole(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	seedMember(t, store, club.ID, "admin-1", RoleAdmin)
	seedMember(t, store, club.ID, "gone", RoleMember)
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		return tx.RemoveMembership(ctx, club.ID, "gone")
	}))

	tests := []struct {
		principal string
		want      Role
	}{
		{"owner-1", RoleOwner},
		{"admin-1", RoleAdmin},
		{"gone", RoleNone},
		{"stranger", RoleNone},
	}

	for _, tt := range tests {
		t.Run(tt.principal, func(t *testing.T) {
			require.NoError(t, store.View(ctx, func(tx *Tx) error {
				got, err := tx.ActiveRole(ctx, club.ID, tt.principal)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return nil
			}))
		})
	}
}

func TestSetMembershipRole_SecondOwnerIsConstraint(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	seedMember(t, store, club.ID, "m1", RoleMember)

	err := store.WithTx(ctx, func(tx *Tx) error {
		return tx.SetMembershipRole(ctx, club.ID, "m1", RoleOwner)
	})
	assert.ErrorIs(t, err, ErrConstraint)

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		n, err := tx.CountActiveOwners(ctx, club.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}))
}

func TestSetMembershipRole_InactiveIsNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")

	err := store.WithTx(ctx, func(tx *Tx) error {
		return tx.SetMembershipRole(ctx, club.ID, "stranger", RoleAdmin)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveMembership_Twice(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	seedMember(t, store, club.ID, "m1", RoleMember)

	remove := func() error {
		return store.WithTx(ctx, func(tx *Tx) error {
			return tx.RemoveMembership(ctx, club.ID, "m1")
		})
	}
	require.NoError(t, remove())
	assert.ErrorIs(t, remove(), ErrNotFound)
}

func TestRemoveAllMemberships(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	seedMember(t, store, club.ID, "m1", RoleMember)
	seedMember(t, store, club.ID, "m2", RoleAdmin)

	var removed int64
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		var err error
		removed, err = tx.RemoveAllMemberships(ctx, club.ID)
		return err
	}))
	assert.Equal(t, int64(3), removed)

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		n, err := tx.CountMemberships(ctx, club.ID, MembershipFilter{})
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
}

func TestListMemberships_OwnerFirstThenJoinOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	club := seedClub(t, store, "owner-1")
	seedMember(t, store, club.ID, "m1", RoleMember)
	seedMember(t, store, club.ID, "a1", RoleAdmin)
	seedMember(t, store, club.ID, "m2", RoleMember)

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		list, err := tx.ListMemberships(ctx, club.ID, MembershipFilter{}, 10, 0)
		require.NoError(t, err)

		var got []string
		for _, m := range list {
			got = append(got, m.PrincipalID)
		}
		assert.Equal(t, []string{"owner-1", "a1", "m1", "m2"}, got)

		members, err := tx.ListMemberships(ctx, club.ID, MembershipFilter{Role: RoleMember}, 10, 0)
		require.NoError(t, err)
		assert.Len(t, members, 2)

		n, err := tx.CountMemberships(ctx, club.ID, MembershipFilter{Role: RoleAdmin})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}))
}

func TestActiveRoles(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	owned := seedClub(t, store, "alice")
	joined := seedClub(t, store, "bob")
	left := seedClub(t, store, "carol")
	other := seedClub(t, store, "dave")
	seedMember(t, store, joined.ID, "alice", RoleAdmin)
	seedMember(t, store, left.ID, "alice", RoleMember)
	require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
		return tx.RemoveMembership(ctx, left.ID, "alice")
	}))

	require.NoError(t, store.View(ctx, func(tx *Tx) error {
		roles, err := tx.ActiveRoles(ctx, "alice", []string{owned.ID, joined.ID, left.ID, other.ID})
		require.NoError(t, err)
		assert.Equal(t, map[string]Role{owned.ID: RoleOwner, joined.ID: RoleAdmin}, roles)

		roles, err = tx.ActiveRoles(ctx, "alice", nil)
		require.NoError(t, err)
		assert.Empty(t, roles)
		return nil
	}))
}
