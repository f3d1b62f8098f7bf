// ABOUTME: Membership Manager: join, quit, role changes, removal and listings
// ABOUTME: Each operation is one store transaction guarded by the role hierarchy

package membership

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/2389/fanclub-gateway/internal/apperr"
	"github.com/2389/fanclub-gateway/internal/pagination"
	"github.com/2389/fanclub-gateway/internal/store"
	"github.com/2389/fanclub-gateway/internal/telemetry"
)

// Manager owns membership rows.
type Manager struct {
	store    store.Store
	inst     telemetry.Instrument
	pages    pagination.Config
	onChange func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records operation outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(mgr *Manager) { mgr.inst.Metrics = m }
}

// WithPageConfig overrides the default page sizes.
func WithPageConfig(cfg pagination.Config) Option {
	return func(mgr *Manager) { mgr.pages = cfg }
}

// WithChangeObserver registers fn to run after a commit that changed a club's
// members or their roles.
func WithChangeObserver(fn func()) Option {
	return func(mgr *Manager) { mgr.onChange = fn }
}

// NewManager creates a Manager backed by s.
func NewManager(s store.Store, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		inst:     telemetry.NewInstrument("membership", logger, nil),
		pages:    pagination.DefaultConfig,
		onChange: func() {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Join adds principalID to an active club as a member. A previously removed
// membership is reactivated.
func (m *Manager) Join(ctx context.Context, clubID, principalID string) (*store.Membership, error) {
	if clubID == "" {
		return nil, apperr.Validation("clubId is required")
	}

	mem, err := telemetry.Run(ctx, m.inst, "Join", clubID, func(ctx context.Context) (*store.Membership, error) {
		var out *store.Membership
		err := m.store.WithTx(ctx, func(tx *store.Tx) error {
			if _, err := activeClub(ctx, tx, clubID); err != nil {
				return err
			}

			role, err := tx.ActiveRole(ctx, clubID, principalID)
			if err != nil {
				return err
			}
			if role.IsMember() {
				return apperr.Conflict("already a member of this club")
			}

			mem := &store.Membership{ClubID: clubID, PrincipalID: principalID, Role: store.RoleMember}
			if err := tx.ActivateMembership(ctx, mem); err != nil {
				return conflictOn(err, "already a member of this club")
			}
			if err := tx.AdjustMemberCount(ctx, clubID, 1); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           clubID,
				ActorPrincipalID: principalID,
				Action:           store.AuditJoinClub,
				TargetType:       store.TargetMembership,
				TargetID:         membershipKey(clubID, principalID),
			}); err != nil {
				return err
			}
			out = mem
			return nil
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	m.onChange()
	return mem, nil
}

// Quit ends principalID's membership. The owner cannot quit.
func (m *Manager) Quit(ctx context.Context, clubID, principalID string) error {
	if clubID == "" {
		return apperr.Validation("clubId is required")
	}

	_, err := telemetry.Run(ctx, m.inst, "Quit", clubID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.store.WithTx(ctx, func(tx *store.Tx) error {
			role, err := tx.ActiveRole(ctx, clubID, principalID)
			if err != nil {
				return err
			}
			if err := CheckQuit(role); err != nil {
				return err
			}
			if err := tx.RemoveMembership(ctx, clubID, principalID); err != nil {
				return err
			}
			if err := tx.AdjustMemberCount(ctx, clubID, -1); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           clubID,
				ActorPrincipalID: principalID,
				Action:           store.AuditQuitClub,
				TargetType:       store.TargetMembership,
				TargetID:         membershipKey(clubID, principalID),
				Detail:           map[string]any{"role": role.String()},
			})
		})
	})
	if err != nil {
		return err
	}
	m.onChange()
	return nil
}

// UpdateRole sets targetID's role. Only the owner may call it, and ownership
// itself cannot be moved this way.
func (m *Manager) UpdateRole(ctx context.Context, clubID, requesterID, targetID string, newRole store.Role) (*store.Membership, error) {
	if clubID == "" || targetID == "" {
		return nil, apperr.Validation("clubId and userId are required")
	}

	mem, err := telemetry.Run(ctx, m.inst, "UpdateRole", clubID, func(ctx context.Context) (*store.Membership, error) {
		var out *store.Membership
		err := m.store.WithTx(ctx, func(tx *store.Tx) error {
			requester, err := tx.ActiveRole(ctx, clubID, requesterID)
			if err != nil {
				return err
			}
			target, err := tx.ActiveRole(ctx, clubID, targetID)
			if err != nil {
				return err
			}
			if err := CheckRoleChange(requester, target, newRole); err != nil {
				return err
			}

			if err := tx.SetMembershipRole(ctx, clubID, targetID, newRole); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.NotFound("member not found")
				}
				return conflictOn(err, "a club has exactly one owner")
			}
			if err := tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           clubID,
				ActorPrincipalID: requesterID,
				Action:           store.AuditUpdateMemberRole,
				TargetType:       store.TargetMembership,
				TargetID:         membershipKey(clubID, targetID),
				Detail:           map[string]any{"from": target.String(), "to": newRole.String()},
			}); err != nil {
				return err
			}

			out, err = tx.GetMembership(ctx, clubID, targetID)
			return err
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	m.onChange()
	return mem, nil
}

// Remove forcibly ends targetID's membership. The requester must be an owner
// or admin and strictly outrank the target.
func (m *Manager) Remove(ctx context.Context, clubID, requesterID, targetID string) error {
	if clubID == "" || targetID == "" {
		return apperr.Validation("clubId and userId are required")
	}

	_, err := telemetry.Run(ctx, m.inst, "Remove", clubID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.store.WithTx(ctx, func(tx *store.Tx) error {
			requester, err := tx.ActiveRole(ctx, clubID, requesterID)
			if err != nil {
				return err
			}
			target, err := tx.ActiveRole(ctx, clubID, targetID)
			if err != nil {
				return err
			}
			if err := CheckRemoval(requester, target); err != nil {
				return err
			}

			if err := tx.RemoveMembership(ctx, clubID, targetID); err != nil {
				return err
			}
			if err := tx.AdjustMemberCount(ctx, clubID, -1); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, &store.AuditEntry{
				ClubID:           clubID,
				ActorPrincipalID: requesterID,
				Action:           store.AuditRemoveMember,
				TargetType:       store.TargetMembership,
				TargetID:         membershipKey(clubID, targetID),
				Detail:           map[string]any{"role": target.String()},
			})
		})
	})
	if err != nil {
		return err
	}
	m.onChange()
	return nil
}

// List returns a lazy sequence of active members from req onwards, owner
// first then by join time. Each window is read in its own transaction.
func (m *Manager) List(ctx context.Context, clubID string, f store.MembershipFilter, req pagination.Request) iter.Seq2[store.Membership, error] {
	return pagination.Seq(ctx, req, func(ctx context.Context, limit, offset int) ([]store.Membership, error) {
		var out []store.Membership
		err := m.store.View(ctx, func(tx *store.Tx) error {
			var err error
			out, err = tx.ListMemberships(ctx, clubID, f, limit, offset)
			return err
		})
		return out, err
	})
}

// ListPage returns one page of active members plus the total count. The club
// must exist; a disbanded club has no active members.
func (m *Manager) ListPage(ctx context.Context, clubID string, f store.MembershipFilter, page, pageSize int) (pagination.Page[store.Membership], error) {
	req := m.pages.Normalize(page, pageSize)
	return telemetry.Run(ctx, m.inst, "List", clubID, func(ctx context.Context) (pagination.Page[store.Membership], error) {
		out := pagination.Page[store.Membership]{Page: req.Page, PageSize: req.PageSize}
		err := m.store.View(ctx, func(tx *store.Tx) error {
			if _, err := tx.GetClub(ctx, clubID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.NotFound("club not found")
				}
				return err
			}

			var err error
			if out.Total, err = tx.CountMemberships(ctx, clubID, f); err != nil {
				return err
			}
			out.Items, err = tx.ListMemberships(ctx, clubID, f, req.PageSize, req.Offset())
			return err
		})
		return out, err
	})
}

// RoleOf returns principalID's active role in the club, or RoleNone.
func (m *Manager) RoleOf(ctx context.Context, clubID, principalID string) (store.Role, error) {
	var role store.Role
	err := m.store.View(ctx, func(tx *store.Tx) error {
		var err error
		role, err = m.RoleIn(ctx, tx, clubID, principalID)
		return err
	})
	return role, err
}

// RoleIn is RoleOf inside an open transaction.
func (m *Manager) RoleIn(ctx context.Context, tx *store.Tx, clubID, principalID string) (store.Role, error) {
	if principalID == "" {
		return store.RoleNone, nil
	}
	return tx.ActiveRole(ctx, clubID, principalID)
}

// EnrollOwner creates the owner membership of a new club inside tx.
func (m *Manager) EnrollOwner(ctx context.Context, tx *store.Tx, clubID, ownerID string) error {
	err := tx.ActivateMembership(ctx, &store.Membership{
		ClubID:      clubID,
		PrincipalID: ownerID,
		Role:        store.RoleOwner,
	})
	if err != nil {
		return fmt.Errorf("enrolling owner: %w", err)
	}
	return nil
}

// OnDisband marks every membership of the club removed. It runs inside the
// disband transaction.
func (m *Manager) OnDisband(ctx context.Context, tx *store.Tx, clubID string) error {
	n, err := tx.RemoveAllMemberships(ctx, clubID)
	if err != nil {
		return fmt.Errorf("removing memberships: %w", err)
	}
	m.inst.Logger.DebugContext(ctx, "memberships removed on disband", "club", clubID, "count", n)
	return nil
}

// activeClub loads a club and rejects missing or disbanded ones.
func activeClub(ctx context.Context, tx *store.Tx, clubID string) (*store.Club, error) {
	club, err := tx.GetClub(ctx, clubID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("club not found")
	}
	if err != nil {
		return nil, err
	}
	if club.Status != store.ClubActive {
		return nil, apperr.NotFound("club not found")
	}
	return club, nil
}

// conflictOn turns a constraint violation into a CONFLICT with msg.
func conflictOn(err error, msg string) error {
	if errors.Is(err, store.ErrConstraint) {
		return apperr.Wrap(apperr.CodeConflict, msg, err)
	}
	return err
}

func membershipKey(clubID, principalID string) string {
	return clubID + "/" + principalID
}
