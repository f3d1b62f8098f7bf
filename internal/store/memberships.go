// ABOUTME: Membership persistence methods on Tx
// ABOUTME: Rows are keyed by (club_id, principal_id) and soft-removed, never deleted

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const membershipColumns = `club_id, principal_id, role, status, joined_at, updated_at`

// membershipOrder sorts owner first, then admins, then members, oldest first.
const membershipOrder = `
	ORDER BY CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END,
	         joined_at ASC, rowid ASC
`

// GetMembership returns the membership row for (clubID, principalID) in any
// status. Returns ErrNotFound if the principal never joined.
func (t *Tx) GetMembership(ctx context.Context, clubID, principalID string) (*Membership, error) {
	row := t.queryRow(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE club_id = ? AND principal_id = ?`,
		clubID, principalID,
	)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("querying membership", err)
	}
	return m, nil
}

// ActiveRole returns the principal's role in the club, or RoleNone when there
// is no active membership.
func (t *Tx) ActiveRole(ctx context.Context, clubID, principalID string) (Role, error) {
	var role string
	err := t.queryRow(ctx,
		`SELECT role FROM memberships WHERE club_id = ? AND principal_id = ? AND status = 'active'`,
		clubID, principalID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, classify("querying role", err)
	}
	return ParseRole(role)
}

// ActiveRoles returns principalID's role in each of clubIDs with one query.
// Clubs without an active membership are absent from the map.
func (t *Tx) ActiveRoles(ctx context.Context, principalID string, clubIDs []string) (map[string]Role, error) {
	roles := make(map[string]Role, len(clubIDs))
	if len(clubIDs) == 0 {
		return roles, nil
	}

	args := make([]any, 0, len(clubIDs)+1)
	args = append(args, principalID)
	for _, id := range clubIDs {
		args = append(args, id)
	}
	rows, err := t.query(ctx, "querying roles", `
		SELECT club_id, role FROM memberships
		WHERE principal_id = ? AND status = 'active'
		  AND club_id IN (?`+strings.Repeat(", ?", len(clubIDs)-1)+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var clubID, role string
		if err := rows.Scan(&clubID, &role); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		r, err := ParseRole(role)
		if err != nil {
			return nil, err
		}
		roles[clubID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating roles", err)
	}
	return roles, nil
}

// ActivateMembership inserts an active membership, or reactivates a removed
// one with the given role and a fresh JoinedAt. Returns ErrConstraint if the
// principal is already an active member, or if activating a second owner.
func (t *Tx) ActivateMembership(ctx context.Context, m *Membership) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.JoinedAt
	m.Status = MembershipActive

	query := `
		INSERT INTO memberships (` + membershipColumns + `)
		VALUES (?, ?, ?, 'active', ?, ?)
		ON CONFLICT (club_id, principal_id) DO UPDATE
		SET role = excluded.role,
		    status = 'active',
		    joined_at = excluded.joined_at,
		    updated_at = excluded.updated_at
		WHERE memberships.status = 'removed'
	`
	res, err := t.exec(ctx, "activating membership", query,
		m.ClubID,
		m.PrincipalID,
		m.Role.String(),
		formatTime(m.JoinedAt),
		formatTime(m.UpdatedAt),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activating membership: checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("activating membership: %w: already active", ErrConstraint)
	}

	t.logger.Debug("activated membership", "club", m.ClubID, "principal", m.PrincipalID, "role", m.Role)
	return nil
}

// SetMembershipRole changes the role of an active membership.
// Returns ErrNotFound if the membership is not active.
func (t *Tx) SetMembershipRole(ctx context.Context, clubID, principalID string, role Role) error {
	res, err := t.exec(ctx, "updating membership role",
		`UPDATE memberships SET role = ?, updated_at = ? WHERE club_id = ? AND principal_id = ? AND status = 'active'`,
		role.String(), formatTime(time.Now().UTC()), clubID, principalID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res, "updating membership role")
}

// RemoveMembership marks an active membership removed.
// Returns ErrNotFound if the membership is not active.
func (t *Tx) RemoveMembership(ctx context.Context, clubID, principalID string) error {
	res, err := t.exec(ctx, "removing membership",
		`UPDATE memberships SET status = 'removed', updated_at = ? WHERE club_id = ? AND principal_id = ? AND status = 'active'`,
		formatTime(time.Now().UTC()), clubID, principalID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res, "removing membership")
}

// RemoveAllMemberships marks every active membership of a club removed and
// returns how many rows changed.
func (t *Tx) RemoveAllMemberships(ctx context.Context, clubID string) (int64, error) {
	res, err := t.exec(ctx, "removing club memberships",
		`UPDATE memberships SET status = 'removed', updated_at = ? WHERE club_id = ? AND status = 'active'`,
		formatTime(time.Now().UTC()), clubID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("removing club memberships: checking rows affected: %w", err)
	}
	return n, nil
}

// ListMemberships returns active memberships of a club, owner first.
func (t *Tx) ListMemberships(ctx context.Context, clubID string, f MembershipFilter, limit, offset int) ([]Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships
		WHERE club_id = ? AND status = 'active' AND (? = '' OR role = ?)` +
		membershipOrder + ` LIMIT ? OFFSET ?`

	roleArg := roleFilterArg(f.Role)
	rows, err := t.query(ctx, "querying memberships", query, clubID, roleArg, roleArg, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	memberships := []Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating memberships", err)
	}
	return memberships, nil
}

// CountMemberships returns the number of active memberships of a club.
func (t *Tx) CountMemberships(ctx context.Context, clubID string, f MembershipFilter) (int, error) {
	roleArg := roleFilterArg(f.Role)
	return t.count(ctx, "counting memberships",
		`SELECT COUNT(*) FROM memberships WHERE club_id = ? AND status = 'active' AND (? = '' OR role = ?)`,
		clubID, roleArg, roleArg,
	)
}

// CountActiveOwners returns how many active owner rows a club has.
func (t *Tx) CountActiveOwners(ctx context.Context, clubID string) (int, error) {
	return t.count(ctx, "counting owners",
		`SELECT COUNT(*) FROM memberships WHERE club_id = ? AND role = 'owner' AND status = 'active'`,
		clubID,
	)
}

func roleFilterArg(r Role) string {
	if r == RoleNone {
		return ""
	}
	return r.String()
}

func scanMembership(s scanner) (*Membership, error) {
	var m Membership
	var role, status, joinedAt, updatedAt string
	if err := s.Scan(&m.ClubID, &m.PrincipalID, &role, &status, &joinedAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if m.Role, err = ParseRole(role); err != nil {
		return nil, err
	}
	m.Status = MembershipStatus(status)
	if m.JoinedAt, err = parseTime(joinedAt); err != nil {
		return nil, fmt.Errorf("parsing joined_at: %w", err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &m, nil
}
