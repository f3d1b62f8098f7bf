// ABOUTME: Club persistence methods on Tx
// ABOUTME: Covers insert, patch, status flip, member counting and filtered listings

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const clubColumns = `id, owner_id, name, description, avatar, member_count, level, status, created_at, updated_at`

// CreateClub inserts a new club. CreatedAt and UpdatedAt are set if zero.
// Returns ErrConstraint if the owner already has an active club with the name.
func (t *Tx) CreateClub(ctx context.Context, c *Club) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Status == "" {
		c.Status = ClubActive
	}
	if c.Level == 0 {
		c.Level = 1
	}

	query := `
		INSERT INTO clubs (` + clubColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := t.exec(ctx, "inserting club", query,
		c.ID,
		c.OwnerID,
		c.Name,
		c.Description,
		c.Avatar,
		c.MemberCount,
		c.Level,
		string(c.Status),
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		return err
	}

	t.logger.Debug("inserted club", "id", c.ID, "owner", c.OwnerID)
	return nil
}

// GetClub retrieves a club by ID regardless of status.
// Returns ErrNotFound if the club does not exist.
func (t *Tx) GetClub(ctx context.Context, id string) (*Club, error) {
	row := t.queryRow(ctx, `SELECT `+clubColumns+` FROM clubs WHERE id = ?`, id)
	c, err := scanClub(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify("querying club", err)
	}
	return c, nil
}

// UpdateClub writes the mutable fields of c and bumps UpdatedAt.
// Returns ErrNotFound if no active club has the ID.
func (t *Tx) UpdateClub(ctx context.Context, c *Club) error {
	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE clubs
		SET name = ?, description = ?, avatar = ?, level = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
	`
	res, err := t.exec(ctx, "updating club", query,
		c.Name,
		c.Description,
		c.Avatar,
		c.Level,
		formatTime(c.UpdatedAt),
		c.ID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res, "updating club")
}

// DisbandClub flips an active club to disbanded.
// Returns ErrNotFound if the club is missing or already disbanded.
func (t *Tx) DisbandClub(ctx context.Context, id string) error {
	res, err := t.exec(ctx, "disbanding club",
		`UPDATE clubs SET status = 'disbanded', updated_at = ? WHERE id = ? AND status = 'active'`,
		formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return err
	}
	if err := requireOneRow(res, "disbanding club"); err != nil {
		return err
	}
	t.logger.Debug("disbanded club", "id", id)
	return nil
}

// AdjustMemberCount adds delta to a club's member_count.
func (t *Tx) AdjustMemberCount(ctx context.Context, clubID string, delta int) error {
	res, err := t.exec(ctx, "adjusting member count",
		`UPDATE clubs SET member_count = member_count + ? WHERE id = ?`,
		delta, clubID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res, "adjusting member count")
}

// ListClubs returns clubs matching f, newest first.
func (t *Tx) ListClubs(ctx context.Context, f ClubFilter, limit, offset int) ([]Club, error) {
	where, args := clubWhere(f)
	query := `SELECT ` + clubColumns + ` FROM clubs` + where +
		` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := t.query(ctx, "querying clubs", query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectClubs(rows)
}

// CountClubs returns the number of clubs matching f.
func (t *Tx) CountClubs(ctx context.Context, f ClubFilter) (int, error) {
	where, args := clubWhere(f)
	return t.count(ctx, "counting clubs", `SELECT COUNT(*) FROM clubs`+where, args...)
}

// ListClubsForMember returns clubs in which principalID holds an active
// membership, most recently joined first.
func (t *Tx) ListClubsForMember(ctx context.Context, principalID string, limit, offset int) ([]Club, error) {
	query := `
		SELECT c.id, c.owner_id, c.name, c.description, c.avatar, c.member_count, c.level, c.status, c.created_at, c.updated_at
		FROM clubs c
		JOIN memberships m ON m.club_id = c.id
		WHERE m.principal_id = ? AND m.status = 'active' AND c.status = 'active'
		ORDER BY m.joined_at DESC, c.rowid DESC
		LIMIT ? OFFSET ?
	`
	rows, err := t.query(ctx, "querying member clubs", query, principalID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectClubs(rows)
}

// CountClubsForMember returns the number of active clubs principalID belongs to.
func (t *Tx) CountClubsForMember(ctx context.Context, principalID string) (int, error) {
	return t.count(ctx, "counting member clubs", `
		SELECT COUNT(*)
		FROM clubs c
		JOIN memberships m ON m.club_id = c.id
		WHERE m.principal_id = ? AND m.status = 'active' AND c.status = 'active'
	`, principalID)
}

// OwnerHasClubNamed reports whether ownerID owns an active club called name,
// ignoring the club excludeID (used when renaming).
func (t *Tx) OwnerHasClubNamed(ctx context.Context, ownerID, name, excludeID string) (bool, error) {
	n, err := t.count(ctx, "checking club name",
		`SELECT COUNT(*) FROM clubs WHERE owner_id = ? AND name = ? AND status = 'active' AND id != ?`,
		ownerID, name, excludeID,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func clubWhere(f ClubFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		conds = append(conds, `LOWER(name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(kw))+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike escapes LIKE wildcards so keywords match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanClub(s scanner) (*Club, error) {
	var c Club
	var status, createdAt, updatedAt string
	if err := s.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Description,
		&c.Avatar,
		&c.MemberCount,
		&c.Level,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	c.Status = ClubStatus(status)

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

func collectClubs(rows *sql.Rows) ([]Club, error) {
	clubs := []Club{}
	for rows.Next() {
		c, err := scanClub(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning club: %w", err)
		}
		clubs = append(clubs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating clubs", err)
	}
	return clubs, nil
}

// requireOneRow maps an UPDATE that touched nothing to ErrNotFound.
func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: checking rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
