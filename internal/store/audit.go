// ABOUTME: Audit log entity and store methods for tracking club mutations
// ABOUTME: Records who did what to which club, membership or post

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditCreateClub       AuditAction = "create_club"
	AuditUpdateClub       AuditAction = "update_club"
	AuditDisbandClub      AuditAction = "disband_club"
	AuditJoinClub         AuditAction = "join_club"
	AuditQuitClub         AuditAction = "quit_club"
	AuditUpdateMemberRole AuditAction = "update_member_role"
	AuditRemoveMember     AuditAction = "remove_member"
	AuditCreatePost       AuditAction = "create_post"
	AuditUpdatePost       AuditAction = "update_post"
	AuditDeletePost       AuditAction = "delete_post"
)

// ValidAuditActions lists all valid audit actions.
var ValidAuditActions = []AuditAction{
	AuditCreateClub,
	AuditUpdateClub,
	AuditDisbandClub,
	AuditJoinClub,
	AuditQuitClub,
	AuditUpdateMemberRole,
	AuditRemoveMember,
	AuditCreatePost,
	AuditUpdatePost,
	AuditDeletePost,
}

// ParseAuditAction converts a query value into an AuditAction. The empty string
// parses to the empty action, which matches every action in a filter.
func ParseAuditAction(s string) (AuditAction, error) {
	if s == "" {
		return "", nil
	}
	for _, a := range ValidAuditActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown audit action %q", s)
}

// Audit target types.
const (
	TargetClub       = "club"
	TargetMembership = "membership"
	TargetPost       = "post"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID               string         // UUID v4
	ClubID           string         // club the action happened in
	ActorPrincipalID string         // who performed the action
	Action           AuditAction    // what action was performed
	TargetType       string         // "club", "membership", "post"
	TargetID         string         // ID of the affected resource
	Timestamp        time.Time      // when it happened
	Detail           map[string]any // additional context
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	ClubID           string
	ActorPrincipalID string
	Action           AuditAction
	TargetType       string
	TargetID         string
	Limit            int // max results (default 100, max 1000)
	Offset           int
}

// AppendAudit appends a new entry to the audit log inside the transaction.
// Generates ID and Timestamp if not set.
func (t *Tx) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (audit_id, club_id, actor_principal_id, action, target_type, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := t.exec(ctx, "inserting audit entry", query,
		e.ID,
		e.ClubID,
		e.ActorPrincipalID,
		string(e.Action),
		e.TargetType,
		e.TargetID,
		formatTime(e.Timestamp),
		detailJSON,
	); err != nil {
		return err
	}

	t.logger.Debug("appended audit log",
		"id", e.ID,
		"club", e.ClubID,
		"actor", e.ActorPrincipalID,
		"action", e.Action,
		"target", e.TargetType+"/"+e.TargetID,
	)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const auditFilterClause = `
	WHERE (? = '' OR club_id = ?)
	  AND (? = '' OR actor_principal_id = ?)
	  AND (? = '' OR action = ?)
	  AND (? = '' OR target_type = ?)
	  AND (? = '' OR target_id = ?)
`

func auditFilterArgs(f AuditFilter) []any {
	action := string(f.Action)
	return []any{
		f.ClubID, f.ClubID,
		f.ActorPrincipalID, f.ActorPrincipalID,
		action, action,
		f.TargetType, f.TargetType,
		f.TargetID, f.TargetID,
	}
}

// ListAudit returns audit entries matching the filter, newest first.
func (t *Tx) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args := append(auditFilterArgs(f), normalizeAuditLimit(f.Limit), offset)
	rows, err := t.query(ctx, "querying audit log", `
		SELECT audit_id, club_id, actor_principal_id, action, target_type, target_id, ts, detail_json
		FROM audit_log`+auditFilterClause+`
		ORDER BY ts DESC, rowid DESC
		LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating audit entries", err)
	}
	return entries, nil
}

// CountAudit counts audit entries matching the filter. Limit and Offset are
// ignored.
func (t *Tx) CountAudit(ctx context.Context, f AuditFilter) (int, error) {
	return t.count(ctx, "counting audit entries",
		`SELECT COUNT(*) FROM audit_log`+auditFilterClause, auditFilterArgs(f)...)
}

// scanAuditEntry scans a row into an AuditEntry.
func scanAuditEntry(s scanner) (AuditEntry, error) {
	var e AuditEntry
	var actionStr, tsStr string
	var detailJSON *string

	if err := s.Scan(
		&e.ID,
		&e.ClubID,
		&e.ActorPrincipalID,
		&actionStr,
		&e.TargetType,
		&e.TargetID,
		&tsStr,
		&detailJSON,
	); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Action = AuditAction(actionStr)
	var err error
	e.Timestamp, err = parseTime(tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}

	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}
