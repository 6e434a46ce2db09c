package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AuditEntry is one immutable row of the audit_log table. Rows are never
// updated or deleted after insertion.
type AuditEntry struct {
	ID          int64     `json:"id"`
	EventType   string    `json:"event_type"`
	Tool        string    `json:"tool,omitempty"`
	Action      string    `json:"action,omitempty"`
	UserContext string    `json:"user_context,omitempty"`
	Reasoning   string    `json:"reasoning,omitempty"`
	ParamsJSON  string    `json:"params_json,omitempty"`
	Result      string    `json:"result,omitempty"`
	Success     *bool     `json:"success,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditSummary holds aggregate event counts for the dashboard.
type AuditSummary struct {
	TotalEvents       int64 `json:"total_events"`
	ToolCalls         int64 `json:"tool_calls"`
	Approvals         int64 `json:"approvals"`
	Rejections        int64 `json:"rejections"`
	RateLimits        int64 `json:"rate_limits"`
	PIIDetections     int64 `json:"pii_detections"`
	TwoFAChallenges   int64 `json:"twofa_challenges"`
	PermissionDenials int64 `json:"permission_denials"`
}

const auditColumns = "id, event_type, tool, action, user_context, reasoning, params_json, result, success, source, created_at"

// InsertAuditEntry appends one audit row and returns its id. CreatedAt is
// taken from the entry (set by the caller, UTC).
func (s *Store) InsertAuditEntry(ctx context.Context, e *AuditEntry) (int64, error) {
	var success sql.NullInt64
	if e.Success != nil {
		success.Valid = true
		if *e.Success {
			success.Int64 = 1
		}
	}
	args := []any{
		e.EventType,
		nullStr(e.Tool),
		nullStr(e.Action),
		nullStr(e.UserContext),
		nullStr(e.Reasoning),
		nullStr(e.ParamsJSON),
		nullStr(e.Result),
		success,
		e.Source,
		micros(e.CreatedAt),
	}

	const insert = `INSERT INTO audit_log
		(event_type, tool, action, user_context, reasoning, params_json, result, success, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if s.driver == DriverPostgres {
		var id int64
		err := s.db.QueryRowContext(ctx, s.rebind(insert+" RETURNING id"), args...).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert audit entry: %w", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, insert, args...)
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	return id, nil
}

// AuditRecent returns the newest-first page of audit rows matching the
// optional event-type and tool filters ("" = no filter).
func (s *Store) AuditRecent(ctx context.Context, limit, offset int, eventType, tool string) ([]AuditEntry, error) {
	var conds []string
	var args []any
	if eventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, eventType)
	}
	if tool != "" {
		conds = append(conds, "tool = ?")
		args = append(args, tool)
	}
	query := "SELECT " + auditColumns + " FROM audit_log"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit recent: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// AuditEntryByID fetches a single row, or nil when absent.
func (s *Store) AuditEntryByID(ctx context.Context, id int64) (*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+auditColumns+" FROM audit_log WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("query audit entry: %w", err)
	}
	defer rows.Close()
	entries, err := scanAuditEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// decisionEventTypes are the event types always eligible for a causal
// chain regardless of tool.
var decisionEventTypes = []string{"approval", "rate_limit", "2fa", "pii_detected", "permission_denied"}

// AuditChain returns up to limit rows at or before id that either
// reference tool or belong to the decision event types, restricted to
// rows created at or after since. Rows come back newest-first.
func (s *Store) AuditChain(ctx context.Context, id int64, tool string, since time.Time, limit int) ([]AuditEntry, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(decisionEventTypes)), ", ")
	query := "SELECT " + auditColumns + " FROM audit_log" +
		" WHERE id <= ? AND (tool = ? OR event_type IN (" + placeholders + "))" +
		" AND created_at >= ? ORDER BY id DESC LIMIT ?"

	args := []any{id, tool}
	for _, et := range decisionEventTypes {
		args = append(args, et)
	}
	args = append(args, micros(since), limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// AuditTail returns up to limit rows at or before id, newest-first, with
// no tool or window restriction. Used when the target entry has no tool.
func (s *Store) AuditTail(ctx context.Context, id int64, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+auditColumns+" FROM audit_log WHERE id <= ? ORDER BY id DESC LIMIT ?"),
		id, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit tail: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// AuditSummaryCounts aggregates event counts. Approvals and rejections
// are split by the action column of approval events.
func (s *Store) AuditSummaryCounts(ctx context.Context) (*AuditSummary, error) {
	count := func(query string, args ...any) (int64, error) {
		var n int64
		err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("audit summary: %w", err)
		}
		return n, nil
	}
	byType := func(eventType string) (int64, error) {
		return count("SELECT COUNT(*) FROM audit_log WHERE event_type = ?", eventType)
	}

	var sum AuditSummary
	var err error
	if sum.TotalEvents, err = count("SELECT COUNT(*) FROM audit_log"); err != nil {
		return nil, err
	}
	if sum.ToolCalls, err = byType("tool_call"); err != nil {
		return nil, err
	}
	if sum.Approvals, err = count(
		"SELECT COUNT(*) FROM audit_log WHERE event_type = ? AND action = ?", "approval", "approve"); err != nil {
		return nil, err
	}
	if sum.Rejections, err = count(
		"SELECT COUNT(*) FROM audit_log WHERE event_type = ? AND action = ?", "approval", "reject"); err != nil {
		return nil, err
	}
	if sum.RateLimits, err = byType("rate_limit"); err != nil {
		return nil, err
	}
	if sum.PIIDetections, err = byType("pii_detected"); err != nil {
		return nil, err
	}
	if sum.TwoFAChallenges, err = byType("2fa"); err != nil {
		return nil, err
	}
	if sum.PermissionDenials, err = byType("permission_denied"); err != nil {
		return nil, err
	}
	return &sum, nil
}

func scanAuditEntries(rows *sql.Rows) ([]AuditEntry, error) {
	var entries []AuditEntry
	for rows.Next() {
		var (
			e          AuditEntry
			tool       sql.NullString
			action     sql.NullString
			userCtx    sql.NullString
			reasoning  sql.NullString
			paramsJSON sql.NullString
			result     sql.NullString
			success    sql.NullInt64
			createdAt  int64
		)
		if err := rows.Scan(&e.ID, &e.EventType, &tool, &action, &userCtx,
			&reasoning, &paramsJSON, &result, &success, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Tool = tool.String
		e.Action = action.String
		e.UserContext = userCtx.String
		e.Reasoning = reasoning.String
		e.ParamsJSON = paramsJSON.String
		e.Result = result.String
		if success.Valid {
			v := success.Int64 != 0
			e.Success = &v
		}
		e.CreatedAt = fromMicros(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan audit entries: %w", err)
	}
	return entries, nil
}
