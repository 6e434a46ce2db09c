package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UsageRecord is one immutable row of the llm_usage table. The estimated
// cost is computed at insert time and never recomputed; pricing-table
// changes do not retroactively alter history.
type UsageRecord struct {
	ID               int64     `json:"id"`
	Backend          string    `json:"backend"`
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	EstimatedCost    float64   `json:"estimated_cost"`
	Context          string    `json:"context"`
	CreatedAt        time.Time `json:"created_at"`
}

// InsertUsage appends one usage row and returns its id.
func (s *Store) InsertUsage(ctx context.Context, u *UsageRecord) (int64, error) {
	const insert = `INSERT INTO llm_usage
		(backend, model, prompt_tokens, completion_tokens, total_tokens, estimated_cost, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		u.Backend, u.Model, u.PromptTokens, u.CompletionTokens,
		u.TotalTokens, u.EstimatedCost, u.Context, micros(u.CreatedAt),
	}

	if s.driver == DriverPostgres {
		var id int64
		err := s.db.QueryRowContext(ctx, s.rebind(insert+" RETURNING id"), args...).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert usage: %w", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, insert, args...)
	if err != nil {
		return 0, fmt.Errorf("insert usage: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert usage: %w", err)
	}
	return id, nil
}

// UsageCostSince sums estimated costs for rows created at or after since.
// Pass the zero time for an all-time sum.
func (s *Store) UsageCostSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COALESCE(SUM(estimated_cost), 0) FROM llm_usage WHERE created_at >= ?"),
		sinceMicros(since)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("usage cost: %w", err)
	}
	return total, nil
}

// UsageTokensSince sums total tokens for rows created at or after since.
func (s *Store) UsageTokensSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COALESCE(SUM(total_tokens), 0) FROM llm_usage WHERE created_at >= ?"),
		sinceMicros(since)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("usage tokens: %w", err)
	}
	return total, nil
}

// UsageCountSince counts rows created at or after since.
func (s *Store) UsageCountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM llm_usage WHERE created_at >= ?"),
		sinceMicros(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("usage count: %w", err)
	}
	return n, nil
}

// UsageRecent returns the newest-first page of raw usage rows.
func (s *Store) UsageRecent(ctx context.Context, limit int) ([]UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, backend, model, prompt_tokens, completion_tokens, total_tokens, estimated_cost, context, created_at
		 FROM llm_usage ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query usage recent: %w", err)
	}
	defer rows.Close()
	return scanUsageRecords(rows)
}

// sinceMicros maps the zero time to 0 so "all time" never underflows the
// unix epoch into a negative bound that still behaves correctly but reads
// oddly in query logs.
func sinceMicros(since time.Time) int64 {
	if since.IsZero() {
		return 0
	}
	return micros(since)
}

func scanUsageRecords(rows *sql.Rows) ([]UsageRecord, error) {
	var records []UsageRecord
	for rows.Next() {
		var (
			u         UsageRecord
			createdAt int64
		)
		if err := rows.Scan(&u.ID, &u.Backend, &u.Model, &u.PromptTokens,
			&u.CompletionTokens, &u.TotalTokens, &u.EstimatedCost, &u.Context, &createdAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		u.CreatedAt = fromMicros(createdAt)
		records = append(records, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan usage records: %w", err)
	}
	return records, nil
}
