// Package cost tracks LLM token usage and estimated spend, and gates
// further paid completions once a configured daily budget is exceeded.
package cost

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warden-ai/warden/internal/store"
)

// Summary holds spend aggregates for the dashboard.
type Summary struct {
	TodayUSD      float64 `json:"today_usd"`
	TodayTokens   int64   `json:"today_tokens"`
	TodayRequests int64   `json:"today_requests"`
	MonthUSD      float64 `json:"month_usd"`
	TotalUSD      float64 `json:"total_usd"`
	TotalTokens   int64   `json:"total_tokens"`
	// DailyLimitUSD is the configured cap; 0 means unlimited.
	DailyLimitUSD float64 `json:"daily_limit_usd"`
	LimitExceeded bool    `json:"limit_exceeded"`
}

// Tracker appends usage rows to the shared store and answers daily-budget
// questions. Cost is computed from the pricing table at insert time and
// frozen on the row.
type Tracker struct {
	store      *store.Store
	dailyLimit float64 // USD; 0 = unlimited
	logger     *zap.Logger
	now        func() time.Time
}

// NewTracker creates a tracker with the given daily cap in USD (0 =
// unlimited).
func NewTracker(st *store.Store, dailyLimitUSD float64, logger *zap.Logger) *Tracker {
	return &Tracker{store: st, dailyLimit: dailyLimitUSD, logger: logger, now: time.Now}
}

// Record persists one usage row and reports whether today's total spend
// now exceeds the daily cap. With a zero cap it always returns false.
// Persistence failures are logged and swallowed; the breach signal is
// computed from successfully-read aggregate state.
func (t *Tracker) Record(ctx context.Context, backend, model string, promptTokens, completionTokens int64, contextLabel string) bool {
	estimated := EstimateCost(backend, model, promptTokens, completionTokens)

	if _, err := t.store.InsertUsage(ctx, &store.UsageRecord{
		Backend:          backend,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		EstimatedCost:    estimated,
		Context:          contextLabel,
		CreatedAt:        t.now().UTC(),
	}); err != nil {
		t.logger.Error("failed to write usage record",
			zap.String("backend", backend),
			zap.String("model", model),
			zap.Error(err),
		)
	}

	exceeded := t.IsLimitExceeded(ctx)
	if exceeded {
		t.logger.Warn("daily cost limit exceeded",
			zap.Float64("daily_limit_usd", t.dailyLimit),
		)
	}
	return exceeded
}

// IsLimitExceeded reports whether today's spend exceeds the daily cap,
// without recording anything. Used for pre-flight gating before an
// expensive call is issued.
func (t *Tracker) IsLimitExceeded(ctx context.Context) bool {
	if t.dailyLimit <= 0 {
		return false
	}
	today, err := t.store.UsageCostSince(ctx, t.startOfDay())
	if err != nil {
		t.logger.Error("cost limit check failed", zap.Error(err))
		return false
	}
	return today > t.dailyLimit
}

// Summary returns today's, this month's and all-time aggregates. Query
// failures yield zeroed fields rather than an error.
func (t *Tracker) Summary(ctx context.Context) Summary {
	sum := Summary{DailyLimitUSD: t.dailyLimit}

	read := func(dst *float64, since time.Time) {
		v, err := t.store.UsageCostSince(ctx, since)
		if err != nil {
			t.logger.Error("cost summary query failed", zap.Error(err))
			return
		}
		*dst = v
	}
	read(&sum.TodayUSD, t.startOfDay())
	read(&sum.MonthUSD, t.startOfMonth())
	read(&sum.TotalUSD, time.Time{})

	if v, err := t.store.UsageTokensSince(ctx, t.startOfDay()); err == nil {
		sum.TodayTokens = v
	}
	if v, err := t.store.UsageTokensSince(ctx, time.Time{}); err == nil {
		sum.TotalTokens = v
	}
	if v, err := t.store.UsageCountSince(ctx, t.startOfDay()); err == nil {
		sum.TodayRequests = v
	}

	sum.LimitExceeded = t.dailyLimit > 0 && sum.TodayUSD > t.dailyLimit
	return sum
}

// Recent returns the newest-first page of raw usage rows.
func (t *Tracker) Recent(ctx context.Context, limit int) []store.UsageRecord {
	records, err := t.store.UsageRecent(ctx, limit)
	if err != nil {
		t.logger.Error("usage query failed", zap.Error(err))
		return nil
	}
	return records
}

// Day and month boundaries are UTC so the budget window is deterministic
// across hosts and matches the stored timestamps.

func (t *Tracker) startOfDay() time.Time {
	now := t.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (t *Tracker) startOfMonth() time.Time {
	now := t.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
