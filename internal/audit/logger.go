// Package audit maintains the append-only forensic log of every
// security-relevant event: tool executions, approval decisions, rate-limit
// hits, PII detections, 2FA challenges, permission denials.
//
// The log is forensic, not a gate: persistence failures are logged at
// error level and swallowed so that a missing audit row never blocks or
// fails the action it describes.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/warden-ai/warden/internal/storage"
	"github.com/warden-ai/warden/internal/store"
)

// Event types written by this package.
const (
	EventToolCall         = "tool_call"
	EventApproval         = "approval"
	EventRateLimit        = "rate_limit"
	EventPIIDetected      = "pii_detected"
	Event2FA              = "2fa"
	EventPermissionDenied = "permission_denied"
)

// ExplainLimit and ExplainWindow bound the causal-chain reconstruction.
// They are tunables of a temporal-proximity heuristic, not guarantees.
const (
	ExplainLimit  = 10
	ExplainWindow = time.Minute
)

// Logger appends immutable audit rows to the shared store and optionally
// mirrors them to an analytics sink.
type Logger struct {
	store  *store.Store
	mirror storage.EventWriter // nil when no mirror is configured
	logger *zap.Logger
	now    func() time.Time
}

// NewLogger creates an audit logger. mirror may be nil.
func NewLogger(st *store.Store, mirror storage.EventWriter, logger *zap.Logger) *Logger {
	return &Logger{store: st, mirror: mirror, logger: logger, now: time.Now}
}

// Log appends one audit row. The entry's ParamsJSON is redacted before
// persistence: values of JSON keys matching sensitive patterns are
// replaced with [REDACTED]. Failures are swallowed.
func (l *Logger) Log(ctx context.Context, entry store.AuditEntry) {
	if entry.ParamsJSON != "" {
		entry.ParamsJSON = RedactSensitiveParams(entry.ParamsJSON)
	}
	entry.CreatedAt = l.now().UTC()

	id, err := l.store.InsertAuditEntry(ctx, &entry)
	if err != nil {
		l.logger.Error("failed to write audit log",
			zap.String("event_type", entry.EventType),
			zap.Error(err),
		)
		return
	}
	entry.ID = id

	if l.mirror != nil {
		l.mirror.Write(&entry)
	}
}

// LogToolCall records a tool execution, successful or not.
func (l *Logger) LogToolCall(ctx context.Context, tool string, params map[string]any, resultPreview string, success bool, source, reasoning, userContext string) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		paramsJSON = nil
	}
	action := "execute"
	if !success {
		action = "fail"
	}
	l.Log(ctx, store.AuditEntry{
		EventType:   EventToolCall,
		Tool:        tool,
		Action:      action,
		UserContext: userContext,
		Reasoning:   reasoning,
		ParamsJSON:  string(paramsJSON),
		Result:      resultPreview,
		Success:     &success,
		Source:      source,
	})
}

// LogApproval records an approval decision; action is "approve" or
// "reject".
func (l *Logger) LogApproval(ctx context.Context, tool, action, reasoning, source string) {
	l.Log(ctx, store.AuditEntry{
		EventType: EventApproval,
		Tool:      tool,
		Action:    action,
		Reasoning: reasoning,
		Source:    source,
	})
}

// LogRateLimit records a rate-limit hit on a tool.
func (l *Logger) LogRateLimit(ctx context.Context, tool, source string) {
	failed := false
	l.Log(ctx, store.AuditEntry{
		EventType: EventRateLimit,
		Tool:      tool,
		Action:    "block",
		Result:    "rate limit exceeded",
		Success:   &failed,
		Source:    source,
	})
}

// LogPIIDetected records a sensitive-data detection in generated text.
func (l *Logger) LogPIIDetected(ctx context.Context, description, action, source string) {
	failed := false
	l.Log(ctx, store.AuditEntry{
		EventType: EventPIIDetected,
		Action:    action,
		Result:    description,
		Success:   &failed,
		Source:    source,
	})
}

// Log2FA records a 2FA challenge transition; action is e.g. "challenge",
// "confirmed", "rejected".
func (l *Logger) Log2FA(ctx context.Context, tool, action, source string) {
	l.Log(ctx, store.AuditEntry{
		EventType: Event2FA,
		Tool:      tool,
		Action:    action,
		Source:    source,
	})
}

// LogPermissionDenied records a blocked or capability-denied tool call.
func (l *Logger) LogPermissionDenied(ctx context.Context, tool, reason, source string) {
	failed := false
	l.Log(ctx, store.AuditEntry{
		EventType: EventPermissionDenied,
		Tool:      tool,
		Action:    "block",
		Result:    reason,
		Success:   &failed,
		Source:    source,
	})
}

// Recent returns the newest-first page of audit entries matching the
// optional filters ("" = unfiltered). Query failures yield an empty page.
func (l *Logger) Recent(ctx context.Context, limit, offset int, eventType, tool string) []store.AuditEntry {
	entries, err := l.store.AuditRecent(ctx, limit, offset, eventType, tool)
	if err != nil {
		l.logger.Error("audit query failed", zap.Error(err))
		return nil
	}
	return entries
}

// Summary returns aggregate event counts.
func (l *Logger) Summary(ctx context.Context) store.AuditSummary {
	sum, err := l.store.AuditSummaryCounts(ctx)
	if err != nil {
		l.logger.Error("audit summary failed", zap.Error(err))
		return store.AuditSummary{}
	}
	return *sum
}

// ExplainAction reconstructs a plausible causal chain for one audit
// entry: up to ExplainLimit entries at or before it, oldest first, that
// reference the same tool or belong to the decision event types, within
// an ExplainWindow lookback. Temporal proximity stands in for true
// causality; entries outside the window are excluded even when related.
func (l *Logger) ExplainAction(ctx context.Context, id int64) []store.AuditEntry {
	target, err := l.store.AuditEntryByID(ctx, id)
	if err != nil {
		l.logger.Error("audit explain failed", zap.Error(err))
		return nil
	}
	if target == nil {
		return nil
	}

	var entries []store.AuditEntry
	if target.Tool != "" {
		entries, err = l.store.AuditChain(ctx, id, target.Tool, target.CreatedAt.Add(-ExplainWindow), ExplainLimit)
	} else {
		entries, err = l.store.AuditTail(ctx, id, ExplainLimit)
	}
	if err != nil {
		l.logger.Error("audit explain failed", zap.Error(err))
		return nil
	}

	// Newest-first from the store; the chain reads oldest-first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}
