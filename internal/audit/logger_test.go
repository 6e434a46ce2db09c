package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/warden-ai/warden/internal/store"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	st, err := store.OpenSQLite(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewLogger(st, nil, zap.NewNop())
}

func TestLogAndRecent(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	l.LogToolCall(ctx, "exec", map[string]any{"cmd": "ls"}, "file list", true, "agent", "list files", "user said ls")
	l.LogRateLimit(ctx, "exec", "agent")
	l.LogPIIDetected(ctx, "SSN found", "redact", "agent")

	entries := l.Recent(ctx, 10, 0, "", "")
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].EventType != EventPIIDetected ||
		entries[1].EventType != EventRateLimit ||
		entries[2].EventType != EventToolCall {
		t.Errorf("unexpected order: %v %v %v",
			entries[0].EventType, entries[1].EventType, entries[2].EventType)
	}
}

func TestRecent_FilterByEventType(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	l.LogToolCall(ctx, "exec", map[string]any{}, "ok", true, "agent", "", "")
	l.LogRateLimit(ctx, "exec", "agent")

	entries := l.Recent(ctx, 10, 0, EventRateLimit, "")
	if len(entries) != 1 || entries[0].EventType != EventRateLimit {
		t.Fatalf("filter failed: %v", entries)
	}
}

func TestRecent_FilterByTool(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	l.LogToolCall(ctx, "exec", map[string]any{}, "ok", true, "agent", "", "")
	l.LogToolCall(ctx, "web_search", map[string]any{}, "ok", true, "agent", "", "")

	entries := l.Recent(ctx, 10, 0, "", "web_search")
	if len(entries) != 1 || entries[0].Tool != "web_search" {
		t.Fatalf("filter failed: %v", entries)
	}
}

func TestSummary(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	l.LogToolCall(ctx, "exec", map[string]any{}, "ok", true, "agent", "", "")
	l.LogToolCall(ctx, "exec", map[string]any{}, "fail", false, "agent", "", "")
	l.LogRateLimit(ctx, "exec", "agent")
	l.LogPIIDetected(ctx, "SSN", "redact", "agent")
	l.Log2FA(ctx, "exec", "challenge", "agent")
	l.LogPermissionDenied(ctx, "exec", "blocked", "agent")
	l.LogApproval(ctx, "exec", "approve", "ok", "dashboard")
	l.LogApproval(ctx, "exec", "reject", "no", "dashboard")

	sum := l.Summary(ctx)
	want := store.AuditSummary{
		TotalEvents: 8, ToolCalls: 2, Approvals: 1, Rejections: 1,
		RateLimits: 1, PIIDetections: 1, TwoFAChallenges: 1, PermissionDenials: 1,
	}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}
}

func TestExplainAction(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	l.Log2FA(ctx, "exec", "challenge", "agent")
	l.LogApproval(ctx, "exec", "approve", "user confirmed", "dashboard")
	l.LogToolCall(ctx, "exec", map[string]any{"cmd": "rm -rf /"}, "done", true, "agent", "delete all", "user said delete")

	entries := l.Recent(ctx, 1, 0, "", "")
	if len(entries) != 1 {
		t.Fatal("no entries")
	}

	chain := l.ExplainAction(ctx, entries[0].ID)
	if len(chain) != 3 {
		t.Fatalf("expected 3-entry chain, got %v", chain)
	}
	// Oldest first: the challenge precedes the approval precedes the call.
	if chain[0].EventType != Event2FA || chain[1].EventType != EventApproval || chain[2].EventType != EventToolCall {
		t.Errorf("chain order: %v %v %v", chain[0].EventType, chain[1].EventType, chain[2].EventType)
	}
	if chain[2].Reasoning != "delete all" {
		t.Errorf("target reasoning = %q", chain[2].Reasoning)
	}
}

func TestExplainAction_UnknownID(t *testing.T) {
	l := newTestLogger(t)
	if chain := l.ExplainAction(context.Background(), 12345); len(chain) != 0 {
		t.Errorf("expected empty chain, got %v", chain)
	}
}

func TestLog_RedactsParams(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	l.LogToolCall(ctx, "exec",
		map[string]any{"cmd": "curl", "authorization": "Bearer sk-123"},
		"ok", true, "agent", "", "")

	entries := l.Recent(ctx, 1, 0, "", "")
	if len(entries) != 1 {
		t.Fatal("no entries")
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(entries[0].ParamsJSON), &params); err != nil {
		t.Fatalf("params not JSON: %v", err)
	}
	if params["authorization"] != "[REDACTED]" {
		t.Errorf("authorization = %v", params["authorization"])
	}
	if params["cmd"] != "curl" {
		t.Errorf("cmd = %v", params["cmd"])
	}
}

// capturingMirror records mirrored entries for assertions.
type capturingMirror struct {
	entries []*store.AuditEntry
}

func (m *capturingMirror) Write(e *store.AuditEntry) { m.entries = append(m.entries, e) }
func (m *capturingMirror) Close()                    {}

func TestLog_MirrorsEntries(t *testing.T) {
	st, err := store.OpenSQLite(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	mirror := &capturingMirror{}
	l := NewLogger(st, mirror, zap.NewNop())

	l.LogRateLimit(context.Background(), "exec", "agent")

	if len(mirror.entries) != 1 {
		t.Fatalf("expected 1 mirrored entry, got %d", len(mirror.entries))
	}
	if mirror.entries[0].ID == 0 {
		t.Error("mirrored entry should carry the assigned id")
	}
	if mirror.entries[0].EventType != EventRateLimit {
		t.Errorf("mirrored type = %s", mirror.entries[0].EventType)
	}
}

func TestLogTimestampsAreUTC(t *testing.T) {
	l := newTestLogger(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	l.LogRateLimit(ctx, "exec", "agent")
	after := time.Now().UTC().Add(time.Second)

	entries := l.Recent(ctx, 1, 0, "", "")
	if len(entries) != 1 {
		t.Fatal("no entries")
	}
	got := entries[0].CreatedAt
	if got.Before(before) || got.After(after) {
		t.Errorf("created_at %v outside [%v, %v]", got, before, after)
	}
}
