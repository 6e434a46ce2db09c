package store

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func boolPtr(b bool) *bool { return &b }

func TestAuditEntry_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	in := &AuditEntry{
		EventType:   "tool_call",
		Tool:        "exec",
		Action:      "execute",
		UserContext: "user said ls",
		Reasoning:   "list files",
		ParamsJSON:  `{"command":"ls"}`,
		Result:      "file list",
		Success:     boolPtr(true),
		Source:      "agent",
		CreatedAt:   now,
	}
	id, err := s.InsertAuditEntry(ctx, in)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.AuditEntryByID(ctx, id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got == nil {
		t.Fatal("entry not found")
	}
	if got.EventType != in.EventType || got.Tool != in.Tool || got.Action != in.Action ||
		got.UserContext != in.UserContext || got.Reasoning != in.Reasoning ||
		got.ParamsJSON != in.ParamsJSON || got.Result != in.Result || got.Source != in.Source {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Success == nil || !*got.Success {
		t.Error("success flag lost")
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}
}

func TestAuditEntry_NullFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertAuditEntry(ctx, &AuditEntry{
		EventType: "2fa",
		Source:    "agent",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.AuditEntryByID(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("fetch: %v %v", got, err)
	}
	if got.Tool != "" || got.Result != "" || got.Success != nil {
		t.Errorf("optional fields should be empty: %+v", got)
	}
}

func TestAuditRecent_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	insert := func(eventType, tool string) {
		t.Helper()
		if _, err := s.InsertAuditEntry(ctx, &AuditEntry{
			EventType: eventType, Tool: tool, Source: "agent", CreatedAt: now,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	insert("tool_call", "exec")
	insert("rate_limit", "exec")
	insert("tool_call", "web_search")
	insert("rate_limit", "web_search")

	all, err := s.AuditRecent(ctx, 10, 0, "", "")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(all))
	}
	// Newest id first.
	for i := 1; i < len(all); i++ {
		if all[i].ID >= all[i-1].ID {
			t.Fatalf("rows out of order: %v", all)
		}
	}

	rl, err := s.AuditRecent(ctx, 10, 0, "rate_limit", "")
	if err != nil {
		t.Fatalf("recent(rate_limit): %v", err)
	}
	if len(rl) != 2 {
		t.Fatalf("expected 2 rate_limit rows, got %d", len(rl))
	}
	for _, e := range rl {
		if e.EventType != "rate_limit" {
			t.Errorf("filter leak: %+v", e)
		}
	}

	both, err := s.AuditRecent(ctx, 10, 0, "rate_limit", "exec")
	if err != nil {
		t.Fatalf("recent(rate_limit, exec): %v", err)
	}
	if len(both) != 1 || both[0].Tool != "exec" {
		t.Errorf("combined filter: %v", both)
	}

	page, err := s.AuditRecent(ctx, 2, 2, "", "")
	if err != nil {
		t.Fatalf("recent page: %v", err)
	}
	if len(page) != 2 || page[0].ID != all[2].ID {
		t.Errorf("pagination: %v", page)
	}
}

func TestAuditSummaryCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rows := []AuditEntry{
		{EventType: "tool_call", Tool: "exec"},
		{EventType: "tool_call", Tool: "exec"},
		{EventType: "rate_limit", Tool: "exec"},
		{EventType: "pii_detected"},
		{EventType: "2fa", Tool: "exec"},
		{EventType: "permission_denied", Tool: "exec"},
		{EventType: "approval", Tool: "exec", Action: "approve"},
		{EventType: "approval", Tool: "exec", Action: "reject"},
	}
	for i := range rows {
		rows[i].Source = "agent"
		rows[i].CreatedAt = now
		if _, err := s.InsertAuditEntry(ctx, &rows[i]); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	sum, err := s.AuditSummaryCounts(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	want := AuditSummary{
		TotalEvents: 8, ToolCalls: 2, Approvals: 1, Rejections: 1,
		RateLimits: 1, PIIDetections: 1, TwoFAChallenges: 1, PermissionDenials: 1,
	}
	if *sum != want {
		t.Errorf("summary = %+v, want %+v", *sum, want)
	}
}

func TestAuditChain_WindowAndPredicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	mustInsert := func(e AuditEntry) int64 {
		t.Helper()
		id, err := s.InsertAuditEntry(ctx, &e)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		return id
	}

	// Outside the window: should be excluded.
	mustInsert(AuditEntry{EventType: "2fa", Tool: "exec", Source: "agent", CreatedAt: base.Add(-2 * time.Minute)})
	// Inside window, same tool.
	sameTool := mustInsert(AuditEntry{EventType: "tool_call", Tool: "exec", Source: "agent", CreatedAt: base.Add(-30 * time.Second)})
	// Inside window, unrelated tool and non-decision type: excluded.
	mustInsert(AuditEntry{EventType: "tool_call", Tool: "web_search", Source: "agent", CreatedAt: base.Add(-20 * time.Second)})
	// Inside window, decision type on an unrelated tool: included.
	decision := mustInsert(AuditEntry{EventType: "permission_denied", Tool: "browser", Source: "agent", CreatedAt: base.Add(-10 * time.Second)})
	target := mustInsert(AuditEntry{EventType: "tool_call", Tool: "exec", Source: "agent", CreatedAt: base})

	chain, err := s.AuditChain(ctx, target, "exec", base.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	ids := make(map[int64]bool, len(chain))
	for _, e := range chain {
		ids[e.ID] = true
	}
	if !ids[sameTool] || !ids[decision] || !ids[target] {
		t.Errorf("chain missing expected rows: %v", chain)
	}
	if len(chain) != 3 {
		t.Errorf("expected 3 rows, got %v", chain)
	}
}

func TestUsage_RoundTripAndSums(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	in := &UsageRecord{
		Backend:          "openrouter",
		Model:            "anthropic/claude-opus",
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
		EstimatedCost:    0.0042,
		Context:          "message",
		CreatedAt:        now,
	}
	if _, err := s.InsertUsage(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertUsage(ctx, &UsageRecord{
		Backend: "local", Model: "llama3", TotalTokens: 999,
		Context: "message", CreatedAt: now.Add(-48 * time.Hour),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	recent, err := s.UsageRecent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(recent))
	}
	got := recent[0] // newest first
	if got.Backend != in.Backend || got.Model != in.Model ||
		got.PromptTokens != in.PromptTokens || got.CompletionTokens != in.CompletionTokens ||
		got.TotalTokens != in.TotalTokens || got.EstimatedCost != in.EstimatedCost ||
		got.Context != in.Context || !got.CreatedAt.Equal(now) {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	dayAgo := now.Add(-24 * time.Hour)
	cost, err := s.UsageCostSince(ctx, dayAgo)
	if err != nil {
		t.Fatalf("cost since: %v", err)
	}
	if cost != 0.0042 {
		t.Errorf("cost since = %v", cost)
	}
	tokens, err := s.UsageTokensSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if tokens != 1149 {
		t.Errorf("all-time tokens = %d", tokens)
	}
	count, err := s.UsageCountSince(ctx, dayAgo)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count since = %d", count)
	}
}

func TestRebind(t *testing.T) {
	sqlite := &Store{driver: DriverSQLite}
	pg := &Store{driver: DriverPostgres}

	q := "SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?"
	if got := sqlite.rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	want := "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3"
	if got := pg.rebind(q); got != want {
		t.Errorf("pg rebind = %q, want %q", got, want)
	}
}
