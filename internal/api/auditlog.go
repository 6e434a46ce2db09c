package api

import (
	"net/http"
	"strconv"

	"github.com/warden-ai/warden/internal/store"
)

// AuditListResp wraps one page of audit entries, newest first.
type AuditListResp struct {
	Entries []store.AuditEntry `json:"entries"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// ExplainResp is the reconstructed causal chain, oldest first.
type ExplainResp struct {
	ID    int64              `json:"id"`
	Chain []store.AuditEntry `json:"chain"`
}

func (d *Dependencies) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q, "limit", 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	offset := queryInt(q, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries := d.Audit.Recent(r.Context(), limit, offset, q.Get("event_type"), q.Get("tool"))
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, AuditListResp{Entries: entries, Limit: limit, Offset: offset})
}

func (d *Dependencies) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Audit.Summary(r.Context()))
}

func (d *Dependencies) handleExplainAudit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid audit entry id"})
		return
	}

	chain := d.Audit.ExplainAction(r.Context(), id)
	if len(chain) == 0 {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Audit entry not found"})
		return
	}
	writeJSON(w, http.StatusOK, ExplainResp{ID: id, Chain: chain})
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
