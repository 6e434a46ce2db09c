package api

import (
	"net/http"

	"github.com/warden-ai/warden/internal/store"
)

// UsageListResp wraps one page of raw usage rows, newest first.
type UsageListResp struct {
	Records []store.UsageRecord `json:"records"`
	Limit   int                 `json:"limit"`
}

func (d *Dependencies) handleCostSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Costs.Summary(r.Context()))
}

func (d *Dependencies) handleCostRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query(), "limit", 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}

	records := d.Costs.Recent(r.Context(), limit)
	if records == nil {
		records = []store.UsageRecord{}
	}
	writeJSON(w, http.StatusOK, UsageListResp{Records: records, Limit: limit})
}
