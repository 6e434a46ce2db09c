package api

import (
	"net/http"

	"github.com/warden-ai/warden/internal/twofa"
)

// ChallengeListResp wraps the pending-challenge page.
type ChallengeListResp struct {
	Challenges []twofa.ChallengeInfo `json:"challenges"`
}

// ChallengeActionResp reports the outcome of a confirm or reject.
type ChallengeActionResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (d *Dependencies) handleListChallenges(w http.ResponseWriter, _ *http.Request) {
	infos := d.Gateway.PendingChallenges()
	if infos == nil {
		infos = []twofa.ChallengeInfo{}
	}
	writeJSON(w, http.StatusOK, ChallengeListResp{Challenges: infos})
}

func (d *Dependencies) handleConfirmChallenge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !d.Gateway.ConfirmChallenge(r.Context(), id, "dashboard") {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Challenge not found or already confirmed"})
		return
	}
	writeJSON(w, http.StatusOK, ChallengeActionResp{ID: id, Status: "confirmed"})
}

func (d *Dependencies) handleRejectChallenge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !d.Gateway.RejectChallenge(r.Context(), id, "dashboard") {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Challenge not found"})
		return
	}
	writeJSON(w, http.StatusOK, ChallengeActionResp{ID: id, Status: "rejected"})
}
