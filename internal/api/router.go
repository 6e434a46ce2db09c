// Package api exposes the operator surface over HTTP: pending 2FA
// challenges with confirm/reject, audit views with causal explain, and
// cost summaries. The agent runtime itself calls the gateway in-process;
// nothing here sits on the tool-dispatch hot path.
package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/warden-ai/warden/internal/audit"
	"github.com/warden-ai/warden/internal/cost"
	"github.com/warden-ai/warden/internal/gateway"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Gateway *gateway.Gateway
	Audit   *audit.Logger
	Costs   *cost.Tracker
	Logger  *zap.Logger
	// OperatorKeyHash is the bcrypt hash of the operator bearer token.
	// Empty locks out every authenticated route.
	OperatorKeyHash string
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Challenge confirmation (auth required; confirming is the 2FA)
	mux.HandleFunc("GET /api/warden/challenges", deps.authMiddleware(deps.handleListChallenges))
	mux.HandleFunc("POST /api/warden/challenges/{id}/confirm", deps.authMiddleware(deps.handleConfirmChallenge))
	mux.HandleFunc("POST /api/warden/challenges/{id}/reject", deps.authMiddleware(deps.handleRejectChallenge))

	// Audit views (auth required; entries can reference sensitive tooling)
	mux.HandleFunc("GET /api/warden/audit", deps.authMiddleware(deps.handleListAudit))
	mux.HandleFunc("GET /api/warden/audit/summary", deps.authMiddleware(deps.handleAuditSummary))
	mux.HandleFunc("GET /api/warden/audit/{id}/explain", deps.authMiddleware(deps.handleExplainAudit))

	// Cost views (auth required)
	mux.HandleFunc("GET /api/warden/costs", deps.authMiddleware(deps.handleCostSummary))
	mux.HandleFunc("GET /api/warden/costs/recent", deps.authMiddleware(deps.handleCostRecent))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
