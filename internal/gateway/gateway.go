// Package gateway composes the security components into the two
// checkpoints the agent runtime calls: authorization before a tool call
// is dispatched, and inspection after a model completion comes back.
//
// The gateway itself holds no policy; it sequences the checkers and
// guarantees every decision leaves an audit trail.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warden-ai/warden/internal/audit"
	"github.com/warden-ai/warden/internal/capability"
	"github.com/warden-ai/warden/internal/cost"
	"github.com/warden-ai/warden/internal/pii"
	"github.com/warden-ai/warden/internal/store"
	"github.com/warden-ai/warden/internal/twofa"
)

// DecisionKind enumerates the outcomes of AuthorizeToolCall.
type DecisionKind int

const (
	// Allow means the call may be dispatched now.
	Allow DecisionKind = iota
	// Deny means the call is permanently refused under current policy.
	Deny
	// Challenge means the call is held pending out-of-band confirmation.
	// Retrying the identical call after confirmation yields Allow.
	Challenge
)

// Decision is the authorization result for one proposed tool call.
type Decision struct {
	Kind DecisionKind `json:"kind"`
	// Reason explains a Deny to the caller.
	Reason string `json:"reason,omitempty"`
	// ChallengeID is set on Challenge.
	ChallengeID string `json:"challenge_id,omitempty"`
}

// Inspection is the result of post-completion screening.
type Inspection struct {
	// Detections lists sensitive data found in the generated text.
	Detections []pii.Detection `json:"detections,omitempty"`
	// BudgetExceeded signals the caller to stop issuing paid completions
	// until the next calendar day or an operator override.
	BudgetExceeded bool `json:"budget_exceeded"`
}

// Gateway sequences capability, 2FA, PII and cost checks around the
// shared audit log.
type Gateway struct {
	capabilities *capability.Checker
	twofa        *twofa.Manager
	pii          *pii.Scanner
	audit        *audit.Logger
	costs        *cost.Tracker
	logger       *zap.Logger
}

// New wires the gateway from its component parts.
func New(caps *capability.Checker, tf *twofa.Manager, scanner *pii.Scanner, auditLog *audit.Logger, costs *cost.Tracker, logger *zap.Logger) *Gateway {
	return &Gateway{
		capabilities: caps,
		twofa:        tf,
		pii:          scanner,
		audit:        auditLog,
		costs:        costs,
		logger:       logger,
	}
}

// AuthorizeToolCall runs the pre-dispatch checks for a proposed tool
// call: capability policy first, then 2FA. Denials and challenge
// transitions are audited before the decision is returned; an Allow for
// a tool that never needed 2FA writes nothing, the eventual tool_call
// entry covers it.
func (g *Gateway) AuthorizeToolCall(ctx context.Context, tool string, params map[string]any, description, source string) Decision {
	verdict := g.capabilities.Check(tool, params)
	switch verdict.Kind {
	case capability.Blocked:
		g.audit.LogPermissionDenied(ctx, tool, verdict.Reason, source)
		return Decision{Kind: Deny, Reason: verdict.Reason}
	case capability.CapabilityDenied:
		reason := fmt.Sprintf("tool '%s' operation '%s' not allowed (permitted: %s)",
			verdict.Tool, verdict.Operation, strings.Join(verdict.Allowed, ", "))
		g.audit.LogPermissionDenied(ctx, tool, reason, source)
		return Decision{Kind: Deny, Reason: reason}
	}

	switch v := g.twofa.Check(tool, params, description, source); v.Kind {
	case twofa.Confirmed:
		g.audit.Log2FA(ctx, tool, "confirmed", source)
		return Decision{Kind: Allow}
	case twofa.ChallengeCreated:
		g.audit.Log2FA(ctx, tool, "challenge", source)
		return Decision{Kind: Challenge, ChallengeID: v.ChallengeID}
	}

	return Decision{Kind: Allow}
}

// InspectCompletion screens a finished model completion: scans the
// generated text for sensitive data, records the token usage, and
// reports whether the daily budget is now exceeded. Every detection and
// a budget breach each produce an audit entry.
func (g *Gateway) InspectCompletion(ctx context.Context, backend, model string, promptTokens, completionTokens int64, text, contextLabel, source string) Inspection {
	detections := g.pii.Scan(text)
	for _, d := range detections {
		g.audit.LogPIIDetected(ctx,
			fmt.Sprintf("%s: %s (%s)", d.Category, d.Description, d.Redacted),
			"flag", source)
	}

	exceeded := g.costs.Record(ctx, backend, model, promptTokens, completionTokens, contextLabel)
	if exceeded {
		failed := false
		g.audit.Log(ctx, store.AuditEntry{
			EventType: audit.EventRateLimit,
			Tool:      "llm:" + backend,
			Action:    "budget",
			Result:    "daily cost limit exceeded",
			Success:   &failed,
			Source:    source,
		})
	}

	return Inspection{Detections: detections, BudgetExceeded: exceeded}
}

// RecordToolResult audits the outcome of a dispatched tool call.
func (g *Gateway) RecordToolResult(ctx context.Context, tool string, params map[string]any, resultPreview string, success bool, source, reasoning, userContext string) {
	g.audit.LogToolCall(ctx, tool, params, resultPreview, success, source, reasoning, userContext)
}

// ConfirmChallenge marks a pending 2FA challenge confirmed and audits
// the operator action. The later consumption by the retried call is
// audited separately as "confirmed".
func (g *Gateway) ConfirmChallenge(ctx context.Context, id, source string) bool {
	ok := g.twofa.Confirm(id)
	if ok {
		g.audit.Log2FA(ctx, "", "confirm", source)
	}
	return ok
}

// RejectChallenge removes a pending 2FA challenge and audits the
// rejection.
func (g *Gateway) RejectChallenge(ctx context.Context, id, source string) bool {
	ok := g.twofa.Reject(id)
	if ok {
		g.audit.Log2FA(ctx, "", "rejected", source)
	}
	return ok
}

// PendingChallenges lists unconfirmed, unexpired 2FA challenges.
func (g *Gateway) PendingChallenges() []twofa.ChallengeInfo {
	return g.twofa.Pending()
}
