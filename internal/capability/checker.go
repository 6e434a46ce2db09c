// Package capability implements fine-grained authorization for tool calls.
//
// Instead of blanket tool approval, the checker answers questions like
// "can read the calendar but not write it" or "can run ls but not rm" by
// inferring an operation from the call parameters and comparing it against
// a static per-tool allowlist.
package capability

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// VerdictKind enumerates the possible outcomes of a capability check.
type VerdictKind int

const (
	// Allowed means the tool call may proceed.
	Allowed VerdictKind = iota
	// Blocked means the tool is entirely blocked by policy.
	Blocked
	// CapabilityDenied means the inferred operation is not in the
	// tool's allowed set.
	CapabilityDenied
)

// Verdict is the result of a capability check.
type Verdict struct {
	Kind VerdictKind
	// Reason is the user-facing explanation for a Blocked verdict.
	Reason string
	// Tool, Operation and Allowed are set on CapabilityDenied.
	Tool      string
	Operation string
	Allowed   []string
}

// PermissionDeniedError is returned by CheckOrError for non-Allowed verdicts.
type PermissionDeniedError struct {
	Verdict Verdict
}

func (e *PermissionDeniedError) Error() string {
	v := e.Verdict
	if v.Kind == Blocked {
		return v.Reason
	}
	return fmt.Sprintf("tool '%s' operation '%s' not allowed (permitted: %s)",
		v.Tool, v.Operation, strings.Join(v.Allowed, ", "))
}

// Policy is the immutable authorization policy snapshot. Built once from
// configuration; replaced wholesale on reload, never mutated in place.
type Policy struct {
	// BlockedTools are tools that may never be invoked.
	BlockedTools []string
	// ToolCapabilities restricts listed tools to the named operations.
	// A tool absent from this map has no operation restriction.
	ToolCapabilities map[string][]string
}

// Checker decides whether a proposed tool call is permitted. Immutable
// after construction and safe for concurrent use without synchronization.
type Checker struct {
	blocked      map[string]struct{}
	capabilities map[string]map[string]struct{}
	logger       *zap.Logger
}

// NewChecker builds a checker from a policy snapshot.
func NewChecker(policy Policy, logger *zap.Logger) *Checker {
	blocked := make(map[string]struct{}, len(policy.BlockedTools))
	for _, t := range policy.BlockedTools {
		blocked[t] = struct{}{}
	}
	caps := make(map[string]map[string]struct{}, len(policy.ToolCapabilities))
	for tool, ops := range policy.ToolCapabilities {
		set := make(map[string]struct{}, len(ops))
		for _, op := range ops {
			set[op] = struct{}{}
		}
		caps[tool] = set
	}
	return &Checker{blocked: blocked, capabilities: caps, logger: logger}
}

// Check decides whether a tool call is permitted.
//
// params is the full decoded parameter payload of the proposed call; it is
// used to infer the operation for tools that carry capability restrictions.
// A tool with a restriction but a parameter shape the inference table does
// not recognize yields an empty operation and passes — the check fails open
// for unrecognized shapes and fails closed only for a recognized, disallowed
// operation.
func (c *Checker) Check(tool string, params map[string]any) Verdict {
	if _, ok := c.blocked[tool]; ok {
		c.logger.Warn("blocked tool invocation", zap.String("tool", tool))
		return Verdict{
			Kind:   Blocked,
			Reason: fmt.Sprintf("tool '%s' is blocked by security policy", tool),
		}
	}

	if allowed, ok := c.capabilities[tool]; ok {
		op := InferOperation(tool, params)
		if op != "" {
			if _, permitted := allowed[op]; !permitted {
				allowedList := make([]string, 0, len(allowed))
				for a := range allowed {
					allowedList = append(allowedList, a)
				}
				sort.Strings(allowedList)
				c.logger.Warn("capability denied",
					zap.String("tool", tool),
					zap.String("operation", op),
					zap.Strings("allowed", allowedList),
				)
				return Verdict{
					Kind:      CapabilityDenied,
					Tool:      tool,
					Operation: op,
					Allowed:   allowedList,
				}
			}
		}
	}

	return Verdict{Kind: Allowed}
}

// CheckOrError converts a non-Allowed verdict into a *PermissionDeniedError
// for callers that want early-return control flow.
func (c *Checker) CheckOrError(tool string, params map[string]any) error {
	v := c.Check(tool, params)
	if v.Kind == Allowed {
		return nil
	}
	return &PermissionDeniedError{Verdict: v}
}

// IsBlocked reports whether a tool is blocked entirely.
func (c *Checker) IsBlocked(tool string) bool {
	_, ok := c.blocked[tool]
	return ok
}
