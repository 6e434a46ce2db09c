// Package twofa implements step-up confirmation for dangerous tool calls.
//
// When a tool on the required list is about to execute, the call is held
// behind a challenge that must be confirmed out of band (dashboard,
// messaging reply) within a time window. Challenges live only in memory: a
// process restart forces re-confirmation.
package twofa

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChallengeTTL is how long an unconfirmed challenge stays valid.
const ChallengeTTL = 5 * time.Minute

// VerdictKind enumerates the outcomes of a 2FA check.
type VerdictKind int

const (
	// NotRequired means the tool does not need 2FA; proceed normally.
	NotRequired VerdictKind = iota
	// ChallengeCreated means confirmation is needed before execution.
	// The same verdict is returned for repeated identical proposals while
	// the challenge is pending; it is a retryable state, not a failure.
	ChallengeCreated
	// Confirmed means a valid confirmed challenge existed and has been
	// consumed; the call may execute.
	Confirmed
)

// Verdict is the result of a 2FA check. ChallengeID is set when Kind is
// ChallengeCreated.
type Verdict struct {
	Kind        VerdictKind
	ChallengeID string
}

type challenge struct {
	id          string
	tool        string
	paramsKey   string // canonical JSON of the parameter payload
	params      map[string]any
	description string
	source      string
	createdAt   time.Time
	confirmed   bool
}

// ChallengeInfo is the display shape of a pending challenge.
type ChallengeInfo struct {
	ID          string  `json:"id"`
	Tool        string  `json:"tool"`
	Description string  `json:"description"`
	Source      string  `json:"source"`
	AgeSecs     float64 `json:"age_secs"`
	Confirmed   bool    `json:"confirmed"`
}

// Manager holds the challenge table behind a single mutex. Every operation
// takes the lock for its full duration and releases it before returning;
// no lock is ever held across an external call.
type Manager struct {
	required map[string]struct{}

	mu         sync.Mutex
	challenges map[string]*challenge

	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewManager creates a manager requiring 2FA for the given tools.
func NewManager(requiredTools []string, logger *zap.Logger) *Manager {
	required := make(map[string]struct{}, len(requiredTools))
	for _, t := range requiredTools {
		required[t] = struct{}{}
	}
	return &Manager{
		required:   required,
		challenges: make(map[string]*challenge),
		ttl:        ChallengeTTL,
		now:        time.Now,
		logger:     logger,
	}
}

// paramsKey canonicalizes a parameter payload for structural-equality
// matching. encoding/json marshals map keys sorted, so two structurally
// equal payloads always produce the same key. Matching is deliberately
// exact: a trivially different parameter value requires a fresh challenge.
func paramsKey(params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(b)
}

// Check runs the 2FA state machine for a proposed tool call.
//
// Expired challenges are pruned lazily on every call. A confirmed challenge
// matching the exact tool and parameters is consumed (single use) and
// yields Confirmed. An unconfirmed match returns its existing id, so
// repeated identical proposals never spawn duplicates. Otherwise a fresh
// challenge is created.
func (m *Manager) Check(tool string, params map[string]any, description, source string) Verdict {
	if _, ok := m.required[tool]; !ok {
		return Verdict{Kind: NotRequired}
	}

	key := paramsKey(params)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(now)

	for id, c := range m.challenges {
		if c.tool == tool && c.paramsKey == key && c.confirmed {
			delete(m.challenges, id)
			m.logger.Info("2fa challenge confirmed, proceeding",
				zap.String("tool", tool),
				zap.String("challenge_id", id),
			)
			return Verdict{Kind: Confirmed}
		}
	}

	for id, c := range m.challenges {
		if c.tool == tool && c.paramsKey == key && !c.confirmed {
			return Verdict{Kind: ChallengeCreated, ChallengeID: id}
		}
	}

	id := uuid.NewString()
	m.challenges[id] = &challenge{
		id:          id,
		tool:        tool,
		paramsKey:   key,
		params:      params,
		description: description,
		source:      source,
		createdAt:   now,
	}
	m.logger.Warn("2fa challenge created for dangerous operation",
		zap.String("tool", tool),
		zap.String("challenge_id", id),
		zap.String("source", source),
	)
	return Verdict{Kind: ChallengeCreated, ChallengeID: id}
}

// Confirm marks a pending challenge confirmed. Returns false for unknown
// or already-confirmed ids.
func (m *Manager) Confirm(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.challenges[id]; ok && !c.confirmed {
		c.confirmed = true
		m.logger.Info("2fa challenge confirmed",
			zap.String("challenge_id", id),
			zap.String("tool", c.tool),
		)
		return true
	}
	m.logger.Warn("2fa challenge not found or already confirmed",
		zap.String("challenge_id", id),
	)
	return false
}

// Reject removes a challenge. Returns false if it was not present.
func (m *Manager) Reject(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.challenges[id]; ok {
		delete(m.challenges, id)
		m.logger.Info("2fa challenge rejected", zap.String("challenge_id", id))
		return true
	}
	return false
}

// Pending lists all unconfirmed, unexpired challenges.
func (m *Manager) Pending() []ChallengeInfo {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]ChallengeInfo, 0, len(m.challenges))
	for _, c := range m.challenges {
		if c.confirmed || now.Sub(c.createdAt) >= m.ttl {
			continue
		}
		infos = append(infos, ChallengeInfo{
			ID:          c.id,
			Tool:        c.tool,
			Description: c.description,
			Source:      c.source,
			AgeSecs:     now.Sub(c.createdAt).Seconds(),
			Confirmed:   c.confirmed,
		})
	}
	return infos
}

// Requires reports whether a tool needs 2FA.
func (m *Manager) Requires(tool string) bool {
	_, ok := m.required[tool]
	return ok
}

// pruneLocked drops expired challenges. Caller holds m.mu.
func (m *Manager) pruneLocked(now time.Time) {
	for id, c := range m.challenges {
		if now.Sub(c.createdAt) >= m.ttl {
			delete(m.challenges, id)
		}
	}
}
