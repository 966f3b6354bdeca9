// Package retrymgr implements the Retry Manager (spec §4.8): the
// reason-to-action ladder, ladder exhaustion fallback, identity-collapse
// and oscillation detection, and the reject-rate stop condition.
package retrymgr

import (
	"github.com/seanwinslow28/spritegen/internal/application/manifest"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// DefaultLadder is the reason->action map spec §4.8 declares.
var DefaultLadder = map[string][]domain.RetryAction{
	errors.CodeSF01IdentityDrift: {domain.ActionRerollSeed, domain.ActionIdentityRescue, domain.ActionReAnchor},
	errors.CodeSF02PaletteDrift:  {domain.ActionTightenNegative, domain.ActionIdentityRescue},
	errors.CodeSF03BaselineDrift: {domain.ActionPoseRescue, domain.ActionReAnchor},
	errors.CodeSFAlphaHalo:       {domain.ActionPostProcess, domain.ActionTwoStageInpaint},
	errors.CodeSFPixelNoise:      {domain.ActionRegenerateHighres, domain.ActionPostProcess},
}

// Decision is the Retry Manager's output for one audit result.
type Decision struct {
	Action      domain.RetryAction
	Reject      bool
	RejectCode  string
	Stop        bool
	StopReason  string
	LadderNote  string // e.g. "ladder_exhausted_retry"
}

// Manager holds the reason->action ladder and the reject-rate stop
// expression, both overridable per manifest.
type Manager struct {
	Ladder             map[string][]domain.RetryAction
	RejectRateStopExpr string
	MaxAttempts        int
}

// New builds a Manager, merging manifest overrides over DefaultLadder.
func New(overrides map[string][]domain.RetryAction, rejectRateStopExpr string, maxAttempts int) *Manager {
	ladder := make(map[string][]domain.RetryAction, len(DefaultLadder))
	for k, v := range DefaultLadder {
		ladder[k] = v
	}
	for k, v := range overrides {
		ladder[k] = v
	}
	return &Manager{Ladder: ladder, RejectRateStopExpr: rejectRateStopExpr, MaxAttempts: maxAttempts}
}

// Decide applies the ladder, identity-collapse, and oscillation rules to
// the latest audit result and mutates frame's retry bookkeeping in place.
func (m *Manager) Decide(audit *domain.AuditResult, frame *domain.FrameState, attemptsSoFar int) Decision {
	if audit.Passed {
		frame.ConsecutiveReanchorCount = 0
		pushOscillation(frame, "pass", false)
		return Decision{}
	}

	action := m.nextAction(audit.ReasonCodes, frame)
	ladderNote := ""
	if action == "" {
		if attemptsSoFar < m.MaxAttempts {
			action = domain.ActionDefaultRegenerate
			ladderNote = "ladder_exhausted_retry"
		}
	}

	reAnchored := action == domain.ActionReAnchor
	if reAnchored {
		frame.ConsecutiveReanchorCount++
	} else {
		frame.ConsecutiveReanchorCount = 0
	}

	if score, ok := identityScore(audit); ok {
		frame.LastSF01Scores = append(frame.LastSF01Scores, score)
		if len(frame.LastSF01Scores) > 8 {
			frame.LastSF01Scores = frame.LastSF01Scores[len(frame.LastSF01Scores)-8:]
		}
	}

	pushOscillation(frame, "fail", reAnchored)

	if m.detectIdentityCollapse(frame) {
		return Decision{Reject: true, RejectCode: errors.CodeHFIdentityCollapse}
	}

	if action == "" {
		return Decision{Reject: true, RejectCode: firstOrDefault(audit.ReasonCodes, "EXHAUSTED")}
	}

	return Decision{Action: action, LadderNote: ladderNote}
}

// nextAction walks the reason codes in order and returns the first ladder
// action that no earlier attempt reporting the same code has taken, moving
// on to the next code's ladder when one is exhausted. It returns "" when
// no action is left.
func (m *Manager) nextAction(reasonCodes []string, frame *domain.FrameState) domain.RetryAction {
	for _, code := range reasonCodes {
		ladder, ok := m.Ladder[code]
		if !ok {
			continue
		}
		tried := triedActionsFor(frame, code)
		for _, action := range ladder {
			if !tried[action] {
				return action
			}
		}
	}
	return ""
}

func triedActionsFor(frame *domain.FrameState, code string) map[domain.RetryAction]bool {
	tried := map[domain.RetryAction]bool{}
	for _, att := range frame.Attempts {
		for _, rc := range att.ReasonCodes {
			if rc == code {
				tried[att.ActionTaken] = true
			}
		}
	}
	return tried
}

// detectIdentityCollapse implements both the direct rule (>=2 consecutive
// RE_ANCHOR with both of the last two identity scores <0.9) and the
// oscillation rule (alternating pass/fail over the last four entries with
// more than two re-anchors).
func (m *Manager) detectIdentityCollapse(frame *domain.FrameState) bool {
	if frame.ConsecutiveReanchorCount >= 2 && len(frame.LastSF01Scores) >= 2 {
		n := len(frame.LastSF01Scores)
		if frame.LastSF01Scores[n-1] < 0.9 && frame.LastSF01Scores[n-2] < 0.9 {
			return true
		}
	}

	h := frame.OscillationHistory
	if len(h) < 4 {
		return false
	}
	last4 := h[len(h)-4:]
	if !isAlternating(last4) {
		return false
	}
	reAnchors := 0
	for _, e := range last4 {
		if e.ReAnchored {
			reAnchors++
		}
	}
	return reAnchors > 2
}

func isAlternating(h []domain.OscillationEntry) bool {
	for i := 1; i < len(h); i++ {
		if h[i].Outcome == h[i-1].Outcome {
			return false
		}
	}
	return true
}

func pushOscillation(frame *domain.FrameState, outcome string, reAnchored bool) {
	frame.OscillationHistory = append(frame.OscillationHistory, domain.OscillationEntry{Outcome: outcome, ReAnchored: reAnchored})
	if len(frame.OscillationHistory) > 4 {
		frame.OscillationHistory = frame.OscillationHistory[len(frame.OscillationHistory)-4:]
	}
}

func identityScore(audit *domain.AuditResult) (float64, bool) {
	m, ok := audit.PerMetric["identity"]
	if !ok {
		return 0, false
	}
	return m.Score, true
}

func firstOrDefault(codes []string, def string) string {
	if len(codes) > 0 {
		return codes[0]
	}
	return def
}

// CheckRejectRateStop recomputes the reject rate after any rejection and
// evaluates the stop condition: the manifest-overridden expr-lang
// predicate if set, otherwise the spec default reject_rate > 0.30.
func (m *Manager) CheckRejectRateStop(rejectedCount, attemptedCount int) (bool, error) {
	if attemptedCount == 0 {
		return false, nil
	}
	rate := float64(rejectedCount) / float64(attemptedCount)
	if m.RejectRateStopExpr != "" {
		return manifest.EvaluateBoolExpr(m.RejectRateStopExpr, map[string]interface{}{"reject_rate": rate})
	}
	return rate > 0.30, nil
}
