package ws

import (
	"github.com/seanwinslow28/spritegen/internal/application/retrymgr"
	"github.com/seanwinslow28/spritegen/internal/domain"
)

// ObserverBridge adapts orchestrator.Observer callbacks onto a Broadcaster,
// letting the session bridge push live progress to subscribed clients
// without the orchestrator package importing the websocket stack.
type ObserverBridge struct {
	broadcaster Broadcaster
}

func NewObserverBridge(b Broadcaster) *ObserverBridge {
	return &ObserverBridge{broadcaster: b}
}

func (b *ObserverBridge) OnStateEntered(runID string, state domain.RunStateKind) {
	evt := NewEvent(EventStateEntered, runID)
	evt.State = string(state)
	b.broadcaster.Broadcast(runID, evt)
}

func (b *ObserverBridge) OnFrameApproved(runID string, frameIndex int) {
	evt := NewEvent(EventFrameApproved, runID)
	evt.FrameIndex = frameIndex
	b.broadcaster.Broadcast(runID, evt)
}

func (b *ObserverBridge) OnFrameRejected(runID string, frameIndex int, code string) {
	evt := NewEvent(EventFrameRejected, runID)
	evt.FrameIndex = frameIndex
	evt.Reason = code
	b.broadcaster.Broadcast(runID, evt)
}

func (b *ObserverBridge) OnAuditCompleted(runID string, frameIndex int, result *domain.AuditResult) {
	evt := NewEvent(EventAuditCompleted, runID)
	evt.FrameIndex = frameIndex
	evt.Score = result.CompositeScore
	b.broadcaster.Broadcast(runID, evt)
}

func (b *ObserverBridge) OnRetryDecided(runID string, frameIndex int, decision retrymgr.Decision) {
	evt := NewEvent(EventRetryDecided, runID)
	evt.FrameIndex = frameIndex
	evt.Reason = string(decision.Action)
	b.broadcaster.Broadcast(runID, evt)
}

func (b *ObserverBridge) OnRunFinished(runID string, status domain.RunStatus, reason string) {
	evt := NewEvent(EventRunFinished, runID)
	evt.RunStatus = string(status)
	evt.Reason = reason
	b.broadcaster.Broadcast(runID, evt)
}
