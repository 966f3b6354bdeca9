package spritegen

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/seanwinslow28/spritegen/internal/application/retrymgr"
	"github.com/seanwinslow28/spritegen/internal/domain"
)

// HTTPCallbackObserver posts every orchestrator event to a fixed webhook
// URL as a JSON body, for operators who want run progress in an external
// system instead of (or alongside) the websocket push surface.
type HTTPCallbackObserver struct {
	url    string
	client *http.Client
}

// HTTPCallbackObserverConfig configures an HTTPCallbackObserver.
type HTTPCallbackObserverConfig struct {
	URL     string
	Timeout time.Duration
}

// NewHTTPCallbackObserver builds an observer that fires a best-effort POST
// per event; delivery failures are swallowed since a webhook outage must
// never stall the pipeline.
func NewHTTPCallbackObserver(cfg HTTPCallbackObserverConfig) *HTTPCallbackObserver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPCallbackObserver{url: cfg.URL, client: &http.Client{Timeout: timeout}}
}

type callbackPayload struct {
	Event      string  `json:"event"`
	RunID      string  `json:"run_id"`
	FrameIndex int     `json:"frame_index,omitempty"`
	State      string  `json:"state,omitempty"`
	Code       string  `json:"code,omitempty"`
	Score      float64 `json:"score,omitempty"`
	RunStatus  string  `json:"run_status,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

func (h *HTTPCallbackObserver) post(payload callbackPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (h *HTTPCallbackObserver) OnStateEntered(runID string, state domain.RunStateKind) {
	h.post(callbackPayload{Event: "state.entered", RunID: runID, State: string(state)})
}

func (h *HTTPCallbackObserver) OnFrameApproved(runID string, frameIndex int) {
	h.post(callbackPayload{Event: "frame.approved", RunID: runID, FrameIndex: frameIndex})
}

func (h *HTTPCallbackObserver) OnFrameRejected(runID string, frameIndex int, code string) {
	h.post(callbackPayload{Event: "frame.rejected", RunID: runID, FrameIndex: frameIndex, Code: code})
}

func (h *HTTPCallbackObserver) OnAuditCompleted(runID string, frameIndex int, result *domain.AuditResult) {
	h.post(callbackPayload{Event: "audit.completed", RunID: runID, FrameIndex: frameIndex, Score: result.CompositeScore})
}

func (h *HTTPCallbackObserver) OnRetryDecided(runID string, frameIndex int, decision retrymgr.Decision) {
	h.post(callbackPayload{Event: "retry.decided", RunID: runID, FrameIndex: frameIndex, Code: string(decision.Action)})
}

func (h *HTTPCallbackObserver) OnRunFinished(runID string, status domain.RunStatus, reason string) {
	h.post(callbackPayload{Event: "run.finished", RunID: runID, RunStatus: string(status), Reason: reason})
}
