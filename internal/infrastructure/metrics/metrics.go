// Package metrics implements the orchestrator Observer that aggregates a
// run's retry/reject rates and top failure codes into summary.json,
// replacing the teacher's execution-monitoring package with the pipeline's
// own domain.Summary shape.
package metrics

import (
	"sort"
	"sync"

	"github.com/seanwinslow28/spritegen/internal/application/retrymgr"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

// Collector implements orchestrator.Observer. It is safe for concurrent use
// since the bridge and REST surfaces may read an in-flight run's counters.
type Collector struct {
	mu sync.Mutex

	frameCount int
	approved   int
	rejected   int
	failed     int
	attempts   int
	retries    int
	failures   map[string]int

	runStatus domain.RunStatus
	stopReason string
}

func New() *Collector {
	return &Collector{failures: map[string]int{}}
}

func (c *Collector) OnStateEntered(runID string, state domain.RunStateKind) {}

func (c *Collector) OnFrameApproved(runID string, frameIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approved++
}

func (c *Collector) OnFrameRejected(runID string, frameIndex int, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected++
	c.failures[code]++
}

func (c *Collector) OnAuditCompleted(runID string, frameIndex int, result *domain.AuditResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if !result.Passed {
		for _, code := range result.ReasonCodes {
			c.failures[code]++
		}
	}
}

func (c *Collector) OnRetryDecided(runID string, frameIndex int, decision retrymgr.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !decision.Reject && !decision.Stop {
		c.retries++
	}
}

func (c *Collector) OnRunFinished(runID string, status domain.RunStatus, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runStatus = status
	c.stopReason = reason
}

// Finalize builds the Summary from accumulated counters. The per-frame
// approved/rejected/failed totals are counted from frameStates; the rates
// and top failures come from the observer counters.
func (c *Collector) Finalize(runID string, frameStates map[int]*domain.FrameState) domain.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	total, approved, rejected, failed := len(frameStates), 0, 0, 0
	for _, fs := range frameStates {
		switch fs.Status {
		case domain.FrameStatusApproved:
			approved++
		case domain.FrameStatusRejected:
			rejected++
		case domain.FrameStatusFailed:
			failed++
		}
	}

	var retryRate, rejectRate float64
	if c.attempts > 0 {
		retryRate = float64(c.retries) / float64(c.attempts)
		rejectRate = float64(rejected) / float64(c.attempts)
	}

	var top []domain.SummaryFailure
	for code, count := range c.failures {
		top = append(top, domain.SummaryFailure{Code: code, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Code < top[j].Code
	})
	if len(top) > 5 {
		top = top[:5]
	}

	return domain.Summary{
		RunID:      runID,
		RunStatus:  c.runStatus,
		StopReason: c.stopReason,
		Frames: domain.SummaryFrames{
			Total:    total,
			Approved: approved,
			Rejected: rejected,
			Failed:   failed,
		},
		Rates: domain.SummaryRates{
			RetryRate:  retryRate,
			RejectRate: rejectRate,
		},
		TopFailures: top,
	}
}

// Write persists the final summary.json for a run.
func Write(s *store.Store, summary domain.Summary) error {
	return s.WriteJSON(s.Path("summary.json"), summary)
}
