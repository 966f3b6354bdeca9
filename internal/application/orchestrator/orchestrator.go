// Package orchestrator implements the 8-state machine (spec §4.9) that
// drives one run end to end: INIT -> GENERATING -> AUDITING ->
// RETRY_DECIDING -> APPROVING -> NEXT_FRAME -> COMPLETED/STOPPED. Every
// transition persists the full run state through the Atomic Store before
// returning, so a crash between any two operations resumes cleanly.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seanwinslow28/spritegen/internal/application/anchor"
	"github.com/seanwinslow28/spritegen/internal/application/auditor"
	"github.com/seanwinslow28/spritegen/internal/application/generator"
	"github.com/seanwinslow28/spritegen/internal/application/manifest"
	"github.com/seanwinslow28/spritegen/internal/application/normalizer"
	"github.com/seanwinslow28/spritegen/internal/application/retrymgr"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

// Observer receives orchestration events. The session bridge's websocket
// hub and the metrics collector are both observers (SPEC_FULL §4.1).
type Observer interface {
	OnStateEntered(runID string, state domain.RunStateKind)
	OnFrameApproved(runID string, frameIndex int)
	OnFrameRejected(runID string, frameIndex int, code string)
	OnAuditCompleted(runID string, frameIndex int, result *domain.AuditResult)
	OnRetryDecided(runID string, frameIndex int, decision retrymgr.Decision)
	OnRunFinished(runID string, status domain.RunStatus, reason string)
}

// ObserverManager fans out orchestration events to every registered
// Observer, adapted from the teacher's monitoring.ObserverManager.
type ObserverManager struct {
	observers []Observer
}

func NewObserverManager() *ObserverManager { return &ObserverManager{} }

func (m *ObserverManager) Register(o Observer) { m.observers = append(m.observers, o) }

func (m *ObserverManager) stateEntered(runID string, s domain.RunStateKind) {
	for _, o := range m.observers {
		o.OnStateEntered(runID, s)
	}
}
func (m *ObserverManager) frameApproved(runID string, idx int) {
	for _, o := range m.observers {
		o.OnFrameApproved(runID, idx)
	}
}
func (m *ObserverManager) frameRejected(runID string, idx int, code string) {
	for _, o := range m.observers {
		o.OnFrameRejected(runID, idx, code)
	}
}
func (m *ObserverManager) auditCompleted(runID string, idx int, r *domain.AuditResult) {
	for _, o := range m.observers {
		o.OnAuditCompleted(runID, idx, r)
	}
}
func (m *ObserverManager) retryDecided(runID string, idx int, d retrymgr.Decision) {
	for _, o := range m.observers {
		o.OnRetryDecided(runID, idx, d)
	}
}
func (m *ObserverManager) runFinished(runID string, status domain.RunStatus, reason string) {
	for _, o := range m.observers {
		o.OnRunFinished(runID, status, reason)
	}
}

var frameNameRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Orchestrator drives a single run through its directory.
type Orchestrator struct {
	store      *store.Store
	log        zerolog.Logger
	gen        generator.ImageGenerator
	retry      *retrymgr.Manager
	observers  *ObserverManager
	abort      chan struct{}
	lock       domain.LockFile
	anchorData *domain.AnchorAnalysis
	anchorPNG  []byte
}

// New constructs an Orchestrator over runDir, ready to Run or Resume.
func New(s *store.Store, log zerolog.Logger, gen generator.ImageGenerator, observers *ObserverManager) *Orchestrator {
	if observers == nil {
		observers = NewObserverManager()
	}
	return &Orchestrator{store: s, log: log, gen: gen, observers: observers, abort: make(chan struct{}, 1)}
}

// Abort signals cooperative cancellation; the orchestrator checks it
// between suspension points (spec §5).
func (o *Orchestrator) Abort() {
	select {
	case o.abort <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) aborted() bool {
	select {
	case <-o.abort:
		return true
	default:
		return false
	}
}

// Run starts a brand-new run: validates the manifest, analyzes the
// anchor, creates run directories, writes the lock file, and drives the
// state machine to completion.
func (o *Orchestrator) Run(ctx context.Context, raw domain.Manifest, manifestPath string) (*domain.RunState, error) {
	runID := uuid.NewString()

	if errs := manifest.Validate(&raw); len(errs) > 0 {
		return nil, errs[0]
	}

	resolved := manifest.Resolve(raw, time.Now())
	hash, err := manifest.Hash(resolved.Manifest)
	if err != nil {
		return nil, err
	}

	if err := o.prepareDirs(); err != nil {
		return nil, err
	}

	anchorFile, err := os.ReadFile(resolved.Inputs.Anchor)
	if err != nil {
		return nil, errors.NewSystem(errors.CodeSysIO, "read anchor image", err)
	}
	o.anchorPNG = anchorFile

	aa, err := anchor.Analyze(bytes.NewReader(anchorFile), resolved.Canvas.Alignment.RootZoneRatio,
		resolved.Auditor.PaletteTolerance, resolved.Auditor.PaletteClusterTrigger)
	if err != nil {
		return nil, err
	}
	o.anchorData = aa
	if err := o.store.WriteJSON(o.store.Path("anchor_analysis.json"), aa); err != nil {
		return nil, err
	}

	o.lock = domain.LockFile{
		RunID:        runID,
		RunStart:     time.Now().UTC().Format(time.RFC3339),
		ManifestPath: manifestPath,
		ManifestHash: hash,
		Environment:  domain.LockEnvironment{AdapterVersion: "1.0.0", ModelID: resolved.Generator.Model},
		Manifest:     resolved,
	}
	if err := manifest.EmitLock(o.store, o.lock); err != nil {
		return nil, err
	}

	o.retry = retrymgr.New(resolved.Retry.Ladder, resolved.Retry.RejectRateStopExpr, resolved.Generator.MaxAttemptsPerFrame)

	run := &domain.RunState{
		RunID:        runID,
		CurrentState: domain.StateInit,
		FrameStates:  map[int]*domain.FrameState{},
		ManifestHash: hash,
		RunStatus:    domain.RunStatusInProgress,
	}
	for i := 0; i < resolved.Identity.FrameCount; i++ {
		run.FrameStates[i] = &domain.FrameState{Status: domain.FrameStatusPending}
	}

	return o.drive(ctx, run, resolved)
}

// Resume reloads a prior run's state.json and continues it, provided the
// manifest hash matches (or force is set).
func (o *Orchestrator) Resume(ctx context.Context, raw domain.Manifest, manifestPath string, force bool) (*domain.RunState, error) {
	var run domain.RunState
	if err := o.store.ReadJSONValidated(o.store.Path("state.json"), &run); err != nil {
		return nil, err
	}

	var lock domain.LockFile
	if err := o.store.ReadJSONValidated(o.store.Path("manifest.lock.json"), &lock); err != nil {
		return nil, err
	}
	o.lock = lock

	resolved := manifest.Resolve(raw, time.Now())
	hash, err := manifest.Hash(resolved.Manifest)
	if err != nil {
		return nil, err
	}
	if hash != run.ManifestHash && !force {
		return nil, errors.NewValidation(errors.CodeManifestChanged, "manifest", "manifest_hash differs from the locked run", "re-run with --force to override, or revert the manifest")
	}

	var aa domain.AnchorAnalysis
	if err := o.store.ReadJSONValidated(o.store.Path("anchor_analysis.json"), &aa); err != nil {
		return nil, err
	}
	o.anchorData = &aa

	anchorFile, err := os.ReadFile(resolved.Inputs.Anchor)
	if err != nil {
		return nil, errors.NewSystem(errors.CodeSysIO, "read anchor image", err)
	}
	o.anchorPNG = anchorFile

	if err := o.verifyApprovedFrames(&run, resolved.Canvas.TargetSize); err != nil {
		return nil, err
	}

	o.retry = retrymgr.New(resolved.Retry.Ladder, resolved.Retry.RejectRateStopExpr, resolved.Generator.MaxAttemptsPerFrame)

	return o.drive(ctx, &run, resolved)
}

// verifyApprovedFrames implements the resume integrity check (spec §3):
// every file referenced by approved_frames must exist and decode as a
// PNG of target_size × target_size; corrupted entries are demoted to pending
// and their file quarantined.
func (o *Orchestrator) verifyApprovedFrames(run *domain.RunState, targetSize int) error {
	var kept []int
	for _, idx := range run.ApprovedFrames {
		path := o.store.Path("approved", fmt.Sprintf("frame_%04d.png", idx))
		data, err := o.store.Read(path)
		valid := err == nil
		if valid {
			img, decodeErr := png.Decode(bytes.NewReader(data))
			if decodeErr != nil || img.Bounds().Dx() != targetSize || img.Bounds().Dy() != targetSize {
				valid = false
			}
		}
		if valid {
			kept = append(kept, idx)
			continue
		}
		o.log.Warn().Int("frame_index", idx).Msg("quarantining corrupted approved frame on resume")
		quarantine := o.store.Path("approved", fmt.Sprintf("frame_%04d.quarantined", idx))
		_ = os.Rename(path, quarantine)
		if fs, ok := run.FrameStates[idx]; ok {
			fs.Status = domain.FrameStatusPending
		}
	}
	run.ApprovedFrames = kept
	return nil
}

func (o *Orchestrator) prepareDirs() error {
	for _, d := range []string{"candidates", "approved", "rejected", "audit", "logs", "export", "validation"} {
		if err := os.MkdirAll(o.store.Path(d), 0o755); err != nil {
			return errors.NewSystem(errors.CodeSysIO, "create run dir "+d, err)
		}
	}
	return nil
}

// drive runs the state machine from run.CurrentState until it reaches a
// terminal state.
func (o *Orchestrator) drive(ctx context.Context, run *domain.RunState, resolved domain.ResolvedManifest) (*domain.RunState, error) {
	aud := auditor.New(o.store)

	for !run.CurrentState.IsTerminal() {
		if o.aborted() {
			run.StopReason = errors.CodeStopUserInterrupt
			return o.transition(run, domain.StateStopped, func() error {
				run.RunStatus = domain.RunStatusStopped
				return nil
			})
		}

		switch run.CurrentState {
		case domain.StateInit:
			if _, err := o.transition(run, domain.StateGenerating, func() error { return nil }); err != nil {
				return nil, err
			}

		case domain.StateGenerating:
			if err := o.stepGenerating(ctx, run, resolved); err != nil {
				return nil, err
			}

		case domain.StateAuditing:
			if err := o.stepAuditing(run, resolved, aud); err != nil {
				return nil, err
			}

		case domain.StateRetryDeciding:
			if err := o.stepRetryDeciding(run, resolved); err != nil {
				return nil, err
			}

		case domain.StateApproving:
			if err := o.stepApproving(run); err != nil {
				return nil, err
			}

		case domain.StateNextFrame:
			if err := o.stepNextFrame(run, resolved); err != nil {
				return nil, err
			}
		}
	}

	o.observers.runFinished(run.RunID, run.RunStatus, run.StopReason)
	return run, nil
}

// transition applies mutate, moves run to state to, persists the full run
// state, and logs. It does not check that to is a permitted successor of
// run.CurrentState. Any persistence failure aborts the transition and
// leaves the last persisted state authoritative.
func (o *Orchestrator) transition(run *domain.RunState, to domain.RunStateKind, mutate func() error) (*domain.RunState, error) {
	start := time.Now()
	if err := mutate(); err != nil {
		return nil, err
	}
	run.CurrentState = to
	run.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := o.store.WriteJSON(o.store.Path("state.json"), run); err != nil {
		return nil, err
	}

	o.log.Info().Str("state", string(to)).Dur("elapsed", time.Since(start)).Msg("entering state")
	o.observers.stateEntered(run.RunID, to)
	return run, nil
}

func sanitizeReason(code string) string {
	return frameNameRe.ReplaceAllString(code, "_")
}
