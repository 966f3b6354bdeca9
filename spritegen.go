// Package spritegen is the pipeline's public facade: a thin layer over
// internal/application/orchestrator that wires a Store, an ImageGenerator,
// and an ObserverManager into one Pipeline, mirroring the teacher's
// top-level re-export surface (mbflow.go) down to this system's own
// generate -> audit -> retry -> approve -> export domain.
package spritegen

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/seanwinslow28/spritegen/internal/application/export"
	"github.com/seanwinslow28/spritegen/internal/application/generator"
	"github.com/seanwinslow28/spritegen/internal/application/orchestrator"
	"github.com/seanwinslow28/spritegen/internal/application/session"
	"github.com/seanwinslow28/spritegen/internal/domain"
	applogger "github.com/seanwinslow28/spritegen/internal/infrastructure/logger"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

// Public re-exports of the domain value types a caller needs to build a
// Manifest and interpret a RunState/Summary without importing internal/domain.
type (
	Manifest        = domain.Manifest
	ResolvedManifest = domain.ResolvedManifest
	RunState        = domain.RunState
	Summary         = domain.Summary
	DirectorSession = domain.DirectorSession
)

// Observer re-exports the orchestrator's notification interface so callers
// can wire their own (the websocket bridge and metrics collector are the
// two built-in implementations).
type Observer = orchestrator.Observer

// ImageGenerator re-exports the generator adapter contract external
// backends must satisfy.
type ImageGenerator = generator.ImageGenerator

// Pipeline owns one run directory's Store, Orchestrator, and ObserverManager.
type Pipeline struct {
	store     *store.Store
	orch      *orchestrator.Orchestrator
	observers *orchestrator.ObserverManager
	bridge    *session.Bridge
}

// NewPipeline builds a Pipeline rooted at runDir. log is typically built
// via NewLogger; pass zerolog.Nop() to run silent.
func NewPipeline(runDir string, gen ImageGenerator, log zerolog.Logger) *Pipeline {
	st := store.New(runDir)
	observers := orchestrator.NewObserverManager()
	return &Pipeline{
		store:     st,
		orch:      orchestrator.New(st, log, gen, observers),
		observers: observers,
		bridge:    session.New(st),
	}
}

// Observe registers an Observer for every transition this Pipeline drives.
func (p *Pipeline) Observe(o Observer) { p.observers.Register(o) }

// Run starts a brand-new run from a Manifest and drives it to completion
// or a stop condition.
func (p *Pipeline) Run(ctx context.Context, m Manifest, manifestPath string) (*RunState, error) {
	return p.orch.Run(ctx, m, manifestPath)
}

// Resume continues a previously stopped or crashed run. force bypasses the
// manifest-hash guard.
func (p *Pipeline) Resume(ctx context.Context, m Manifest, manifestPath string, force bool) (*RunState, error) {
	return p.orch.Resume(ctx, m, manifestPath, force)
}

// Abort signals cooperative cancellation at the next suspension point.
func (p *Pipeline) Abort() { p.orch.Abort() }

// Store exposes the run's Atomic Store for callers that need direct
// access (the REST surface resolves one of these per run).
func (p *Pipeline) Store() *store.Store { return p.store }

// Sessions exposes the Session Bridge over this run's directory.
func (p *Pipeline) Sessions() *session.Bridge { return p.bridge }

// NewLogger builds a zerolog.Logger the way the teacher's infrastructure
// logger does, writing structured JSON to w with warn+ mirrored separately
// when w is not the process's stderr.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	return applogger.Setup(level, w)
}

// PrepareExport stages a move's approved frames and runs the pre-export
// checklist, re-exported so callers don't need internal/application/export.
func PrepareExport(s *store.Store, approvedDir, moveID string, frameIndices []int, targetSize int) (string, []export.ChecklistResult, bool, error) {
	stagingDir, err := export.Prepare(s, approvedDir, moveID, frameIndices)
	if err != nil {
		return "", nil, false, err
	}
	results, ok := export.RunChecklist(stagingDir, len(frameIndices), targetSize)
	return stagingDir, results, ok, nil
}

// ExportResult mirrors ReleaseStatus = export.ReleaseStatus for callers that
// only need the public facade.
type ExportResult struct {
	StagingDir      string
	Checklist       []export.ChecklistResult
	AtlasJSON       string
	AtlasSheet      string
	ValidationError string
	Status          export.ReleaseStatus
}

// RunExport drives the full Export Pipeline (spec §4.11): stage approved
// frames, run the pre-export checklist, pack the atlas, and structurally
// validate it, computing the four-valued release status. A critical
// checklist failure or a packer failure short-circuits before packing or
// validating. allowValidationFail downgrades a failed atlas validation to
// ReleaseDebugOnly instead of ReleaseValidationFailed, keeping the packed
// assets on disk rather than treating them as unusable.
func RunExport(ctx context.Context, s *store.Store, packerBin, approvedDir, moveID string, frameIndices []int, targetSize int, operatorFlags []string, allowValidationFail bool) (*ExportResult, error) {
	stagingDir, err := export.Prepare(s, approvedDir, moveID, frameIndices)
	if err != nil {
		return nil, err
	}

	checklist, checklistOK := export.RunChecklist(stagingDir, len(frameIndices), targetSize)
	result := &ExportResult{StagingDir: stagingDir, Checklist: checklist, Status: export.ReleasePending}
	if !checklistOK {
		return result, nil
	}

	outBase := s.Path("export", moveID)
	if err := export.Pack(ctx, s, packerBin, stagingDir, outBase, operatorFlags); err != nil {
		return result, err
	}
	result.AtlasJSON = outBase + ".json"
	result.AtlasSheet = outBase + ".png"

	if err := export.Validate(result.AtlasJSON, len(frameIndices), moveID); err != nil {
		result.ValidationError = err.Error()
		if allowValidationFail {
			result.Status = export.ReleaseDebugOnly
		} else {
			result.Status = export.ReleaseValidationFailed
		}
		return result, nil
	}

	result.Status = export.ReleaseReady
	return result, nil
}
