// Package auditor implements the Auditor (spec §4.7): runs hard gates then
// soft metrics against configured thresholds and emits reason codes. It
// never mutates frame state; it only produces an AuditResult and appends
// one JSONL entry to audit/audit_log.jsonl.
package auditor

import (
	"encoding/json"
	"image"
	"time"

	"github.com/seanwinslow28/spritegen/internal/application/metrics"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

// Auditor runs the fixed battery of checks against one candidate.
type Auditor struct {
	store *store.Store
}

// New returns an Auditor that appends its log to the given run's Atomic Store.
func New(s *store.Store) *Auditor {
	return &Auditor{store: s}
}

// Audit runs hard gates (fail-fast) then all soft metrics (so operators see
// every fault at once) against normalized candidate bytes.
func (a *Auditor) Audit(normalized []byte, anchor *domain.AnchorAnalysis, anchorImg *image.NRGBA, thresholds domain.ManifestThresholds, weights map[string]float64, paletteTolerance int, compositeExpr string, frameIndex, attemptIndex int) (*domain.AuditResult, error) {
	targetSize := anchorImg.Bounds().Dx()

	img, hardFails := metrics.HardGates(normalized, targetSize)
	if len(hardFails) > 0 {
		result := &domain.AuditResult{
			Passed:      false,
			ReasonCodes: hardFails,
			PerMetric:   map[string]domain.MetricResult{},
		}
		if err := a.logResult(result, frameIndex, attemptIndex); err != nil {
			return nil, err
		}
		return result, nil
	}

	perMetric := map[string]domain.MetricResult{}
	var reasons []string

	identity := metrics.Identity(img, anchorImg, thresholds.IdentityMin)
	perMetric["identity"] = identity
	if !identity.Passed {
		reasons = append(reasons, errors.CodeSF01IdentityDrift)
	}

	palette := metrics.PaletteFidelity(img, anchor.Palette, paletteTolerance, thresholds.PaletteMin)
	perMetric["palette"] = palette
	if !palette.Passed {
		reasons = append(reasons, errors.CodeSF02PaletteDrift)
	}

	baseline := metrics.BaselineDrift(img, anchor.BaselineY, thresholds.BaselineDriftMax)
	perMetric["baseline"] = baseline
	if !baseline.Passed {
		reasons = append(reasons, errors.CodeSF03BaselineDrift)
	}

	alpha := metrics.AlphaArtifact(img, thresholds.AlphaArtifactMax)
	perMetric["alpha"] = alpha
	if !alpha.Passed {
		reasons = append(reasons, errors.CodeSFAlphaHalo)
	}

	noise := metrics.PixelNoise(img, thresholds.AlphaArtifactMax)
	perMetric["noise"] = noise
	if !noise.Passed {
		reasons = append(reasons, errors.CodeSFPixelNoise)
	}

	scores := map[string]float64{
		"identity": identity.Score,
		"palette":  palette.Score,
		"baseline": baseline.Score,
		"alpha":    alpha.Score,
		"noise":    noise.Score,
	}
	composite, err := metrics.Composite(scores, weights, compositeExpr)
	if err != nil {
		return nil, err
	}

	passed := composite >= thresholds.CompositeMin && len(reasons) == 0

	result := &domain.AuditResult{
		Passed:         passed,
		CompositeScore: composite,
		PerMetric:      perMetric,
		ReasonCodes:    reasons,
	}

	if err := a.logResult(result, frameIndex, attemptIndex); err != nil {
		return nil, err
	}
	return result, nil
}

type logEntry struct {
	Timestamp    string             `json:"timestamp"`
	FrameIndex   int                `json:"frame_index"`
	AttemptIndex int                `json:"attempt_index"`
	Result       *domain.AuditResult `json:"result"`
}

// logResult appends one JSONL entry to audit/audit_log.jsonl via the
// Atomic Store (append is implemented as read-modify-write-atomic since
// the store has no native append primitive, matching its write-tmp-rename
// contract for the whole file).
func (a *Auditor) logResult(result *domain.AuditResult, frameIndex, attemptIndex int) error {
	entry := logEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		FrameIndex:   frameIndex,
		AttemptIndex: attemptIndex,
		Result:       result,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.NewSystem(errors.CodeSysIO, "marshal audit log entry", err)
	}

	path := a.store.Path("audit", "audit_log.jsonl")
	existing, err := a.store.Read(path)
	if err != nil {
		existing = nil
	}
	existing = append(existing, line...)
	existing = append(existing, '\n')
	return a.store.Write(path, existing)
}
