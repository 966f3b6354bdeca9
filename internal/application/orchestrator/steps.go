package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/seanwinslow28/spritegen/internal/application/auditor"
	"github.com/seanwinslow28/spritegen/internal/application/generator"
	"github.com/seanwinslow28/spritegen/internal/application/imageops"
	"github.com/seanwinslow28/spritegen/internal/application/normalizer"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// stepGenerating issues exactly one generator call for the current frame
// and attempt and writes the raw candidate atomically to candidates/ before
// transitioning to AUDITING; normalization happens in stepAuditing.
func (o *Orchestrator) stepGenerating(ctx context.Context, run *domain.RunState, resolved domain.ResolvedManifest) error {
	frameIdx := run.CurrentFrameIndex
	frame := run.FrameStates[frameIdx]
	attemptIdx := len(frame.Attempts) + 1

	var prevBytes []byte
	includePrev := false
	if frameIdx > 0 {
		if prevFrame, ok := run.FrameStates[frameIdx-1]; ok && len(prevFrame.Attempts) > 0 {
			last := prevFrame.Attempts[len(prevFrame.Attempts)-1]
			score := last.PerMetricScores["identity"]
			includePrev = generator.ShouldIncludePrevFrame(score, true)
			if includePrev {
				if data, err := os.ReadFile(o.store.Path("approved", fmt.Sprintf("frame_%04d.png", frameIdx-1))); err == nil {
					prevBytes = data
				} else {
					includePrev = false
				}
			}
		}
	}
	if !includePrev {
		o.log.Debug().Int("frame_index", frameIdx).Msg("skipping PrevFrame reference due to drift")
	}

	seed := generator.SeedForAttempt(run.RunID, frameIdx, attemptIdx, resolved.Generator.SeedPolicy == domain.SeedPolicyAlwaysRandom)
	prompt := generator.BuildPrompt(includePrev, resolved.Generator.Prompts.Variation)

	req := generator.Request{
		AnchorBytes:    o.anchorPNG,
		PrevFrameBytes: prevBytes,
		PromptText:     prompt,
		Seed:           seed,
		Sampling:       generator.LockedSampling,
	}

	genCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	result, genErr := o.gen.Generate(genCtx, req)
	if genErr != nil {
		run.StopReason = "DEP_" + string(genErr.Kind)
		_, err := o.transition(run, domain.StateStopped, func() error {
			run.RunStatus = domain.RunStatusStopped
			return nil
		})
		return err
	}

	candidatePath := o.store.Path("candidates", fmt.Sprintf("frame_%04d_attempt_%02d.png", frameIdx, attemptIdx))
	if err := o.store.Write(candidatePath, result.PNGBytes); err != nil {
		return err
	}

	run.CurrentAttempt = attemptIdx
	attempt := domain.Attempt{AttemptIndex: attemptIdx, CandidatePath: candidatePath, SeedUsed: seed}
	frame.Attempts = append(frame.Attempts, attempt)
	frame.Status = domain.FrameStatusGenerating

	_, err := o.transition(run, domain.StateAuditing, func() error { return nil })
	return err
}

// stepAuditing normalizes the latest candidate and runs it through the
// Auditor, transitioning to APPROVING on pass or RETRY_DECIDING on any
// gate failure.
func (o *Orchestrator) stepAuditing(run *domain.RunState, resolved domain.ResolvedManifest, aud *auditor.Auditor) error {
	frameIdx := run.CurrentFrameIndex
	frame := run.FrameStates[frameIdx]
	frame.Status = domain.FrameStatusAuditing
	attempt := &frame.Attempts[len(frame.Attempts)-1]

	raw, err := o.store.Read(attempt.CandidatePath)
	if err != nil {
		return err
	}

	decodedAnchor, err := png.Decode(bytes.NewReader(o.anchorPNG))
	if err != nil {
		return errors.NewSystem(errors.CodeSysIO, "decode anchor png", err)
	}
	anchorImg := imageops.ToNRGBA(decodedAnchor)

	normalized, normResult, err := normalizer.Normalize(raw, o.anchorData, normalizer.Params{
		GenerationSize: resolved.Canvas.GenerationSize,
		TargetSize:     resolved.Canvas.TargetSize,
		VerticalLock:   resolved.Canvas.Alignment.VerticalLock,
		RootZoneRatio:  resolved.Canvas.Alignment.RootZoneRatio,
		MaxShiftX:      int(resolved.Canvas.Alignment.MaxShiftX),
	})
	if err != nil {
		return err
	}
	if normResult.SoftWarning {
		o.log.Warn().Int64("duration_ms", normResult.DurationMS).Msg("normalization exceeded soft timing budget")
	}

	normPath := attempt.CandidatePath[:len(attempt.CandidatePath)-len(".png")] + "_norm.png"
	if err := o.store.Write(normPath, normalized); err != nil {
		return err
	}

	result, err := aud.Audit(normalized, o.anchorData, anchorImg, resolved.Auditor.Thresholds,
		resolved.Auditor.Weights, resolved.Auditor.PaletteTolerance, resolved.Auditor.CompositeExpr, frameIdx, attempt.AttemptIndex)
	if err != nil {
		return err
	}

	attempt.CompositeScore = result.CompositeScore
	attempt.ReasonCodes = result.ReasonCodes
	attempt.PerMetricScores = map[string]float64{}
	for name, m := range result.PerMetric {
		attempt.PerMetricScores[name] = m.Score
	}

	o.observers.auditCompleted(run.RunID, frameIdx, result)

	next := domain.StateRetryDeciding
	if result.Passed {
		next = domain.StateApproving
	}
	_, err = o.transition(run, next, func() error { return nil })
	return err
}

// stepRetryDeciding applies the Retry Manager's ladder/collapse/oscillation
// rules and either schedules another generation attempt, marks the frame
// terminal (rejected), or stops the run on a reject-rate breach.
func (o *Orchestrator) stepRetryDeciding(run *domain.RunState, resolved domain.ResolvedManifest) error {
	frameIdx := run.CurrentFrameIndex
	frame := run.FrameStates[frameIdx]
	attempt := &frame.Attempts[len(frame.Attempts)-1]

	auditResult := &domain.AuditResult{
		Passed:         false,
		CompositeScore: attempt.CompositeScore,
		ReasonCodes:    attempt.ReasonCodes,
		PerMetric:      map[string]domain.MetricResult{},
	}
	for name, score := range attempt.PerMetricScores {
		auditResult.PerMetric[name] = domain.MetricResult{Score: score}
	}

	decision := o.retry.Decide(auditResult, frame, len(frame.Attempts))
	attempt.ActionTaken = decision.Action
	o.observers.retryDecided(run.RunID, frameIdx, decision)

	if decision.Reject {
		frame.Status = domain.FrameStatusRejected
		o.observers.frameRejected(run.RunID, frameIdx, decision.RejectCode)
		if err := o.quarantineRejected(frameIdx, decision.RejectCode, attempt.CandidatePath); err != nil {
			return err
		}

		stop, err := o.checkRejectRateStop(run)
		if err != nil {
			return err
		}
		if stop {
			run.StopReason = errors.CodeStopRejectRateExceeded
			_, err := o.transition(run, domain.StateStopped, func() error {
				run.RunStatus = domain.RunStatusStopped
				return nil
			})
			return err
		}

		_, err = o.transition(run, domain.StateNextFrame, func() error { return nil })
		return err
	}

	_, err := o.transition(run, domain.StateGenerating, func() error { return nil })
	return err
}

// stepApproving copies the normalized frame into approved/ and records it.
func (o *Orchestrator) stepApproving(run *domain.RunState) error {
	frameIdx := run.CurrentFrameIndex
	frame := run.FrameStates[frameIdx]
	attempt := frame.Attempts[len(frame.Attempts)-1]

	normPath := attempt.CandidatePath[:len(attempt.CandidatePath)-len(".png")] + "_norm.png"
	data, err := o.store.Read(normPath)
	if err != nil {
		return err
	}

	approvedPath := o.store.Path("approved", fmt.Sprintf("frame_%04d.png", frameIdx))
	if err := o.store.Write(approvedPath, data); err != nil {
		return err
	}

	_, err = o.transition(run, domain.StateNextFrame, func() error {
		frame.Status = domain.FrameStatusApproved
		run.ApprovedFrames = append(run.ApprovedFrames, frameIdx)
		o.observers.frameApproved(run.RunID, frameIdx)
		return nil
	})
	return err
}

// stepNextFrame checks stop conditions, advances to the next frame, or
// declares the run COMPLETED once every frame is terminal.
func (o *Orchestrator) stepNextFrame(run *domain.RunState, resolved domain.ResolvedManifest) error {
	totalAttempts := 0
	allTerminal := true
	for _, f := range run.FrameStates {
		totalAttempts += len(f.Attempts)
		if !f.Status.IsTerminal() {
			allTerminal = false
		}
	}

	const attemptsCircuitBreaker = 256
	if totalAttempts >= attemptsCircuitBreaker {
		run.StopReason = errors.CodeStopAttemptsCircuit
		_, err := o.transition(run, domain.StateStopped, func() error {
			run.RunStatus = domain.RunStatusStopped
			return nil
		})
		return err
	}

	if allTerminal {
		_, err := o.transition(run, domain.StateCompleted, func() error {
			run.RunStatus = domain.RunStatusCompleted
			return nil
		})
		return err
	}

	run.CurrentFrameIndex++
	for run.CurrentFrameIndex < resolved.Identity.FrameCount {
		if !run.FrameStates[run.CurrentFrameIndex].Status.IsTerminal() {
			break
		}
		run.CurrentFrameIndex++
	}
	if run.CurrentFrameIndex >= resolved.Identity.FrameCount {
		_, err := o.transition(run, domain.StateCompleted, func() error {
			run.RunStatus = domain.RunStatusCompleted
			return nil
		})
		return err
	}

	_, err := o.transition(run, domain.StateGenerating, func() error { return nil })
	return err
}

func (o *Orchestrator) checkRejectRateStop(run *domain.RunState) (bool, error) {
	rejected, attempted := 0, 0
	for _, f := range run.FrameStates {
		attempted += len(f.Attempts)
		if f.Status == domain.FrameStatusRejected {
			rejected++
		}
	}
	return o.retry.CheckRejectRateStop(rejected, attempted)
}

func (o *Orchestrator) quarantineRejected(frameIdx int, code, candidatePath string) error {
	data, err := o.store.Read(candidatePath)
	if err != nil {
		return err
	}
	path := o.store.Path("rejected", fmt.Sprintf("frame_%04d_%s.png", frameIdx, sanitizeReason(code)))
	return o.store.Write(path, data)
}
