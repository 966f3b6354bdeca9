package orchestrator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanwinslow28/spritegen/internal/application/generator"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

// stubGenerator always returns the same PNG bytes, optionally failing.
type stubGenerator struct {
	pngBytes []byte
	err      *generator.GeneratorError
	calls    int
}

func (s *stubGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Result, *generator.GeneratorError) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &generator.Result{PNGBytes: s.pngBytes, SamplingUsed: req.Sampling}, nil
}
func (s *stubGenerator) Describe() string { return "stub" }
func (s *stubGenerator) Close() error     { return nil }

// writeAnchorPNG writes an opaque size×size anchor whose pixels are drawn
// from four non-chroma colors by a fixed-seed generator, so that its PNG
// (and the normalizer's re-encoding of it) stays above the 1 KB size gate.
func writeAnchorPNG(t *testing.T, dir string, size int) (string, []byte) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	palette := []color.NRGBA{
		{R: 30, G: 180, B: 90, A: 255},
		{R: 200, G: 60, B: 40, A: 255},
		{R: 40, G: 40, B: 160, A: 255},
		{R: 220, G: 200, B: 120, A: 255},
	}
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, palette[rng.Intn(len(palette))])
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "anchor.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path, buf.Bytes()
}

func baseManifest(anchorPath string) domain.Manifest {
	m := domain.Manifest{
		Identity: domain.ManifestIdentity{Character: "hero", Move: "idle", FrameCount: 1},
		Inputs:   domain.ManifestInputs{Anchor: anchorPath},
		Generator: domain.ManifestGenerator{
			Prompts: domain.ManifestPrompts{Master: "a pixel-art hero standing idle"},
		},
		Canvas: domain.ManifestCanvas{GenerationSize: 128, TargetSize: 128},
	}
	return m
}

func TestOrchestrator_Run_HappyPathSingleFrameApproves(t *testing.T) {
	runDir := t.TempDir()
	anchorPath, anchorBytes := writeAnchorPNG(t, t.TempDir(), 128)

	gen := &stubGenerator{pngBytes: anchorBytes}
	o := New(store.New(runDir), zerolog.Nop(), gen, nil)

	run, err := o.Run(context.Background(), baseManifest(anchorPath), "manifest.yaml")
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, run.RunStatus)
	assert.Equal(t, domain.StateCompleted, run.CurrentState)
	assert.Equal(t, []int{0}, run.ApprovedFrames)
	assert.Equal(t, domain.FrameStatusApproved, run.FrameStates[0].Status)
	assert.FileExists(t, filepath.Join(runDir, "approved", "frame_0000.png"))
}

func TestOrchestrator_Run_GeneratorFailureStopsTheRun(t *testing.T) {
	runDir := t.TempDir()
	anchorPath, _ := writeAnchorPNG(t, t.TempDir(), 128)

	gen := &stubGenerator{err: &generator.GeneratorError{Kind: generator.ErrUnavailable, Message: "backend down"}}
	o := New(store.New(runDir), zerolog.Nop(), gen, nil)

	run, err := o.Run(context.Background(), baseManifest(anchorPath), "manifest.yaml")
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusStopped, run.RunStatus)
	assert.Equal(t, domain.StateStopped, run.CurrentState)
	assert.Equal(t, "DEP_UNAVAILABLE", run.StopReason)
}

func TestOrchestrator_Resume_RejectsAChangedManifestWithoutForce(t *testing.T) {
	runDir := t.TempDir()
	anchorPath, anchorBytes := writeAnchorPNG(t, t.TempDir(), 128)

	gen := &stubGenerator{pngBytes: anchorBytes}
	o := New(store.New(runDir), zerolog.Nop(), gen, nil)
	manifest := baseManifest(anchorPath)
	_, err := o.Run(context.Background(), manifest, "manifest.yaml")
	require.NoError(t, err)

	o2 := New(store.New(runDir), zerolog.Nop(), gen, nil)
	changed := manifest
	changed.Generator.Prompts.Master = "a completely different prompt"
	_, err = o2.Resume(context.Background(), changed, "manifest.yaml", false)
	assert.Error(t, err)
}

func TestOrchestrator_Resume_AllowsAChangedManifestWithForce(t *testing.T) {
	runDir := t.TempDir()
	anchorPath, anchorBytes := writeAnchorPNG(t, t.TempDir(), 128)

	gen := &stubGenerator{pngBytes: anchorBytes}
	o := New(store.New(runDir), zerolog.Nop(), gen, nil)
	manifest := baseManifest(anchorPath)
	_, err := o.Run(context.Background(), manifest, "manifest.yaml")
	require.NoError(t, err)

	o2 := New(store.New(runDir), zerolog.Nop(), gen, nil)
	changed := manifest
	changed.Generator.Prompts.Master = "a completely different prompt"
	run, err := o2.Resume(context.Background(), changed, "manifest.yaml", true)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.RunStatus)
}

func TestOrchestrator_Abort_StopsTheRunCooperatively(t *testing.T) {
	runDir := t.TempDir()
	anchorPath, anchorBytes := writeAnchorPNG(t, t.TempDir(), 128)

	gen := &stubGenerator{pngBytes: anchorBytes}
	o := New(store.New(runDir), zerolog.Nop(), gen, nil)
	o.Abort()

	run, err := o.Run(context.Background(), baseManifest(anchorPath), "manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusStopped, run.RunStatus)
	assert.Equal(t, "USER_INTERRUPT", run.StopReason)
}
