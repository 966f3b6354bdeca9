package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanwinslow28/spritegen/internal/domain"
)

func validManifest() domain.Manifest {
	return domain.Manifest{
		Identity: domain.ManifestIdentity{Character: "hero", Move: "walk", FrameCount: 8},
		Inputs:   domain.ManifestInputs{Anchor: "anchor.png"},
		Generator: domain.ManifestGenerator{
			Prompts: domain.ManifestPrompts{Master: "a pixel-art hero walking"},
		},
	}
}

func TestValidate_AcceptsAMinimalValidManifest(t *testing.T) {
	m := validManifest()
	assert.Empty(t, Validate(&m))
}

func TestValidate_RequiresCharacterMoveAnchorAndPrompt(t *testing.T) {
	m := domain.Manifest{}
	errs := Validate(&m)
	// the four required fields, plus frame_count 0 being outside 1..32.
	require.Len(t, errs, 5)

	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["identity.character"])
	assert.True(t, fields["identity.move"])
	assert.True(t, fields["inputs.anchor"])
	assert.True(t, fields["generator.prompts.master"])
}

func TestValidate_FrameCountOutOfRange(t *testing.T) {
	m := validManifest()
	m.Identity.FrameCount = 33
	errs := Validate(&m)
	require.Len(t, errs, 1)
	assert.Equal(t, "identity.frame_count", errs[0].Field)
}

func TestValidate_RejectsUnknownSeedPolicy(t *testing.T) {
	m := validManifest()
	m.Generator.SeedPolicy = "bogus"
	errs := Validate(&m)
	require.Len(t, errs, 1)
	assert.Equal(t, "generator.seed_policy", errs[0].Field)
}

func TestValidate_RejectsUnsupportedTargetSize(t *testing.T) {
	m := validManifest()
	m.Canvas.TargetSize = 64
	errs := Validate(&m)
	require.Len(t, errs, 1)
	assert.Equal(t, "canvas.target_size", errs[0].Field)
}

func TestResolve_FillsDefaultsWithoutOverridingExplicitValues(t *testing.T) {
	m := validManifest()
	m.Canvas.TargetSize = 256

	resolved := Resolve(m, time.Now())

	assert.Equal(t, Defaults.Canvas.GenerationSize, resolved.Canvas.GenerationSize)
	assert.Equal(t, 256, resolved.Canvas.TargetSize)
	assert.Equal(t, Defaults.Auditor.Thresholds.IdentityMin, resolved.Auditor.Thresholds.IdentityMin)
	assert.Equal(t, Defaults.Auditor.Weights, resolved.Auditor.Weights)
	assert.NotEmpty(t, resolved.ResolvedAt)
}

func TestResolve_PreservesExplicitWeights(t *testing.T) {
	m := validManifest()
	m.Auditor.Weights = map[string]float64{"identity": 1.0}

	resolved := Resolve(m, time.Now())
	assert.Equal(t, map[string]float64{"identity": 1.0}, resolved.Auditor.Weights)
}

func TestHash_IsDeterministicForTheSameManifest(t *testing.T) {
	m := validManifest()
	h1, err := Hash(m)
	require.NoError(t, err)
	h2, err := Hash(m)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHash_ChangesWhenManifestChanges(t *testing.T) {
	m1 := validManifest()
	m2 := validManifest()
	m2.Identity.FrameCount = 12

	h1, err := Hash(m1)
	require.NoError(t, err)
	h2, err := Hash(m2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
