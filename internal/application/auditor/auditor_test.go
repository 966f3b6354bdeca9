package auditor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

func solidSquare(size int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// encodePNG stores img uncompressed so a 32x32 solid-color candidate stays
// above the 1 KB file-size hard gate.
func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

func defaultThresholds() domain.ManifestThresholds {
	return domain.ManifestThresholds{
		IdentityMin:      0.8,
		PaletteMin:       0.8,
		AlphaArtifactMax: 0.3,
		BaselineDriftMax: 2,
		CompositeMin:     0.7,
	}
}

func defaultWeights() map[string]float64 {
	return map[string]float64{"identity": 0.4, "palette": 0.2, "baseline": 0.2, "alpha": 0.1, "noise": 0.1}
}

func TestAuditor_Audit_PassesAMatchingCandidate(t *testing.T) {
	anchorImg := solidSquare(32, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	candidate := encodePNG(t, anchorImg)

	anchor := &domain.AnchorAnalysis{
		BaselineY: 31,
		Palette:   []domain.RGB{{R: 200, G: 10, B: 10}},
	}

	a := New(store.New(t.TempDir()))
	result, err := a.Audit(candidate, anchor, anchorImg, defaultThresholds(), defaultWeights(), 5, "", 0, 0)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Empty(t, result.ReasonCodes)
	assert.Greater(t, result.CompositeScore, 0.7)
}

func TestAuditor_Audit_FailsHardGateOnDimensionMismatch(t *testing.T) {
	anchorImg := solidSquare(16, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	candidate := encodePNG(t, solidSquare(8, color.NRGBA{R: 200, G: 10, B: 10, A: 255}))

	anchor := &domain.AnchorAnalysis{BaselineY: 15, Palette: []domain.RGB{{R: 200, G: 10, B: 10}}}

	a := New(store.New(t.TempDir()))
	result, err := a.Audit(candidate, anchor, anchorImg, defaultThresholds(), defaultWeights(), 5, "", 0, 0)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.ReasonCodes)
	assert.Equal(t, 0.0, result.CompositeScore)
}

func TestAuditor_Audit_FlagsPaletteDriftAsASoftFail(t *testing.T) {
	anchorImg := solidSquare(32, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	candidate := encodePNG(t, solidSquare(32, color.NRGBA{R: 5, G: 5, B: 200, A: 255}))

	anchor := &domain.AnchorAnalysis{
		BaselineY: 31,
		Palette:   []domain.RGB{{R: 200, G: 10, B: 10}},
	}

	a := New(store.New(t.TempDir()))
	result, err := a.Audit(candidate, anchor, anchorImg, defaultThresholds(), defaultWeights(), 5, "", 0, 0)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Contains(t, result.ReasonCodes, "SF02_PALETTE_DRIFT")
}

func TestAuditor_Audit_AppendsOneJSONLEntryPerCall(t *testing.T) {
	anchorImg := solidSquare(16, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	candidate := encodePNG(t, anchorImg)
	anchor := &domain.AnchorAnalysis{BaselineY: 15, Palette: []domain.RGB{{R: 200, G: 10, B: 10}}}

	s := store.New(t.TempDir())
	a := New(s)
	_, err := a.Audit(candidate, anchor, anchorImg, defaultThresholds(), defaultWeights(), 5, "", 0, 0)
	require.NoError(t, err)
	_, err = a.Audit(candidate, anchor, anchorImg, defaultThresholds(), defaultWeights(), 5, "", 0, 1)
	require.NoError(t, err)

	data, err := s.Read(s.Path("audit", "audit_log.jsonl"))
	require.NoError(t, err)
	lines := bytes.Count(data, []byte("\n"))
	assert.Equal(t, 2, lines)
}
