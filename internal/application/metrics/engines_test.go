package metrics

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

func square(size int, fill color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	return img
}

// encode stores img uncompressed so solid-color fixtures stay above the
// 1 KB file-size hard gate.
func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

func TestHardGates_AcceptsAMatchingOpaquePNG(t *testing.T) {
	img := square(64, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	_, reasons := HardGates(encode(t, img), 64)
	assert.Empty(t, reasons)
}

func TestHardGates_RejectsMismatchedDimensions(t *testing.T) {
	img := square(32, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	_, reasons := HardGates(encode(t, img), 64)
	assert.Contains(t, reasons, errors.CodeHF01BadDimensions)
}

func TestHardGates_RejectsUndecodableBytes(t *testing.T) {
	_, reasons := HardGates([]byte("garbage"), 64)
	assert.Contains(t, reasons, errors.CodeHF03NotDecodable)
}

func TestHardGates_RejectsFileTooSmall(t *testing.T) {
	_, reasons := HardGates([]byte{0x89, 0x50, 0x4e, 0x47}, 64)
	assert.Contains(t, reasons, errors.CodeHF04BadFileSize)
}

func TestIdentity_IdenticalImagesScoreOne(t *testing.T) {
	img := square(22, color.NRGBA{R: 40, G: 80, B: 120, A: 255})
	result := Identity(img, img, 0.8)
	assert.True(t, result.Passed)
	assert.InDelta(t, 1.0, result.Score, 0.05)
}

func TestPaletteFidelity_AllPixelsWithinToleranceScoreOne(t *testing.T) {
	img := square(8, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	palette := []domain.RGB{{R: 200, G: 10, B: 10}}
	result := PaletteFidelity(img, palette, 5, 0.9)
	assert.True(t, result.Passed)
	assert.Equal(t, 1.0, result.Score)
}

func TestPaletteFidelity_OffPaletteColorsFailBelowThreshold(t *testing.T) {
	img := square(8, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
	palette := []domain.RGB{{R: 255, G: 255, B: 255}}
	result := PaletteFidelity(img, palette, 5, 0.9)
	assert.False(t, result.Passed)
	assert.Equal(t, 0.0, result.Score)
}

func TestBaselineDrift_NoDriftIsAligned(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		img.SetNRGBA(x, 9, color.NRGBA{R: 1, G: 1, B: 1, A: 255})
	}
	result := BaselineDrift(img, 9, 2)
	assert.True(t, result.Passed)
	assert.Equal(t, 0, result.Details["drift_px"])
	assert.Equal(t, string(domain.DirectionAligned), result.Details["direction"])
}

func TestBaselineDrift_SinkingBeyondMaxFails(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		img.SetNRGBA(x, 9, color.NRGBA{R: 1, G: 1, B: 1, A: 255})
	}
	result := BaselineDrift(img, 5, 2) // anchor baseline well above candidate's
	assert.False(t, result.Passed)
	assert.Equal(t, string(domain.DirectionSinking), result.Details["direction"])
}

func TestAlphaArtifact_FullyOpaqueImageHasNoArtifacts(t *testing.T) {
	img := square(8, color.NRGBA{R: 1, G: 1, B: 1, A: 255})
	result := AlphaArtifact(img, 0.1)
	assert.True(t, result.Passed)
	assert.Equal(t, 1.0, result.Score)
}

func TestPixelNoise_SingleBlockHasNoOrphans(t *testing.T) {
	img := square(8, color.NRGBA{R: 1, G: 1, B: 1, A: 255})
	result := PixelNoise(img, 0.1)
	assert.True(t, result.Passed)
	assert.Equal(t, 1.0, result.Score)
}

func TestPixelNoise_IsolatedSpecksCountAsOrphans(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 2; y < 8; y++ {
		for x := 2; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 1, G: 1, B: 1, A: 255})
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 1, B: 1, A: 255}) // orphan speck
	result := PixelNoise(img, 0.3)
	assert.Equal(t, 2, result.Details["components"])
	assert.Equal(t, 1, result.Details["orphans"])
}

func TestComposite_WeightedMeanOfScores(t *testing.T) {
	scores := map[string]float64{"identity": 1.0, "palette": 0.5}
	weights := map[string]float64{"identity": 0.8, "palette": 0.2}
	got, err := Composite(scores, weights, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got, 1e-9)
}

func TestComposite_UsesExprWhenConfigured(t *testing.T) {
	scores := map[string]float64{"identity": 0.9, "palette": 0.8}
	got, err := Composite(scores, nil, "identity*0.4 + palette*0.25")
	require.NoError(t, err)
	assert.InDelta(t, 0.56, got, 1e-9)
}

func TestComposite_ZeroWeightSumIsZero(t *testing.T) {
	got, err := Composite(map[string]float64{"identity": 1.0}, map[string]float64{}, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}
