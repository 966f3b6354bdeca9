package anchor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanwinslow28/spritegen/internal/domain"
)

func anchorPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	red := color.NRGBA{R: 200, G: 10, B: 10, A: 255}
	for y := 8; y < 16; y++ {
		for x := 4; x < 12; x++ {
			img.SetNRGBA(x, y, red)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAnalyze_DerivesBaselineAndBounds(t *testing.T) {
	data := anchorPNG(t)
	aa, err := Analyze(bytes.NewReader(data), 0.25, 5, 256)
	require.NoError(t, err)

	assert.Equal(t, 15, aa.BaselineY)
	assert.Equal(t, domain.Bounds{Left: 4, Top: 8, Right: 11, Bottom: 15}, aa.VisibleBounds)
	require.Len(t, aa.Palette, 1)
	assert.Equal(t, domain.RGB{R: 200, G: 10, B: 10}, aa.Palette[0])
}

func TestAnalyze_FullyTransparentImageErrors(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	_, err := Analyze(bytes.NewReader(buf.Bytes()), 0.25, 5, 256)
	assert.Error(t, err)
}

func TestRootZoneMinY_SubtractsRatioOfVisibleHeight(t *testing.T) {
	bounds := domain.Bounds{Left: 0, Top: 8, Right: 10, Bottom: 15} // height 8
	minY := RootZoneMinY(bounds, 15, 0.25)
	assert.Equal(t, 13, minY) // 15 - floor(0.25*8) = 15-2
}

func TestAnalyze_ClustersPaletteAboveTrigger(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			// every pixel a distinct near-identical shade of red
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(100 + (x+y)%20), G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	aa, err := Analyze(bytes.NewReader(buf.Bytes()), 0.25, 10, 4)
	require.NoError(t, err)
	assert.Less(t, len(aa.Palette), 20)
}
