package imageops

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// opaqueSquare returns a size×size transparent canvas with an opaque
// red square of the given width/height in the bottom-right corner.
func opaqueSquare(size, squareW, squareH int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	red := color.NRGBA{R: 200, G: 0, B: 0, A: 255}
	for y := size - squareH; y < size; y++ {
		for x := size - squareW; x < size; x++ {
			img.SetNRGBA(x, y, red)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBoundingBox_FindsTheOpaqueRegion(t *testing.T) {
	img := opaqueSquare(10, 4, 4)
	box, ok := BoundingBox(img, AlphaThreshold)
	require.True(t, ok)
	assert.Equal(t, 6, box.Left)
	assert.Equal(t, 6, box.Top)
	assert.Equal(t, 9, box.Right)
	assert.Equal(t, 9, box.Bottom)
}

func TestBoundingBox_FullyTransparentImageReportsNotOK(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 5, 5))
	_, ok := BoundingBox(img, AlphaThreshold)
	assert.False(t, ok)
}

func TestBaselineY_ReturnsLowestOpaqueRow(t *testing.T) {
	img := opaqueSquare(10, 4, 4)
	y, ok := BaselineY(img, AlphaThreshold)
	require.True(t, ok)
	assert.Equal(t, 9, y)
}

func TestShift_TranslatesPixelsOnATransparentBackground(t *testing.T) {
	img := opaqueSquare(10, 2, 2) // opaque at (8,8)-(9,9)
	shifted := Shift(img, -8, -8) // move the square to the top-left corner
	box, ok := BoundingBox(shifted, AlphaThreshold)
	require.True(t, ok)
	assert.Equal(t, 0, box.Left)
	assert.Equal(t, 0, box.Top)
	assert.Equal(t, 1, box.Right)
	assert.Equal(t, 1, box.Bottom)
}

func TestShiftPNGBytes_RoundTripsThroughPNGEncoding(t *testing.T) {
	img := opaqueSquare(10, 2, 2)
	data := encodePNG(t, img)

	shiftedData, err := ShiftPNGBytes(data, -8, -8)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(shiftedData))
	require.NoError(t, err)
	box, ok := BoundingBox(ToNRGBA(decoded), AlphaThreshold)
	require.True(t, ok)
	assert.Equal(t, 0, box.Left)
	assert.Equal(t, 0, box.Top)
}

func TestShiftPNGBytes_MalformedInputErrors(t *testing.T) {
	_, err := ShiftPNGBytes([]byte("not a png"), 1, 1)
	assert.Error(t, err)
}

func TestFitToCanvas_PadsASmallerImageOntoATransparentCanvas(t *testing.T) {
	img := opaqueSquare(4, 4, 4) // fully opaque 4x4
	out := FitToCanvas(img, 8, 8)
	assert.Equal(t, 8, out.Bounds().Dx())
	assert.Equal(t, 8, out.Bounds().Dy())
	// centered: offset (8-4)/2 = 2
	assert.Equal(t, uint8(255), out.NRGBAAt(2, 2).A)
	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).A)
}

func TestResize_NeverIntroducesNewColors(t *testing.T) {
	img := opaqueSquare(4, 4, 4)
	out := Resize(img, 8, 8)
	seen := map[color.NRGBA]bool{}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			seen[img.NRGBAAt(x, y)] = true
		}
	}
	ob := out.Bounds()
	for y := ob.Min.Y; y < ob.Max.Y; y++ {
		for x := ob.Min.X; x < ob.Max.X; x++ {
			assert.True(t, seen[out.NRGBAAt(x, y)])
		}
	}
}

func TestWeightedCentroid_OfAUniformSquareIsItsCenter(t *testing.T) {
	img := opaqueSquare(10, 4, 4) // opaque (6,6)-(9,9)
	cx, cy := WeightedCentroid(img, 0)
	assert.InDelta(t, 7.5, cx, 0.01)
	assert.InDelta(t, 7.5, cy, 0.01)
}

func TestWeightedCentroid_FullyTransparentIsZero(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 5, 5))
	cx, cy := WeightedCentroid(img, 0)
	assert.Equal(t, 0.0, cx)
	assert.Equal(t, 0.0, cy)
}

func TestEuclideanDistRGB(t *testing.T) {
	a := color.NRGBA{R: 0, G: 0, B: 0, A: 255}
	b := color.NRGBA{R: 3, G: 4, B: 0, A: 255}
	assert.InDelta(t, 5.0, EuclideanDistRGB(a, b), 1e-9)
}
