// Package imageops implements the pipeline's pure RGBA pixel operations
// (spec §4.4): nearest-neighbour resize, crop/pad, bounding box, edge-pixel
// detection, and the baseline scan shared by the anchor analyzer and the
// normalizer.
package imageops

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// AlphaThreshold is the default opacity cutoff (α ≥ 128) used when a caller
// does not supply its own.
const AlphaThreshold = 128

// ToNRGBA returns img as a mutable *image.NRGBA, converting if necessary.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// Resize performs an integer-ratio nearest-neighbour resize. No
// interpolation, no new colors are ever introduced.
func Resize(img *image.NRGBA, w, h int) *image.NRGBA {
	src := img.Bounds()
	sw, sh := src.Dx(), src.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := src.Min.Y + y*sh/h
		for x := 0; x < w; x++ {
			sx := src.Min.X + x*sw/w
			out.SetNRGBA(x, y, img.NRGBAAt(sx, sy))
		}
	}
	return out
}

// FitToCanvas center-crops img if it is larger than w×h, or transparently
// pads it if smaller, returning an exact w×h image.
func FitToCanvas(img *image.NRGBA, w, h int) *image.NRGBA {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range out.Pix {
		out.Pix[i] = 0
	}

	offX := (w - sw) / 2
	offY := (h - sh) / 2

	for y := 0; y < sh; y++ {
		dy := y + offY
		if dy < 0 || dy >= h {
			continue
		}
		for x := 0; x < sw; x++ {
			dx := x + offX
			if dx < 0 || dx >= w {
				continue
			}
			out.SetNRGBA(dx, dy, img.NRGBAAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Shift translates img by (dx, dy) on a transparent background of the same
// size, used by contact-patch alignment and director-session overrides.
func Shift(img *image.NRGBA, dx, dy int) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sx, sy := x-dx, y-dy
			if sx < b.Min.X || sx >= b.Max.X || sy < b.Min.Y || sy >= b.Max.Y {
				continue
			}
			out.SetNRGBA(x, y, img.NRGBAAt(sx, sy))
		}
	}
	return out
}

// ShiftPNGBytes decodes a PNG, shifts it by (dx, dy) on a transparent
// background, and re-encodes it. Used by the director session bridge to
// apply a manual alignment override at commit time.
func ShiftPNGBytes(data []byte, dx, dy int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewSystem(errors.CodeSysIO, "decode png for shift", err)
	}
	shifted := Shift(ToNRGBA(img), dx, dy)
	var buf bytes.Buffer
	if err := png.Encode(&buf, shifted); err != nil {
		return nil, errors.NewSystem(errors.CodeSysIO, "encode shifted png", err)
	}
	return buf.Bytes(), nil
}

// BoundingBox returns the tight box of pixels with α ≥ threshold. ok is
// false if no pixel meets the threshold (fully transparent image).
func BoundingBox(img *image.NRGBA, threshold uint8) (box struct{ Left, Top, Right, Bottom int }, ok bool) {
	b := img.Bounds()
	left, top, right, bottom := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	found := false
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A >= threshold {
				found = true
				if x < left {
					left = x
				}
				if x > right {
					right = x
				}
				if y < top {
					top = y
				}
				if y > bottom {
					bottom = y
				}
			}
		}
	}
	if !found {
		return box, false
	}
	box.Left, box.Top, box.Right, box.Bottom = left, top, right, bottom
	return box, true
}

// BaselineY returns the row of the lowest opaque pixel (α ≥ threshold), i.e.
// argmax y such that some pixel in row y is opaque. ok is false if the
// image is fully transparent.
func BaselineY(img *image.NRGBA, threshold uint8) (y int, ok bool) {
	b := img.Bounds()
	for row := b.Max.Y - 1; row >= b.Min.Y; row-- {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, row).A >= threshold {
				return row, true
			}
		}
	}
	return 0, false
}

// EdgePixel is an opaque pixel that touches a transparent or out-of-bounds
// 4-neighbor.
type EdgePixel struct {
	X, Y  int
	Color color.NRGBA
}

// EdgePixels returns every opaque pixel (α ≥ threshold) that borders a
// transparent or image-edge neighbor in the 4-neighborhood.
func EdgePixels(img *image.NRGBA, threshold uint8) []EdgePixel {
	b := img.Bounds()
	var out []EdgePixel
	neighbors := [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if c.A < threshold {
				continue
			}
			isEdge := false
			for _, n := range neighbors {
				nx, ny := x+n[0], y+n[1]
				if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
					isEdge = true
					break
				}
				if img.NRGBAAt(nx, ny).A < threshold {
					isEdge = true
					break
				}
			}
			if isEdge {
				out = append(out, EdgePixel{X: x, Y: y, Color: c})
			}
		}
	}
	return out
}

// WeightedCentroid computes the alpha-weighted centroid of every pixel at
// or below minY (inclusive), i.e. within the root-contact zone.
func WeightedCentroid(img *image.NRGBA, minY int) (cx, cy float64) {
	b := img.Bounds()
	var sumW, sumX, sumY float64
	for y := minY; y < b.Max.Y; y++ {
		if y < b.Min.Y {
			continue
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			a := float64(img.NRGBAAt(x, y).A) / 255.0
			if a == 0 {
				continue
			}
			sumW += a
			sumX += a * float64(x)
			sumY += a * float64(y)
		}
	}
	if sumW == 0 {
		return 0, 0
	}
	return sumX / sumW, sumY / sumW
}

// EuclideanDistRGB returns the Euclidean distance between two RGB triples.
func EuclideanDistRGB(a, b color.NRGBA) float64 {
	dr := float64(int(a.R) - int(b.R))
	dg := float64(int(a.G) - int(b.G))
	db := float64(int(a.B) - int(b.B))
	return math.Sqrt(dr*dr + dg*dg + db*db)
}
