// Package normalizer implements the strictly-ordered four-step pipeline
// (spec §4.5) that turns a 512px raw candidate into an exact-size
// pixel-art frame: contact-patch alignment, downsample, transparency
// enforcement, canvas fit. Order is a contract, not an optimization.
package normalizer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"time"

	"github.com/seanwinslow28/spritegen/internal/application/imageops"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// SoftWarnDurationMS is the total-duration threshold above which the
// normalizer logs a soft warning, never a failure (spec §4.5).
const SoftWarnDurationMS = 2000

// StepResult records one pipeline step's timing and outcome.
type StepResult struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Details    string `json:"details,omitempty"`
}

// Alignment describes the shift contact-patch alignment applied.
type Alignment struct {
	ShiftX  int  `json:"shift_x"`
	ShiftY  int  `json:"shift_y"`
	Clamped bool `json:"clamped"`
}

// Dimensions records before/after image size.
type Dimensions struct {
	Original string `json:"original"`
	Final    string `json:"final"`
}

// Result is the normalizer's full output record.
type Result struct {
	InputPath        string       `json:"input_path"`
	OutputPath       string       `json:"output_path"`
	ProcessingSteps  []StepResult `json:"processing_steps"`
	DurationMS       int64        `json:"duration_ms"`
	AlignmentApplied Alignment    `json:"alignment_applied"`
	Dimensions       Dimensions   `json:"dimensions"`
	SoftWarning      bool         `json:"soft_warning"`
}

// Params carries the manifest-derived configuration the normalizer needs.
type Params struct {
	GenerationSize int
	TargetSize     int
	VerticalLock   bool
	RootZoneRatio  float64
	MaxShiftX      int
}

// Normalize runs the four ordered steps over raw candidate bytes and
// returns the normalized PNG bytes alongside the Result record.
func Normalize(raw []byte, anchor *domain.AnchorAnalysis, p Params) ([]byte, *Result, error) {
	start := time.Now()
	res := &Result{Dimensions: Dimensions{Original: dim(p.GenerationSize, p.GenerationSize)}}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, errors.NewSystem(errors.CodeSysIO, "decode candidate png", err)
	}
	n := imageops.ToNRGBA(img)

	// Step 1: contact-patch alignment at generation resolution.
	stepStart := time.Now()
	aligned, align := alignContactPatch(n, anchor, p)
	res.ProcessingSteps = append(res.ProcessingSteps, StepResult{
		Name: "contact_patch_alignment", DurationMS: ms(stepStart), Success: true,
	})
	res.AlignmentApplied = align

	// Step 2: downsample 512 -> target_size, nearest-neighbour, integer ratio.
	stepStart = time.Now()
	downsampled := imageops.Resize(aligned, p.TargetSize, p.TargetSize)
	res.ProcessingSteps = append(res.ProcessingSteps, StepResult{
		Name: "downsample", DurationMS: ms(stepStart), Success: true,
	})

	// Step 3: transparency enforcement.
	stepStart = time.Now()
	cleaned, fringeRemoved := enforceTransparency(downsampled)
	res.ProcessingSteps = append(res.ProcessingSteps, StepResult{
		Name: "transparency_enforcement", DurationMS: ms(stepStart), Success: true,
		Details: fringeDetail(fringeRemoved),
	})

	// Step 4: canvas fit to exact target_size x target_size.
	stepStart = time.Now()
	fitted := imageops.FitToCanvas(cleaned, p.TargetSize, p.TargetSize)
	res.ProcessingSteps = append(res.ProcessingSteps, StepResult{
		Name: "canvas_fit", DurationMS: ms(stepStart), Success: true,
	})

	res.Dimensions.Final = dim(p.TargetSize, p.TargetSize)
	res.DurationMS = ms(start)
	res.SoftWarning = res.DurationMS > SoftWarnDurationMS

	var buf bytes.Buffer
	if err := png.Encode(&buf, fitted); err != nil {
		return nil, nil, errors.NewSystem(errors.CodeSysIO, "encode normalized png", err)
	}
	return buf.Bytes(), res, nil
}

func alignContactPatch(n *image.NRGBA, anchor *domain.AnchorAnalysis, p Params) (*image.NRGBA, Alignment) {
	baselineY, ok := imageops.BaselineY(n, imageops.AlphaThreshold)
	if !ok {
		return n, Alignment{}
	}
	box, _ := imageops.BoundingBox(n, imageops.AlphaThreshold)
	bounds := domain.Bounds{Left: box.Left, Top: box.Top, Right: box.Right, Bottom: box.Bottom}
	minY := baselineY - int(p.RootZoneRatio*float64(bounds.Height()))
	cx, cy := imageops.WeightedCentroid(n, minY)

	shiftX := int(anchor.RootZoneCentroid.X - cx)
	shiftY := int(anchor.RootZoneCentroid.Y - cy)

	clamped := false
	if shiftX > p.MaxShiftX {
		shiftX = p.MaxShiftX
		clamped = true
	} else if shiftX < -p.MaxShiftX {
		shiftX = -p.MaxShiftX
		clamped = true
	}

	if p.VerticalLock {
		shiftY = anchor.BaselineY - baselineY
	}

	shifted := imageops.Shift(n, shiftX, shiftY)
	return shifted, Alignment{ShiftX: shiftX, ShiftY: shiftY, Clamped: clamped}
}

// enforceTransparency clears pixels matching common chroma-key colors
// (green, magenta, cyan), returning the cleaned image and the number of
// pixels cleared. It does not check whether the alpha channel is uniformly
// opaque.
func enforceTransparency(n *image.NRGBA) (*image.NRGBA, int) {
	out := imageops.ToNRGBA(n)
	chromaKeys := []color.NRGBA{
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 0, B: 255, A: 255},
		{R: 0, G: 255, B: 255, A: 255},
	}
	b := out.Bounds()
	removed := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := out.NRGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			for _, key := range chromaKeys {
				if imageops.EuclideanDistRGB(c, key) < 50 {
					out.SetNRGBA(x, y, color.NRGBA{})
					removed++
					break
				}
			}
		}
	}
	return out, removed
}

func ms(since time.Time) int64 {
	return time.Since(since).Milliseconds()
}

func dim(w, h int) string {
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}

func fringeDetail(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n) + " chroma-key pixels cleared"
}
