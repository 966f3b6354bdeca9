// Package metrics implements the metric engines (spec §4.6): identity
// (SSIM-like), palette fidelity, baseline drift, alpha artifact, pixel
// noise, the hard structural gates, and composite scoring.
package metrics

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/seanwinslow28/spritegen/internal/application/imageops"
	"github.com/seanwinslow28/spritegen/internal/application/manifest"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// ssimWindow and ssimC1/C2 freeze the Open Question in spec §9: an 11x11
// uniform window (simpler than Gaussian weights, a deliberate
// simplification — see DESIGN.md) with the standard SSIM stabilizers.
const (
	ssimWindow = 11
	ssimC1     = (0.01 * 255) * (0.01 * 255)
	ssimC2     = (0.03 * 255) * (0.03 * 255)
)

// HardGates runs the structural checks that must pass before any soft
// metric is evaluated (spec §4.6 "Hard gates"). It returns the decoded
// image on success.
func HardGates(raw []byte, targetSize int) (*image.NRGBA, []string) {
	var reasons []string

	if len(raw) < 1024 || len(raw) > 500*1024 {
		reasons = append(reasons, errors.CodeHF04BadFileSize)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, append(reasons, errors.CodeHF03NotDecodable)
	}

	n := imageops.ToNRGBA(img)
	b := n.Bounds()
	if b.Dx() != targetSize || b.Dy() != targetSize {
		reasons = append(reasons, errors.CodeHF01BadDimensions)
	}

	cm := img.ColorModel()
	if cm != image.NRGBAModel && cm != image.RGBAModel {
		reasons = append(reasons, errors.CodeHF02NotRGBA)
	}

	return n, reasons
}

// Identity computes an SSIM-like structural similarity score of candidate
// against anchor, compared over opaque regions only.
func Identity(candidate, anchorImg *image.NRGBA, threshold float64) domain.MetricResult {
	score := ssim(candidate, anchorImg)
	return domain.MetricResult{
		Score:     score,
		Threshold: threshold,
		Passed:    score >= threshold,
		Details:   map[string]interface{}{"window": ssimWindow},
	}
}

func ssim(a, b *image.NRGBA) float64 {
	bounds := a.Bounds()
	if b.Bounds().Dx() != bounds.Dx() || b.Bounds().Dy() != bounds.Dy() {
		return 0
	}
	var total float64
	var count int
	w := ssimWindow / 2

	for y := bounds.Min.Y; y < bounds.Max.Y; y += ssimWindow {
		for x := bounds.Min.X; x < bounds.Max.X; x += ssimWindow {
			ca := a.NRGBAAt(x, y)
			if ca.A < imageops.AlphaThreshold {
				continue
			}
			var sumA, sumB, sumA2, sumB2, sumAB float64
			var n float64
			for dy := -w; dy <= w; dy++ {
				for dx := -w; dx <= w; dx++ {
					px, py := x+dx, y+dy
					if px < bounds.Min.X || px >= bounds.Max.X || py < bounds.Min.Y || py >= bounds.Max.Y {
						continue
					}
					la := luminance(a.NRGBAAt(px, py))
					lb := luminance(b.NRGBAAt(px, py))
					sumA += la
					sumB += lb
					sumA2 += la * la
					sumB2 += lb * lb
					sumAB += la * lb
					n++
				}
			}
			if n == 0 {
				continue
			}
			meanA := sumA / n
			meanB := sumB / n
			varA := sumA2/n - meanA*meanA
			varB := sumB2/n - meanB*meanB
			covAB := sumAB/n - meanA*meanB

			numerator := (2*meanA*meanB + ssimC1) * (2*covAB + ssimC2)
			denominator := (meanA*meanA + meanB*meanB + ssimC1) * (varA + varB + ssimC2)
			if denominator == 0 {
				continue
			}
			total += numerator / denominator
			count++
		}
	}
	if count == 0 {
		return 0
	}
	v := total / float64(count)
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

func luminance(c color.NRGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

// PaletteFidelity returns the fraction of opaque pixels within Euclidean
// distance <=tolerance of some anchor palette color.
func PaletteFidelity(candidate *image.NRGBA, palette []domain.RGB, tolerance int, threshold float64) domain.MetricResult {
	b := candidate.Bounds()
	var opaque, matched int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := candidate.NRGBAAt(x, y)
			if c.A < imageops.AlphaThreshold {
				continue
			}
			opaque++
			for _, p := range palette {
				dr := float64(int(c.R) - int(p.R))
				dg := float64(int(c.G) - int(p.G))
				db := float64(int(c.B) - int(p.B))
				if math.Sqrt(dr*dr+dg*dg+db*db) <= float64(tolerance) {
					matched++
					break
				}
			}
		}
	}
	score := 1.0
	if opaque > 0 {
		score = float64(matched) / float64(opaque)
	}
	return domain.MetricResult{
		Score:     score,
		Threshold: threshold,
		Passed:    score >= threshold,
		Details:   map[string]interface{}{"opaque_pixels": opaque, "matched_pixels": matched},
	}
}

// BaselineDrift computes signed drift of candidate's baseline vs. the
// anchor's and classifies its direction.
func BaselineDrift(candidate *image.NRGBA, anchorBaselineY, maxDriftPx int) domain.MetricResult {
	candidateBaselineY, ok := imageops.BaselineY(candidate, imageops.AlphaThreshold)
	if !ok {
		return domain.MetricResult{Score: 0, Threshold: float64(maxDriftPx), Passed: false,
			Details: map[string]interface{}{"direction": "unknown"}}
	}
	drift := candidateBaselineY - anchorBaselineY
	direction := domain.DirectionAligned
	if drift > 0 {
		direction = domain.DirectionSinking
	} else if drift < 0 {
		direction = domain.DirectionFloating
	}
	passed := absInt(drift) <= maxDriftPx
	score := 1.0
	if maxDriftPx > 0 {
		score = 1.0 - math.Min(1.0, float64(absInt(drift))/float64(maxDriftPx*4))
	}
	return domain.MetricResult{
		Score:     score,
		Threshold: float64(maxDriftPx),
		Passed:    passed,
		Details: map[string]interface{}{
			"drift_px":  drift,
			"direction": string(direction),
		},
	}
}

// AlphaArtifact classifies every edge pixel as halo or fringe and computes
// the composite severity = 0.6*halo + 0.4*fringe.
func AlphaArtifact(candidate *image.NRGBA, threshold float64) domain.MetricResult {
	edges := imageops.EdgePixels(candidate, imageops.AlphaThreshold)
	if len(edges) == 0 {
		return domain.MetricResult{Score: 1, Threshold: threshold, Passed: true,
			Details: map[string]interface{}{"edge_count": 0}}
	}

	chromaKeys := []color.NRGBA{
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 0, B: 255, A: 255},
		{R: 0, G: 255, B: 255, A: 255},
	}

	var halo, fringe int
	for _, e := range edges {
		if e.Color.A < 255 && e.Color.A > 0 {
			if luminance(e.Color) > nearestOpaqueLuminance(candidate, e.X, e.Y) {
				halo++
				continue
			}
		}
		for _, key := range chromaKeys {
			dr := float64(int(e.Color.R) - int(key.R))
			dg := float64(int(e.Color.G) - int(key.G))
			db := float64(int(e.Color.B) - int(key.B))
			if math.Sqrt(dr*dr+dg*dg+db*db) < 50 {
				fringe++
				break
			}
		}
	}

	haloSeverity := float64(halo) / float64(len(edges))
	fringeSeverity := float64(fringe) / float64(len(edges))
	composite := 0.6*haloSeverity + 0.4*fringeSeverity

	return domain.MetricResult{
		Score:     1 - composite,
		Threshold: threshold,
		Passed:    composite <= threshold,
		Details: map[string]interface{}{
			"edge_count":      len(edges),
			"halo_count":      halo,
			"fringe_count":    fringe,
			"halo_severity":   haloSeverity,
			"fringe_severity": fringeSeverity,
		},
	}
}

func nearestOpaqueLuminance(img *image.NRGBA, x, y int) float64 {
	b := img.Bounds()
	best := math.Inf(1)
	var bestLum float64
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			px, py := x+dx, y+dy
			if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
				continue
			}
			c := img.NRGBAAt(px, py)
			if c.A < 255 {
				continue
			}
			d := math.Sqrt(float64(dx*dx + dy*dy))
			if d < best {
				best = d
				bestLum = luminance(c)
			}
		}
	}
	return bestLum
}

// PixelNoise counts connected components of opaque pixels and reports
// orphan components (area <=2) as noise.
func PixelNoise(candidate *image.NRGBA, threshold float64) domain.MetricResult {
	b := candidate.Bounds()
	visited := make(map[[2]int]bool)
	var orphans, total int

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if candidate.NRGBAAt(x, y).A < imageops.AlphaThreshold {
				continue
			}
			p := [2]int{x, y}
			if visited[p] {
				continue
			}
			area := floodFill(candidate, b, x, y, visited)
			total++
			if area <= 2 {
				orphans++
			}
		}
	}

	score := 1.0
	if total > 0 {
		score = 1.0 - float64(orphans)/float64(total)
	}
	return domain.MetricResult{
		Score:     score,
		Threshold: threshold,
		Passed:    score >= (1 - threshold),
		Details:   map[string]interface{}{"components": total, "orphans": orphans},
	}
}

func floodFill(img *image.NRGBA, b image.Rectangle, startX, startY int, visited map[[2]int]bool) int {
	stack := [][2]int{{startX, startY}}
	area := 0
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[p] {
			continue
		}
		x, y := p[0], p[1]
		if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
			continue
		}
		if img.NRGBAAt(x, y).A < imageops.AlphaThreshold {
			continue
		}
		visited[p] = true
		area++
		stack = append(stack,
			[2]int{x + 1, y}, [2]int{x - 1, y},
			[2]int{x, y + 1}, [2]int{x, y - 1},
		)
	}
	return area
}

// Composite computes the weighted mean of normalized metric scores. If
// compositeExpr is set, it is compiled and evaluated instead of the plain
// weighted mean (spec §2 DOMAIN STACK expr-lang wiring).
func Composite(scores map[string]float64, weights map[string]float64, compositeExpr string) (float64, error) {
	if compositeExpr != "" {
		env := make(map[string]interface{}, len(scores))
		for k, v := range scores {
			env[k] = v
		}
		return manifest.EvaluateScoreExpr(compositeExpr, env)
	}
	var sum, weightSum float64
	for name, score := range scores {
		w := weights[name]
		sum += score * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0, nil
	}
	return sum / weightSum, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
