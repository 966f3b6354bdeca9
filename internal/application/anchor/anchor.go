// Package anchor implements the Anchor Analyzer (spec §4.3): it reads the
// anchor PNG once per run and derives baseline Y, the root-zone centroid,
// the palette, and the visible bounds the rest of the pipeline compares
// every candidate against.
package anchor

import (
	"image"
	"image/png"
	"io"
	"math"
	"sort"

	"github.com/seanwinslow28/spritegen/internal/application/imageops"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// Analyze decodes the anchor PNG from r and builds its AnchorAnalysis.
// rootZoneRatio is the manifest's canvas.alignment.root_zone_ratio.
func Analyze(r io.Reader, rootZoneRatio float64, paletteTolerance, clusterTrigger int) (*domain.AnchorAnalysis, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, errors.NewSystem(errors.CodeSysIO, "decode anchor png", err)
	}
	n := imageops.ToNRGBA(img)

	baselineY, ok := imageops.BaselineY(n, imageops.AlphaThreshold)
	if !ok {
		return nil, errors.NewSystem(errors.CodeAnchorFullyTransparent, "anchor image has no opaque pixel", nil)
	}

	box, _ := imageops.BoundingBox(n, imageops.AlphaThreshold)
	bounds := domain.Bounds{Left: box.Left, Top: box.Top, Right: box.Right, Bottom: box.Bottom}

	minY := RootZoneMinY(bounds, baselineY, rootZoneRatio)
	cx, cy := imageops.WeightedCentroid(n, minY)

	palette := buildPalette(n, paletteTolerance, clusterTrigger)

	return &domain.AnchorAnalysis{
		BaselineY:        baselineY,
		RootZoneCentroid: domain.Centroid{X: cx, Y: cy},
		Palette:          palette,
		VisibleBounds:    bounds,
	}, nil
}

// RootZoneMinY computes the first row (inclusive) of the root-contact zone:
// baseline_y − floor(root_zone_ratio · visible_height).
func RootZoneMinY(bounds domain.Bounds, baselineY int, rootZoneRatio float64) int {
	h := bounds.Height()
	return baselineY - int(math.Floor(rootZoneRatio*float64(h)))
}

// buildPalette collects unique opaque (r,g,b) triples and, if there are
// more than clusterTrigger of them, clusters by Euclidean distance with the
// given tolerance, keeping the most frequent representative per cluster.
func buildPalette(n *image.NRGBA, tolerance, clusterTrigger int) []domain.RGB {
	counts := map[domain.RGB]int{}
	b := n.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := n.NRGBAAt(x, y)
			if c.A < imageops.AlphaThreshold {
				continue
			}
			counts[domain.RGB{R: c.R, G: c.G, B: c.B}]++
		}
	}

	unique := make([]domain.RGB, 0, len(counts))
	for c := range counts {
		unique = append(unique, c)
	}
	sort.Slice(unique, func(i, j int) bool {
		return counts[unique[i]] > counts[unique[j]]
	})

	if len(unique) <= clusterTrigger {
		sorted := append([]domain.RGB(nil), unique...)
		sort.Slice(sorted, func(i, j int) bool { return rgbLess(sorted[i], sorted[j]) })
		return sorted
	}

	var clusters []domain.RGB
	for _, c := range unique {
		merged := false
		for _, rep := range clusters {
			if rgbDist(c, rep) <= float64(tolerance) {
				merged = true
				break
			}
		}
		if !merged {
			clusters = append(clusters, c)
		}
	}
	sort.Slice(clusters, func(i, j int) bool { return rgbLess(clusters[i], clusters[j]) })
	return clusters
}

func rgbDist(a, b domain.RGB) float64 {
	dr := float64(int(a.R) - int(b.R))
	dg := float64(int(a.G) - int(b.G))
	db := float64(int(a.B) - int(b.B))
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

func rgbLess(a, b domain.RGB) bool {
	if a.R != b.R {
		return a.R < b.R
	}
	if a.G != b.G {
		return a.G < b.G
	}
	return a.B < b.B
}
