// Package export implements the Export Pipeline (spec §4.11): frame
// renaming, atlas-packer subprocess invocation, structural validation of
// the resulting single- or multi-page atlas, the pre-export checklist, and
// release-ready gating.
package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/seanwinslow28/spritegen/internal/application/imageops"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

var stagedNameRe = regexp.MustCompile(`^\d{4}\.png$`)

// LockedFlags is the atlas packer's locked flag set (spec §6). Operators
// may add flags that are not in this set but may never override it.
var LockedFlags = []string{
	"--format", "phaser",
	"--trim-mode", "Trim",
	"--extrude", "1",
	"--shape-padding", "2",
	"--border-padding", "2",
	"--disable-rotation",
	"--alpha-handling", "ReduceBorderArtifacts",
	"--max-size", "2048",
	"--trim-sprite-names",
	"--prepend-folder-name",
}

// PackerTimeout is the hard 120s packer subprocess timeout (spec §5).
const PackerTimeout = 120 * time.Second


// FrameMapping records how approved frame files map onto staged, renamed
// frame files.
type FrameMapping struct {
	MoveID string            `json:"move_id"`
	Frames map[string]string `json:"frames"` // staged path -> original approved path
}

// Prepare copies approved frames into {moveID}/{nnnn}.png with 4-digit
// zero-padded indices and writes frame_mapping.json.
func Prepare(s *store.Store, approvedDir, moveID string, frameIndices []int) (string, error) {
	stagingDir := s.Path("export", "staging", moveID)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", errors.NewSystem(errors.CodeSysIO, "create staging dir", err)
	}

	mapping := FrameMapping{MoveID: moveID, Frames: map[string]string{}}
	for _, idx := range frameIndices {
		srcName := fmt.Sprintf("frame_%04d.png", idx)
		src := filepath.Join(approvedDir, srcName)
		data, err := os.ReadFile(src)
		if err != nil {
			return "", errors.NewSystem(errors.CodeSysIO, "read approved frame "+src, err)
		}
		dstName := fmt.Sprintf("%04d.png", idx)
		dst := filepath.Join(stagingDir, dstName)
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return "", errors.NewSystem(errors.CodeSysIO, "write staged frame "+dst, err)
		}
		mapping.Frames[dst] = src
	}

	if err := s.WriteJSON(filepath.Join(stagingDir, "frame_mapping.json"), mapping); err != nil {
		return "", err
	}
	return stagingDir, nil
}

// Pack invokes the atlas packer subprocess with the locked flag set plus
// any operator-added flags not already in it, capturing stdout/stderr to
// logs/texturepacker.log. Approved frames are preserved on any failure.
func Pack(ctx context.Context, s *store.Store, packerBin, stagingDir, outBase string, operatorFlags []string) error {
	ctx, cancel := context.WithTimeout(ctx, PackerTimeout)
	defer cancel()

	args := append([]string{}, LockedFlags...)
	locked := map[string]bool{}
	for i := 0; i < len(LockedFlags); i++ {
		if len(LockedFlags[i]) > 2 && LockedFlags[i][:2] == "--" {
			locked[LockedFlags[i]] = true
		}
	}
	for _, f := range operatorFlags {
		if !locked[f] {
			args = append(args, f)
		}
	}
	args = append(args, "--data", outBase+".json", "--sheet", outBase+".png", stagingDir)

	cmd := exec.CommandContext(ctx, packerBin, args...)
	output, err := cmd.CombinedOutput()

	logPath := s.Path("logs", "texturepacker.log")
	_ = s.Write(logPath, output)

	if err != nil {
		return errors.NewDependency(errors.CodeDepPackerFail, "atlas packer failed: "+string(output), err, false)
	}
	return nil
}

// atlasJSON is the minimal shape needed to discriminate single vs.
// multi-atlas output and aggregate frame keys.
type atlasJSON struct {
	Frames   map[string]frameEntry `json:"frames"`
	Textures []struct {
		Frames map[string]frameEntry `json:"frames"`
	} `json:"textures"`
}

type frameEntry struct {
	Format  string `json:"format"`
	Scale   string `json:"scale"`
	Rotated bool   `json:"rotated"`
}

// Validate performs the structural check (spec §4.11): aggregates every
// frame key, asserts the set size equals frameCount, every key matches
// the move's naming pattern, every referenced PNG exists, and every frame
// entry is RGBA8888, unscaled, unrotated.
func Validate(outJSONPath string, frameCount int, moveID string) error {
	frameKeyRe := regexp.MustCompile(`^` + regexp.QuoteMeta(moveID) + `/\d{4}$`)

	data, err := os.ReadFile(outJSONPath)
	if err != nil {
		return errors.NewSystem(errors.CodeSysIO, "read atlas json", err)
	}
	var atlas atlasJSON
	if err := json.Unmarshal(data, &atlas); err != nil {
		return errors.NewSystem(errors.CodeSysCorruptedState, "invalid atlas json", err)
	}

	entries := map[string]frameEntry{}
	if len(atlas.Frames) > 0 {
		entries = atlas.Frames
	}
	for _, tex := range atlas.Textures {
		for k, v := range tex.Frames {
			entries[k] = v
		}
	}

	if len(entries) != frameCount {
		return errors.NewSystem(errors.CodeSysCorruptedState,
			fmt.Sprintf("atlas has %d frame keys, expected %d", len(entries), frameCount), nil)
	}

	dir := filepath.Dir(outJSONPath)
	for key, entry := range entries {
		if !frameKeyRe.MatchString(key) {
			return errors.NewSystem(errors.CodeSysCorruptedState, "frame key does not match pattern: "+key, nil)
		}
		pngPath := filepath.Join(dir, key+".png")
		if _, err := os.Stat(pngPath); err != nil {
			if _, err := os.Stat(filepath.Join(dir, filepath.Base(key)+".png")); err != nil {
				return errors.NewSystem(errors.CodeSysCorruptedState, "referenced png missing for key "+key, nil)
			}
		}
		if entry.Format != "RGBA8888" {
			return errors.NewSystem(errors.CodeSysCorruptedState, "frame "+key+" is not RGBA8888", nil)
		}
		if entry.Scale != "1" {
			return errors.NewSystem(errors.CodeSysCorruptedState, "frame "+key+" is scaled", nil)
		}
		if entry.Rotated {
			return errors.NewSystem(errors.CodeSysCorruptedState, "frame "+key+" is rotated", nil)
		}
	}
	return nil
}

// ChecklistResult is one of the twelve pre-export checks.
type ChecklistResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Critical bool   `json:"critical"`
	Detail   string `json:"detail,omitempty"`
}

// ReleaseStatus mirrors the four-valued release-ready gate.
type ReleaseStatus string

const (
	ReleaseReady        ReleaseStatus = "release-ready"
	ReleaseValidationFailed ReleaseStatus = "validation-failed"
	ReleaseDebugOnly    ReleaseStatus = "debug-only"
	ReleasePending       ReleaseStatus = "pending"
)

// RunChecklist runs the twelve pre-export checks over the staging
// directory. Critical failures (flagged per check) block export.
func RunChecklist(stagingDir string, frameCount, targetSize int) ([]ChecklistResult, bool) {
	var results []ChecklistResult
	allCritical := true

	files, err := os.ReadDir(stagingDir)
	if err != nil {
		return []ChecklistResult{{Name: "staging_dir_readable", Passed: false, Critical: true, Detail: err.Error()}}, false
	}

	var pngFiles []string
	strays := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if filepath.Ext(f.Name()) == ".png" {
			pngFiles = append(pngFiles, f.Name())
		} else if f.Name() != "frame_mapping.json" {
			strays++
		}
	}

	frameCountOK := len(pngFiles) == frameCount
	results = append(results, ChecklistResult{Name: "frame_count", Passed: frameCountOK, Critical: true})
	if !frameCountOK {
		allCritical = false
	}

	noStrays := strays == 0
	results = append(results, ChecklistResult{Name: "no_stray_files", Passed: noStrays, Critical: true})
	if !noStrays {
		allCritical = false
	}

	hashes := map[string][]string{}
	for _, name := range pngFiles {
		data, err := os.ReadFile(filepath.Join(stagingDir, name))
		if err != nil {
			continue
		}
		sum := sha256.Sum256(data)
		h := hex.EncodeToString(sum[:])
		hashes[h] = append(hashes[h], name)
	}
	noDupes := true
	for _, names := range hashes {
		if len(names) > 1 {
			noDupes = false
			break
		}
	}
	results = append(results, ChecklistResult{Name: "no_duplicate_frames", Passed: noDupes, Critical: true})
	if !noDupes {
		allCritical = false
	}

	contiguous := true
	for i := 0; i < frameCount; i++ {
		found := false
		for _, name := range pngFiles {
			if name == fmt.Sprintf("%04d.png", i) {
				found = true
				break
			}
		}
		if !found {
			contiguous = false
			break
		}
	}
	results = append(results, ChecklistResult{Name: "contiguous_sequence_from_zero", Passed: contiguous, Critical: true})
	if !contiguous {
		allCritical = false
	}

	var totalSize int64
	namingOK, sizeBoundsOK, dimsOK, alphaOK, decodableOK := true, true, true, true, true
	var boxes []int
	for _, name := range pngFiles {
		path := filepath.Join(stagingDir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		totalSize += info.Size()
		if info.Size() < 1024 || info.Size() > 500*1024 {
			sizeBoundsOK = false
		}
		if !stagedNameRe.MatchString(name) {
			namingOK = false
		}
		data, err := os.ReadFile(path)
		if err != nil {
			decodableOK = false
			continue
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			decodableOK = false
			continue
		}
		n := imageops.ToNRGBA(img)
		if n.Bounds().Dx() != targetSize || n.Bounds().Dy() != targetSize {
			dimsOK = false
		}
		box, ok := imageops.BoundingBox(n, imageops.AlphaThreshold)
		if !ok {
			alphaOK = false
			continue
		}
		boxes = append(boxes, (box.Right-box.Left+1)*(box.Bottom-box.Top+1))
	}

	results = append(results,
		ChecklistResult{Name: "naming_convention", Passed: namingOK, Critical: true},
		ChecklistResult{Name: "file_size_bounds", Passed: sizeBoundsOK, Critical: true},
		ChecklistResult{Name: "exact_dimensions", Passed: dimsOK, Critical: true},
		ChecklistResult{Name: "alpha_channel_present", Passed: alphaOK, Critical: true},
		ChecklistResult{Name: "image_decodable", Passed: decodableOK, Critical: true},
		ChecklistResult{Name: "32bit_rgba", Passed: decodableOK, Critical: true},
	)
	for _, ok := range []bool{namingOK, sizeBoundsOK, dimsOK, alphaOK, decodableOK} {
		if !ok {
			allCritical = false
		}
	}

	bboxVarianceOK := true
	if len(boxes) > 1 {
		min, max := boxes[0], boxes[0]
		for _, b := range boxes {
			if b < min {
				min = b
			}
			if b > max {
				max = b
			}
		}
		if max > 0 && float64(max-min)/float64(max) > 0.20 {
			bboxVarianceOK = false
		}
	}
	results = append(results, ChecklistResult{Name: "bounding_box_variance", Passed: bboxVarianceOK, Critical: false})

	sizeOK := totalSize < 50*1024*1024
	results = append(results, ChecklistResult{Name: "reasonable_total_size", Passed: sizeOK, Critical: false,
		Detail: fmt.Sprintf("%d bytes", totalSize)})

	return results, allCritical
}
