package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

func writeApprovedFrame(t *testing.T, dir string, idx int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 1, G: 1, B: 1, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame_0000.png"), buf.Bytes(), 0o644))
	_ = idx
}

func TestPrepare_StagesApprovedFramesWithZeroPaddedNames(t *testing.T) {
	approvedDir := t.TempDir()
	writeApprovedFrame(t, approvedDir, 0)

	s := store.New(t.TempDir())
	stagingDir, err := Prepare(s, approvedDir, "walk", []int{0})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(stagingDir, "0000.png"))
	assert.NoError(t, err)

	mappingData, err := os.ReadFile(filepath.Join(stagingDir, "frame_mapping.json"))
	require.NoError(t, err)
	var mapping FrameMapping
	require.NoError(t, json.Unmarshal(mappingData, &mapping))
	assert.Equal(t, "walk", mapping.MoveID)
	assert.Len(t, mapping.Frames, 1)
}

func TestPrepare_MissingApprovedFrameErrors(t *testing.T) {
	s := store.New(t.TempDir())
	_, err := Prepare(s, t.TempDir(), "walk", []int{0})
	assert.Error(t, err)
}

func writeAtlasJSON(t *testing.T, dir string, frameKeys []string) string {
	t.Helper()
	frames := map[string]interface{}{}
	for _, k := range frameKeys {
		frames[k] = map[string]interface{}{"format": "RGBA8888", "scale": "1", "rotated": false}
		pngPath := filepath.Join(dir, k+".png")
		require.NoError(t, os.MkdirAll(filepath.Dir(pngPath), 0o755))
		require.NoError(t, os.WriteFile(pngPath, []byte("fake"), 0o644))
	}
	path := filepath.Join(dir, "atlas.json")
	data, err := json.Marshal(map[string]interface{}{"frames": frames})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestValidate_AcceptsAWellFormedSingleAtlas(t *testing.T) {
	dir := t.TempDir()
	path := writeAtlasJSON(t, dir, []string{"walk/0000", "walk/0001"})
	assert.NoError(t, Validate(path, 2, "walk"))
}

func TestValidate_RejectsWrongFrameCount(t *testing.T) {
	dir := t.TempDir()
	path := writeAtlasJSON(t, dir, []string{"walk/0000"})
	assert.Error(t, Validate(path, 2, "walk"))
}

func TestValidate_RejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atlas.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	assert.Error(t, Validate(path, 1, "walk"))
}

func TestValidate_RejectsKeysBelongingToADifferentMove(t *testing.T) {
	dir := t.TempDir()
	path := writeAtlasJSON(t, dir, []string{"other_move/0000", "other_move/0001"})
	assert.Error(t, Validate(path, 2, "walk"))
}

func stageNFrames(t *testing.T, n, size int) string {
	t.Helper()
	dir := t.TempDir()
	// Each frame gets its own fill color so no two files are identical, and
	// is stored uncompressed so it clears the 1 KB file-size floor at size 32.
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	for i := 0; i < n; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: uint8(1 + i), G: 1, B: 1, A: 255})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, enc.Encode(&buf, img))
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("%04d.png", i)), buf.Bytes(), 0o644))
	}
	return dir
}

func TestRunChecklist_PassesAContiguousWellFormedStagingDir(t *testing.T) {
	dir := stageNFrames(t, 3, 32)
	results, ok := RunChecklist(dir, 3, 32)
	assert.True(t, ok)
	byName := map[string]ChecklistResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.True(t, byName["frame_count"].Passed)
	assert.True(t, byName["contiguous_sequence_from_zero"].Passed)
	assert.True(t, byName["exact_dimensions"].Passed)
}

func TestRunChecklist_FailsOnWrongFrameCount(t *testing.T) {
	dir := stageNFrames(t, 2, 8)
	_, ok := RunChecklist(dir, 3, 8)
	assert.False(t, ok)
}

func TestRunChecklist_FailsOnDuplicateFrameContent(t *testing.T) {
	dir := stageNFrames(t, 2, 8)
	// overwrite frame 1 with frame 0's exact bytes to create a duplicate.
	data, err := os.ReadFile(filepath.Join(dir, "0000.png"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001.png"), data, 0o644))
	results, ok := RunChecklist(dir, 2, 8)
	assert.False(t, ok)
	for _, r := range results {
		if r.Name == "no_duplicate_frames" {
			assert.False(t, r.Passed)
		}
	}
}

func TestRunChecklist_UnreadableStagingDirIsACriticalFailure(t *testing.T) {
	results, ok := RunChecklist(filepath.Join(t.TempDir(), "does-not-exist"), 1, 8)
	assert.False(t, ok)
	require.Len(t, results, 1)
	assert.True(t, results[0].Critical)
}

func TestPack_CapturesOutputAndSucceedsOnExitZero(t *testing.T) {
	s := store.New(t.TempDir())
	err := Pack(context.Background(), s, "true", t.TempDir(), filepath.Join(t.TempDir(), "out"), nil)
	assert.NoError(t, err)
	logData, rerr := s.Read(s.Path("logs", "texturepacker.log"))
	assert.NoError(t, rerr)
	_ = logData
}

func TestPack_ReturnsADependencyErrorOnNonZeroExit(t *testing.T) {
	s := store.New(t.TempDir())
	err := Pack(context.Background(), s, "false", t.TempDir(), filepath.Join(t.TempDir(), "out"), nil)
	assert.Error(t, err)
}
