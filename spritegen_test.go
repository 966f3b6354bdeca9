package spritegen

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

	"github.com/seanwinslow28/spritegen/internal/application/export"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
)

// stageApprovedFrames writes n noisy (poorly-compressible, so each file
// clears the checklist's minimum-size floor) approved PNG frames of the
// given size, each with distinct pixel data so no two hash as duplicates.
func stageApprovedFrames(t *testing.T, n, size int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				img.SetNRGBA(x, y, color.NRGBA{
					R: byte((x*73 + y*151 + i*211) ^ 0x5A),
					G: byte((x*29 + y*83 + i*97) ^ 0x33),
					B: byte((x ^ y ^ i) * 197),
					A: 255,
				})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i)), buf.Bytes(), 0o644))
	}
	return dir
}

// fakePacker writes a well-formed single-page atlas JSON, an empty sheet
// file, and a stub PNG per frame key (Validate checks each key resolves to
// an on-disk PNG) at the --data/--sheet paths it is invoked with, standing
// in for a real TexturePacker binary.
func fakePacker(t *testing.T, moveID string, frameIndices []int) string {
	t.Helper()
	frames := map[string]interface{}{}
	var touchKeys string
	for _, idx := range frameIndices {
		frames[fmt.Sprintf("%s/%04d", moveID, idx)] = map[string]interface{}{
			"format": "RGBA8888", "scale": "1", "rotated": false,
		}
		touchKeys += fmt.Sprintf("    mkdir -p \"$dir/%s\"\n    touch \"$dir/%s/%04d.png\"\n", moveID, moveID, idx)
	}
	atlas, err := json.Marshal(map[string]interface{}{"frames": frames})
	require.NoError(t, err)

	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-packer.sh")
	script := "#!/bin/sh\n" +
		"for i in $(seq 1 $#); do\n" +
		"  eval arg=\\${$i}\n" +
		"  if [ \"$prev\" = \"--data\" ]; then\n" +
		"    echo '" + string(atlas) + "' > \"$arg\"\n" +
		"    dir=$(dirname \"$arg\")\n" +
		touchKeys +
		"  fi\n" +
		"  if [ \"$prev\" = \"--sheet\" ]; then printf '' > \"$arg\"; fi\n" +
		"  prev=\"$arg\"\n" +
		"done\n"
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))
	return scriptPath
}

func TestRunExport_ReleaseReadyWhenChecklistPacksAndValidatesCleanly(t *testing.T) {
	approvedDir := stageApprovedFrames(t, 2, 64)
	s := store.New(t.TempDir())
	packer := fakePacker(t, "walk", []int{0, 1})

	result, err := RunExport(context.Background(), s, packer, approvedDir, "walk", []int{0, 1}, 64, nil, false)
	require.NoError(t, err)

	assert.Equal(t, export.ReleaseReady, result.Status)
	assert.Empty(t, result.ValidationError)
}

func TestRunExport_PendingWhenChecklistFails(t *testing.T) {
	approvedDir := stageApprovedFrames(t, 2, 64)
	s := store.New(t.TempDir())

	// targetSize deliberately mismatches the staged frames' actual size
	// (64), so the checklist's exact_dimensions check fails.
	result, err := RunExport(context.Background(), s, "true", approvedDir, "walk", []int{0, 1}, 32, nil, false)
	require.NoError(t, err)

	assert.Equal(t, export.ReleasePending, result.Status)
}

func TestRunExport_ValidationFailedWhenAtlasDoesNotMatchTheMove(t *testing.T) {
	approvedDir := stageApprovedFrames(t, 2, 64)
	s := store.New(t.TempDir())
	packer := fakePacker(t, "other_move", []int{0, 1})

	result, err := RunExport(context.Background(), s, packer, approvedDir, "walk", []int{0, 1}, 64, nil, false)
	require.NoError(t, err)

	assert.Equal(t, export.ReleaseValidationFailed, result.Status)
	assert.NotEmpty(t, result.ValidationError)
}

func TestRunExport_AllowValidationFailDowngradesToDebugOnly(t *testing.T) {
	approvedDir := stageApprovedFrames(t, 2, 64)
	s := store.New(t.TempDir())
	packer := fakePacker(t, "other_move", []int{0, 1})

	result, err := RunExport(context.Background(), s, packer, approvedDir, "walk", []int{0, 1}, 64, nil, true)
	require.NoError(t, err)

	assert.Equal(t, export.ReleaseDebugOnly, result.Status)
	assert.NotEmpty(t, result.ValidationError)
}
