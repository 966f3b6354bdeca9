package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_WriteJSON_ReadJSONValidated_RoundTrips(t *testing.T) {
	s := New(t.TempDir())
	path := s.Path("state.json")

	require.NoError(t, s.WriteJSON(path, fixture{Name: "frame", Count: 3}))

	var out fixture
	require.NoError(t, s.ReadJSONValidated(path, &out))
	assert.Equal(t, fixture{Name: "frame", Count: 3}, out)
}

func TestStore_Write_LeavesNoTempFileOnSuccess(t *testing.T) {
	s := New(t.TempDir())
	path := s.Path("manifest.lock.json")
	require.NoError(t, s.Write(path, []byte("{}")))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should not survive a successful write")
}

func TestStore_Write_PriorContentSurvivesAFailedOverwrite(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	path := s.Path("state.json")
	require.NoError(t, s.Write(path, []byte(`{"v":1}`)))

	// Simulate a crash mid-write: a stray temp file must never be picked up
	// as the real state by a subsequent Read.
	require.NoError(t, os.WriteFile(path+".tmp", []byte(`{"v":corrupt`), 0o644))

	data, err := s.Read(path)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(data))
}

func TestStore_Read_MissingFileIsSystemError(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Read(s.Path("nope.json"))
	assert.Error(t, err)
}

func TestStore_ReadJSONValidated_MalformedIsSystemError(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	path := s.Path("state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	var out fixture
	err := s.ReadJSONValidated(path, &out)
	assert.Error(t, err)
}

func TestStore_Exists(t *testing.T) {
	s := New(t.TempDir())
	assert.False(t, s.Exists(s.Path("missing.json")))
	require.NoError(t, s.Write(s.Path("present.json"), []byte("{}")))
	assert.True(t, s.Exists(s.Path("present.json")))
}

func TestStore_Path_JoinsUnderRunDir(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	assert.Equal(t, filepath.Join(dir, "approved", "frame_0001.png"), s.Path("approved", "frame_0001.png"))
}

func TestStore_Write_CreatesMissingParentDirectories(t *testing.T) {
	s := New(t.TempDir())
	path := s.Path("audit", "nested", "audit_log.jsonl")
	require.NoError(t, s.Write(path, []byte("{}\n")))
	assert.True(t, s.Exists(path))
}
