// Package store implements the pipeline's Atomic Store (spec §4.1): a
// crash-safe JSON persistence primitive used for every mutable artifact
// under a run directory (state.json, manifest.lock.json,
// anchor_analysis.json, director_session.json, summary.json).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// Store writes and reads files under a run directory with temp-then-rename
// semantics: a reader always observes either the prior content or the full
// new content, never a partial write.
type Store struct {
	runDir string
}

// New returns a Store rooted at runDir. runDir must already exist.
func New(runDir string) *Store {
	return &Store{runDir: runDir}
}

// RunDir returns the root directory this store writes under.
func (s *Store) RunDir() string { return s.runDir }

// Path joins elem onto the run directory.
func (s *Store) Path(elem ...string) string {
	return filepath.Join(append([]string{s.runDir}, elem...)...)
}

// Write atomically writes data to path: it writes to path+".tmp" in the
// same directory, fsyncs, then renames over path.
func (s *Store) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewSystem(errors.CodeSysIO, fmt.Sprintf("create dir %s", dir), err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.NewSystem(errors.CodeSysIO, fmt.Sprintf("open temp file %s", tmp), err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewSystem(errors.CodeSysPersistFailed, fmt.Sprintf("write %s", tmp), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewSystem(errors.CodeSysPersistFailed, fmt.Sprintf("fsync %s", tmp), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.NewSystem(errors.CodeSysPersistFailed, fmt.Sprintf("close %s", tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.NewSystem(errors.CodeSysPersistFailed, fmt.Sprintf("rename %s -> %s", tmp, path), err)
	}
	return nil
}

// WriteJSON canonically marshals v and atomically writes it to path.
func (s *Store) WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewSystem(errors.CodeSysIO, "marshal json for "+path, err)
	}
	return s.Write(path, data)
}

// Read returns the bytes at path, or a SYS_IO not-found failure.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewSystem(errors.CodeSysIO, "not found: "+path, err)
		}
		return nil, errors.NewSystem(errors.CodeSysIO, "read "+path, err)
	}
	return data, nil
}

// Exists reports whether path exists.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadJSONValidated reads path and unmarshals it into v. A malformed file
// is a hard SYS_CORRUPTED_STATE error the orchestrator surfaces rather than
// panicking on.
func (s *Store) ReadJSONValidated(path string, v interface{}) error {
	data, err := s.Read(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.NewSystem(errors.CodeSysCorruptedState, "invalid json in "+path, err)
	}
	return nil
}
