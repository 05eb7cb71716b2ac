// Package state persists the daemon's cross-run state as a JSON file with
// atomic writes.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"moltd/internal/daemon"
)

// Store is a file-backed daemon.StateStore.
type Store struct {
	path string
	log  daemon.Logger
}

var _ daemon.StateStore = (*Store)(nil)

// NewStore creates a Store at path. log may be nil.
func NewStore(path string, log daemon.Logger) *Store {
	if log == nil {
		log = daemon.NewNopLogger()
	}
	return &Store{path: path, log: log}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file yields a fresh state; a
// corrupt one is logged and also yields a fresh state, so a damaged file
// degrades to a re-baseline instead of crashing the daemon.
func (s *Store) Load() (daemon.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return daemon.NewState(), nil
	}
	if err != nil {
		return daemon.State{}, fmt.Errorf("read state file: %w", err)
	}

	var st daemon.State
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn("state file is corrupt, starting fresh",
			"path", s.path, "error", err)
		return daemon.NewState(), nil
	}
	if st.Version == 0 {
		st.Version = daemon.StateVersion
	}
	return st, nil
}

// Save writes the state atomically: serialize to a temp file in the same
// directory, then rename over the target.
func (s *Store) Save(st daemon.State) error {
	st.Version = daemon.StateVersion

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}
