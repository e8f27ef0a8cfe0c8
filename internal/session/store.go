// File: internal/session/store.go
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/faults"
)

// RemedyAuth is the command that (re)creates the stored session.
const RemedyAuth = "run `regress auth` to capture a session"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists a single session snapshot at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file location.
func (s *Store) Path() string { return s.path }

// Exists reports whether a snapshot has been persisted.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Load reads the stored snapshot.
func (s *Store) Load() (*schemas.StorageState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Missing("session.load", "session", RemedyAuth)
		}
		return nil, fmt.Errorf("failed to read session file %s: %w", s.path, err)
	}

	var state schemas.StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("session file %s is corrupt: %w", s.path, err)
	}
	return &state, nil
}

// Save overwrites the stored snapshot with state. The file is replaced in one
// rename so readers never observe a partial write.
func (s *Store) Save(state *schemas.StorageState) error {
	if state == nil {
		return fmt.Errorf("cannot save a nil session snapshot")
	}
	if state.Cookies == nil {
		state.Cookies = []schemas.Cookie{}
	}
	if state.Origins == nil {
		state.Origins = []schemas.OriginState{}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".auth-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush session snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to restrict session file permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session file %s: %w", s.path, err)
	}
	return nil
}
