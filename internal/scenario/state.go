// internal/scenario/state.go
package scenario

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// EnvVar carries the state file path to the test runner and its scripts.
const EnvVar = "REGRESS_SCENARIO_STATE"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State is the key-value context shared by the scripts of one scenario run.
// Values are raw JSON so scripts can store any serializable value.
type State struct {
	mu     sync.RWMutex
	values map[string]jsoniter.RawMessage
}

// New returns an empty state.
func New() *State {
	return &State{values: make(map[string]jsoniter.RawMessage)}
}

// Get decodes the value under key into out. It reports false when the key is absent.
func (s *State) Get(key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("scenario value %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key, replacing any previous value.
func (s *State) Set(key string, value any) error {
	if key == "" {
		return errors.New("scenario key must not be empty")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("scenario value %q: %w", key, err)
	}
	s.mu.Lock()
	s.values[key] = raw
	s.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *State) Delete(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// Keys returns the stored keys in sorted order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Load reads a state file. A missing file yields an empty state.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to read scenario state %s: %w", path, err)
	}
	s := New()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("scenario state %s is corrupt: %w", path, err)
	}
	if s.values == nil {
		s.values = make(map[string]jsoniter.RawMessage)
	}
	return s, nil
}

// Save writes the state to path as a JSON object.
func (s *State) Save(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.values, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode scenario state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create scenario state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario state %s: %w", path, err)
	}
	return nil
}

// Fresh writes an empty state to path, discarding whatever a previous run left.
func Fresh(path string) (*State, error) {
	s := New()
	if err := s.Save(path); err != nil {
		return nil, err
	}
	return s, nil
}
