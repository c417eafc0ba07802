package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StateStore persists the last delivered artifact ID per target key, so
// a restarted watcher does not redownload artifacts it already unpacked.
type StateStore struct {
	path string

	mu   sync.Mutex
	last map[string]int64
}

// NewStateStore loads the state file at path, creating an empty store
// when the file does not exist yet.
func NewStateStore(path string) (*StateStore, error) {
	s := &StateStore{
		path: path,
		last: make(map[string]int64),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.last); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}

	return s, nil
}

// Get returns the last delivered artifact ID for a target key, or 0.
func (s *StateStore) Get(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[key]
}

// Set records the artifact ID for a target key and saves the file.
func (s *StateStore) Set(key string, artifactID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last[key] = artifactID
	return s.save()
}

// save writes the state through a temp file and renames it into place.
func (s *StateStore) save() error {
	data, err := json.Marshal(s.last)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
