package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists artifacts as JSON on local disk. A reloaded artifact
// reproduces scores identically without retraining.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed artifact store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the artifact atomically via a temp-file rename.
func (s *FileStore) Save(a *Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid artifact: %w", err)
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace artifact: %w", err)
	}
	return nil
}

// Load reads and validates the persisted artifact.
// Returns os.ErrNotExist when no artifact has been saved.
func (s *FileStore) Load() (*Artifact, error) {
	body, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("malformed artifact %s: %w", s.path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("malformed artifact %s: %w", s.path, err)
	}
	return &a, nil
}
