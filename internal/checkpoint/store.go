package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// Store persists the checkpoint as a single pretty-printed JSON file.
// Saves are atomic (write-temp-then-rename), so a crash never leaves a
// truncated file. The file is single-writer, single-process: running two
// pipelines against one checkpoint file is unsupported.
type Store struct {
	path string
}

// NewStore creates a checkpoint store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the checkpoint. A missing file is a first run: a zero-valued
// checkpoint is created on disk and returned. A file that exists but does
// not parse is a configuration error, never silently discarded.
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			cp := New()
			if err := s.Save(cp); err != nil {
				return nil, fmt.Errorf("failed to initialize checkpoint: %w", err)
			}
			return cp, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint file %s: %w", s.path, err)
	}
	if cp.FailedUploadIDs == nil {
		cp.FailedUploadIDs = []string{}
	}
	if cp.FailedDistribution == nil {
		cp.FailedDistribution = map[string][]string{}
	}
	return &cp, nil
}

// Save atomically writes the checkpoint to disk.
func (s *Store) Save(cp *Checkpoint) error {
	cp.normalize()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := renameio.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}
