package callnum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore persists the pool as a JSON string array, the layout the
// operations tooling edits by hand when a study needs a custom pool.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path. Parent directories are
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) ([]string, bool, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read pool file: %w", err)
	}

	var numbers []string
	if err := json.Unmarshal(b, &numbers); err != nil {
		return nil, false, fmt.Errorf("parse pool file %s: %w", s.path, err)
	}
	return numbers, true, nil
}

// Save writes the pool through a temp file and rename, so a crash mid-write
// never leaves a truncated pool behind.
func (s *FileStore) Save(ctx context.Context, numbers []string) error {
	if numbers == nil {
		numbers = []string{}
	}
	b, err := json.Marshal(numbers)
	if err != nil {
		return fmt.Errorf("encode pool: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pool dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write pool file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace pool file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
