package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ciphera/internal/identity"
)

// FileStore keeps the enrollment map in a single JSON file. A missing or
// unreadable file degrades to an empty map so a node with a damaged store
// keeps answering (negatively) instead of failing requests.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (map[string]identity.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]identity.Record{}, nil
		}
		return nil, fmt.Errorf("read enrollment store: %w", err)
	}

	records := map[string]identity.Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		// Corrupt store degrades to empty rather than failing verification.
		return map[string]identity.Record{}, nil
	}
	return records, nil
}

func (s *FileStore) Save(_ context.Context, records map[string]identity.Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode enrollment store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write enrollment store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace enrollment store: %w", err)
	}
	return nil
}
