// Package samples persists raw biometric sample images on disk, grouped by
// identity slug. Writing replaces the slug's whole directory; the encoding
// cache rebuild walks everything back out.
package samples

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Storage writes and enumerates raw samples under a root directory, one
// subdirectory per identity slug.
type Storage struct {
	root string
}

// NewStorage creates sample storage rooted at dir.
func NewStorage(dir string) *Storage {
	return &Storage{root: dir}
}

// Replace persists the given samples under slug, discarding any samples the
// slug held before. Returns the stored file names.
func (s *Storage) Replace(slug string, payloads [][]byte) ([]string, error) {
	dir := filepath.Join(s.root, slug)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear sample directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sample directory: %w", err)
	}

	stamp := time.Now().UnixMilli()
	names := make([]string, 0, len(payloads))
	for i, payload := range payloads {
		name := fmt.Sprintf("%d_%02d.jpg", stamp, i+1)
		if err := os.WriteFile(filepath.Join(dir, name), payload, 0o600); err != nil {
			return nil, fmt.Errorf("write sample %s: %w", name, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Walk calls fn for every stored sample with its owning slug. Unreadable
// files are skipped; a slug directory with no readable samples simply
// contributes nothing.
func (s *Storage) Walk(fn func(slug string, image []byte) error) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read sample root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		slug := entry.Name()
		dir := filepath.Join(s.root, slug)

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !isImageFile(d.Name()) {
				return nil
			}
			image, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil
			}
			return fn(slug, image)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}
