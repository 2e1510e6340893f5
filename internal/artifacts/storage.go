// Package artifacts persists uploaded archives on disk, keyed by package
// name and version.
package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no artifact exists for the given key.
var ErrNotFound = errors.New("artifact not found")

// Store writes and reads archive bytes under a base directory. The key
// format is a compatibility surface: external tooling inspects the data
// directory by `{name}-{version}.zip` names.
type Store struct {
	baseDir string
}

// New creates a store rooted at baseDir. The directory is created lazily
// on first write.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Key returns the artifact file name for a name/version pair. Callers must
// have validated the name charset; the version string comes from a parsed
// semantic version.
func Key(name, version string) string {
	return fmt.Sprintf("%s-%s.zip", name, version)
}

// Write persists the archive bytes. A concurrent or repeated write for the
// same key is not interlocked: last write wins.
func (s *Store) Write(name, version string, data []byte) error {
	if err := os.MkdirAll(s.baseDir, 0750); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.baseDir, Key(name, version)), data, 0600); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// Read returns the stored bytes for a key, or ErrNotFound.
func (s *Store) Read(name, version string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, Key(name, version)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}
