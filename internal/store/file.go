package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/HerbHall/loginwatch/pkg/models"
)

// DefaultStatePath is the state file used when none is configured.
const DefaultStatePath = "last_status.txt"

// FileStore keeps the status token in a plain text file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path. The file is not
// touched until the first Read or Write.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultStatePath
	}
	return &FileStore{path: path}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Read(_ context.Context) (models.Status, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.StatusSuccess, nil
	}
	if err != nil {
		return "", fmt.Errorf("read state file %q: %w", s.path, err)
	}
	return parse(strings.TrimSpace(string(data)))
}

// Write replaces the file via a temp file and rename, so a concurrent reader
// sees either the previous token or the new one.
func (s *FileStore) Write(_ context.Context, status models.Status) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".last_status-*")
	if err != nil {
		return fmt.Errorf("create temp state file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(string(status)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file %q: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
