// Package store persists the last reported login status between runs.
//
// Exactly one status token is kept per location. Two backends exist: a plain
// text file (the default, compatible with existing deployments) and a
// single-row SQLite table for hosts that already keep state in SQLite.
package store

import (
	"context"
	"fmt"

	"github.com/HerbHall/loginwatch/pkg/models"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// StatusStore reads and writes the single persisted status token.
type StatusStore interface {
	// Read returns the stored status, or models.StatusSuccess when nothing
	// has been stored yet.
	Read(ctx context.Context) (models.Status, error)
	// Write overwrites the stored status.
	Write(ctx context.Context, status models.Status) error
	Close() error
}

// Compile-time interface guards.
var (
	_ StatusStore = (*FileStore)(nil)
	_ StatusStore = (*SQLiteStore)(nil)
)

// Open returns the backend named by backend, rooted at path.
func Open(backend, path string) (StatusStore, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path), nil
	case BackendSQLite:
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q: must be %q or %q", backend, BackendFile, BackendSQLite)
	}
}

// parse maps a stored token to a status. An empty token counts as absent.
func parse(token string) (models.Status, error) {
	if token == "" {
		return models.StatusSuccess, nil
	}
	st, err := models.ParseStatus(token)
	if err != nil {
		return "", fmt.Errorf("stored state: %w", err)
	}
	return st, nil
}
