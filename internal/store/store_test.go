package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/HerbHall/loginwatch/pkg/models"
)

// backends returns a fresh instance of every backend rooted in a temp dir.
func backends(t *testing.T) map[string]StatusStore {
	t.Helper()
	dir := t.TempDir()

	sq, err := NewSQLite(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]StatusStore{
		"file":   NewFileStore(filepath.Join(dir, "last_status.txt")),
		"sqlite": sq,
	}
}

func TestRead_fresh_environment_defaults_to_success(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Read(context.Background())
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got != models.StatusSuccess {
				t.Errorf("Read() = %q, want %q", got, models.StatusSuccess)
			}
		})
	}
}

func TestWriteRead_round_trip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, want := range models.Statuses {
				if err := s.Write(ctx, want); err != nil {
					t.Fatalf("Write(%q): %v", want, err)
				}
				got, err := s.Read(ctx)
				if err != nil {
					t.Fatalf("Read: %v", err)
				}
				if got != want {
					t.Errorf("Read() = %q, want %q", got, want)
				}
			}
		})
	}
}

func TestFileStore_trims_whitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_status.txt")
	if err := os.WriteFile(path, []byte("login_failed\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStore(path).Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != models.StatusLoginFailed {
		t.Errorf("Read() = %q, want login_failed", got)
	}
}

func TestFileStore_empty_file_defaults_to_success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_status.txt")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileStore(path).Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != models.StatusSuccess {
		t.Errorf("Read() = %q, want success", got)
	}
}

func TestFileStore_unknown_token(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_status.txt")
	if err := os.WriteFile(path, []byte("sideways"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(path).Read(context.Background()); err == nil {
		t.Error("Read() error = nil, want error for unknown token")
	}
}

func TestFileStore_write_overwrites_and_leaves_no_temp_files(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "last_status.txt"))
	ctx := context.Background()

	if err := s.Write(ctx, models.StatusUnreachable); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, models.StatusSuccess); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "success" {
		t.Errorf("file content = %q, want %q", data, "success")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1 (temp files left behind?)", len(entries))
	}
}

func TestFileStore_default_path(t *testing.T) {
	if got := NewFileStore("").Path(); got != DefaultStatePath {
		t.Errorf("Path() = %q, want %q", got, DefaultStatePath)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(BackendFile, filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("Open(file): %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("Open(file) = %T, want *FileStore", s)
	}

	s, err = Open(BackendSQLite, filepath.Join(dir, "a.db"))
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(sqlite) = %T, want *SQLiteStore", s)
	}

	if _, err := Open("redis", "x"); err == nil {
		t.Error("Open(redis) error = nil, want error")
	}
}

func TestNewSQLite_invalid_path(t *testing.T) {
	_, err := NewSQLite("/nonexistent/path/to/db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}
