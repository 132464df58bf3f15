package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/loginwatch/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore keeps the status token in a single-row SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database at the given path, applies
// the pragmas used for small single-writer databases and ensures the
// last_status table exists.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// One writer per run; a single connection keeps SQLite from contending with itself.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires SQL statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS last_status (
			id          INTEGER  PRIMARY KEY CHECK (id = 1),
			status      TEXT     NOT NULL,
			updated_at  DATETIME NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create last_status table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Read(ctx context.Context) (models.Status, error) {
	var token string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM last_status WHERE id = 1").Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StatusSuccess, nil
	}
	if err != nil {
		return "", fmt.Errorf("query last status: %w", err)
	}
	return parse(token)
}

func (s *SQLiteStore) Write(ctx context.Context, status models.Status) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_status (id, status, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert last status: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
