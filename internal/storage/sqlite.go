package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures the media index and deletion journal tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if !isMemoryPath(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if isMemoryPath(path) {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS media_index (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  data          TEXT NOT NULL,
  collection    TEXT NOT NULL DEFAULT 'audio' CHECK(collection IN ('audio', 'files')),
  owner         TEXT NOT NULL DEFAULT '',
  display_name  TEXT NOT NULL DEFAULT '',
  size_bytes    INTEGER NOT NULL DEFAULT 0,
  mod_time      TEXT,
  fingerprint   TEXT,
  indexed_at    TEXT NOT NULL,
  UNIQUE(collection, data)
);`,
		`CREATE TABLE IF NOT EXISTS deletion_log (
  id            TEXT PRIMARY KEY,
  request_token TEXT NOT NULL,
  locator       TEXT NOT NULL,
  path          TEXT NOT NULL,
  tier          TEXT NOT NULL,
  deleted       INTEGER NOT NULL,
  partial       INTEGER NOT NULL DEFAULT 0,
  error_kind    TEXT,
  last_error    TEXT,
  report        JSON NOT NULL DEFAULT '{}',
  created_at    TEXT NOT NULL,
  completed_at  TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS media_index_data_idx ON media_index(data);`,
		`CREATE INDEX IF NOT EXISTS deletion_log_completed_at_idx ON deletion_log(completed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
