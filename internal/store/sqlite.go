package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS sites (
		identifier TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		monitoring BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS monitors (
		id TEXT NOT NULL,
		site_identifier TEXT NOT NULL REFERENCES sites(identifier) ON DELETE CASCADE,
		type TEXT NOT NULL,
		check_interval_ms INTEGER NOT NULL DEFAULT 300000,
		timeout_ms INTEGER NOT NULL DEFAULT 10000,
		retry_attempts INTEGER NOT NULL DEFAULT 3,
		monitoring BOOLEAN NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'pending',
		response_time INTEGER NOT NULL DEFAULT -1,
		last_error TEXT NOT NULL DEFAULT '',
		last_checked INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL DEFAULT '',
		port INTEGER NOT NULL DEFAULT 0,
		active_operations_json TEXT NOT NULL DEFAULT '[]',
		sort_order INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (site_identifier, id)
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site_identifier TEXT NOT NULL,
		monitor_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		response_time INTEGER NOT NULL DEFAULT 0,
		details TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (site_identifier, monitor_id) REFERENCES monitors(site_identifier, id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_monitor ON history (site_identifier, monitor_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS settings (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS stats (key TEXT PRIMARY KEY, value INTEGER NOT NULL DEFAULT 0)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT ''
	)`,
}

// NewSQLite opens the database file at path. Use ":memory:" for a throwaway
// database.
func NewSQLite(path string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases alive for the life of the store.
	db.SetMaxOpenConns(1)
	return newSQLStore(db, dialect{driver: "sqlite3", schema: sqliteSchema, backup: sqliteBackup}, path, logger), nil
}

func sqliteBackup(ctx context.Context, s *SQLStore) (BackupFile, error) {
	dir, err := os.MkdirTemp("", "uptime-watcher-backup-")
	if err != nil {
		return BackupFile{}, fmt.Errorf("store: backup: %w", err)
	}
	defer os.RemoveAll(dir)

	now := s.now().UTC()
	name := fmt.Sprintf("uptime-watcher-backup-%s.sqlite", now.Format("20060102-150405"))
	target := filepath.Join(dir, name)
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, target); err != nil {
		return BackupFile{}, fmt.Errorf("store: vacuum into: %w", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return BackupFile{}, fmt.Errorf("store: read backup: %w", err)
	}
	s.logger.Info("sqlite backup created", "file", name, "bytes", len(data), "took", time.Since(now))
	return BackupFile{Data: data, FileName: name, OriginalPath: s.path, CreatedAt: now}, nil
}
