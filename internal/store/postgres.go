package store

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS sites (
		identifier TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		monitoring BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS monitors (
		id TEXT NOT NULL,
		site_identifier TEXT NOT NULL REFERENCES sites(identifier) ON DELETE CASCADE,
		type TEXT NOT NULL,
		check_interval_ms INTEGER NOT NULL DEFAULT 300000,
		timeout_ms INTEGER NOT NULL DEFAULT 10000,
		retry_attempts INTEGER NOT NULL DEFAULT 3,
		monitoring BOOLEAN NOT NULL DEFAULT TRUE,
		status TEXT NOT NULL DEFAULT 'pending',
		response_time BIGINT NOT NULL DEFAULT -1,
		last_error TEXT NOT NULL DEFAULT '',
		last_checked BIGINT NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL DEFAULT '',
		port INTEGER NOT NULL DEFAULT 0,
		active_operations_json TEXT NOT NULL DEFAULT '[]',
		sort_order INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (site_identifier, id)
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		id BIGSERIAL PRIMARY KEY,
		site_identifier TEXT NOT NULL,
		monitor_id TEXT NOT NULL,
		timestamp BIGINT NOT NULL,
		status TEXT NOT NULL,
		response_time BIGINT NOT NULL DEFAULT 0,
		details TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (site_identifier, monitor_id) REFERENCES monitors(site_identifier, id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_monitor ON history (site_identifier, monitor_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS settings (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS stats (key TEXT PRIMARY KEY, value BIGINT NOT NULL DEFAULT 0)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp BIGINT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT ''
	)`,
}

// NewPostgres connects using a lib/pq connection string. Backups are not
// available for Postgres; operators use pg_dump.
func NewPostgres(dsn string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	return newSQLStore(db, dialect{driver: "postgres", schema: postgresSchema}, "", logger), nil
}
