package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"uptime-watcher/internal/models"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrDuplicate         = errors.New("store: already exists")
	ErrBackupUnsupported = errors.New("store: backup is only supported for sqlite databases")
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	Driver() string

	// Sites
	ListSites(ctx context.Context) ([]models.Site, error)
	GetSite(ctx context.Context, identifier string) (models.Site, error)
	CreateSite(ctx context.Context, site models.Site) error
	SaveSite(ctx context.Context, site models.Site) error
	DeleteSite(ctx context.Context, identifier string) (bool, error)
	DeleteAllSites(ctx context.Context) error

	// Monitors
	UpdateMonitorState(ctx context.Context, siteIdentifier string, m models.Monitor) error
	DeleteMonitor(ctx context.Context, siteIdentifier, monitorID string) (bool, error)

	// History
	AddHistory(ctx context.Context, siteIdentifier string, entry models.HistoryEntry) error
	ListHistory(ctx context.Context, siteIdentifier, monitorID string, limit int) ([]models.HistoryEntry, error)
	PruneHistory(ctx context.Context, siteIdentifier, monitorID string, limit int) (int64, error)
	PruneAllHistory(ctx context.Context, limit int) (int64, error)

	// Settings, stats and logs
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)
	DeleteAllSettings(ctx context.Context) error
	IncrementStat(ctx context.Context, key string, delta int64) error
	Stats(ctx context.Context) (map[string]int64, error)
	AppendLog(ctx context.Context, level, message, data string) error

	// Transactions, backup and restore
	ExecuteTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	ExportData(ctx context.Context) (models.Backup, error)
	ImportData(ctx context.Context, data models.Backup) error
	Backup(ctx context.Context) (BackupFile, error)
}

// BackupFile is a consistent copy of the database file.
type BackupFile struct {
	Data         []byte
	FileName     string
	OriginalPath string
	CreatedAt    time.Time
}
