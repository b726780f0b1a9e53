package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"uptime-watcher/internal/models"
)

// SQLStore implements Store on top of sqlx. Queries are written with '?'
// placeholders and rebound for the active driver.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	path    string
	logger  *slog.Logger
	now     func() time.Time
}

type dialect struct {
	driver string
	schema []string
	// backup is nil when the driver cannot produce a file copy.
	backup func(ctx context.Context, s *SQLStore) (BackupFile, error)
}

type siteRow struct {
	Identifier string `db:"identifier"`
	Name       string `db:"name"`
	Monitoring bool   `db:"monitoring"`
}

type monitorRow struct {
	ID               string `db:"id"`
	SiteIdentifier   string `db:"site_identifier"`
	Type             string `db:"type"`
	CheckIntervalMs  int    `db:"check_interval_ms"`
	TimeoutMs        int    `db:"timeout_ms"`
	RetryAttempts    int    `db:"retry_attempts"`
	Monitoring       bool   `db:"monitoring"`
	Status           string `db:"status"`
	ResponseTime     int64  `db:"response_time"`
	LastError        string `db:"last_error"`
	LastChecked      int64  `db:"last_checked"`
	URL              string `db:"url"`
	Host             string `db:"host"`
	Port             int    `db:"port"`
	ActiveOperations string `db:"active_operations_json"`
	SortOrder        int    `db:"sort_order"`
}

type historyRow struct {
	ID             int64  `db:"id"`
	SiteIdentifier string `db:"site_identifier"`
	MonitorID      string `db:"monitor_id"`
	Timestamp      int64  `db:"timestamp"`
	Status         string `db:"status"`
	ResponseTime   int64  `db:"response_time"`
	Details        string `db:"details"`
}

type settingRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

type statRow struct {
	Key   string `db:"key"`
	Value int64  `db:"value"`
}

const monitorColumns = `id, site_identifier, type, check_interval_ms, timeout_ms, retry_attempts,
	monitoring, status, response_time, last_error, last_checked, url, host, port,
	active_operations_json, sort_order`

func newSQLStore(db *sqlx.DB, d dialect, path string, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, dialect: d, path: path, logger: logger, now: time.Now}
}

// Open picks the dialect from driver ("sqlite" or "postgres").
func Open(driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		return NewSQLite(dsn, logger)
	case "postgres", "postgresql":
		return NewPostgres(dsn, logger)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
}

func (s *SQLStore) Driver() string { return s.dialect.driver }

// DB exposes the underlying handle for health checks.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	s.logger.Info("database initialized", "driver", s.dialect.driver)
	return nil
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ExecuteTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (s *SQLStore) ExecuteTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("transaction rollback failed", "error", rbErr)
			}
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// --- Sites ---

func (s *SQLStore) ListSites(ctx context.Context) ([]models.Site, error) {
	return listSites(ctx, s.db)
}

func listSites(ctx context.Context, q sqlx.ExtContext) ([]models.Site, error) {
	var rows []siteRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT identifier, name, monitoring FROM sites ORDER BY identifier`); err != nil {
		return nil, fmt.Errorf("store: list sites: %w", err)
	}
	var mrows []monitorRow
	if err := sqlx.SelectContext(ctx, q, &mrows, `SELECT `+monitorColumns+` FROM monitors ORDER BY site_identifier, sort_order, id`); err != nil {
		return nil, fmt.Errorf("store: list monitors: %w", err)
	}
	bySite := make(map[string][]models.Monitor, len(rows))
	for _, mr := range mrows {
		bySite[mr.SiteIdentifier] = append(bySite[mr.SiteIdentifier], mr.toModel())
	}
	sites := make([]models.Site, 0, len(rows))
	for _, r := range rows {
		site := models.Site{Identifier: r.Identifier, Name: r.Name, Monitoring: r.Monitoring, Monitors: bySite[r.Identifier]}
		if site.Monitors == nil {
			site.Monitors = []models.Monitor{}
		}
		sites = append(sites, site)
	}
	return sites, nil
}

func (s *SQLStore) GetSite(ctx context.Context, identifier string) (models.Site, error) {
	return getSite(ctx, s.db, identifier)
}

func getSite(ctx context.Context, q sqlx.ExtContext, identifier string) (models.Site, error) {
	var r siteRow
	err := sqlx.GetContext(ctx, q, &r, q.Rebind(`SELECT identifier, name, monitoring FROM sites WHERE identifier = ?`), identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Site{}, fmt.Errorf("%w: site %s", ErrNotFound, identifier)
	}
	if err != nil {
		return models.Site{}, fmt.Errorf("store: get site: %w", err)
	}
	var mrows []monitorRow
	err = sqlx.SelectContext(ctx, q, &mrows,
		q.Rebind(`SELECT `+monitorColumns+` FROM monitors WHERE site_identifier = ? ORDER BY sort_order, id`), identifier)
	if err != nil {
		return models.Site{}, fmt.Errorf("store: get monitors: %w", err)
	}
	site := models.Site{Identifier: r.Identifier, Name: r.Name, Monitoring: r.Monitoring, Monitors: make([]models.Monitor, 0, len(mrows))}
	for _, mr := range mrows {
		site.Monitors = append(site.Monitors, mr.toModel())
	}
	return site, nil
}

// CreateSite inserts a new site with its monitors. It fails with ErrDuplicate
// when the identifier is taken.
func (s *SQLStore) CreateSite(ctx context.Context, site models.Site) error {
	return s.ExecuteTransaction(ctx, func(tx *sqlx.Tx) error {
		exists, err := siteExists(ctx, tx, site.Identifier)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: site %s", ErrDuplicate, site.Identifier)
		}
		return saveSite(ctx, tx, site)
	})
}

// SaveSite upserts the site and replaces its monitor set. Monitors missing
// from site are deleted together with their history.
func (s *SQLStore) SaveSite(ctx context.Context, site models.Site) error {
	return s.ExecuteTransaction(ctx, func(tx *sqlx.Tx) error {
		return saveSite(ctx, tx, site)
	})
}

func siteExists(ctx context.Context, q sqlx.ExtContext, identifier string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, q.Rebind(`SELECT COUNT(*) FROM sites WHERE identifier = ?`), identifier); err != nil {
		return false, fmt.Errorf("store: site exists: %w", err)
	}
	return n > 0, nil
}

func saveSite(ctx context.Context, q sqlx.ExtContext, site models.Site) error {
	_, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO sites (identifier, name, monitoring) VALUES (?, ?, ?)
		ON CONFLICT (identifier) DO UPDATE SET name = excluded.name, monitoring = excluded.monitoring`),
		site.Identifier, site.Name, site.Monitoring)
	if err != nil {
		return fmt.Errorf("store: save site: %w", err)
	}

	var existing []string
	if err := sqlx.SelectContext(ctx, q, &existing, q.Rebind(`SELECT id FROM monitors WHERE site_identifier = ?`), site.Identifier); err != nil {
		return fmt.Errorf("store: save site: %w", err)
	}
	keep := make(map[string]bool, len(site.Monitors))
	for i, m := range site.Monitors {
		keep[m.ID] = true
		if err := upsertMonitor(ctx, q, site.Identifier, m, i); err != nil {
			return err
		}
	}
	for _, id := range existing {
		if keep[id] {
			continue
		}
		if _, err := deleteMonitor(ctx, q, site.Identifier, id); err != nil {
			return err
		}
	}
	return nil
}

func upsertMonitor(ctx context.Context, q sqlx.ExtContext, siteIdentifier string, m models.Monitor, order int) error {
	r := monitorFromModel(siteIdentifier, m, order)
	_, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO monitors (`+monitorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_identifier, id) DO UPDATE SET
			type = excluded.type,
			check_interval_ms = excluded.check_interval_ms,
			timeout_ms = excluded.timeout_ms,
			retry_attempts = excluded.retry_attempts,
			monitoring = excluded.monitoring,
			status = excluded.status,
			response_time = excluded.response_time,
			last_error = excluded.last_error,
			last_checked = excluded.last_checked,
			url = excluded.url,
			host = excluded.host,
			port = excluded.port,
			active_operations_json = excluded.active_operations_json,
			sort_order = excluded.sort_order`),
		r.ID, r.SiteIdentifier, r.Type, r.CheckIntervalMs, r.TimeoutMs, r.RetryAttempts,
		r.Monitoring, r.Status, r.ResponseTime, r.LastError, r.LastChecked, r.URL, r.Host, r.Port,
		r.ActiveOperations, r.SortOrder)
	if err != nil {
		return fmt.Errorf("store: save monitor %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLStore) DeleteSite(ctx context.Context, identifier string) (bool, error) {
	var removed bool
	err := s.ExecuteTransaction(ctx, func(tx *sqlx.Tx) error {
		// History and monitors are removed explicitly so the result does not
		// depend on foreign key enforcement being enabled.
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM history WHERE site_identifier = ?`), identifier); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM monitors WHERE site_identifier = ?`), identifier); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sites WHERE identifier = ?`), identifier)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		removed = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: delete site: %w", err)
	}
	return removed, nil
}

func (s *SQLStore) DeleteAllSites(ctx context.Context) error {
	return s.ExecuteTransaction(ctx, deleteAllSites(ctx))
}

func deleteAllSites(ctx context.Context) func(tx *sqlx.Tx) error {
	return func(tx *sqlx.Tx) error {
		for _, table := range []string{"history", "monitors", "sites"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("store: clear %s: %w", table, err)
			}
		}
		return nil
	}
}

// --- Monitors ---

// UpdateMonitorState persists the runtime fields of a monitor: status, last
// check data and active operations.
func (s *SQLStore) UpdateMonitorState(ctx context.Context, siteIdentifier string, m models.Monitor) error {
	ops, err := json.Marshal(nonNil(m.ActiveOperations))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE monitors SET status = ?, response_time = ?, last_error = ?,
		last_checked = ?, monitoring = ?, active_operations_json = ? WHERE site_identifier = ? AND id = ?`),
		m.Status, m.ResponseTime, m.LastError, toMillis(m.LastChecked), m.Monitoring, string(ops), siteIdentifier, m.ID)
	if err != nil {
		return fmt.Errorf("store: update monitor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: monitor %s/%s", ErrNotFound, siteIdentifier, m.ID)
	}
	return nil
}

func (s *SQLStore) DeleteMonitor(ctx context.Context, siteIdentifier, monitorID string) (bool, error) {
	var removed bool
	err := s.ExecuteTransaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		removed, err = deleteMonitor(ctx, tx, siteIdentifier, monitorID)
		return err
	})
	return removed, err
}

func deleteMonitor(ctx context.Context, q sqlx.ExtContext, siteIdentifier, monitorID string) (bool, error) {
	if _, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM history WHERE site_identifier = ? AND monitor_id = ?`), siteIdentifier, monitorID); err != nil {
		return false, fmt.Errorf("store: delete history: %w", err)
	}
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM monitors WHERE site_identifier = ? AND id = ?`), siteIdentifier, monitorID)
	if err != nil {
		return false, fmt.Errorf("store: delete monitor: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- History ---

// AddHistory appends a check result. The monitor must exist.
func (s *SQLStore) AddHistory(ctx context.Context, siteIdentifier string, e models.HistoryEntry) error {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM monitors WHERE site_identifier = ? AND id = ?`), siteIdentifier, e.MonitorID)
	if err != nil {
		return fmt.Errorf("store: add history: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: monitor %s/%s", ErrNotFound, siteIdentifier, e.MonitorID)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO history (site_identifier, monitor_id, timestamp, status, response_time, details)
		VALUES (?, ?, ?, ?, ?, ?)`),
		siteIdentifier, e.MonitorID, toMillis(e.Timestamp), e.Status, e.ResponseTime, e.Details)
	if err != nil {
		return fmt.Errorf("store: add history: %w", err)
	}
	return nil
}

// ListHistory returns the newest entries first. limit <= 0 returns everything.
func (s *SQLStore) ListHistory(ctx context.Context, siteIdentifier, monitorID string, limit int) ([]models.HistoryEntry, error) {
	query := `SELECT id, site_identifier, monitor_id, timestamp, status, response_time, details
		FROM history WHERE site_identifier = ? AND monitor_id = ? ORDER BY timestamp DESC, id DESC`
	args := []any{siteIdentifier, monitorID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("store: list history: %w", err)
	}
	out := make([]models.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.HistoryEntry{
			ID:           r.ID,
			MonitorID:    r.MonitorID,
			Timestamp:    fromMillis(r.Timestamp),
			Status:       r.Status,
			ResponseTime: r.ResponseTime,
			Details:      r.Details,
		})
	}
	return out, nil
}

// PruneHistory keeps the newest limit entries of one monitor. limit <= 0
// means unlimited and is a no-op.
func (s *SQLStore) PruneHistory(ctx context.Context, siteIdentifier, monitorID string, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	return pruneHistory(ctx, s.db, siteIdentifier, monitorID, limit)
}

func pruneHistory(ctx context.Context, q sqlx.ExtContext, siteIdentifier, monitorID string, limit int) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM history WHERE site_identifier = ? AND monitor_id = ? AND id NOT IN (
		SELECT id FROM history WHERE site_identifier = ? AND monitor_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?)`),
		siteIdentifier, monitorID, siteIdentifier, monitorID, limit)
	if err != nil {
		return 0, fmt.Errorf("store: prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneAllHistory applies PruneHistory to every monitor in one transaction.
func (s *SQLStore) PruneAllHistory(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	var total int64
	err := s.ExecuteTransaction(ctx, func(tx *sqlx.Tx) error {
		var keys []struct {
			SiteIdentifier string `db:"site_identifier"`
			ID             string `db:"id"`
		}
		if err := tx.SelectContext(ctx, &keys, `SELECT site_identifier, id FROM monitors`); err != nil {
			return err
		}
		for _, k := range keys {
			n, err := pruneHistory(ctx, tx, k.SiteIdentifier, k.ID, limit)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: prune all history: %w", err)
	}
	if total > 0 {
		s.logger.Info("pruned history", "removed", total, "limit", limit)
	}
	return total, nil
}

// --- Settings, stats and logs ---

func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.GetContext(ctx, &v, s.db.Rebind(`SELECT value FROM settings WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get setting: %w", err)
	}
	return v, true, nil
}

func (s *SQLStore) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, s.db, key, value)
}

func setSetting(ctx context.Context, q sqlx.ExtContext, key, value string) error {
	_, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`), key, value)
	if err != nil {
		return fmt.Errorf("store: set setting: %w", err)
	}
	return nil
}

func (s *SQLStore) ListSettings(ctx context.Context) (map[string]string, error) {
	return listSettings(ctx, s.db)
}

func listSettings(ctx context.Context, q sqlx.ExtContext) (map[string]string, error) {
	var rows []settingRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT key, value FROM settings ORDER BY key`); err != nil {
		return nil, fmt.Errorf("store: list settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *SQLStore) DeleteAllSettings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings`); err != nil {
		return fmt.Errorf("store: clear settings: %w", err)
	}
	return nil
}

func (s *SQLStore) IncrementStat(ctx context.Context, key string, delta int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO stats (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = stats.value + excluded.value`), key, delta)
	if err != nil {
		return fmt.Errorf("store: increment stat: %w", err)
	}
	return nil
}

func (s *SQLStore) Stats(ctx context.Context) (map[string]int64, error) {
	var rows []statRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM stats`); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *SQLStore) AppendLog(ctx context.Context, level, message, data string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO logs (timestamp, level, message, data) VALUES (?, ?, ?, ?)`),
		toMillis(s.now()), level, message, data)
	return err
}

// --- Export / import ---

func (s *SQLStore) ExportData(ctx context.Context) (models.Backup, error) {
	var b models.Backup
	err := s.ExecuteTransaction(ctx, func(tx *sqlx.Tx) error {
		sites, err := listSites(ctx, tx)
		if err != nil {
			return err
		}
		settings, err := listSettings(ctx, tx)
		if err != nil {
			return err
		}
		b = models.Backup{Version: models.BackupVersion, ExportedAt: s.now().UTC(), Sites: sites, Settings: settings}
		return nil
	})
	return b, err
}

// ImportData replaces all sites, monitors and settings with data atomically.
// History is discarded.
func (s *SQLStore) ImportData(ctx context.Context, data models.Backup) error {
	return s.ExecuteTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := deleteAllSites(ctx)(tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM settings`); err != nil {
			return err
		}
		for _, site := range data.Sites {
			if err := saveSite(ctx, tx, site); err != nil {
				return err
			}
		}
		for k, v := range data.Settings {
			if err := setSetting(ctx, tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Backup(ctx context.Context) (BackupFile, error) {
	if s.dialect.backup == nil {
		return BackupFile{}, ErrBackupUnsupported
	}
	return s.dialect.backup(ctx, s)
}

// --- row conversion ---

func (r monitorRow) toModel() models.Monitor {
	m := models.Monitor{
		ID:               r.ID,
		SiteIdentifier:   r.SiteIdentifier,
		Type:             r.Type,
		CheckIntervalMs:  r.CheckIntervalMs,
		TimeoutMs:        r.TimeoutMs,
		RetryAttempts:    r.RetryAttempts,
		Monitoring:       r.Monitoring,
		Status:           r.Status,
		ResponseTime:     r.ResponseTime,
		LastError:        r.LastError,
		LastChecked:      fromMillis(r.LastChecked),
		URL:              r.URL,
		Host:             r.Host,
		Port:             r.Port,
		ActiveOperations: []string{},
	}
	if r.ActiveOperations != "" {
		_ = json.Unmarshal([]byte(r.ActiveOperations), &m.ActiveOperations)
	}
	return m
}

func monitorFromModel(siteIdentifier string, m models.Monitor, order int) monitorRow {
	ops, _ := json.Marshal(nonNil(m.ActiveOperations))
	status := m.Status
	if status == "" {
		status = models.StatusPending
	}
	return monitorRow{
		ID:               m.ID,
		SiteIdentifier:   siteIdentifier,
		Type:             m.Type,
		CheckIntervalMs:  m.CheckIntervalMs,
		TimeoutMs:        m.TimeoutMs,
		RetryAttempts:    m.RetryAttempts,
		Monitoring:       m.Monitoring,
		Status:           status,
		ResponseTime:     m.ResponseTime,
		LastError:        m.LastError,
		LastChecked:      toMillis(m.LastChecked),
		URL:              m.URL,
		Host:             m.Host,
		Port:             m.Port,
		ActiveOperations: string(ops),
		SortOrder:        order,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
