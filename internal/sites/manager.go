// Package sites owns the authoritative site and monitor state. Reads are
// served from a StandardizedCache backed by the store; every mutation goes to
// the store first and is announced on the event bus.
package sites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"uptime-watcher/internal/cache"
	"uptime-watcher/internal/events"
	"uptime-watcher/internal/models"
	"uptime-watcher/internal/store"
)

var (
	ErrSiteNotFound     = errors.New("site not found")
	ErrMonitorNotFound  = errors.New("monitor not found")
	ErrDuplicateSite    = errors.New("site already exists")
	ErrInvalidSite      = errors.New("invalid site")
	ErrInvalidHistLimit = errors.New("history limit must be a non-negative integer")
)

const historyLimitKey = "historyLimit"

// SiteLoadingError reports that the site list could not be read from the
// database. It is fatal during startup and recovered by a full sync later.
type SiteLoadingError struct {
	Err error
}

func (e *SiteLoadingError) Error() string { return "failed to load sites: " + e.Err.Error() }
func (e *SiteLoadingError) Unwrap() error { return e.Err }

// MonitorValidator checks a monitor's type specific fields.
type MonitorValidator interface {
	ValidateMonitor(m models.Monitor) error
}

// SiteUpdate carries the fields update-site may change. Nil fields are left
// untouched.
type SiteUpdate struct {
	Name       *string          `json:"name,omitempty"`
	Monitoring *bool            `json:"monitoring,omitempty"`
	Monitors   []models.Monitor `json:"monitors,omitempty"`
}

type Manager struct {
	store     store.Store
	bus       *events.Bus
	cache     *cache.Cache[string, models.Site]
	validator MonitorValidator
	logger    *slog.Logger
	now       func() time.Time

	// mu serializes writers so read-modify-write of a site is atomic with
	// respect to the scheduler and IPC handlers.
	mu sync.Mutex
}

func NewManager(st store.Store, bus *events.Bus, c *cache.Cache[string, models.Site], validator MonitorValidator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     st,
		bus:       bus,
		cache:     c,
		validator: validator,
		logger:    logger.With("component", "sites"),
		now:       time.Now,
	}
}

// Load reads every site from the database into the cache.
func (m *Manager) Load(ctx context.Context) ([]models.Site, error) {
	sites, err := m.store.ListSites(ctx)
	if err != nil {
		return nil, &SiteLoadingError{Err: err}
	}
	m.cache.Clear()
	for _, s := range sites {
		m.cache.Set(s.Identifier, s.Clone())
	}
	m.logger.Info("sites loaded", "count", len(sites))
	return sites, nil
}

// Sites returns every site, read from the database so the answer is
// authoritative even after cache entries expire.
func (m *Manager) Sites(ctx context.Context) ([]models.Site, error) {
	sites, err := m.store.ListSites(ctx)
	if err != nil {
		return nil, &SiteLoadingError{Err: err}
	}
	for _, s := range sites {
		m.cache.Set(s.Identifier, s.Clone())
	}
	return sites, nil
}

// Site returns one site, from the cache when possible.
func (m *Manager) Site(ctx context.Context, identifier string) (models.Site, error) {
	if s, ok := m.cache.Get(identifier); ok {
		return s.Clone(), nil
	}
	s, err := m.store.GetSite(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return models.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, identifier)
	}
	if err != nil {
		return models.Site{}, err
	}
	m.cache.Set(identifier, s.Clone())
	return s, nil
}

// AddSite validates and persists a new site. Monitors without an id get one.
func (m *Manager) AddSite(ctx context.Context, site models.Site) (models.Site, error) {
	site.Identifier = strings.TrimSpace(site.Identifier)
	if site.Identifier == "" {
		return models.Site{}, fmt.Errorf("%w: identifier is required", ErrInvalidSite)
	}
	if err := m.prepareMonitors(&site, nil); err != nil {
		return models.Site{}, err
	}

	m.mu.Lock()
	err := m.store.CreateSite(ctx, site)
	m.mu.Unlock()
	if errors.Is(err, store.ErrDuplicate) {
		return models.Site{}, fmt.Errorf("%w: %s", ErrDuplicateSite, site.Identifier)
	}
	if err != nil {
		return models.Site{}, fmt.Errorf("add site: %w", err)
	}

	m.cache.Set(site.Identifier, site.Clone())
	m.logger.Info("site added", "site", site.Identifier, "monitors", len(site.Monitors))
	out := site.Clone()
	events.Emit(ctx, m.bus, events.SiteAdded, events.SiteChange{Identifier: site.Identifier, Site: &out, Timestamp: m.now().UTC()})
	return site, nil
}

// RemoveSite deletes the site with its monitors and history. It reports
// whether anything was removed.
func (m *Manager) RemoveSite(ctx context.Context, identifier string) (bool, error) {
	m.mu.Lock()
	removed, err := m.store.DeleteSite(ctx, identifier)
	m.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("remove site: %w", err)
	}
	if !removed {
		return false, nil
	}
	m.cache.InvalidateWithReason(identifier, cache.ReasonDelete)
	m.logger.Info("site removed", "site", identifier)
	events.Emit(ctx, m.bus, events.SiteRemoved, events.SiteChange{Identifier: identifier, Timestamp: m.now().UTC()})
	return true, nil
}

// UpdateSite applies update to an existing site. Runtime monitor state
// (status, last check, active operations) is kept for monitors that survive.
func (m *Manager) UpdateSite(ctx context.Context, identifier string, update SiteUpdate) (models.Site, error) {
	m.mu.Lock()
	site, err := m.loadForWrite(ctx, identifier)
	if err != nil {
		m.mu.Unlock()
		return models.Site{}, err
	}
	previous := site.Clone()
	if update.Name != nil {
		site.Name = *update.Name
	}
	if update.Monitoring != nil {
		site.Monitoring = *update.Monitoring
	}
	if update.Monitors != nil {
		site.Monitors = update.Monitors
		if err := m.prepareMonitors(&site, &previous); err != nil {
			m.mu.Unlock()
			return models.Site{}, err
		}
	}
	err = m.store.SaveSite(ctx, site)
	m.mu.Unlock()
	if err != nil {
		return models.Site{}, fmt.Errorf("update site: %w", err)
	}

	m.cache.Set(identifier, site.Clone())
	out := site.Clone()
	events.Emit(ctx, m.bus, events.SiteUpdated, events.SiteChange{Identifier: identifier, Site: &out, Timestamp: m.now().UTC()})
	return site, nil
}

// RemoveMonitor drops one monitor and its history from a site.
func (m *Manager) RemoveMonitor(ctx context.Context, siteIdentifier, monitorID string) (models.Site, error) {
	m.mu.Lock()
	site, err := m.loadForWrite(ctx, siteIdentifier)
	if err != nil {
		m.mu.Unlock()
		return models.Site{}, err
	}
	idx := site.FindMonitor(monitorID)
	if idx < 0 {
		m.mu.Unlock()
		return models.Site{}, fmt.Errorf("%w: %s/%s", ErrMonitorNotFound, siteIdentifier, monitorID)
	}
	_, err = m.store.DeleteMonitor(ctx, siteIdentifier, monitorID)
	m.mu.Unlock()
	if err != nil {
		return models.Site{}, fmt.Errorf("remove monitor: %w", err)
	}
	site.Monitors = append(site.Monitors[:idx], site.Monitors[idx+1:]...)

	m.cache.Set(siteIdentifier, site.Clone())
	out := site.Clone()
	events.Emit(ctx, m.bus, events.SiteUpdated, events.SiteChange{Identifier: siteIdentifier, Site: &out, Timestamp: m.now().UTC()})
	return site, nil
}

// DeleteAll removes every site. The cache emits an "all" invalidation so
// renderers resynchronize.
func (m *Manager) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	err := m.store.DeleteAllSites(ctx)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete all sites: %w", err)
	}
	m.cache.InvalidateAll()
	m.logger.Info("all sites deleted")
	return nil
}

// UpdateMonitor runs fn against a monitor and persists its runtime state.
// The updated site and monitor are returned.
func (m *Manager) UpdateMonitor(ctx context.Context, siteIdentifier, monitorID string, fn func(*models.Monitor)) (models.Site, models.Monitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	site, err := m.loadForWrite(ctx, siteIdentifier)
	if err != nil {
		return models.Site{}, models.Monitor{}, err
	}
	idx := site.FindMonitor(monitorID)
	if idx < 0 {
		return models.Site{}, models.Monitor{}, fmt.Errorf("%w: %s/%s", ErrMonitorNotFound, siteIdentifier, monitorID)
	}
	fn(&site.Monitors[idx])
	if err := m.store.UpdateMonitorState(ctx, siteIdentifier, site.Monitors[idx]); err != nil {
		return models.Site{}, models.Monitor{}, err
	}
	m.cache.Set(siteIdentifier, site.Clone())
	return site, site.Monitors[idx], nil
}

// SetSiteMonitoring flips the site level monitoring flag without touching
// monitors.
func (m *Manager) SetSiteMonitoring(ctx context.Context, identifier string, on bool) (models.Site, error) {
	return m.UpdateSite(ctx, identifier, SiteUpdate{Monitoring: &on})
}

// RecordResult appends a history entry, prunes history to the current limit
// and stores the monitor's new status. It returns the status before the
// check alongside the updated site and monitor.
func (m *Manager) RecordResult(ctx context.Context, siteIdentifier, monitorID string, res models.MonitorCheckResult, checkedAt time.Time) (previous string, site models.Site, mon models.Monitor, err error) {
	details := res.Details
	if details == "" {
		details = res.Error
	}
	err = m.store.AddHistory(ctx, siteIdentifier, models.HistoryEntry{
		MonitorID:    monitorID,
		Timestamp:    checkedAt,
		Status:       res.Status,
		ResponseTime: res.ResponseTime,
		Details:      details,
	})
	if errors.Is(err, store.ErrNotFound) {
		return "", models.Site{}, models.Monitor{}, fmt.Errorf("%w: %s/%s", ErrMonitorNotFound, siteIdentifier, monitorID)
	}
	if err != nil {
		return "", models.Site{}, models.Monitor{}, err
	}
	if limit := m.HistoryLimit(ctx); limit > 0 {
		if _, err := m.store.PruneHistory(ctx, siteIdentifier, monitorID, limit); err != nil {
			m.logger.Warn("history prune failed", "site", siteIdentifier, "monitor", monitorID, "error", err)
		}
	}
	if err := m.store.IncrementStat(ctx, "checks_total", 1); err != nil {
		m.logger.Debug("stat update failed", "stat", "checks_total", "error", err)
	}

	site, mon, err = m.UpdateMonitor(ctx, siteIdentifier, monitorID, func(mm *models.Monitor) {
		previous = mm.Status
		mm.Status = res.Status
		mm.ResponseTime = res.ResponseTime
		mm.LastError = res.Error
		mm.LastChecked = checkedAt
	})
	return previous, site, mon, err
}

// History returns the newest entries of a monitor first.
func (m *Manager) History(ctx context.Context, siteIdentifier, monitorID string, limit int) ([]models.HistoryEntry, error) {
	return m.store.ListHistory(ctx, siteIdentifier, monitorID, limit)
}

// HistoryLimit returns the persisted limit or the default.
func (m *Manager) HistoryLimit(ctx context.Context) int {
	v, ok, err := m.store.GetSetting(ctx, historyLimitKey)
	if err != nil || !ok {
		return models.DefaultHistoryLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return models.DefaultHistoryLimit
	}
	return n
}

// SetHistoryLimit stores limit and prunes existing history to it. Zero means
// unlimited.
func (m *Manager) SetHistoryLimit(ctx context.Context, limit int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidHistLimit, limit)
	}
	previous := m.HistoryLimit(ctx)
	if err := m.store.SetSetting(ctx, historyLimitKey, strconv.Itoa(limit)); err != nil {
		return 0, err
	}
	pruned, err := m.store.PruneAllHistory(ctx, limit)
	if err != nil {
		return 0, err
	}
	m.logger.Info("history limit updated", "limit", limit, "previous", previous, "pruned", pruned)
	events.Emit(ctx, m.bus, events.HistoryLimitUpdated, events.HistoryLimitChange{Limit: limit, Previous: previous, Timestamp: m.now().UTC()})
	return limit, nil
}

// ResetSettings deletes every persisted setting, restoring defaults.
func (m *Manager) ResetSettings(ctx context.Context) error {
	previous := m.HistoryLimit(ctx)
	if err := m.store.DeleteAllSettings(ctx); err != nil {
		return err
	}
	events.Emit(ctx, m.bus, events.HistoryLimitUpdated, events.HistoryLimitChange{
		Limit:     models.DefaultHistoryLimit,
		Previous:  previous,
		Timestamp: m.now().UTC(),
	})
	return nil
}

// Export snapshots sites and settings.
func (m *Manager) Export(ctx context.Context) (models.Backup, error) {
	return m.store.ExportData(ctx)
}

// Import replaces all data with backup and reloads the cache. Invalid
// monitors are skipped and reported as warnings.
func (m *Manager) Import(ctx context.Context, backup models.Backup) ([]string, error) {
	var warnings []string
	seen := make(map[string]bool, len(backup.Sites))
	clean := make([]models.Site, 0, len(backup.Sites))
	for _, s := range backup.Sites {
		if s.Identifier == "" || seen[s.Identifier] {
			warnings = append(warnings, fmt.Sprintf("skipped site with empty or duplicate identifier %q", s.Identifier))
			continue
		}
		seen[s.Identifier] = true
		monitors := s.Monitors
		s.Monitors = make([]models.Monitor, 0, len(monitors))
		ids := make(map[string]bool, len(monitors))
		for _, mon := range monitors {
			mon.ApplyDefaults()
			mon.ActiveOperations = nil
			if mon.ID == "" {
				mon.ID = uuid.NewString()
			}
			if ids[mon.ID] {
				warnings = append(warnings, fmt.Sprintf("site %s: skipped duplicate monitor %s", s.Identifier, mon.ID))
				continue
			}
			if m.validator != nil {
				if err := m.validator.ValidateMonitor(mon); err != nil {
					warnings = append(warnings, fmt.Sprintf("site %s: skipped monitor %s: %v", s.Identifier, mon.ID, err))
					continue
				}
			}
			ids[mon.ID] = true
			s.Monitors = append(s.Monitors, mon)
		}
		clean = append(clean, s)
	}
	backup.Sites = clean

	m.mu.Lock()
	err := m.store.ImportData(ctx, backup)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("import data: %w", err)
	}
	m.cache.InvalidateAll()
	if _, err := m.Load(ctx); err != nil {
		return warnings, err
	}
	return warnings, nil
}

func (m *Manager) loadForWrite(ctx context.Context, identifier string) (models.Site, error) {
	s, err := m.store.GetSite(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return models.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, identifier)
	}
	return s, err
}

// prepareMonitors applies defaults, assigns ids, rejects duplicates and runs
// type validation. When previous is set, runtime state of surviving monitors
// is carried over.
func (m *Manager) prepareMonitors(site *models.Site, previous *models.Site) error {
	if site.Monitors == nil {
		site.Monitors = []models.Monitor{}
	}
	ids := make(map[string]bool, len(site.Monitors))
	for i := range site.Monitors {
		mon := &site.Monitors[i]
		if mon.ID == "" {
			mon.ID = uuid.NewString()
		}
		if ids[mon.ID] {
			return fmt.Errorf("%w: duplicate monitor id %s", ErrInvalidSite, mon.ID)
		}
		ids[mon.ID] = true
		mon.SiteIdentifier = ""
		mon.ActiveOperations = nil
		if previous != nil {
			if j := previous.FindMonitor(mon.ID); j >= 0 {
				old := previous.Monitors[j]
				mon.Status = old.Status
				mon.ResponseTime = old.ResponseTime
				mon.LastError = old.LastError
				mon.LastChecked = old.LastChecked
				mon.ActiveOperations = old.ActiveOperations
			}
		}
		mon.ApplyDefaults()
		if mon.CheckIntervalMs < models.MinCheckIntervalMs {
			return fmt.Errorf("%w: monitor %s check interval must be at least %dms", ErrInvalidSite, mon.ID, models.MinCheckIntervalMs)
		}
		if m.validator != nil {
			if err := m.validator.ValidateMonitor(*mon); err != nil {
				return fmt.Errorf("%w: monitor %s: %v", ErrInvalidSite, mon.ID, err)
			}
		}
	}
	return nil
}
