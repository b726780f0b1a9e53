// Package handlers binds every IPC channel to the daemon's services.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"uptime-watcher/internal/ipc"
	"uptime-watcher/internal/models"
	"uptime-watcher/internal/monitor"
	"uptime-watcher/internal/monitortypes"
	"uptime-watcher/internal/sites"
	"uptime-watcher/internal/statesync"
	"uptime-watcher/internal/store"
)

// URLOpener opens a URL in the user's browser.
type URLOpener interface {
	Open(url string) error
}

type Deps struct {
	Sites     *sites.Manager
	Scheduler *monitor.Scheduler
	Types     *monitortypes.Registry
	Sync      *statesync.Service
	Store     store.Store
	Opener    URLOpener
	Logger    *slog.Logger
}

// BackupPayload is returned by download-sqlite-backup.
type BackupPayload struct {
	Buffer   string         `json:"buffer"`
	FileName string         `json:"fileName"`
	Metadata BackupMetadata `json:"metadata"`
}

type BackupMetadata struct {
	CreatedAt    time.Time `json:"createdAt"`
	SizeBytes    int       `json:"sizeBytes"`
	OriginalPath string    `json:"originalPath"`
}

type service struct {
	Deps
}

// Register binds all channels. It fails on the first duplicate.
func Register(r *ipc.Registry, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &service{Deps: d}
	bindings := map[ipc.Channel]ipc.Handler{
		ipc.AddSite:        s.addSite,
		ipc.RemoveSite:     s.removeSite,
		ipc.GetSites:       s.getSites,
		ipc.UpdateSite:     s.updateSite,
		ipc.RemoveMonitor:  s.removeMonitor,
		ipc.DeleteAllSites: s.deleteAllSites,

		ipc.StartMonitoring:        s.startMonitoring,
		ipc.StopMonitoring:         s.stopMonitoring,
		ipc.StartMonitoringForSite: s.startMonitoringForSite,
		ipc.StopMonitoringForSite:  s.stopMonitoringForSite,
		ipc.CheckSiteNow:           s.checkSiteNow,

		ipc.ExportData:           s.exportData,
		ipc.ImportData:           s.importData,
		ipc.UpdateHistoryLimit:   s.updateHistoryLimit,
		ipc.GetHistoryLimit:      s.getHistoryLimit,
		ipc.DownloadSQLiteBackup: s.downloadBackup,
		ipc.ResetSettings:        s.resetSettings,

		ipc.GetMonitorTypes:          s.getMonitorTypes,
		ipc.FormatMonitorDetail:      s.formatDetail,
		ipc.FormatMonitorTitleSuffix: s.formatTitleSuffix,
		ipc.ValidateMonitorData:      s.validateMonitorData,

		ipc.RequestFullSync: s.requestFullSync,
		ipc.GetSyncStatus:   s.getSyncStatus,

		ipc.OpenExternal: s.openExternal,
	}
	for _, info := range ipc.Catalogue {
		h, ok := bindings[info.Name]
		if !ok {
			return fmt.Errorf("handlers: no handler for %s", info.Name)
		}
		if err := r.Register(info.Name, h, validators[info.Name]); err != nil {
			return err
		}
	}
	d.Logger.Info("ipc handlers registered", "channels", len(ipc.Catalogue))
	return nil
}

// --- sites ---

func (s *service) addSite(ctx context.Context, p []any) (any, error) {
	var site models.Site
	if err := ipc.Bind(p[0], &site); err != nil {
		return nil, err
	}
	// monitoring defaults to on when the caller omits it
	if obj := p[0].(map[string]any); obj["monitoring"] == nil {
		site.Monitoring = true
	}
	return s.Sites.AddSite(ctx, site)
}

func (s *service) removeSite(ctx context.Context, p []any) (any, error) {
	return s.Sites.RemoveSite(ctx, ipc.StringAt(p, 0))
}

func (s *service) getSites(ctx context.Context, _ []any) (any, error) {
	return s.Sites.Sites(ctx)
}

func (s *service) updateSite(ctx context.Context, p []any) (any, error) {
	var update sites.SiteUpdate
	if err := ipc.Bind(p[1], &update); err != nil {
		return nil, err
	}
	return s.Sites.UpdateSite(ctx, ipc.StringAt(p, 0), update)
}

func (s *service) removeMonitor(ctx context.Context, p []any) (any, error) {
	if _, err := s.Sites.RemoveMonitor(ctx, ipc.StringAt(p, 0), ipc.StringAt(p, 1)); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *service) deleteAllSites(ctx context.Context, _ []any) (any, error) {
	existing, err := s.Sites.Sites(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Sites.DeleteAll(ctx); err != nil {
		return nil, err
	}
	return len(existing), nil
}

// --- monitoring ---

func (s *service) startMonitoring(ctx context.Context, _ []any) (any, error) {
	return true, s.Scheduler.StartAll(ctx)
}

func (s *service) stopMonitoring(ctx context.Context, _ []any) (any, error) {
	return true, s.Scheduler.StopAll(ctx)
}

func (s *service) startMonitoringForSite(ctx context.Context, p []any) (any, error) {
	return true, s.Scheduler.StartSite(ctx, ipc.StringAt(p, 0), ipc.StringAt(p, 1))
}

func (s *service) stopMonitoringForSite(ctx context.Context, p []any) (any, error) {
	return true, s.Scheduler.StopSite(ctx, ipc.StringAt(p, 0), ipc.StringAt(p, 1))
}

func (s *service) checkSiteNow(ctx context.Context, p []any) (any, error) {
	res, err := s.Scheduler.CheckNow(ctx, ipc.StringAt(p, 0), ipc.StringAt(p, 1))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// --- data ---

func (s *service) exportData(ctx context.Context, _ []any) (any, error) {
	backup, err := s.Sites.Export(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return string(raw), nil
}

func (s *service) importData(ctx context.Context, p []any) (any, error) {
	var backup models.Backup
	if err := json.Unmarshal([]byte(ipc.StringAt(p, 0)), &backup); err != nil {
		return nil, fmt.Errorf("invalid import data: %w", err)
	}
	warnings, err := s.Sites.Import(ctx, backup)
	if err != nil {
		return nil, err
	}
	if err := s.Scheduler.Reload(ctx); err != nil {
		return nil, err
	}
	return ipc.WithWarnings{Data: true, Warnings: warnings}, nil
}

func (s *service) updateHistoryLimit(ctx context.Context, p []any) (any, error) {
	return s.Sites.SetHistoryLimit(ctx, ipc.IntAt(p, 0))
}

func (s *service) getHistoryLimit(ctx context.Context, _ []any) (any, error) {
	return s.Sites.HistoryLimit(ctx), nil
}

func (s *service) downloadBackup(ctx context.Context, _ []any) (any, error) {
	file, err := s.Store.Backup(ctx)
	if err != nil {
		return nil, err
	}
	return BackupPayload{
		Buffer:   base64.StdEncoding.EncodeToString(file.Data),
		FileName: file.FileName,
		Metadata: BackupMetadata{CreatedAt: file.CreatedAt, SizeBytes: len(file.Data), OriginalPath: file.OriginalPath},
	}, nil
}

func (s *service) resetSettings(ctx context.Context, _ []any) (any, error) {
	return true, s.Sites.ResetSettings(ctx)
}

// --- monitor types ---

func (s *service) getMonitorTypes(context.Context, []any) (any, error) {
	return s.Types.Types(), nil
}

func (s *service) formatDetail(_ context.Context, p []any) (any, error) {
	return s.Types.FormatDetail(ipc.StringAt(p, 0), ipc.StringAt(p, 1))
}

func (s *service) formatTitleSuffix(_ context.Context, p []any) (any, error) {
	var m models.Monitor
	if err := ipc.Bind(p[1], &m); err != nil {
		return nil, err
	}
	return s.Types.FormatTitleSuffix(ipc.StringAt(p, 0), m)
}

func (s *service) validateMonitorData(ctx context.Context, p []any) (any, error) {
	data, _ := p[1].(map[string]any)
	return s.Types.Validate(ctx, ipc.StringAt(p, 0), data), nil
}

// --- state sync ---

func (s *service) requestFullSync(ctx context.Context, _ []any) (any, error) {
	return s.Sync.FullSync(ctx, "ipc")
}

func (s *service) getSyncStatus(ctx context.Context, _ []any) (any, error) {
	return s.Sync.Status(ctx), nil
}

// --- system ---

func (s *service) openExternal(_ context.Context, p []any) (any, error) {
	if s.Opener == nil {
		return nil, fmt.Errorf("opening URLs is not available")
	}
	return true, s.Opener.Open(ipc.StringAt(p, 0))
}
