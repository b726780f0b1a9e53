package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime-watcher/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLite(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSite(id string, monitors ...string) models.Site {
	site := models.Site{Identifier: id, Name: "Site " + id, Monitoring: true, Monitors: []models.Monitor{}}
	for _, m := range monitors {
		mon := models.Monitor{ID: m, Type: "http", URL: "https://example.com/" + m, Monitoring: true}
		mon.ApplyDefaults()
		site.Monitors = append(site.Monitors, mon)
	}
	return site
}

func TestCreateAndGetSite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	site := testSite("s1", "m1", "m2")
	require.NoError(t, s.CreateSite(ctx, site))

	got, err := s.GetSite(ctx, "s1")
	require.NoError(t, err)
	for i := range got.Monitors {
		got.Monitors[i].SiteIdentifier = ""
		got.Monitors[i].ActiveOperations = nil
	}
	if diff := cmp.Diff(site, got); diff != "" {
		t.Errorf("site mismatch (-want +got):\n%s", diff)
	}

	err = s.CreateSite(ctx, site)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.GetSite(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSiteReplacesMonitors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSite(ctx, testSite("s1", "m1", "m2")))
	require.NoError(t, s.AddHistory(ctx, "s1", models.HistoryEntry{MonitorID: "m2", Timestamp: time.Now(), Status: models.StatusUp}))

	updated := testSite("s1", "m1", "m3")
	updated.Name = "renamed"
	require.NoError(t, s.SaveSite(ctx, updated))

	got, err := s.GetSite(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	require.Len(t, got.Monitors, 2)
	assert.Equal(t, "m1", got.Monitors[0].ID)
	assert.Equal(t, "m3", got.Monitors[1].ID)

	hist, err := s.ListHistory(ctx, "s1", "m2", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestDeleteSiteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSite(ctx, testSite("s1", "m1")))
	require.NoError(t, s.AddHistory(ctx, "s1", models.HistoryEntry{MonitorID: "m1", Timestamp: time.Now(), Status: models.StatusUp}))

	removed, err := s.DeleteSite(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.DeleteSite(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, removed)

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	assert.Empty(t, sites)

	var n int
	require.NoError(t, s.db.Get(&n, `SELECT COUNT(*) FROM history`))
	assert.Zero(t, n)
}

func TestAddHistoryRequiresMonitor(t *testing.T) {
	s := newTestStore(t)
	err := s.AddHistory(context.Background(), "s1", models.HistoryEntry{MonitorID: "nope", Timestamp: time.Now(), Status: models.StatusDown})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneHistoryKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSite(ctx, testSite("s1", "m1", "m2")))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.AddHistory(ctx, "s1", models.HistoryEntry{MonitorID: "m1", Timestamp: ts, Status: models.StatusUp, ResponseTime: int64(i)}))
		require.NoError(t, s.AddHistory(ctx, "s1", models.HistoryEntry{MonitorID: "m2", Timestamp: ts, Status: models.StatusDown}))
	}

	removed, err := s.PruneAllHistory(ctx, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 6, removed)

	hist, err := s.ListHistory(ctx, "s1", "m1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 5)
	assert.Equal(t, base.Add(7*time.Minute), hist[0].Timestamp)
	assert.Equal(t, base.Add(3*time.Minute), hist[4].Timestamp)

	removed, err = s.PruneHistory(ctx, "s1", "m1", 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestUpdateMonitorState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSite(ctx, testSite("s1", "m1")))

	checked := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	m := models.Monitor{ID: "m1", Status: models.StatusDown, ResponseTime: 120, LastError: "timeout", LastChecked: checked, Monitoring: true, ActiveOperations: []string{"op-1"}}
	require.NoError(t, s.UpdateMonitorState(ctx, "s1", m))

	got, err := s.GetSite(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDown, got.Monitors[0].Status)
	assert.Equal(t, checked, got.Monitors[0].LastChecked)
	assert.Equal(t, []string{"op-1"}, got.Monitors[0].ActiveOperations)

	m.ID = "ghost"
	assert.ErrorIs(t, s.UpdateMonitorState(ctx, "s1", m), ErrNotFound)
}

func TestSettingsAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "historyLimit")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "historyLimit", "100"))
	require.NoError(t, s.SetSetting(ctx, "historyLimit", "200"))
	v, ok, err := s.GetSetting(ctx, "historyLimit")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "200", v)

	require.NoError(t, s.IncrementStat(ctx, "checks", 1))
	require.NoError(t, s.IncrementStat(ctx, "checks", 2))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"checks": 3}, stats)

	require.NoError(t, s.DeleteAllSettings(ctx))
	all, err := s.ListSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestExecuteTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.ExecuteTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := saveSite(ctx, tx, testSite("s1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSite(ctx, testSite("a", "m1")))
	require.NoError(t, s.CreateSite(ctx, testSite("b")))
	require.NoError(t, s.SetSetting(ctx, "historyLimit", "50"))

	backup, err := s.ExportData(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BackupVersion, backup.Version)
	require.Len(t, backup.Sites, 2)

	other := newTestStore(t)
	require.NoError(t, other.CreateSite(ctx, testSite("stale", "x")))
	require.NoError(t, other.ImportData(ctx, backup))

	got, err := other.ExportData(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(backup.Sites, got.Sites); diff != "" {
		t.Errorf("sites mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, backup.Settings, got.Settings)
}

func TestBackup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSite(ctx, testSite("s1", "m1")))

	file, err := s.Backup(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, file.Data)
	assert.Contains(t, file.FileName, ".sqlite")
	assert.Equal(t, "SQLite format 3\x00", string(file.Data[:16]))

	pg := &SQLStore{dialect: dialect{driver: "postgres"}}
	_, err = pg.Backup(ctx)
	assert.ErrorIs(t, err, ErrBackupUnsupported)
}

func TestAppendLog(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendLog(context.Background(), "WARN", "check failed", `{"site":"s1"}`))
	var n int
	require.NoError(t, s.db.Get(&n, `SELECT COUNT(*) FROM logs`))
	assert.Equal(t, 1, n)
}
