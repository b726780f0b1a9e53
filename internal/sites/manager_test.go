package sites

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime-watcher/internal/cache"
	"uptime-watcher/internal/events"
	"uptime-watcher/internal/models"
	"uptime-watcher/internal/store"
)

type rejectType string

func (r rejectType) ValidateMonitor(m models.Monitor) error {
	if m.Type == string(r) {
		return errors.New("unsupported")
	}
	return nil
}

type fixture struct {
	mgr   *Manager
	bus   *events.Bus
	store *store.SQLStore
	seen  []events.Name
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLite(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	bus := events.New("test", logger)
	c, err := cache.New[string, models.Site](cache.Options{
		Name:       "sites",
		DefaultTTL: 10 * time.Minute,
		EntityType: cache.TypeSite,
		Emitter:    events.CacheEmitter(bus),
	})
	require.NoError(t, err)

	f := &fixture{bus: bus, store: st}
	bus.OnAny(func(_ context.Context, env events.Envelope) { f.seen = append(f.seen, env.Name) })
	f.mgr = NewManager(st, bus, c, rejectType("ftp"), logger)
	return f
}

func site(id string, monitors ...string) models.Site {
	s := models.Site{Identifier: id, Name: id, Monitoring: true}
	for _, m := range monitors {
		s.Monitors = append(s.Monitors, models.Monitor{ID: m, Type: "http", URL: "https://example.com", Monitoring: true})
	}
	return s
}

func TestAddGetRemoveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	added, err := f.mgr.AddSite(ctx, site("s1", "m1"))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCheckIntervalMs, added.Monitors[0].CheckIntervalMs)
	assert.Equal(t, models.StatusPending, added.Monitors[0].Status)

	all, err := f.mgr.Sites(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "s1", all[0].Identifier)

	removed, err := f.mgr.RemoveSite(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, removed)

	all, err = f.mgr.Sites(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = f.mgr.Site(ctx, "s1")
	assert.ErrorIs(t, err, ErrSiteNotFound)

	assert.Contains(t, f.seen, events.SiteAdded.Name())
	assert.Contains(t, f.seen, events.SiteRemoved.Name())
	assert.Contains(t, f.seen, events.CacheInvalidated.Name())
}

func TestAddSiteRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.AddSite(ctx, models.Site{Identifier: "  "})
	assert.ErrorIs(t, err, ErrInvalidSite)

	dup := site("s1", "m1", "m1")
	_, err = f.mgr.AddSite(ctx, dup)
	assert.ErrorIs(t, err, ErrInvalidSite)

	bad := site("s2")
	bad.Monitors = []models.Monitor{{ID: "x", Type: "ftp"}}
	_, err = f.mgr.AddSite(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidSite)

	fast := site("s3", "m1")
	fast.Monitors[0].CheckIntervalMs = 1000
	_, err = f.mgr.AddSite(ctx, fast)
	assert.ErrorIs(t, err, ErrInvalidSite)

	_, err = f.mgr.AddSite(ctx, site("s4"))
	require.NoError(t, err)
	_, err = f.mgr.AddSite(ctx, site("s4"))
	assert.ErrorIs(t, err, ErrDuplicateSite)
}

func TestUpdateSiteKeepsRuntimeState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.AddSite(ctx, site("s1", "m1"))
	require.NoError(t, err)

	_, _, _, err = f.mgr.RecordResult(ctx, "s1", "m1", models.MonitorCheckResult{Status: models.StatusUp, ResponseTime: 42}, time.Now())
	require.NoError(t, err)

	name := "Renamed"
	updated, err := f.mgr.UpdateSite(ctx, "s1", SiteUpdate{
		Name:     &name,
		Monitors: []models.Monitor{{ID: "m1", Type: "http", URL: "https://example.org"}, {ID: "m2", Type: "http", URL: "https://example.net"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	require.Len(t, updated.Monitors, 2)
	assert.Equal(t, models.StatusUp, updated.Monitors[0].Status)
	assert.EqualValues(t, 42, updated.Monitors[0].ResponseTime)
	assert.Equal(t, models.StatusPending, updated.Monitors[1].Status)

	_, err = f.mgr.UpdateSite(ctx, "ghost", SiteUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrSiteNotFound)
}

func TestRemoveMonitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.AddSite(ctx, site("s1", "m1", "m2"))
	require.NoError(t, err)

	s, err := f.mgr.RemoveMonitor(ctx, "s1", "m1")
	require.NoError(t, err)
	require.Len(t, s.Monitors, 1)
	assert.Equal(t, "m2", s.Monitors[0].ID)

	_, err = f.mgr.RemoveMonitor(ctx, "s1", "m1")
	assert.ErrorIs(t, err, ErrMonitorNotFound)
}

func TestRecordResultPrunesToLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.AddSite(ctx, site("s1", "m1"))
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		_, _, _, err := f.mgr.RecordResult(ctx, "s1", "m1", models.MonitorCheckResult{Status: models.StatusUp}, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	_, err = f.mgr.SetHistoryLimit(ctx, 5)
	require.NoError(t, err)

	hist, err := f.mgr.History(ctx, "s1", "m1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 5)
	assert.Equal(t, base.Add(7*time.Second), hist[0].Timestamp)

	prev, _, mon, err := f.mgr.RecordResult(ctx, "s1", "m1", models.MonitorCheckResult{Status: models.StatusDown, Error: "refused"}, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, prev)
	assert.Equal(t, models.StatusDown, mon.Status)
	assert.Equal(t, "refused", mon.LastError)

	hist, err = f.mgr.History(ctx, "s1", "m1", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 5)
	assert.Equal(t, "refused", hist[0].Details)
}

type failingStats struct {
	store.Store
}

func (failingStats) IncrementStat(context.Context, string, int64) error {
	return errors.New("disk full")
}

func TestRecordResultLogsStatFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	st, err := store.NewSQLite(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	c, err := cache.New[string, models.Site](cache.Options{Name: "sites", DefaultTTL: time.Minute, EntityType: cache.TypeSite})
	require.NoError(t, err)

	mgr := NewManager(failingStats{st}, events.New("test", logger), c, nil, logger)
	ctx := context.Background()
	_, err = mgr.AddSite(ctx, site("s1", "m1"))
	require.NoError(t, err)

	_, _, mon, err := mgr.RecordResult(ctx, "s1", "m1", models.MonitorCheckResult{Status: models.StatusUp}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, mon.Status)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		if !strings.Contains(line, "stat update failed") {
			continue
		}
		found = true
		assert.Contains(t, line, "disk full")
		assert.Equal(t, 1, strings.Count(line, `"component":"sites"`), line)
	}
	assert.True(t, found, logs.String())
}

func TestHistoryLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, models.DefaultHistoryLimit, f.mgr.HistoryLimit(ctx))

	_, err := f.mgr.SetHistoryLimit(ctx, -5)
	assert.ErrorIs(t, err, ErrInvalidHistLimit)
	assert.Equal(t, models.DefaultHistoryLimit, f.mgr.HistoryLimit(ctx))

	_, err = f.mgr.SetHistoryLimit(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, f.mgr.HistoryLimit(ctx))

	require.NoError(t, f.mgr.ResetSettings(ctx))
	assert.Equal(t, models.DefaultHistoryLimit, f.mgr.HistoryLimit(ctx))
	assert.Contains(t, f.seen, events.HistoryLimitUpdated.Name())
}

func TestImportSkipsInvalidMonitors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.AddSite(ctx, site("old", "m1"))
	require.NoError(t, err)

	backup := models.Backup{
		Version: models.BackupVersion,
		Sites: []models.Site{
			site("a", "m1"),
			{Identifier: "b", Monitors: []models.Monitor{{ID: "x", Type: "ftp"}, {ID: "y", Type: "http", URL: "https://b"}}},
			site("a"),
		},
		Settings: map[string]string{"historyLimit": "10"},
	}
	warnings, err := f.mgr.Import(ctx, backup)
	require.NoError(t, err)
	assert.Len(t, warnings, 2)

	all, err := f.mgr.Sites(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Identifier)
	assert.Len(t, all[1].Monitors, 1)
	assert.Equal(t, 10, f.mgr.HistoryLimit(ctx))
}

func TestSiteLoadingError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	_, err := f.mgr.Load(context.Background())
	var loadErr *SiteLoadingError
	require.ErrorAs(t, err, &loadErr)
	assert.Error(t, loadErr.Unwrap())
}
