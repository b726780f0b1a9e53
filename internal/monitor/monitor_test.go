package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime-watcher/internal/cache"
	"uptime-watcher/internal/events"
	"uptime-watcher/internal/models"
	"uptime-watcher/internal/sites"
	"uptime-watcher/internal/store"
)

type harness struct {
	mgr   *sites.Manager
	bus   *events.Bus
	sched *Scheduler

	mu       sync.Mutex
	statuses []events.MonitorStatus
	downs    int
	ups      int
}

func newHarness(t *testing.T, checker Checker) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLite(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))

	bus := events.New("test", logger)
	c, err := cache.New[string, models.Site](cache.Options{Name: "sites", DefaultTTL: time.Minute, EntityType: cache.TypeSite})
	require.NoError(t, err)

	h := &harness{bus: bus, mgr: sites.NewManager(st, bus, c, nil, logger)}
	h.sched = NewScheduler(h.mgr, bus, checker, logger, WithRetryBackoff(time.Millisecond))
	events.On(bus, events.MonitorStatusChanged, func(_ context.Context, p events.MonitorStatus, _ events.Meta) error {
		h.mu.Lock()
		h.statuses = append(h.statuses, p)
		h.mu.Unlock()
		return nil
	})
	events.On(bus, events.MonitorDown, func(context.Context, events.MonitorStatus, events.Meta) error {
		h.mu.Lock()
		h.downs++
		h.mu.Unlock()
		return nil
	})
	events.On(bus, events.MonitorUp, func(context.Context, events.MonitorStatus, events.Meta) error {
		h.mu.Lock()
		h.ups++
		h.mu.Unlock()
		return nil
	})
	t.Cleanup(func() {
		h.sched.Close()
		_ = st.Close()
	})
	return h
}

func (h *harness) addSite(t *testing.T, monitoring bool, retries int) {
	t.Helper()
	m := models.Monitor{ID: "m1", Type: "http", URL: "https://example.com", Monitoring: monitoring, RetryAttempts: retries, TimeoutMs: 50, CheckIntervalMs: 60000}
	_, err := h.mgr.AddSite(context.Background(), models.Site{Identifier: "s1", Monitoring: monitoring, Monitors: []models.Monitor{m}})
	require.NoError(t, err)
}

func upChecker() CheckerFunc {
	return func(context.Context, models.Monitor) models.MonitorCheckResult {
		return models.MonitorCheckResult{Status: models.StatusUp, ResponseTime: 5, Details: "200"}
	}
}

func TestCheckNowRecordsResult(t *testing.T) {
	h := newHarness(t, upChecker())
	h.addSite(t, false, 0)

	res, err := h.sched.CheckNow(context.Background(), "s1", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, res.Status)

	site, err := h.mgr.Site(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, site.Monitors[0].Status)
	assert.Empty(t, site.Monitors[0].ActiveOperations)

	hist, err := h.mgr.History(context.Background(), "s1", "m1", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.statuses, 1)
	assert.Equal(t, models.StatusPending, h.statuses[0].PreviousStatus)
	assert.Equal(t, 1, h.ups)
}

func TestRetriesStopOnFirstSuccess(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, CheckerFunc(func(context.Context, models.Monitor) models.MonitorCheckResult {
		if calls.Add(1) < 3 {
			return models.MonitorCheckResult{Status: models.StatusDown, Error: "refused"}
		}
		return models.MonitorCheckResult{Status: models.StatusUp}
	}))
	h.addSite(t, false, 3)

	res, err := h.sched.CheckNow(context.Background(), "s1", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, res.Status)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetriesExhaustedReportsDown(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, CheckerFunc(func(context.Context, models.Monitor) models.MonitorCheckResult {
		calls.Add(1)
		return models.MonitorCheckResult{Status: models.StatusDown, Error: "refused"}
	}))
	h.addSite(t, false, 2)

	res, err := h.sched.CheckNow(context.Background(), "s1", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDown, res.Status)
	assert.EqualValues(t, 3, calls.Load())

	h.mu.Lock()
	assert.Equal(t, 1, h.downs)
	h.mu.Unlock()
}

func TestTimeoutMeansDown(t *testing.T) {
	h := newHarness(t, CheckerFunc(func(ctx context.Context, _ models.Monitor) models.MonitorCheckResult {
		<-ctx.Done()
		return models.MonitorCheckResult{Status: models.StatusDown, Error: ctx.Err().Error()}
	}))
	h.addSite(t, false, 0)

	res, err := h.sched.CheckNow(context.Background(), "s1", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDown, res.Status)
	assert.Contains(t, res.Error, "timed out after 50ms")
}

func TestConcurrentManualCheckRejected(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	h := newHarness(t, CheckerFunc(func(ctx context.Context, _ models.Monitor) models.MonitorCheckResult {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
		}
		return models.MonitorCheckResult{Status: models.StatusUp}
	}))
	h.addSite(t, false, 0)
	// Give the slow check room to finish inside the timeout window.
	_, err := h.mgr.UpdateSite(context.Background(), "s1", sites.SiteUpdate{Monitors: []models.Monitor{
		{ID: "m1", Type: "http", URL: "https://example.com", TimeoutMs: 5000, CheckIntervalMs: 60000},
	}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.sched.CheckNow(context.Background(), "s1", "m1")
		done <- err
	}()
	<-started

	_, err = h.sched.CheckNow(context.Background(), "s1", "m1")
	assert.ErrorIs(t, err, ErrOperationInProgress)

	site, err := h.mgr.Site(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, site.Monitors[0].ActiveOperations, 1)

	close(release)
	require.NoError(t, <-done)
}

func TestStartStopSite(t *testing.T) {
	h := newHarness(t, upChecker())
	h.addSite(t, false, 0)
	ctx := context.Background()
	assert.Zero(t, h.sched.ActiveCount())

	require.NoError(t, h.sched.StartSite(ctx, "s1", ""))
	assert.True(t, h.sched.IsRunning("s1", "m1"))
	site, err := h.mgr.Site(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, site.Monitoring)
	assert.True(t, site.Monitors[0].Monitoring)

	require.NoError(t, h.sched.StopSite(ctx, "s1", "m1"))
	assert.False(t, h.sched.IsRunning("s1", "m1"))
	site, err = h.mgr.Site(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, site.Monitors[0].Status)

	err = h.sched.StartSite(ctx, "s1", "ghost")
	assert.ErrorIs(t, err, sites.ErrMonitorNotFound)
	err = h.sched.StartSite(ctx, "ghost", "")
	assert.ErrorIs(t, err, sites.ErrSiteNotFound)
}

func TestSiteEventsDriveWorkers(t *testing.T) {
	h := newHarness(t, upChecker())
	h.addSite(t, true, 0)
	assert.True(t, h.sched.IsRunning("s1", "m1"))

	_, err := h.mgr.RemoveSite(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, h.sched.ActiveCount())
}

func TestStartAllAndStopAll(t *testing.T) {
	h := newHarness(t, upChecker())
	h.addSite(t, false, 0)
	ctx := context.Background()

	require.NoError(t, h.sched.StartAll(ctx))
	assert.Equal(t, 1, h.sched.ActiveCount())
	require.NoError(t, h.sched.StopAll(ctx))
	assert.Zero(t, h.sched.ActiveCount())

	site, err := h.mgr.Site(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, site.Monitoring)
}

func TestSuspendKeepsFlagsAndBlocksWorkers(t *testing.T) {
	h := newHarness(t, upChecker())
	h.addSite(t, true, 0)
	ctx := context.Background()

	h.sched.Suspend()
	assert.True(t, h.sched.Suspended())
	assert.Zero(t, h.sched.ActiveCount())

	_, err := h.mgr.UpdateSite(ctx, "s1", sites.SiteUpdate{})
	require.NoError(t, err)
	assert.Zero(t, h.sched.ActiveCount())

	site, err := h.mgr.Site(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, site.Monitors[0].Monitoring)

	require.NoError(t, h.sched.Resume(ctx))
	assert.False(t, h.sched.Suspended())
	assert.True(t, h.sched.IsRunning("s1", "m1"))
}
