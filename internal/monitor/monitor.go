// Package monitor schedules checks. Every monitoring-enabled monitor gets one
// goroutine, so checks of the same monitor never overlap.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"uptime-watcher/internal/cache"
	"uptime-watcher/internal/events"
	"uptime-watcher/internal/models"
	"uptime-watcher/internal/sites"
)

var ErrOperationInProgress = errors.New("a check is already running for this monitor")

// Observer receives check outcomes; metrics implement it.
type Observer interface {
	ObserveCheck(monitorType, status string, duration time.Duration)
}

type key struct {
	site    string
	monitor string
}

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
	// config the worker was started with; a change restarts it.
	interval time.Duration
	monitor  models.Monitor
}

type Scheduler struct {
	sites    *sites.Manager
	bus      *events.Bus
	checker  Checker
	observer Observer
	logger   *slog.Logger
	backoff  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	workers   map[key]*worker
	inFlight  map[key]string
	closed    bool
	suspended bool

	unsubscribe []func()
}

type Option func(*Scheduler)

// WithRetryBackoff sets the pause between retry attempts.
func WithRetryBackoff(d time.Duration) Option { return func(s *Scheduler) { s.backoff = d } }

func WithObserver(o Observer) Option { return func(s *Scheduler) { s.observer = o } }

func NewScheduler(mgr *sites.Manager, bus *events.Bus, checker Checker, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		sites:    mgr,
		bus:      bus,
		checker:  checker,
		logger:   logger.With("component", "scheduler"),
		backoff:  time.Second,
		now:      time.Now,
		workers:  make(map[key]*worker),
		inFlight: make(map[key]string),
	}
	for _, o := range opts {
		o(s)
	}
	s.unsubscribe = []func(){
		events.On(bus, events.SiteAdded, func(_ context.Context, p events.SiteChange, _ events.Meta) error {
			if p.Site != nil {
				s.reconcile(*p.Site)
			}
			return nil
		}),
		events.On(bus, events.SiteUpdated, func(_ context.Context, p events.SiteChange, _ events.Meta) error {
			if p.Site != nil {
				s.reconcile(*p.Site)
			}
			return nil
		}),
		events.On(bus, events.SiteRemoved, func(_ context.Context, p events.SiteChange, _ events.Meta) error {
			s.stopWhere(func(k key) bool { return k.site == p.Identifier })
			return nil
		}),
		events.On(bus, events.CacheInvalidated, func(_ context.Context, p events.CacheInvalidation, _ events.Meta) error {
			if p.Type == cache.TypeAll {
				s.stopWhere(func(key) bool { return true })
			}
			return nil
		}),
	}
	return s
}

// Resume starts workers for every monitor persisted with monitoring enabled
// and clears operations left over from a previous run.
func (s *Scheduler) Resume(ctx context.Context) error {
	s.mu.Lock()
	s.suspended = false
	s.mu.Unlock()
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.logger.Info("monitoring resumed", "active", s.ActiveCount())
	return nil
}

// Reload reconciles workers with the persisted sites. A suspended scheduler
// stays suspended and starts nothing.
func (s *Scheduler) Reload(ctx context.Context) error {
	all, err := s.sites.Sites(ctx)
	if err != nil {
		return err
	}
	for _, site := range all {
		for _, m := range site.Monitors {
			if len(m.ActiveOperations) == 0 {
				continue
			}
			if _, _, err := s.sites.UpdateMonitor(ctx, site.Identifier, m.ID, func(mm *models.Monitor) { mm.ActiveOperations = nil }); err != nil {
				s.logger.Warn("clearing stale operations failed", "site", site.Identifier, "monitor", m.ID, "error", err)
			}
		}
		s.reconcile(site)
	}
	return nil
}

// StartAll enables monitoring for every monitor of every site.
func (s *Scheduler) StartAll(ctx context.Context) error {
	all, err := s.sites.Sites(ctx)
	if err != nil {
		return err
	}
	for _, site := range all {
		if err := s.setMonitoring(ctx, site, "", true); err != nil {
			return err
		}
	}
	active := s.ActiveCount()
	s.logger.Info("monitoring started", "active", active)
	events.Emit(ctx, s.bus, events.MonitoringStarted, events.MonitoringState{ActiveMonitors: active, Timestamp: s.now().UTC()})
	return nil
}

// StopAll disables monitoring everywhere and pauses every monitor.
func (s *Scheduler) StopAll(ctx context.Context) error {
	all, err := s.sites.Sites(ctx)
	if err != nil {
		return err
	}
	s.stopWhere(func(key) bool { return true })
	for _, site := range all {
		if err := s.setMonitoring(ctx, site, "", false); err != nil {
			return err
		}
	}
	s.logger.Info("monitoring stopped")
	events.Emit(ctx, s.bus, events.MonitoringStopped, events.MonitoringState{ActiveMonitors: s.ActiveCount(), Timestamp: s.now().UTC()})
	return nil
}

// StartSite enables monitoring for one monitor, or for the whole site when
// monitorID is empty.
func (s *Scheduler) StartSite(ctx context.Context, identifier, monitorID string) error {
	site, err := s.sites.Site(ctx, identifier)
	if err != nil {
		return err
	}
	if err := s.setMonitoring(ctx, site, monitorID, true); err != nil {
		return err
	}
	events.Emit(ctx, s.bus, events.MonitoringStarted, events.MonitoringState{
		SiteIdentifier: identifier,
		MonitorID:      monitorID,
		ActiveMonitors: s.ActiveCount(),
		Timestamp:      s.now().UTC(),
	})
	return nil
}

// StopSite disables monitoring for one monitor, or for the whole site when
// monitorID is empty.
func (s *Scheduler) StopSite(ctx context.Context, identifier, monitorID string) error {
	site, err := s.sites.Site(ctx, identifier)
	if err != nil {
		return err
	}
	if err := s.setMonitoring(ctx, site, monitorID, false); err != nil {
		return err
	}
	events.Emit(ctx, s.bus, events.MonitoringStopped, events.MonitoringState{
		SiteIdentifier: identifier,
		MonitorID:      monitorID,
		ActiveMonitors: s.ActiveCount(),
		Timestamp:      s.now().UTC(),
	})
	return nil
}

func (s *Scheduler) setMonitoring(ctx context.Context, site models.Site, monitorID string, on bool) error {
	if monitorID != "" && site.FindMonitor(monitorID) < 0 {
		return fmt.Errorf("%w: %s/%s", sites.ErrMonitorNotFound, site.Identifier, monitorID)
	}
	if !on {
		s.stopWhere(func(k key) bool {
			return k.site == site.Identifier && (monitorID == "" || k.monitor == monitorID)
		})
	}
	for _, m := range site.Monitors {
		if monitorID != "" && m.ID != monitorID {
			continue
		}
		_, _, err := s.sites.UpdateMonitor(ctx, site.Identifier, m.ID, func(mm *models.Monitor) {
			mm.Monitoring = on
			switch {
			case !on:
				mm.Status = models.StatusPaused
			case mm.Status == models.StatusPaused:
				mm.Status = models.StatusPending
			}
		})
		if err != nil {
			return err
		}
	}
	if monitorID == "" && site.Monitoring != on {
		if _, err := s.sites.SetSiteMonitoring(ctx, site.Identifier, on); err != nil {
			return err
		}
	}
	updated, err := s.sites.Site(ctx, site.Identifier)
	if err != nil {
		return err
	}
	s.reconcile(updated)
	return nil
}

// CheckNow runs a manual check outside the schedule. It fails with
// ErrOperationInProgress when a check of the same monitor is running.
func (s *Scheduler) CheckNow(ctx context.Context, identifier, monitorID string) (models.MonitorCheckResult, error) {
	return s.runCheck(ctx, key{site: identifier, monitor: monitorID}, true)
}

// ActiveCount is the number of monitors with a running worker.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// IsRunning reports whether a worker exists for the monitor.
func (s *Scheduler) IsRunning(identifier, monitorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workers[key{identifier, monitorID}]
	return ok
}

// Suspend stops every worker and keeps new ones from starting until the
// next Resume. Persisted monitoring flags are untouched.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()
	s.stopWhere(func(key) bool { return true })
	s.logger.Info("monitoring suspended")
}

func (s *Scheduler) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

// Close stops every worker without touching persisted state and detaches
// from the bus.
func (s *Scheduler) Close() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.stopWhere(func(key) bool { return true })
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// reconcile makes the running workers of site match its monitors.
func (s *Scheduler) reconcile(site models.Site) {
	want := make(map[key]models.Monitor)
	for _, m := range site.Monitors {
		if m.Monitoring {
			want[key{site.Identifier, m.ID}] = m
		}
	}

	var stale []*worker
	s.mu.Lock()
	if s.closed || s.suspended {
		s.mu.Unlock()
		return
	}
	for k, w := range s.workers {
		if k.site != site.Identifier {
			continue
		}
		m, ok := want[k]
		if ok && !configChanged(w.monitor, m) {
			delete(want, k)
			continue
		}
		stale = append(stale, w)
		delete(s.workers, k)
	}
	for k, m := range want {
		ctx, cancel := context.WithCancel(context.Background())
		w := &worker{
			cancel:   cancel,
			done:     make(chan struct{}),
			interval: time.Duration(m.CheckIntervalMs) * time.Millisecond,
			monitor:  m,
		}
		s.workers[k] = w
		go s.loop(ctx, k, w)
	}
	s.mu.Unlock()

	for _, w := range stale {
		w.cancel()
		<-w.done
	}
}

func configChanged(a, b models.Monitor) bool {
	return a.Type != b.Type || a.URL != b.URL || a.Host != b.Host || a.Port != b.Port ||
		a.CheckIntervalMs != b.CheckIntervalMs || a.TimeoutMs != b.TimeoutMs || a.RetryAttempts != b.RetryAttempts
}

func (s *Scheduler) stopWhere(match func(key) bool) {
	var stopping []*worker
	s.mu.Lock()
	for k, w := range s.workers {
		if match(k) {
			stopping = append(stopping, w)
			delete(s.workers, k)
		}
	}
	s.mu.Unlock()
	for _, w := range stopping {
		w.cancel()
		<-w.done
	}
}

func (s *Scheduler) loop(ctx context.Context, k key, w *worker) {
	defer close(w.done)
	s.logger.Debug("monitor worker started", "site", k.site, "monitor", k.monitor, "interval", w.interval)

	s.scheduledCheck(ctx, k)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scheduledCheck(ctx, k)
		}
	}
}

func (s *Scheduler) scheduledCheck(ctx context.Context, k key) {
	_, err := s.runCheck(ctx, k, false)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ErrOperationInProgress):
		s.logger.Debug("skipping check, manual check running", "site", k.site, "monitor", k.monitor)
	default:
		s.logger.Warn("scheduled check failed", "site", k.site, "monitor", k.monitor, "error", err)
	}
}

func (s *Scheduler) claim(k key) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[k]; busy {
		return "", ErrOperationInProgress
	}
	op := uuid.NewString()
	s.inFlight[k] = op
	return op, nil
}

func (s *Scheduler) release(k key, op string) {
	s.mu.Lock()
	if s.inFlight[k] == op {
		delete(s.inFlight, k)
	}
	s.mu.Unlock()
	_, _, err := s.sites.UpdateMonitor(context.Background(), k.site, k.monitor, func(m *models.Monitor) {
		m.ActiveOperations = removeOp(m.ActiveOperations, op)
	})
	if err != nil && !errors.Is(err, sites.ErrMonitorNotFound) && !errors.Is(err, sites.ErrSiteNotFound) {
		s.logger.Warn("releasing operation failed", "site", k.site, "monitor", k.monitor, "op", op, "error", err)
	}
}

func (s *Scheduler) runCheck(ctx context.Context, k key, manual bool) (models.MonitorCheckResult, error) {
	op, err := s.claim(k)
	if err != nil {
		return models.MonitorCheckResult{}, err
	}
	defer s.release(k, op)

	_, mon, err := s.sites.UpdateMonitor(ctx, k.site, k.monitor, func(m *models.Monitor) {
		m.ActiveOperations = append(m.ActiveOperations, op)
	})
	if err != nil {
		return models.MonitorCheckResult{}, err
	}

	start := s.now()
	res, err := s.probe(ctx, mon)
	if err != nil {
		return models.MonitorCheckResult{}, err
	}
	if s.observer != nil {
		s.observer.ObserveCheck(mon.Type, res.Status, time.Since(start))
	}

	checkedAt := s.now().UTC()
	previous, site, updated, err := s.sites.RecordResult(ctx, k.site, k.monitor, res, checkedAt)
	if err != nil {
		return res, err
	}
	s.logger.Debug("check completed", "site", k.site, "monitor", k.monitor, "status", res.Status, "response_ms", res.ResponseTime, "manual", manual)

	events.Emit(ctx, s.bus, events.MonitorCheckDone, events.CheckCompleted{
		SiteIdentifier: k.site,
		MonitorID:      k.monitor,
		Result:         res,
		Manual:         manual,
		Timestamp:      checkedAt,
	})
	payload := events.MonitorStatus{Site: site, Monitor: updated, PreviousStatus: previous, Status: res.Status, Timestamp: checkedAt}
	events.Emit(ctx, s.bus, events.MonitorStatusChanged, payload)
	if previous != res.Status {
		switch res.Status {
		case models.StatusUp:
			events.Emit(ctx, s.bus, events.MonitorUp, payload)
		case models.StatusDown:
			events.Emit(ctx, s.bus, events.MonitorDown, payload)
		}
	}
	return res, nil
}

// probe runs the checker with the monitor's timeout, retrying up to
// RetryAttempts extra times until one attempt reports up.
func (s *Scheduler) probe(ctx context.Context, m models.Monitor) (models.MonitorCheckResult, error) {
	timeout := time.Duration(m.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(models.DefaultTimeoutMs) * time.Millisecond
	}

	var res models.MonitorCheckResult
	for attempt := 0; attempt <= m.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(s.backoff):
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		res = s.checker.Check(attemptCtx, m)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if timedOut && res.Status != models.StatusUp {
			res = models.MonitorCheckResult{
				Status:       models.StatusDown,
				ResponseTime: timeout.Milliseconds(),
				Error:        fmt.Sprintf("check timed out after %dms", m.TimeoutMs),
			}
		}
		if res.Status == models.StatusUp {
			return res, nil
		}
		if res.Status == "" {
			res.Status = models.StatusDown
		}
		s.logger.Debug("check attempt failed", "monitor", m.ID, "attempt", attempt+1, "of", m.RetryAttempts+1, "error", res.Error)
	}
	return res, nil
}

func removeOp(ops []string, op string) []string {
	out := ops[:0:0]
	for _, o := range ops {
		if o != op {
			out = append(out, o)
		}
	}
	return out
}
