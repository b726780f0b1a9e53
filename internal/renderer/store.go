// Package renderer holds the UI side copy of daemon state. It applies full
// snapshots and revision-stamped deltas and decides when to resynchronize.
package renderer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"uptime-watcher/internal/cache"
	"uptime-watcher/internal/events"
	"uptime-watcher/internal/models"
	"uptime-watcher/internal/statesync"
)

// Syncer fetches a full snapshot from the daemon.
type Syncer interface {
	FullSync(ctx context.Context) (statesync.Snapshot, error)
}

type SyncerFunc func(ctx context.Context) (statesync.Snapshot, error)

func (f SyncerFunc) FullSync(ctx context.Context) (statesync.Snapshot, error) { return f(ctx) }

type Store struct {
	syncer Syncer
	logger *slog.Logger

	mu           sync.RWMutex
	sites        map[string]models.Site
	watermark    uint64
	synchronized bool
	lastSync     time.Time
	historyLimit int
	lastEvent    string
	listeners    []func()

	syncMu sync.Mutex
}

func NewStore(syncer Syncer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		syncer:       syncer,
		logger:       logger.With("component", "renderer"),
		sites:        make(map[string]models.Site),
		historyLimit: models.DefaultHistoryLimit,
	}
}

// OnChange registers fn to run after every state change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// ApplySnapshot replaces all state and reports whether it did. While the
// store is synchronized, a snapshot older than the applied deltas is
// discarded. An unsynchronized store takes any snapshot, which covers a
// restarted daemon whose revisions start over.
func (s *Store) ApplySnapshot(snap statesync.Snapshot) bool {
	s.mu.Lock()
	if s.synchronized && snap.Revision < s.watermark {
		have := s.watermark
		s.mu.Unlock()
		s.logger.Debug("stale snapshot discarded", "revision", snap.Revision, "have", have)
		return false
	}
	s.sites = make(map[string]models.Site, len(snap.Sites))
	for _, site := range snap.Sites {
		s.sites[site.Identifier] = site.Clone()
	}
	s.watermark = snap.Revision
	s.synchronized = true
	s.lastSync = snap.CapturedAt
	s.mu.Unlock()
	s.logger.Debug("snapshot applied", "sites", len(snap.Sites), "revision", snap.Revision)
	s.notify()
	return true
}

// ApplyFrame applies one delta. It returns whether the frame changed state
// and whether a full sync is now required.
func (s *Store) ApplyFrame(f statesync.Frame) (applied, resync bool) {
	s.mu.Lock()
	if f.Revision <= s.watermark {
		s.mu.Unlock()
		return false, false
	}
	if f.Revision > s.watermark+1 {
		s.logger.Warn("revision gap, resynchronizing", "have", s.watermark, "got", f.Revision)
		s.synchronized = false
		resync = true
	}
	s.watermark = f.Revision
	s.lastEvent = f.Event
	if s.applyLocked(f) {
		resync = true
	}
	s.mu.Unlock()
	s.notify()
	return true, resync
}

// applyLocked mutates state for f and reports whether the event itself
// demands a full sync.
func (s *Store) applyLocked(f statesync.Frame) bool {
	switch events.Name(f.Event) {
	case events.SiteAdded.Name(), events.SiteUpdated.Name():
		var p events.SiteChange
		if !s.decode(f, &p) || p.Site == nil {
			return true
		}
		s.sites[p.Identifier] = p.Site.Clone()
	case events.SiteRemoved.Name():
		var p events.SiteChange
		if !s.decode(f, &p) {
			return true
		}
		delete(s.sites, p.Identifier)
	case events.MonitorStatusChanged.Name(), events.MonitorUp.Name(), events.MonitorDown.Name():
		var p events.MonitorStatus
		if !s.decode(f, &p) {
			return true
		}
		site, ok := s.sites[p.Site.Identifier]
		if !ok {
			s.sites[p.Site.Identifier] = p.Site.Clone()
			return false
		}
		if i := site.FindMonitor(p.Monitor.ID); i >= 0 {
			site = site.Clone()
			site.Monitors[i] = p.Monitor
			s.sites[site.Identifier] = site
		} else {
			s.sites[p.Site.Identifier] = p.Site.Clone()
		}
	case events.HistoryLimitUpdated.Name():
		var p events.HistoryLimitChange
		if s.decode(f, &p) {
			s.historyLimit = p.Limit
		}
	case events.CacheInvalidated.Name():
		var p events.CacheInvalidation
		if !s.decode(f, &p) {
			return true
		}
		return p.Type == cache.TypeAll
	case events.MonitoringStarted.Name(), events.MonitoringStopped.Name():
		// Monitoring flags changed on many monitors at once.
		return true
	}
	return false
}

func (s *Store) decode(f statesync.Frame, out any) bool {
	if err := json.Unmarshal(f.Payload, out); err != nil {
		s.logger.Warn("undecodable event payload", "event", f.Event, "error", err)
		return false
	}
	return true
}

// Handle applies f and runs a full sync when needed.
func (s *Store) Handle(ctx context.Context, f statesync.Frame) error {
	if _, resync := s.ApplyFrame(f); resync {
		return s.Resync(ctx)
	}
	return nil
}

// Resync fetches and applies a snapshot. Overlapping calls are serialized.
func (s *Store) Resync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	snap, err := s.syncer.FullSync(ctx)
	if err != nil {
		s.mu.Lock()
		s.synchronized = false
		s.mu.Unlock()
		s.notify()
		return err
	}
	s.ApplySnapshot(snap)
	return nil
}

// MarkUnsynchronized flags the state as stale, e.g. after the event stream
// dropped.
func (s *Store) MarkUnsynchronized() {
	s.mu.Lock()
	s.synchronized = false
	s.mu.Unlock()
	s.notify()
}

// Sites returns a sorted copy of every known site.
func (s *Store) Sites() []models.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

func (s *Store) Site(identifier string) (models.Site, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[identifier]
	return site.Clone(), ok
}

func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

func (s *Store) Synchronized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synchronized
}

func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

func (s *Store) HistoryLimit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyLimit
}

// SetHistoryLimit records a limit read from the daemon.
func (s *Store) SetHistoryLimit(n int) {
	s.mu.Lock()
	s.historyLimit = n
	s.mu.Unlock()
	s.notify()
}

func (s *Store) LastEvent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEvent
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}
