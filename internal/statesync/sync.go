// Package statesync keeps renderers consistent with the daemon. Every
// renderer-facing bus event is stamped with a monotonic revision and
// broadcast; a full sync returns the authoritative site list together with
// the revision it reflects.
package statesync

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"uptime-watcher/internal/events"
	"uptime-watcher/internal/models"
)

// SiteSource supplies the authoritative site list.
type SiteSource interface {
	Sites(ctx context.Context) ([]models.Site, error)
}

// Snapshot is the result of a full sync.
type Snapshot struct {
	Sites      []models.Site `json:"sites"`
	Revision   uint64        `json:"revision"`
	CapturedAt time.Time     `json:"capturedAt"`
	SiteCount  int           `json:"siteCount"`
}

// Status answers get-sync-status.
type Status struct {
	Success      bool       `json:"success"`
	Synchronized bool       `json:"synchronized"`
	SiteCount    int        `json:"siteCount"`
	LastSync     *time.Time `json:"lastSync"`
}

// forwarded lists the events renderers receive.
var forwarded = map[events.Name]bool{
	events.MonitorStatusChanged.Name(): true,
	events.MonitorUp.Name():            true,
	events.MonitorDown.Name():          true,
	events.MonitorCheckDone.Name():     true,
	events.MonitoringStarted.Name():    true,
	events.MonitoringStopped.Name():    true,
	events.SiteAdded.Name():            true,
	events.SiteUpdated.Name():          true,
	events.SiteRemoved.Name():          true,
	events.CacheInvalidated.Name():     true,
	events.SitesSynchronized.Name():    true,
	events.HistoryLimitUpdated.Name():  true,
}

type Service struct {
	source SiteSource
	bus    *events.Bus
	caster *Broadcaster
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	// publishMu keeps revision order and broadcast order identical.
	publishMu sync.Mutex
	revision  atomic.Uint64

	mu        sync.RWMutex
	lastSync  time.Time
	siteCount int

	detach func()
}

func NewService(source SiteSource, bus *events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		source: source,
		bus:    bus,
		caster: NewBroadcaster(),
		logger: logger.With("component", "statesync"),
		now:    time.Now,
	}
	s.detach = bus.OnAny(s.forward)
	return s
}

func (s *Service) forward(_ context.Context, env events.Envelope) {
	if !forwarded[env.Name] {
		return
	}
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		s.logger.Error("event payload not serializable", "event", env.Name, "error", err)
		return
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	rev := s.revision.Add(1)
	s.caster.Publish(Frame{
		Event:         string(env.Name),
		Revision:      rev,
		Timestamp:     env.Meta.Timestamp,
		CorrelationID: env.Meta.CorrelationID,
		Payload:       raw,
	})
}

// FullSync captures the current site list. Concurrent callers share one
// database read.
//
// The revision is read before the sites: every event stamped at or below it
// was emitted after its write committed, so the snapshot already contains it.
func (s *Service) FullSync(ctx context.Context, source string) (Snapshot, error) {
	events.Emit(ctx, s.bus, events.FullSyncRequested, events.SyncRequest{Source: source, Timestamp: s.now().UTC()})

	v, err, shared := s.group.Do("full-sync", func() (any, error) {
		rev := s.revision.Load()
		sites, err := s.source.Sites(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		if sites == nil {
			sites = []models.Site{}
		}
		snap := Snapshot{Sites: sites, Revision: rev, CapturedAt: s.now().UTC(), SiteCount: len(sites)}

		s.mu.Lock()
		s.lastSync = snap.CapturedAt
		s.siteCount = snap.SiteCount
		s.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		s.logger.Error("full sync failed", "source", source, "error", err)
		return Snapshot{}, err
	}
	snap := v.(Snapshot)
	if !shared {
		events.Emit(ctx, s.bus, events.SitesSynchronized, events.StateSynchronized{
			SiteCount: snap.SiteCount,
			Revision:  snap.Revision,
			Source:    source,
			Timestamp: snap.CapturedAt,
		})
	}
	s.logger.Debug("full sync", "source", source, "sites", snap.SiteCount, "revision", snap.Revision, "shared", shared)
	return cloneSnapshot(snap), nil
}

func cloneSnapshot(s Snapshot) Snapshot {
	sites := make([]models.Site, len(s.Sites))
	for i, site := range s.Sites {
		sites[i] = site.Clone()
	}
	s.Sites = sites
	return s
}

// Status reports the daemon side view of synchronization.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.RLock()
	last := s.lastSync
	s.mu.RUnlock()

	st := Status{Success: true, Synchronized: !last.IsZero()}
	if !last.IsZero() {
		st.LastSync = &last
	}
	sites, err := s.source.Sites(ctx)
	if err != nil {
		s.logger.Warn("sync status could not read sites", "error", err)
		st.Success = false
		st.Synchronized = false
		s.mu.RLock()
		st.SiteCount = s.siteCount
		s.mu.RUnlock()
		return st
	}
	st.SiteCount = len(sites)
	return st
}

// Subscribe attaches a renderer. The returned revision is the watermark the
// renderer starts from; frames on the channel are all newer.
func (s *Service) Subscribe(buffer int) (id string, frames <-chan Frame, cancel func(), revision uint64) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	id, frames, cancel = s.caster.Subscribe(buffer)
	return id, frames, cancel, s.revision.Load()
}

// Revision is the last stamped revision.
func (s *Service) Revision() uint64 { return s.revision.Load() }

// Subscribers is the number of attached renderers.
func (s *Service) Subscribers() int { return s.caster.Subscribers() }

// Dropped counts frames lost to slow renderers.
func (s *Service) Dropped() int64 { return s.caster.Dropped() }

// Close detaches from the bus and disconnects renderers.
func (s *Service) Close() {
	if s.detach != nil {
		s.detach()
	}
	s.caster.Close()
}
