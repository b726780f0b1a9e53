package events

import (
	"context"
	"time"

	"uptime-watcher/internal/cache"
	"uptime-watcher/internal/models"
)

// MonitorStatus is carried by monitor status events.
type MonitorStatus struct {
	Site           models.Site    `json:"site"`
	Monitor        models.Monitor `json:"monitor"`
	PreviousStatus string         `json:"previousStatus"`
	Status         string         `json:"status"`
	Timestamp      time.Time      `json:"timestamp"`
}

type CheckCompleted struct {
	SiteIdentifier string                    `json:"siteIdentifier"`
	MonitorID      string                    `json:"monitorId"`
	Result         models.MonitorCheckResult `json:"result"`
	Manual         bool                      `json:"manual"`
	Timestamp      time.Time                 `json:"timestamp"`
}

type MonitoringState struct {
	SiteIdentifier string    `json:"siteIdentifier,omitempty"`
	MonitorID      string    `json:"monitorId,omitempty"`
	ActiveMonitors int       `json:"activeMonitors"`
	Timestamp      time.Time `json:"timestamp"`
}

type SiteChange struct {
	Identifier string       `json:"identifier"`
	Site       *models.Site `json:"site,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

type CacheInvalidation struct {
	cache.Invalidation
	Timestamp time.Time `json:"timestamp"`
}

type SyncRequest struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

type StateSynchronized struct {
	SiteCount int       `json:"siteCount"`
	Revision  uint64    `json:"revision"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryLimitChange struct {
	Limit     int       `json:"limit"`
	Previous  int       `json:"previous"`
	Timestamp time.Time `json:"timestamp"`
}

var (
	MonitorStatusChanged = Define[MonitorStatus]("monitor:status-changed")
	MonitorUp            = Define[MonitorStatus]("monitor:up")
	MonitorDown          = Define[MonitorStatus]("monitor:down")
	MonitorCheckDone     = Define[CheckCompleted]("monitor:check-completed")

	MonitoringStarted = Define[MonitoringState]("monitoring:started")
	MonitoringStopped = Define[MonitoringState]("monitoring:stopped")

	SiteAdded   = Define[SiteChange]("site:added")
	SiteUpdated = Define[SiteChange]("site:updated")
	SiteRemoved = Define[SiteChange]("site:removed")

	CacheInvalidated = Define[CacheInvalidation]("cache:invalidated")

	FullSyncRequested   = Define[SyncRequest]("sync:full-requested")
	SitesSynchronized   = Define[StateSynchronized]("sites:state-synchronized")
	HistoryLimitUpdated = Define[HistoryLimitChange]("settings:history-limit-updated")
)

// CacheEmitter forwards cache invalidations onto the bus.
func CacheEmitter(b *Bus) cache.Emitter {
	return cache.EmitterFunc(func(inv cache.Invalidation) {
		Emit(context.Background(), b, CacheInvalidated, CacheInvalidation{Invalidation: inv, Timestamp: time.Now().UTC()})
	})
}
