// Package cluster runs a standby daemon that takes over monitoring when its
// peer stops answering health checks. Both daemons are expected to share one
// database.
package cluster

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"uptime-watcher/internal/server"
)

const (
	ModeStandalone = "standalone"
	ModeLeader     = "leader"
	ModeFollower   = "follower"
)

type Config struct {
	Mode      string
	PeerURL   string // e.g. http://primary:8787
	SharedKey string
	Interval  time.Duration
	Threshold int // consecutive failed probes before taking over
}

// Engine is the part of the scheduler a follower drives.
type Engine interface {
	Resume(ctx context.Context) error
	Suspend()
	Suspended() bool
}

type Follower struct {
	cfg      Config
	engine   Engine
	client   *http.Client
	logger   *slog.Logger
	failures int
}

func NewFollower(cfg Config, engine Engine, logger *slog.Logger) *Follower {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.PeerURL = strings.TrimRight(cfg.PeerURL, "/")
	return &Follower{
		cfg:    cfg,
		engine: engine,
		client: &http.Client{Timeout: 2 * time.Second},
		logger: logger.With("component", "cluster"),
	}
}

// Run starts passive and probes the leader until ctx ends.
func (f *Follower) Run(ctx context.Context) {
	f.logger.Info("running as follower", "peer", f.cfg.PeerURL)
	f.engine.Suspend()

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.step(ctx)
		}
	}
}

func (f *Follower) step(ctx context.Context) {
	if f.leaderHealthy(ctx) {
		f.failures = 0
		if !f.engine.Suspended() {
			f.engine.Suspend()
			f.logger.Warn("leader detected, switching to passive")
		}
		return
	}

	f.failures++
	if f.failures >= f.cfg.Threshold && f.engine.Suspended() {
		if err := f.engine.Resume(ctx); err != nil {
			f.logger.Error("takeover failed", "error", err)
			return
		}
		f.logger.Warn("leader unreachable, switching to active", "failures", f.failures)
	}
}

func (f *Follower) leaderHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.PeerURL+"/health", nil)
	if err != nil {
		return false
	}
	if f.cfg.SharedKey != "" {
		req.Header.Set(server.SecretHeader, f.cfg.SharedKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
