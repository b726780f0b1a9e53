package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"uptime-watcher/internal/cache"
	"uptime-watcher/internal/cluster"
	"uptime-watcher/internal/config"
	"uptime-watcher/internal/events"
	"uptime-watcher/internal/handlers"
	"uptime-watcher/internal/ipc"
	"uptime-watcher/internal/logging"
	"uptime-watcher/internal/metrics"
	"uptime-watcher/internal/models"
	"uptime-watcher/internal/monitor"
	"uptime-watcher/internal/monitortypes"
	"uptime-watcher/internal/notify"
	"uptime-watcher/internal/server"
	"uptime-watcher/internal/sites"
	"uptime-watcher/internal/sshui"
	"uptime-watcher/internal/statesync"
	"uptime-watcher/internal/store"
	"uptime-watcher/internal/tui"
)

const shutdownTimeout = 30 * time.Second

// App is the main application
type App struct {
	config *config.Config
	logger *slog.Logger

	store     *store.SQLStore
	bus       *events.Bus
	siteCache *cache.Cache[string, models.Site]
	types     *monitortypes.Registry
	sites     *sites.Manager
	scheduler *monitor.Scheduler
	sync      *statesync.Service
	registry  *ipc.Registry
	metrics   *metrics.Metrics
	notifier  *notify.Notifier
	server    *server.Server
	ssh       *sshui.Server

	closeLogs    func()
	logFile      *os.File
	stopFollower func()

	errCh        chan error
	shutdownOnce sync.Once
}

// New creates a new application. Logs go to cfg.Logging.File when set and
// to logOut otherwise.
func New(cfg *config.Config, logOut io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{config: cfg, closeLogs: func() {}, stopFollower: func() {}, errCh: make(chan error, 2)}

	// Setup logger
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = f
		logOut = f
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	logger := logging.New(cfg.Logging, logOut)

	// Create storage
	dsn := cfg.Database.Path
	if cfg.Database.Driver == "postgres" || cfg.Database.Driver == "postgresql" {
		dsn = cfg.Database.DSN
	}
	st, err := store.Open(cfg.Database.Driver, dsn, logger.With("component", "store"))
	if err != nil {
		a.closeFile()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.Init(context.Background()); err != nil {
		_ = st.Close()
		a.closeFile()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.store = st

	// Persist warnings and errors next to the data
	if cfg.Logging.Persist {
		logger, a.closeLogs = logging.WithStore(logger, st, slog.LevelWarn)
	}
	a.logger = logger

	a.bus = events.New("uptime-watcher", logger)

	a.siteCache, err = cache.New[string, models.Site](cache.Options{
		Name:        "sites",
		DefaultTTL:  cfg.Cache.SiteTTL,
		MaxSize:     cfg.Cache.MaxSize,
		EnableStats: true,
		EntityType:  "site",
		Emitter:     events.CacheEmitter(a.bus),
	})
	if err != nil {
		a.teardownStorage()
		return nil, fmt.Errorf("failed to create site cache: %w", err)
	}

	a.types = monitortypes.NewRegistry()
	a.sites = sites.NewManager(st, a.bus, a.siteCache, a.types, logger)
	a.metrics = metrics.New()

	a.scheduler = monitor.NewScheduler(
		a.sites,
		a.bus,
		monitor.NewNetChecker(cfg.Monitoring.InsecureTLS),
		logger,
		monitor.WithRetryBackoff(cfg.Monitoring.RetryBackoff),
		monitor.WithObserver(a.metrics),
	)

	a.sync = statesync.NewService(a.sites, a.bus, logger)
	a.registry = ipc.NewRegistry(logger.With("component", "ipc"), a.metrics)

	deps := handlers.Deps{
		Sites:     a.sites,
		Scheduler: a.scheduler,
		Types:     a.types,
		Sync:      a.sync,
		Store:     st,
		Logger:    logger.With("component", "handlers"),
	}
	if cfg.IPC.OpenExternal {
		deps.Opener = handlers.BrowserOpener{}
	}
	if err := handlers.Register(a.registry, deps); err != nil {
		a.teardown(context.Background())
		return nil, fmt.Errorf("failed to register ipc handlers: %w", err)
	}

	providers := make([]notify.Provider, 0, len(cfg.Notifications.Providers))
	for _, pc := range cfg.Notifications.Providers {
		p, err := notify.GetProvider(pc)
		if err != nil {
			a.teardown(context.Background())
			return nil, fmt.Errorf("notification provider %q: %w", pc.Name, err)
		}
		providers = append(providers, p)
	}
	if len(providers) > 0 {
		a.notifier = notify.New(a.bus, providers, notify.Options{
			PerMinute: cfg.Notifications.PerMinute,
			Burst:     cfg.Notifications.Burst,
		}, logger)
		logger.Info("notifications enabled", "providers", len(providers))
	}

	a.registerMetrics()

	srvDeps := server.Deps{
		Registry: a.registry,
		Sync:     a.sync,
		Sites:    a.sites,
		Logger:   logger,
	}
	if cfg.Metrics.Enabled {
		srvDeps.Metrics = a.metrics.Handler()
	}
	a.server = server.New(server.ServerConfig{
		Addr:         cfg.IPC.ListenAddr,
		Secret:       cfg.IPC.Secret,
		EnableStatus: cfg.IPC.StatusPage,
		Title:        cfg.IPC.StatusTitle,
		EventBuffer:  cfg.IPC.EventBuffer,
	}, srvDeps)

	if cfg.SSH.Enabled {
		a.ssh, err = sshui.New(sshui.Config{
			Addr:           cfg.SSH.ListenAddr,
			HostKeyPath:    cfg.SSH.HostKeyPath,
			AuthorizedKeys: cfg.SSH.AuthorizedKeys,
		}, func() tui.Backend { return a.Local() }, logger)
		if err != nil {
			a.teardown(context.Background())
			return nil, err
		}
	}

	return a, nil
}

func (a *App) registerMetrics() {
	m := a.metrics
	m.Gauge("monitors_active", "Monitors with a running schedule", func() float64 {
		return float64(a.scheduler.ActiveCount())
	})
	m.Gauge("sync_revision", "Current state sync revision", func() float64 {
		return float64(a.sync.Revision())
	})
	m.Gauge("sync_subscribers", "Connected renderer event streams", func() float64 {
		return float64(a.sync.Subscribers())
	})
	m.Counter("sync_dropped_frames_total", "Frames dropped for slow subscribers", func() float64 {
		return float64(a.sync.Dropped())
	})
	m.Counter("bus_events_total", "Events emitted on the application bus", func() float64 {
		return float64(a.bus.Emitted())
	})
	m.WatchCache(a.siteCache.Name(), a.siteCache.Stats)
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Local returns an in-process backend for a terminal dashboard.
func (a *App) Local() *server.Local {
	return server.NewLocal(a.registry, a.sync, a.config.IPC.EventBuffer)
}

// Start loads persisted sites, resumes monitoring and starts the listeners.
func (a *App) Start(ctx context.Context) error {
	loaded, err := a.sites.Load(ctx)
	if err != nil {
		var loadErr *sites.SiteLoadingError
		if errors.As(err, &loadErr) {
			return err
		}
		return fmt.Errorf("failed to load sites: %w", err)
	}
	a.logger.Info("sites loaded", "count", len(loaded), "driver", a.store.Driver())

	switch {
	case a.config.Cluster.Mode == cluster.ModeFollower:
		a.scheduler.Suspend()
		follower := cluster.NewFollower(cluster.Config{
			Mode:      a.config.Cluster.Mode,
			PeerURL:   a.config.Cluster.PeerURL,
			SharedKey: a.config.Cluster.SharedKey,
			Interval:  a.config.Cluster.CheckInterval,
			Threshold: a.config.Cluster.FailureThreshold,
		}, a.scheduler, a.logger)
		fctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			follower.Run(fctx)
		}()
		a.stopFollower = func() {
			cancel()
			<-done
		}
	case a.config.Monitoring.AutoStart:
		if err := a.scheduler.Resume(ctx); err != nil {
			return fmt.Errorf("failed to resume monitoring: %w", err)
		}
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil {
			a.errCh <- fmt.Errorf("ipc server: %w", err)
		}
	}()
	if a.ssh != nil {
		go func() {
			if err := a.ssh.ListenAndServe(); err != nil {
				a.errCh <- fmt.Errorf("ssh server: %w", err)
			}
		}()
	}
	return nil
}

// Errors reports listener failures after Start.
func (a *App) Errors() <-chan error { return a.errCh }

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting uptime-watcher",
		"ipc_addr", a.config.IPC.ListenAddr,
		"ssh", a.ssh != nil,
		"database", a.config.Database.Driver,
	)
	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-a.errCh:
		a.logger.Error("server error", "error", runErr)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown stops components in dependency order: producers of work first,
// storage last. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down")
		a.teardown(ctx)
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) teardown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	a.stopFollower()
	if a.scheduler != nil {
		a.scheduler.Close()
	}
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.ssh != nil {
		if err := a.ssh.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("ssh server shutdown error", "error", err)
		}
	}
	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("ipc server shutdown error", "error", err)
		}
	}
	if a.sync != nil {
		a.sync.Close()
	}
	if a.registry != nil {
		a.registry.UnregisterAll()
	}
	a.teardownStorage()
}

func (a *App) teardownStorage() {
	a.closeLogs()
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Error("storage close error", "error", err)
		}
	}
	if a.bus != nil {
		a.bus.RemoveAll()
	}
	if a.siteCache != nil {
		a.siteCache.Clear()
	}
	a.closeFile()
}

func (a *App) closeFile() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}
