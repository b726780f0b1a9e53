package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"uptime-watcher/internal/notify"
)

// Config is the daemon configuration.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	IPC           IPCConfig          `yaml:"ipc"`
	SSH           SSHConfig          `yaml:"ssh"`
	Cache         CacheConfig        `yaml:"cache"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Notifications NotificationConfig `yaml:"notifications"`
	Cluster       ClusterConfig      `yaml:"cluster"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

type IPCConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	Secret       string `yaml:"secret"`
	EventBuffer  int    `yaml:"event_buffer"`
	StatusPage   bool   `yaml:"status_page"`
	StatusTitle  string `yaml:"status_title"`
	OpenExternal bool   `yaml:"open_external"`
}

type SSHConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ListenAddr     string `yaml:"listen_addr"`
	HostKeyPath    string `yaml:"host_key_path"`
	AuthorizedKeys string `yaml:"authorized_keys"`
}

type CacheConfig struct {
	SiteTTL time.Duration `yaml:"site_ttl"`
	MaxSize int           `yaml:"max_size"`
}

type MonitoringConfig struct {
	AutoStart    bool          `yaml:"auto_start"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	InsecureTLS  bool          `yaml:"insecure_tls"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`  // debug, info, warn, error
	Format  string `yaml:"format"` // json, text
	File    string `yaml:"file"`   // empty logs to stderr
	Persist bool   `yaml:"persist"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ClusterConfig pairs a follower with a leader sharing the same database.
type ClusterConfig struct {
	Mode             string        `yaml:"mode"` // standalone, leader or follower
	PeerURL          string        `yaml:"peer_url"`
	SharedKey        string        `yaml:"shared_key"`
	CheckInterval    time.Duration `yaml:"check_interval"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

type NotificationConfig struct {
	PerMinute float64                 `yaml:"per_minute"`
	Burst     int                     `yaml:"burst"`
	Providers []notify.ProviderConfig `yaml:"providers"`
}

// DefaultConfig returns a configuration usable without any file.
func DefaultConfig() *Config {
	cfg := &Config{
		Monitoring: MonitoringConfig{AutoStart: true},
		Metrics:    MetricsConfig{Enabled: true},
		Logging:    LoggingConfig{Persist: true},
	}
	cfg.setDefaults()
	return cfg
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "uptime-watcher.db"
	}
	if c.IPC.ListenAddr == "" {
		c.IPC.ListenAddr = "127.0.0.1:8787"
	}
	if c.IPC.EventBuffer == 0 {
		c.IPC.EventBuffer = 256
	}
	if c.IPC.StatusTitle == "" {
		c.IPC.StatusTitle = "Uptime Watcher"
	}
	if c.SSH.ListenAddr == "" {
		c.SSH.ListenAddr = ":23234"
	}
	if c.SSH.HostKeyPath == "" {
		c.SSH.HostKeyPath = ".ssh/id_ed25519"
	}
	if c.SSH.AuthorizedKeys == "" {
		c.SSH.AuthorizedKeys = "authorized_keys"
	}
	if c.Cache.SiteTTL == 0 {
		c.Cache.SiteTTL = 10 * time.Minute
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Monitoring.RetryBackoff == 0 {
		c.Monitoring.RetryBackoff = time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Notifications.Burst == 0 {
		c.Notifications.Burst = 5
	}
	if c.Cluster.Mode == "" {
		c.Cluster.Mode = "standalone"
	}
	if c.Cluster.CheckInterval == 0 {
		c.Cluster.CheckInterval = 5 * time.Second
	}
	if c.Cluster.FailureThreshold == 0 {
		c.Cluster.FailureThreshold = 3
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres", "postgresql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("invalid database.driver: %s (must be sqlite or postgres)", c.Database.Driver)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if c.IPC.EventBuffer < 1 {
		return fmt.Errorf("ipc.event_buffer must be positive")
	}
	if c.Cache.SiteTTL < 0 {
		return fmt.Errorf("cache.site_ttl must not be negative")
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size must not be negative")
	}
	if c.Monitoring.RetryBackoff < 0 {
		return fmt.Errorf("monitoring.retry_backoff must not be negative")
	}
	if c.Notifications.PerMinute < 0 {
		return fmt.Errorf("notifications.per_minute must not be negative")
	}

	switch c.Cluster.Mode {
	case "standalone", "leader":
	case "follower":
		if c.Cluster.PeerURL == "" {
			return fmt.Errorf("cluster.peer_url is required for followers")
		}
	default:
		return fmt.Errorf("invalid cluster.mode: %s (must be standalone, leader, or follower)", c.Cluster.Mode)
	}

	for i, p := range c.Notifications.Providers {
		if _, err := notify.GetProvider(p); err != nil {
			return fmt.Errorf("notifications.providers[%d]: %w", i, err)
		}
	}
	return nil
}
