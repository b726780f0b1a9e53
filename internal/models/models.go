package models

import "time"

// Monitor statuses.
const (
	StatusUp      = "up"
	StatusDown    = "down"
	StatusPending = "pending"
	StatusPaused  = "paused"
)

// Defaults applied to monitors that omit scheduling settings.
const (
	DefaultCheckIntervalMs = 300000
	DefaultTimeoutMs       = 10000
	DefaultRetryAttempts   = 3
	DefaultHistoryLimit    = 500
	MinCheckIntervalMs     = 5000

	// BackupVersion is written into exported data.
	BackupVersion = 1
)

type Site struct {
	Identifier string    `json:"identifier"`
	Name       string    `json:"name,omitempty"`
	Monitoring bool      `json:"monitoring"`
	Monitors   []Monitor `json:"monitors"`
}

type Monitor struct {
	ID              string    `json:"id"`
	SiteIdentifier  string    `json:"-"`
	Type            string    `json:"type"`
	CheckIntervalMs int       `json:"checkIntervalMs"`
	TimeoutMs       int       `json:"timeoutMs"`
	RetryAttempts   int       `json:"retryAttempts"`
	Monitoring      bool      `json:"monitoring"`
	Status          string    `json:"status"`
	ResponseTime    int64     `json:"responseTime"`
	LastError       string    `json:"lastError,omitempty"`
	LastChecked     time.Time `json:"lastChecked,omitempty"`

	URL  string `json:"url,omitempty"`
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	ActiveOperations []string `json:"activeOperations,omitempty"`
}

// HistoryEntry is one persisted check outcome.
type HistoryEntry struct {
	ID           int64     `json:"-"`
	MonitorID    string    `json:"monitorId"`
	Timestamp    time.Time `json:"timestamp"`
	Status       string    `json:"status"`
	ResponseTime int64     `json:"responseTime"`
	Details      string    `json:"details,omitempty"`
}

// MonitorCheckResult is what a checker reports for a single attempt.
type MonitorCheckResult struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"responseTime"`
	Details      string `json:"details,omitempty"`
	Error        string `json:"error,omitempty"`
}

type Backup struct {
	Version    int               `json:"version"`
	ExportedAt time.Time         `json:"exportedAt"`
	Sites      []Site            `json:"sites"`
	Settings   map[string]string `json:"settings"`
}

// ApplyDefaults fills zero scheduling fields with the application defaults.
func (m *Monitor) ApplyDefaults() {
	if m.CheckIntervalMs <= 0 {
		m.CheckIntervalMs = DefaultCheckIntervalMs
	}
	if m.TimeoutMs <= 0 {
		m.TimeoutMs = DefaultTimeoutMs
	}
	if m.RetryAttempts < 0 {
		m.RetryAttempts = 0
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
}

// FindMonitor returns the index of the monitor with the given id, or -1.
func (s *Site) FindMonitor(id string) int {
	for i := range s.Monitors {
		if s.Monitors[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can hand sites across goroutines.
func (s Site) Clone() Site {
	out := s
	out.Monitors = make([]Monitor, len(s.Monitors))
	for i, m := range s.Monitors {
		m.ActiveOperations = append([]string(nil), m.ActiveOperations...)
		out.Monitors[i] = m
	}
	return out
}

// DisplayName falls back to the identifier when no name was given.
func (s Site) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Identifier
}
