package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uptime-watcher/internal/cache"
)

const namespace = "uptime_watcher"

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	IPCCallsTotal          *prometheus.CounterVec
	IPCCallDurationSeconds *prometheus.HistogramVec

	ChecksTotal          *prometheus.CounterVec
	CheckDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		IPCCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_calls_total",
				Help:      "Total number of IPC channel invocations",
			},
			[]string{"channel", "outcome"},
		),
		IPCCallDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ipc_call_duration_seconds",
				Help:      "IPC handler duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of monitor checks by result",
			},
			[]string{"type", "status"},
		),
		CheckDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Monitor check duration in seconds, retries included",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"type"},
		),
		registry: reg,
	}
	reg.MustRegister(
		m.IPCCallsTotal,
		m.IPCCallDurationSeconds,
		m.ChecksTotal,
		m.CheckDurationSeconds,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCall implements ipc.Observer.
func (m *Metrics) ObserveCall(channel, outcome string, d time.Duration) {
	m.IPCCallsTotal.WithLabelValues(channel, outcome).Inc()
	if d > 0 {
		m.IPCCallDurationSeconds.WithLabelValues(channel).Observe(d.Seconds())
	}
}

// ObserveCheck implements monitor.Observer.
func (m *Metrics) ObserveCheck(monitorType, status string, d time.Duration) {
	m.ChecksTotal.WithLabelValues(monitorType, status).Inc()
	m.CheckDurationSeconds.WithLabelValues(monitorType).Observe(d.Seconds())
}

// Gauge registers a gauge whose value is read at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, fn))
}

// Counter registers a counter whose value is read at scrape time.
func (m *Metrics) Counter(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, fn))
}

// WatchCache exports a cache's statistics.
func (m *Metrics) WatchCache(name string, stats func() cache.Stats) {
	m.registry.MustRegister(&cacheCollector{name: name, stats: stats})
}

var (
	cacheHitsDesc = prometheus.NewDesc(namespace+"_cache_hits_total", "Cache hits", []string{"cache"}, nil)
	cacheMissDesc = prometheus.NewDesc(namespace+"_cache_misses_total", "Cache misses", []string{"cache"}, nil)
	cacheEvicDesc = prometheus.NewDesc(namespace+"_cache_evictions_total", "Cache evictions", []string{"cache"}, nil)
	cacheSizeDesc = prometheus.NewDesc(namespace+"_cache_entries", "Entries currently cached", []string{"cache"}, nil)
)

type cacheCollector struct {
	name  string
	stats func() cache.Stats
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheHitsDesc
	ch <- cacheMissDesc
	ch <- cacheEvicDesc
	ch <- cacheSizeDesc
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(cacheHitsDesc, prometheus.CounterValue, float64(s.Hits), c.name)
	ch <- prometheus.MustNewConstMetric(cacheMissDesc, prometheus.CounterValue, float64(s.Misses), c.name)
	ch <- prometheus.MustNewConstMetric(cacheEvicDesc, prometheus.CounterValue, float64(s.Evictions), c.name)
	ch <- prometheus.MustNewConstMetric(cacheSizeDesc, prometheus.GaugeValue, float64(s.Size), c.name)
}
