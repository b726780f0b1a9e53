// Package notify sends alerts when monitors go down or recover.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"uptime-watcher/internal/events"
	"uptime-watcher/internal/models"
)

type Alert struct {
	Title   string
	Message string
}

type Options struct {
	// PerMinute caps alerts across all providers. Zero means unlimited.
	PerMinute float64
	Burst     int
	Queue     int
	Timeout   time.Duration
}

// Notifier forwards monitor transitions to providers. Bus handlers only
// enqueue; a single worker does the network I/O.
type Notifier struct {
	providers []Provider
	limiter   *rate.Limiter
	queue     chan Alert
	timeout   time.Duration
	logger    *slog.Logger

	detach []func()
	wg     sync.WaitGroup
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

func New(bus *events.Bus, providers []Provider, opts Options, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if opts.PerMinute > 0 {
		limit = rate.Limit(opts.PerMinute / 60)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		providers: providers,
		limiter:   rate.NewLimiter(limit, opts.Burst),
		queue:     make(chan Alert, opts.Queue),
		timeout:   opts.Timeout,
		logger:    logger.With("component", "notify"),
		ctx:       ctx,
		cancel:    cancel,
	}
	n.detach = append(n.detach,
		events.On(bus, events.MonitorDown, n.onTransition),
		events.On(bus, events.MonitorUp, n.onTransition),
	)
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *Notifier) onTransition(_ context.Context, p events.MonitorStatus, _ events.Meta) error {
	if len(n.providers) == 0 {
		return nil
	}
	a := Format(p)
	if !n.limiter.Allow() {
		n.logger.Warn("alert rate limited", "title", a.Title)
		return nil
	}
	select {
	case n.queue <- a:
	default:
		n.logger.Warn("alert queue full, dropping", "title", a.Title)
	}
	return nil
}

// Format renders the title and body of an alert for a status transition.
func Format(p events.MonitorStatus) Alert {
	name := p.Site.DisplayName()
	target := p.Monitor.URL
	if p.Monitor.Type == "port" {
		target = fmt.Sprintf("%s:%d", p.Monitor.Host, p.Monitor.Port)
	}
	switch p.Status {
	case models.StatusDown:
		msg := fmt.Sprintf("%s monitor %s is DOWN.", p.Monitor.Type, target)
		if p.Monitor.LastError != "" {
			msg += "\nError: " + p.Monitor.LastError
		}
		return Alert{Title: name + " is down", Message: msg}
	default:
		return Alert{
			Title:   name + " is up",
			Message: fmt.Sprintf("%s monitor %s recovered (%dms).", p.Monitor.Type, target, p.Monitor.ResponseTime),
		}
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for {
		select {
		case a := <-n.queue:
			n.dispatch(a)
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Notifier) dispatch(a Alert) {
	for _, p := range n.providers {
		ctx, cancel := context.WithTimeout(n.ctx, n.timeout)
		err := p.Send(ctx, a.Title, a.Message)
		cancel()
		if err != nil {
			n.logger.Error("alert delivery failed", "provider", p.Name(), "title", a.Title, "error", err)
			continue
		}
		n.logger.Info("alert sent", "provider", p.Name(), "title", a.Title)
	}
}

// Close detaches from the bus and stops the worker. Queued alerts are dropped.
func (n *Notifier) Close() {
	n.once.Do(func() {
		for _, d := range n.detach {
			d()
		}
		n.cancel()
		n.wg.Wait()
	})
}
