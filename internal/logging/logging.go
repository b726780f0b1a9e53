// Package logging builds the daemon's slog loggers.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"uptime-watcher/internal/config"
)

// New creates a logger based on configuration.
func New(cfg config.LoggingConfig, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Sink persists log records.
type Sink interface {
	AppendLog(ctx context.Context, level, message, data string) error
}

type persisted struct {
	level   string
	message string
	data    string
}

// writer owns the background goroutine that drains records into the sink.
// Writes never happen on the logging goroutine, which may be holding the
// database's only connection inside a transaction.
type writer struct {
	sink Sink
	ch   chan persisted
	wg   sync.WaitGroup
	once sync.Once
}

func (w *writer) run() {
	defer w.wg.Done()
	for rec := range w.ch {
		_ = w.sink.AppendLog(context.Background(), rec.level, rec.message, rec.data)
	}
}

func (w *writer) close() {
	w.once.Do(func() {
		close(w.ch)
		w.wg.Wait()
	})
}

// StoreHandler passes every record to the wrapped handler and additionally
// persists records at or above min.
type StoreHandler struct {
	inner  slog.Handler
	min    slog.Level
	w      *writer
	attrs  []slog.Attr // keys already qualified by their group
	prefix string
	closed *sync.RWMutex
	done   *bool
}

// WithStore returns a logger that tees records at min or above into sink,
// and a func that flushes and detaches the sink.
func WithStore(logger *slog.Logger, sink Sink, min slog.Level) (*slog.Logger, func()) {
	w := &writer{sink: sink, ch: make(chan persisted, 256)}
	w.wg.Add(1)
	go w.run()
	done := false
	h := &StoreHandler{inner: logger.Handler(), min: min, w: w, closed: &sync.RWMutex{}, done: &done}
	return slog.New(h), func() {
		h.closed.Lock()
		*h.done = true
		h.closed.Unlock()
		w.close()
	}
}

func (h *StoreHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min || h.inner.Enabled(ctx, level)
}

func (h *StoreHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.inner.Enabled(ctx, r.Level) {
		err = h.inner.Handle(ctx, r)
	}
	if r.Level >= h.min {
		h.persist(r)
	}
	return err
}

func (h *StoreHandler) persist(r slog.Record) {
	data := make(map[string]any)
	for _, a := range h.attrs {
		data[a.Key] = attrValue(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		data[h.prefix+a.Key] = attrValue(a)
		return true
	})
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("{}")
	}

	h.closed.RLock()
	defer h.closed.RUnlock()
	if *h.done {
		return
	}
	select {
	case h.w.ch <- persisted{level: r.Level.String(), message: r.Message, data: string(raw)}:
	default:
	}
}

func (h *StoreHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.inner = h.inner.WithAttrs(attrs)
	c.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &c
}

func (h *StoreHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.inner = h.inner.WithGroup(name)
	c.prefix = h.prefix + name + "."
	return &c
}

func attrValue(a slog.Attr) any {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindAny {
		if e, ok := v.Any().(error); ok {
			return e.Error()
		}
	}
	if v.Kind() == slog.KindGroup {
		out := make(map[string]any)
		for _, g := range v.Group() {
			out[g.Key] = attrValue(g)
		}
		return out
	}
	return v.Any()
}
