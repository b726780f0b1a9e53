package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrDuplicateChannel = errors.New("ipc: channel already registered")
	ErrUnknownChannel   = errors.New("ipc: unknown channel")
)

// Handler runs a channel body with already validated params.
type Handler func(ctx context.Context, params []any) (any, error)

// Observer receives per-call outcomes; metrics implement it.
type Observer interface {
	ObserveCall(channel string, outcome string, duration time.Duration)
}

// Call outcomes reported to the Observer.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeValidation = "validation_error"
)

type registration struct {
	handler   Handler
	validator Validator
}

// Registry owns every channel binding. Each channel can be registered once.
type Registry struct {
	logger   *slog.Logger
	observer Observer

	mu       sync.RWMutex
	channels map[Channel]registration
}

func NewRegistry(logger *slog.Logger, observer Observer) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		observer: observer,
		channels: make(map[Channel]registration),
	}
}

// Register binds handler and validator to channel. Registering a channel
// twice is a programming error and fails.
func (r *Registry) Register(channel Channel, handler Handler, validator Validator) error {
	if handler == nil {
		return fmt.Errorf("ipc: nil handler for %s", channel)
	}
	if validator == nil {
		validator = NoParams()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[channel]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, channel)
	}
	r.channels[channel] = registration{handler: handler, validator: validator}
	r.logger.Debug("registered ipc handler", "channel", channel)
	return nil
}

// Invoke validates params, runs the handler and wraps the outcome. It never
// returns a raw error; every failure is converted into a Response.
func (r *Registry) Invoke(ctx context.Context, channel Channel, params []any) Response {
	r.mu.RLock()
	reg, ok := r.channels[channel]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("ipc call to unknown channel", "channel", channel)
		r.observe(channel, OutcomeError, 0)
		return Failure(channel, fmt.Errorf("%w: %s", ErrUnknownChannel, channel), 0)
	}
	if params == nil {
		params = []any{}
	}

	if errs := reg.validator(params); len(errs) > 0 {
		r.logger.Warn("ipc parameter validation failed", "channel", channel, "errors", errs)
		r.observe(channel, OutcomeValidation, 0)
		return ValidationFailure(channel, errs)
	}

	start := time.Now()
	data, err := r.run(ctx, reg.handler, params)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Error("ipc handler failed",
			"channel", channel,
			"duration", elapsed,
			"params", len(params),
			"error", err,
		)
		r.observe(channel, OutcomeError, elapsed)
		return Failure(channel, err, elapsed)
	}

	r.logger.Debug("ipc handler completed", "channel", channel, "duration", elapsed)
	r.observe(channel, OutcomeSuccess, elapsed)
	if data == nil {
		data = true
	}
	var warnings []string
	if w, ok := data.(warned); ok {
		data, warnings = w.unwrap()
	}
	return Success(channel, data, elapsed, warnings...)
}

func (r *Registry) run(ctx context.Context, h Handler, params []any) (data any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx, params)
}

func (r *Registry) observe(channel Channel, outcome string, d time.Duration) {
	if r.observer != nil {
		r.observer.ObserveCall(string(channel), outcome, d)
	}
}

// IsRegistered reports whether channel has a handler.
func (r *Registry) IsRegistered(channel Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channel]
	return ok
}

// Channels returns the registered channel names, sorted.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.channels))
	for c := range r.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnregisterAll removes every binding; used on shutdown.
func (r *Registry) UnregisterAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = make(map[Channel]registration)
}

type warned interface {
	unwrap() (any, []string)
}

// WithWarnings lets a handler attach non-fatal warnings to a successful result.
type WithWarnings struct {
	Data     any
	Warnings []string
}

func (w WithWarnings) unwrap() (any, []string) {
	data := w.Data
	if data == nil {
		data = true
	}
	return data, w.Warnings
}
