// Package events implements the typed in-process event bus. Delivery is
// synchronous: Emit returns after every handler for the event has run, in
// registration order. Handler failures never reach the emitter.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Name string

// Event is a typed event descriptor. The payload type is fixed at definition
// so On and Emit are checked by the compiler.
type Event[P any] struct {
	name Name
}

func Define[P any](name Name) Event[P] { return Event[P]{name: name} }

func (e Event[P]) Name() Name { return e.name }

// Meta is attached to every emission.
type Meta struct {
	BusID         string    `json:"busId"`
	CorrelationID string    `json:"correlationId"`
	Event         Name      `json:"eventName"`
	Timestamp     time.Time `json:"timestamp"`
}

// Envelope is the untyped view of an emission seen by wildcard observers.
type Envelope struct {
	Name    Name
	Payload any
	Meta    Meta
}

type Handler[P any] func(ctx context.Context, payload P, meta Meta) error

// HandlerError is the payload of the bus:handler-error diagnostic event.
type HandlerError struct {
	Event         Name   `json:"event"`
	CorrelationID string `json:"correlationId"`
	Error         string `json:"error"`
}

var HandlerFailed = Define[HandlerError]("bus:handler-error")

type subscription struct {
	id     uint64
	call   func(ctx context.Context, payload any, meta Meta) error
	active atomic.Bool
}

// Bus routes typed events to subscribers.
type Bus struct {
	id     string
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[Name][]*subscription
	wildcard []*subscription
	seq      uint64

	emitted atomic.Int64
}

func New(name string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		id:       name,
		logger:   logger,
		handlers: make(map[Name][]*subscription),
	}
}

func (b *Bus) ID() string { return b.id }

// On registers h for ev and returns an idempotent unsubscribe function.
func On[P any](b *Bus, ev Event[P], h Handler[P]) func() {
	sub := &subscription{
		call: func(ctx context.Context, payload any, meta Meta) error {
			p, ok := payload.(P)
			if !ok {
				return fmt.Errorf("payload type %T does not match event %s", payload, ev.name)
			}
			return h(ctx, p, meta)
		},
	}
	return b.add(ev.name, sub)
}

// OnAny registers a wildcard observer that sees every emission after the
// typed handlers of that emission have run.
func (b *Bus) OnAny(h func(ctx context.Context, env Envelope)) func() {
	sub := &subscription{
		call: func(ctx context.Context, payload any, meta Meta) error {
			h(ctx, Envelope{Name: meta.Event, Payload: payload, Meta: meta})
			return nil
		},
	}
	return b.add("", sub)
}

func (b *Bus) add(name Name, sub *subscription) func() {
	b.mu.Lock()
	b.seq++
	sub.id = b.seq
	sub.active.Store(true)
	if name == "" {
		b.wildcard = append(b.wildcard, sub)
	} else {
		b.handlers[name] = append(b.handlers[name], sub)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, sub.id) })
	}
}

func (b *Bus) remove(name Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[name]
	if name == "" {
		list = b.wildcard
	}
	for i, s := range list {
		if s.id == id {
			s.active.Store(false)
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if name == "" {
		b.wildcard = list
	} else if len(list) == 0 {
		delete(b.handlers, name)
	} else {
		b.handlers[name] = list
	}
}

// Emit delivers payload to every handler of ev.
func Emit[P any](ctx context.Context, b *Bus, ev Event[P], payload P) {
	b.emit(ctx, ev.name, payload)
}

func (b *Bus) emit(ctx context.Context, name Name, payload any) {
	meta := Meta{
		BusID:         b.id,
		CorrelationID: uuid.NewString(),
		Event:         name,
		Timestamp:     time.Now().UTC(),
	}
	b.emitted.Add(1)

	b.mu.RLock()
	typed := append([]*subscription(nil), b.handlers[name]...)
	wildcard := append([]*subscription(nil), b.wildcard...)
	b.mu.RUnlock()

	for _, sub := range typed {
		if !sub.active.Load() {
			continue
		}
		if err := b.invoke(ctx, sub, payload, meta); err != nil {
			b.handlerFailed(ctx, meta, err)
		}
	}
	for _, sub := range wildcard {
		if !sub.active.Load() {
			continue
		}
		if err := b.invoke(ctx, sub, payload, meta); err != nil {
			b.logger.Error("event observer failed", "event", name, "error", err)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, payload any, meta Meta) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.call(ctx, payload, meta)
}

func (b *Bus) handlerFailed(ctx context.Context, meta Meta, err error) {
	b.logger.Error("event handler failed",
		"event", meta.Event,
		"correlation_id", meta.CorrelationID,
		"error", err,
	)
	// Failures of the diagnostic event itself are only logged.
	if meta.Event == HandlerFailed.name {
		return
	}
	b.emit(ctx, HandlerFailed.name, HandlerError{
		Event:         meta.Event,
		CorrelationID: meta.CorrelationID,
		Error:         err.Error(),
	})
}

// ListenerCount reports typed handlers registered for name.
func (b *Bus) ListenerCount(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Emitted is the number of emissions since construction.
func (b *Bus) Emitted() int64 { return b.emitted.Load() }

// RemoveAll detaches every handler and observer.
func (b *Bus) RemoveAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, list := range b.handlers {
		for _, s := range list {
			s.active.Store(false)
		}
	}
	for _, s := range b.wildcard {
		s.active.Store(false)
	}
	b.handlers = make(map[Name][]*subscription)
	b.wildcard = nil
}
