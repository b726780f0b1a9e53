package statesync

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Frame is one revision-stamped event as delivered to renderers.
type Frame struct {
	Event         string          `json:"event"`
	Revision      uint64          `json:"revision"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type subscriber struct {
	id     string
	ch     chan Frame
	closed atomic.Bool
}

// Broadcaster fans frames out to renderer subscriptions. Publish never
// blocks: a subscriber whose buffer is full misses the frame and notices the
// revision gap.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[string]*subscriber
	dropped atomic.Int64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*subscriber)}
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel and is safe to call more than once.
func (b *Broadcaster) Subscribe(buffer int) (string, <-chan Frame, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{id: uuid.NewString(), ch: make(chan Frame, buffer)}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return sub.id, sub.ch, func() { b.Unsubscribe(sub.id) }
}

func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	sub := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if sub != nil && sub.closed.CompareAndSwap(false, true) {
		close(sub.ch)
	}
}

func (b *Broadcaster) Publish(f Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- f:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers is the number of connected renderers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts frames lost to full subscriber buffers.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

// Close unsubscribes everyone.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()
	for _, sub := range subs {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
}
