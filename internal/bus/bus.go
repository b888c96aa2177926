// Package bus delivers conversation snapshots to per-conversation subscribers.
package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rcliao/agent-convo/internal/metrics"
	"github.com/rcliao/agent-convo/internal/model"
)

// Func receives a snapshot. The snapshot is owned by the callee.
type Func func(model.Conversation)

type entry struct {
	seq uint64
	fn  Func
}

// Bus is a per-conversation observer registry. Delivery is synchronous, in
// registration order, and each subscriber gets its own deep copy.
type Bus struct {
	mu     sync.Mutex
	subs   map[string][]entry
	seq    uint64
	log    *slog.Logger
	metric *metrics.Metrics
}

// New returns an empty Bus. log may be nil.
func New(log *slog.Logger, m *metrics.Metrics) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		subs:   make(map[string][]entry),
		log:    log,
		metric: m,
	}
}

// Subscribe registers fn for conversation id. The returned func removes it
// and may be called any number of times.
func (b *Bus) Subscribe(id string, fn Func) func() {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.subs[id] = append(b.subs[id], entry{seq: seq, fn: fn})
	b.mu.Unlock()
	b.metric.Subscribed()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id, seq) })
	}
}

func (b *Bus) remove(id string, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[id]
	for i, e := range list {
		if e.seq != seq {
			continue
		}
		// Copy rather than shift in place: Publish may be iterating the old slice.
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, id)
		} else {
			b.subs[id] = next
		}
		b.metric.Unsubscribed(1)
		return
	}
}

// Publish delivers snap to every subscriber of id registered at call time.
// A panicking subscriber is logged and skipped.
func (b *Bus) Publish(id string, snap model.Conversation) {
	b.mu.Lock()
	list := b.subs[id]
	b.mu.Unlock()

	for _, e := range list {
		b.deliver(id, e.fn, snap.Clone())
	}
}

// Deliver invokes a single callback with the same isolation and recovery
// as Publish.
func (b *Bus) Deliver(id string, fn Func, snap model.Conversation) {
	b.deliver(id, fn, snap.Clone())
}

func (b *Bus) deliver(id string, fn Func, snap model.Conversation) {
	defer func() {
		if r := recover(); r != nil {
			b.metric.SubscriberPanicked()
			b.log.Error("subscriber_panic", "conversation", id, "error", fmt.Sprint(r))
		}
	}()
	fn(snap)
}

// Count returns the number of subscribers for id.
func (b *Bus) Count(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[id])
}

// Topics returns the number of conversation ids with at least one subscriber.
func (b *Bus) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Reset drops every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	n := 0
	for _, list := range b.subs {
		n += len(list)
	}
	b.subs = make(map[string][]entry)
	b.mu.Unlock()
	b.metric.Unsubscribed(n)
}
