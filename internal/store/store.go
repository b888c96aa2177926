// Package store provides the in-memory conversation store, its message
// appender and its subscription entry point.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rcliao/agent-convo/internal/bus"
	"github.com/rcliao/agent-convo/internal/idgen"
	"github.com/rcliao/agent-convo/internal/metrics"
	"github.com/rcliao/agent-convo/internal/mirror"
	"github.com/rcliao/agent-convo/internal/model"
	"github.com/rcliao/agent-convo/internal/schedule"
)

var (
	// ErrNotFound is returned when a conversation reference does not resolve.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidRole is returned when a message has an unknown role.
	ErrInvalidRole = errors.New("invalid role")
)

// CreateParams holds parameters for creating a conversation.
type CreateParams struct {
	AgentName string
	Metadata  map[string]string
}

// ListParams holds parameters for listing conversations.
type ListParams struct {
	AgentName string
	Limit     int // 0 means unlimited
}

// MessageParams holds parameters for appending a message.
type MessageParams struct {
	Role     model.Role
	Content  string
	Metadata map[string]string
}

type refKind int

const (
	refID refKind = iota
	refConversation
)

// Ref names a conversation either by id or by a previously returned record.
type Ref struct {
	kind refKind
	id   string
}

// ByID refers to a conversation by its id.
func ByID(id string) Ref { return Ref{kind: refID, id: id} }

// ByConversation refers to the stored record c was copied from.
func ByConversation(c model.Conversation) Ref { return Ref{kind: refConversation, id: c.ID} }

func (r Ref) String() string {
	if r.kind == refConversation {
		return "conversation:" + r.id
	}
	return "id:" + r.id
}

// Options configures a Store.
type Options struct {
	Mirror    *mirror.Mirror
	Scheduler schedule.Scheduler
	// ReplyDelay is passed to Scheduler for every synthesized reply.
	ReplyDelay   time.Duration
	IDs          *idgen.Generator
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
	SeedGreeting bool
}

// DefaultOptions returns options for an unpersisted store with synchronous
// replies and greeting seeding enabled.
func DefaultOptions() Options {
	return Options{SeedGreeting: true}
}

// Store owns every conversation for its lifetime. Readers and subscribers
// only ever see deep copies.
type Store struct {
	mu    sync.Mutex
	convs map[string]model.Conversation

	// queue holds notifications in mutation order. It is drained by one
	// goroutine at a time, outside mu, so callbacks may call back into the
	// store; their own notifications are queued behind the current one.
	queue    []delivery
	draining bool

	bus     *bus.Bus
	mirror  *mirror.Mirror
	sched   schedule.Scheduler
	delay   time.Duration
	ids     *idgen.Generator
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	greet   bool
}

// New builds a Store and loads any mirrored state. Load failures are logged
// and the store starts empty.
func New(ctx context.Context, opts Options) *Store {
	s := &Store{
		convs:   make(map[string]model.Conversation),
		mirror:  opts.Mirror,
		sched:   opts.Scheduler,
		delay:   opts.ReplyDelay,
		ids:     opts.IDs,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		greet:   opts.SeedGreeting,
	}
	if s.mirror == nil {
		s.mirror = mirror.New(nil, "")
	}
	if s.sched == nil {
		s.sched = schedule.Immediate{}
	}
	if s.ids == nil {
		s.ids = idgen.New()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.bus = bus.New(s.log, s.metrics)

	loaded, err := s.mirror.Load(ctx)
	if err != nil {
		s.metrics.PersistenceFailed("load")
		s.log.Warn("load_failed", "key", s.mirror.Key(), "error", err)
	}
	now := s.timestamp()
	for id, c := range loaded {
		// No reply can be pending for a record that was just loaded.
		if c.Status == model.StatusRunning {
			c.Status = model.StatusIdle
			c.UpdatedAt = now
			loaded[id] = c
			s.log.Info("stale_running_settled", "conversation", id)
		}
	}
	s.convs = loaded
	if len(loaded) > 0 {
		s.log.Debug("conversations_loaded", "count", len(loaded))
	}
	return s
}

// delivery is one queued notification. A nil fn means every subscriber of id.
type delivery struct {
	id   string
	snap model.Conversation
	fn   bus.Func
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// resolve turns any Ref into a canonical id. Every entry point goes
// through it before touching state.
func resolve(ref Ref) (string, error) {
	if ref.id == "" {
		return "", ErrNotFound
	}
	return ref.id, nil
}

// persistLocked writes the full map through the mirror. Failures are
// contained here. Callers hold s.mu.
func (s *Store) persistLocked(ctx context.Context) {
	if !s.mirror.Enabled() {
		return
	}
	if err := s.mirror.Persist(ctx, s.convs); err != nil {
		s.metrics.PersistenceFailed("persist")
		s.log.Warn("persist_failed", "key", s.mirror.Key(), "error", err)
	}
}

// publishAndUnlock queues snap for every subscriber of its conversation
// and releases s.mu. Callers hold s.mu.
func (s *Store) publishAndUnlock(snap model.Conversation) {
	s.queue = append(s.queue, delivery{id: snap.ID, snap: snap})
	s.drainAndUnlock()
}

// drainAndUnlock delivers queued notifications in order and releases s.mu.
// If another call is already draining, it only releases the lock: that
// call picks up whatever was queued.
func (s *Store) drainAndUnlock() {
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		d := s.queue[0]
		s.queue[0] = delivery{}
		s.queue = s.queue[1:]
		s.mu.Unlock()
		if d.fn != nil {
			s.bus.Deliver(d.id, d.fn, d.snap)
		} else {
			s.bus.Publish(d.id, d.snap)
		}
		s.mu.Lock()
	}
	s.queue = nil
	s.draining = false
	s.mu.Unlock()
}

// Subscribe registers fn for conversation id. If the conversation exists fn
// receives its current state before Subscribe returns, unless a delivery is
// already in progress (for example when called from a callback); then the
// state is queued behind the pending notifications. The returned func
// unsubscribes and is safe to call more than once.
func (s *Store) Subscribe(id string, fn bus.Func) func() {
	s.mu.Lock()
	unsub := s.bus.Subscribe(id, fn)
	if c, ok := s.convs[id]; ok {
		s.queue = append(s.queue, delivery{id: id, snap: c.Clone(), fn: fn})
	}
	s.drainAndUnlock()
	return unsub
}

// Subscribers returns the number of callbacks registered for id.
func (s *Store) Subscribers(id string) int {
	return s.bus.Count(id)
}

// Reset drops all conversations, subscriptions and pending replies. The
// mirror is left untouched.
func (s *Store) Reset() {
	s.mu.Lock()
	for id := range s.convs {
		s.sched.Cancel(id)
	}
	s.convs = make(map[string]model.Conversation)
	s.queue = nil
	s.mu.Unlock()
	s.bus.Reset()
}

// Close cancels pending replies and writes a final snapshot. Conversations
// whose reply was cancelled go back to idle first, so nothing is persisted
// as running. It does not close the mirror.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	cancelled := 0
	now := s.timestamp()
	for id, c := range s.convs {
		n := s.sched.Cancel(id)
		if n == 0 {
			continue
		}
		cancelled += n
		if c.Status == model.StatusRunning {
			c.Status = model.StatusIdle
			c.UpdatedAt = now
			s.convs[id] = c
			s.queue = append(s.queue, delivery{id: id, snap: c.Clone()})
		}
	}
	s.metrics.ReplyCancelled(cancelled)
	if cancelled > 0 {
		s.log.Info("pending_replies_cancelled", "count", cancelled)
	}
	var err error
	if s.mirror.Enabled() {
		err = s.mirror.Persist(ctx, s.convs)
	}
	s.drainAndUnlock()
	return err
}
