package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/agent-convo/internal/kv"
	"github.com/rcliao/agent-convo/internal/mirror"
	"github.com/rcliao/agent-convo/internal/model"
	"github.com/rcliao/agent-convo/internal/schedule"
)

// tick returns a clock that advances one second per call, so UpdatedAt
// ordering is deterministic.
func tick() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	opts := DefaultOptions()
	opts.Now = tick()
	s := New(context.Background(), opts)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func newPersistentStore(t *testing.T, path string) (*Store, *mirror.Mirror) {
	t.Helper()
	db, err := kv.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	m := mirror.New(db, "")
	opts := DefaultOptions()
	opts.Mirror = m
	opts.Now = tick()
	return New(context.Background(), opts), m
}

func mustCreate(t *testing.T, s *Store, agent string) model.Conversation {
	t.Helper()
	c, err := s.CreateConversation(context.Background(), CreateParams{AgentName: agent})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestCreateConversation(t *testing.T) {
	s := newTestStore(t)
	c, err := s.CreateConversation(context.Background(), CreateParams{
		AgentName: "financial_advisor",
		Metadata:  map[string]string{"source": "test"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != model.StatusIdle {
		t.Errorf("expected idle, got %s", c.Status)
	}
	if !strings.HasPrefix(c.ID, "conv_") {
		t.Errorf("expected conv_ prefix, got %q", c.ID)
	}
	if len(c.Messages) != 1 || c.Messages[0].Role != model.RoleAssistant {
		t.Fatalf("expected one greeting message, got %+v", c.Messages)
	}
	if c.Metadata["source"] != "test" {
		t.Errorf("expected metadata to be kept, got %v", c.Metadata)
	}
}

func TestCreateWithoutGreeting(t *testing.T) {
	s := New(context.Background(), Options{})
	c := mustCreate(t, s, "data_parser")
	if len(c.Messages) != 0 {
		t.Errorf("expected no messages, got %d", len(c.Messages))
	}
}

func TestCreateUnknownAgentFallsBack(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "nobody"} {
		c := mustCreate(t, s, name)
		if c.AgentName != "financial_advisor" {
			t.Errorf("agent %q: expected default agent, got %q", name, c.AgentName)
		}
	}
}

func TestUniqueIDs(t *testing.T) {
	s := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c := mustCreate(t, s, "data_parser")
		if seen[c.ID] {
			t.Fatalf("duplicate id %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetConversation(context.Background(), "conv_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddMessageUserGetsOneReply(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")

	got, err := s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "Can you help me budget?"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected greeting + user + reply, got %d", len(got.Messages))
	}
	user, answer := got.Messages[1], got.Messages[2]
	if user.Role != model.RoleUser || user.Content != "Can you help me budget?" {
		t.Errorf("unexpected user message: %+v", user)
	}
	if answer.Role != model.RoleAssistant || !strings.Contains(answer.Content, "50/30/20") {
		t.Errorf("expected budget reply, got %+v", answer)
	}
	if answer.Metadata["in_reply_to"] != user.ID {
		t.Errorf("expected reply to reference %s, got %v", user.ID, answer.Metadata)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestAddMessageNonUserNoReply(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")

	for _, role := range []model.Role{model.RoleAssistant, model.RoleSystem} {
		before, _ := s.GetConversation(ctx, c.ID)
		got, err := s.AddMessage(ctx, ByConversation(c), MessageParams{Role: role, Content: "budget"})
		if err != nil {
			t.Fatalf("add %s: %v", role, err)
		}
		if len(got.Messages) != len(before.Messages)+1 {
			t.Errorf("%s: expected exactly one new message, got %d -> %d", role, len(before.Messages), len(got.Messages))
		}
		if got.Status != model.StatusIdle {
			t.Errorf("%s: expected idle, got %s", role, got.Status)
		}
	}
}

func TestAddMessageErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")

	if _, err := s.AddMessage(ctx, ByID("conv_missing"), MessageParams{Role: model.RoleUser}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.AddMessage(ctx, ByID(""), MessageParams{Role: model.RoleUser}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty ref, got %v", err)
	}
	if _, err := s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: "tool"}); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
	got, _ := s.GetConversation(ctx, c.ID)
	if len(got.Messages) != 1 {
		t.Errorf("failed appends must not mutate, got %d messages", len(got.Messages))
	}
}

func TestAddMessageEmptyContent(t *testing.T) {
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")
	got, err := s.AddMessage(context.Background(), ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "   "})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	last, _ := got.LastMessage()
	if !strings.Contains(last.Content, "ready to help") {
		t.Errorf("expected ready message, got %q", last.Content)
	}
}

func TestMessagesAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreate(t, s, "savings_coach")

	var prev []model.Message
	for _, content := range []string{"my goal", "saving tips", "hello", ""} {
		got, err := s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: content})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if len(got.Messages) < len(prev) {
			t.Fatalf("messages shrank: %d -> %d", len(prev), len(got.Messages))
		}
		for i := range prev {
			if got.Messages[i].ID != prev[i].ID {
				t.Fatalf("message %d reordered: %s != %s", i, got.Messages[i].ID, prev[i].ID)
			}
		}
		prev = got.Messages
	}
	if len(prev) != 9 {
		t.Errorf("expected 9 messages, got %d", len(prev))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")

	c.Messages[0].Content = "mutated"
	c.Messages = append(c.Messages, model.Message{ID: "fake"})

	listed, _ := s.ListConversations(ctx, ListParams{})
	listed[0].Status = model.StatusRunning

	s.Subscribe(c.ID, func(snap model.Conversation) {
		snap.Messages[0].Content = "mutated by subscriber"
	})

	got, _ := s.GetConversation(ctx, c.ID)
	if len(got.Messages) != 1 || got.Messages[0].Content == "mutated" || got.Messages[0].Content == "mutated by subscriber" {
		t.Errorf("store state leaked: %+v", got.Messages)
	}
	if got.Status != model.StatusIdle {
		t.Errorf("status leaked: %s", got.Status)
	}
}

func TestSubscribeReplaysCurrentState(t *testing.T) {
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")

	var calls []model.Conversation
	unsub := s.Subscribe(c.ID, func(snap model.Conversation) { calls = append(calls, snap) })
	defer unsub()

	if len(calls) != 1 {
		t.Fatalf("expected 1 synchronous delivery, got %d", len(calls))
	}
	if calls[0].ID != c.ID || calls[0].Status != model.StatusIdle {
		t.Errorf("unexpected replay: %+v", calls[0])
	}
}

func TestSubscribeUnknownIDNoReplay(t *testing.T) {
	s := newTestStore(t)
	calls := 0
	s.Subscribe("conv_later", func(model.Conversation) { calls++ })
	if calls != 0 {
		t.Errorf("expected no delivery for unknown id, got %d", calls)
	}
}

func TestSubscribersSeeEveryStep(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")

	var statuses []model.Status
	s.Subscribe(c.ID, func(snap model.Conversation) { statuses = append(statuses, snap.Status) })
	s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "debt"})

	want := []model.Status{model.StatusIdle, model.StatusRunning, model.StatusCompleted}
	if len(statuses) != len(want) {
		t.Fatalf("expected %v, got %v", want, statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("step %d: expected %s, got %s", i, want[i], statuses[i])
		}
	}
}

func TestTwoSubscribersGetIndependentCopies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")

	var a, b model.Conversation
	s.Subscribe(c.ID, func(snap model.Conversation) {
		a = snap
		if len(snap.Messages) > 0 {
			snap.Messages[len(snap.Messages)-1].Content = "mutated"
		}
	})
	s.Subscribe(c.ID, func(snap model.Conversation) { b = snap })
	s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "Can you help me budget?"})

	if len(a.Messages) != len(b.Messages) {
		t.Fatalf("subscribers saw different lengths: %d vs %d", len(a.Messages), len(b.Messages))
	}
	last := len(b.Messages) - 1
	if b.Messages[last].Content == "mutated" {
		t.Error("mutation by one subscriber reached the other")
	}
	got, _ := s.GetConversation(ctx, c.ID)
	if got.Messages[last].Content == "mutated" {
		t.Error("mutation by a subscriber reached the store")
	}
}

func TestSubscriberPanicDoesNotReachCaller(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	s := New(context.Background(), opts)
	c := mustCreate(t, s, "financial_advisor")

	delivered := 0
	s.Subscribe(c.ID, func(snap model.Conversation) {
		if snap.Status == model.StatusRunning {
			panic("boom")
		}
	})
	s.Subscribe(c.ID, func(model.Conversation) { delivered++ })

	if _, err := s.AddMessage(context.Background(), ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	// initial replay + running + completed
	if delivered != 3 {
		t.Errorf("expected 3 deliveries, got %d", delivered)
	}
	if !strings.Contains(buf.String(), "subscriber_panic") {
		t.Error("expected panic to be logged")
	}
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")

	calls := 0
	unsub := s.Subscribe(c.ID, func(model.Conversation) { calls++ })
	unsub()
	unsub()
	if n := s.Subscribers(c.ID); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
	s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "hi"})
	if calls != 1 {
		t.Errorf("expected only the initial replay, got %d calls", calls)
	}
}

func TestListFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := mustCreate(t, s, "financial_advisor")
	p := mustCreate(t, s, "data_parser")
	b := mustCreate(t, s, "financial_advisor")

	// Touch a so it becomes the most recent.
	s.AddMessage(ctx, ByID(a.ID), MessageParams{Role: model.RoleSystem, Content: "note"})

	all, _ := s.ListConversations(ctx, ListParams{})
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	if all[0].ID != a.ID || all[1].ID != b.ID || all[2].ID != p.ID {
		t.Errorf("unexpected order: %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	parsers, _ := s.ListConversations(ctx, ListParams{AgentName: "data_parser"})
	if len(parsers) != 1 || parsers[0].ID != p.ID {
		t.Errorf("expected only the data_parser conversation, got %d", len(parsers))
	}

	limited, _ := s.ListConversations(ctx, ListParams{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("expected 2 with limit, got %d", len(limited))
	}
}

func TestDelayedReply(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Scheduler = schedule.NewTimerScheduler()
	opts.ReplyDelay = 20 * time.Millisecond
	s := New(ctx, opts)
	defer s.Close(ctx)

	c := mustCreate(t, s, "financial_advisor")
	done := make(chan model.Conversation, 4)
	s.Subscribe(c.ID, func(snap model.Conversation) {
		if snap.Status == model.StatusCompleted {
			done <- snap
		}
	})

	got, err := s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "invest"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got.Status != model.StatusRunning || len(got.Messages) != 2 {
		t.Errorf("expected running without reply yet, got %s with %d messages", got.Status, len(got.Messages))
	}

	select {
	case final := <-done:
		if len(final.Messages) != 3 {
			t.Errorf("expected reply appended, got %d messages", len(final.Messages))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reply never arrived")
	}
}

func TestDelayedRepliesDoNotReplaceEachOther(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Scheduler = schedule.NewTimerScheduler()
	opts.ReplyDelay = 20 * time.Millisecond
	s := New(ctx, opts)
	defer s.Close(ctx)

	c := mustCreate(t, s, "financial_advisor")
	s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "budget"})
	s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "debt"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := s.GetConversation(ctx, c.ID)
		if len(got.Messages) == 5 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected one reply per user message")
}

func TestCancelPending(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Scheduler = schedule.NewTimerScheduler()
	opts.ReplyDelay = time.Hour
	s := New(ctx, opts)
	defer s.Close(ctx)

	c := mustCreate(t, s, "financial_advisor")
	s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "budget"})

	if n := s.CancelPending(ctx, c.ID); n != 1 {
		t.Fatalf("expected 1 cancelled, got %d", n)
	}
	got, _ := s.GetConversation(ctx, c.ID)
	if got.Status != model.StatusIdle {
		t.Errorf("expected idle after cancel, got %s", got.Status)
	}
	if len(got.Messages) != 2 {
		t.Errorf("expected no reply, got %d messages", len(got.Messages))
	}
	if n := s.CancelPending(ctx, c.ID); n != 0 {
		t.Errorf("expected nothing left to cancel, got %d", n)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreate(t, s, "financial_advisor")
	s.Subscribe(c.ID, func(model.Conversation) {})

	s.Reset()
	all, _ := s.ListConversations(ctx, ListParams{})
	if len(all) != 0 {
		t.Errorf("expected empty store, got %d", len(all))
	}
	if n := s.Subscribers(c.ID); n != 0 {
		t.Errorf("expected subscriptions cleared, got %d", n)
	}
}

func TestPersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "convo.db")

	s, m := newPersistentStore(t, path)
	c := mustCreate(t, s, "data_parser")
	s.AddMessage(ctx, ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "here is a csv"})
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	m.Close()

	s2, m2 := newPersistentStore(t, path)
	defer m2.Close()
	got, err := s2.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if len(got.Messages) != 3 || got.Status != model.StatusCompleted {
		t.Errorf("unexpected reloaded state: %s with %d messages", got.Status, len(got.Messages))
	}
}

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("unreadable")
}
func (brokenKV) Set(context.Context, string, string) error { return errors.New("quota exceeded") }
func (brokenKV) Close() error                             { return nil }

func TestPersistenceFailuresAreContained(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Mirror = mirror.New(brokenKV{}, "")
	opts.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	s := New(context.Background(), opts)

	c, err := s.CreateConversation(context.Background(), CreateParams{AgentName: "financial_advisor"})
	if err != nil {
		t.Fatalf("create must not fail on write error: %v", err)
	}
	if _, err := s.AddMessage(context.Background(), ByID(c.ID), MessageParams{Role: model.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("add must not fail on write error: %v", err)
	}
	got, _ := s.GetConversation(context.Background(), c.ID)
	if len(got.Messages) != 3 {
		t.Errorf("in-memory state should be intact, got %d messages", len(got.Messages))
	}
	out := buf.String()
	if !strings.Contains(out, "load_failed") || !strings.Contains(out, "persist_failed") {
		t.Errorf("expected load and persist failures to be logged, got:\n%s", out)
	}
}

func TestMalformedMirrorStartsEmpty(t *testing.T) {
	ctx := context.Background()
	db := kv.NewMemoryStore()
	db.Set(ctx, mirror.DefaultKey, "not json")
	opts := DefaultOptions()
	opts.Mirror = mirror.New(db, "")
	s := New(ctx, opts)

	all, _ := s.ListConversations(ctx, ListParams{})
	if len(all) != 0 {
		t.Errorf("expected empty store, got %d", len(all))
	}
	mustCreate(t, s, "financial_advisor")
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.CreateConversation(ctx, CreateParams{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
