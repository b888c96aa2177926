package store

import (
	"context"
	"fmt"

	"github.com/rcliao/agent-convo/internal/idgen"
	"github.com/rcliao/agent-convo/internal/model"
	"github.com/rcliao/agent-convo/internal/reply"
)

// AddMessage appends a message to the referenced conversation and marks it
// running. A user message schedules exactly one synthesized assistant reply;
// other roles return the conversation to idle. Subscribers are notified
// after every step.
//
// With a synchronous scheduler the returned copy already holds the reply.
// With a delay it reflects the running state.
func (s *Store) AddMessage(ctx context.Context, ref Ref, p MessageParams) (model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return model.Conversation{}, err
	}
	if !p.Role.Valid() {
		return model.Conversation{}, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}
	id, err := resolve(ref)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("%w: %s", err, ref)
	}

	s.mu.Lock()
	c, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return model.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.timestamp()
	msg := model.Message{
		ID:        s.ids.New(idgen.PrefixMessage),
		Role:      p.Role,
		Content:   p.Content,
		CreatedAt: now,
		Metadata:  cloneMeta(p.Metadata),
	}
	c.Messages = append(c.Messages, msg)
	c.Status = model.StatusRunning
	c.UpdatedAt = now
	s.convs[id] = c
	s.persistLocked(ctx)
	s.metrics.MessageAppended(string(msg.Role))
	s.publishAndUnlock(c.Clone())

	if msg.Role == model.RoleUser {
		s.sched.Schedule(id, msg.ID, s.delay, func() {
			s.appendReply(id, msg)
		})
	} else {
		s.settle(ctx, id)
	}

	return s.GetConversation(context.WithoutCancel(ctx), id)
}

// appendReply adds the synthesized answer to trigger and completes the
// conversation. It is a no-op if the conversation has since been reset.
func (s *Store) appendReply(id string, trigger model.Message) {
	s.mu.Lock()
	c, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		s.log.Debug("reply_dropped", "conversation", id, "trigger", trigger.ID)
		return
	}
	now := s.timestamp()
	c.Messages = append(c.Messages, model.Message{
		ID:        s.ids.New(idgen.PrefixMessage),
		Role:      model.RoleAssistant,
		Content:   reply.Synthesize(trigger.Content, c.AgentName),
		CreatedAt: now,
		Metadata:  map[string]string{"in_reply_to": trigger.ID},
	})
	c.Status = model.StatusCompleted
	c.UpdatedAt = now
	s.convs[id] = c
	s.persistLocked(context.Background())
	s.metrics.MessageAppended(string(model.RoleAssistant))
	s.publishAndUnlock(c.Clone())
}

// settle returns a running conversation to idle after a non-user append.
func (s *Store) settle(ctx context.Context, id string) {
	s.mu.Lock()
	c, ok := s.convs[id]
	if !ok || c.Status != model.StatusRunning {
		s.mu.Unlock()
		return
	}
	c.Status = model.StatusIdle
	c.UpdatedAt = s.timestamp()
	s.convs[id] = c
	s.persistLocked(ctx)
	s.publishAndUnlock(c.Clone())
}

// CancelPending cancels delayed replies for id and returns how many were
// dropped. A conversation left running goes back to idle.
func (s *Store) CancelPending(ctx context.Context, id string) int {
	n := s.sched.Cancel(id)
	if n == 0 {
		return 0
	}
	s.metrics.ReplyCancelled(n)
	s.log.Info("pending_replies_cancelled", "conversation", id, "count", n)
	s.settle(context.WithoutCancel(ctx), id)
	return n
}
