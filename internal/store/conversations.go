package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/rcliao/agent-convo/internal/idgen"
	"github.com/rcliao/agent-convo/internal/model"
	"github.com/rcliao/agent-convo/internal/reply"
)

// CreateConversation stores a new idle conversation and returns a copy.
// Unknown agent names fall back to reply.DefaultAgent.
func (s *Store) CreateConversation(ctx context.Context, p CreateParams) (model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return model.Conversation{}, err
	}

	persona := reply.Resolve(p.AgentName)
	now := s.timestamp()
	c := model.Conversation{
		ID:        s.ids.New(idgen.PrefixConversation),
		AgentName: persona.Name,
		Status:    model.StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []model.Message{},
		Metadata:  cloneMeta(p.Metadata),
	}
	if greeting := reply.Greeting(persona.Name); s.greet && greeting != "" {
		c.Messages = append(c.Messages, model.Message{
			ID:        s.ids.New(idgen.PrefixMessage),
			Role:      model.RoleAssistant,
			Content:   greeting,
			CreatedAt: now,
		})
	}

	s.mu.Lock()
	s.convs[c.ID] = c
	s.persistLocked(ctx)
	snap := c.Clone()
	s.metrics.ConversationCreated(c.AgentName)
	s.log.Debug("conversation_created", "id", c.ID, "agent", c.AgentName)
	s.publishAndUnlock(snap)

	return snap.Clone(), nil
}

// GetConversation returns a copy of the conversation with id.
func (s *Store) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return model.Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return model.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.Clone(), nil
}

// ListConversations returns copies of stored conversations, most recently
// updated first.
func (s *Store) ListConversations(ctx context.Context, p ListParams) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]model.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		if p.AgentName != "" && c.AgentName != p.AgentName {
			continue
		}
		out = append(out, c.Clone())
	}
	s.mu.Unlock()

	sortByRecent(out)
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func sortByRecent(convs []model.Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].ID > convs[j].ID
	})
}

func cloneMeta(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
