package store

import (
	"context"
	"sort"

	"github.com/rcliao/agent-convo/internal/model"
)

// ExportAll returns every conversation, optionally filtered by agent,
// oldest first.
func (s *Store) ExportAll(ctx context.Context, agentName string) ([]model.Conversation, error) {
	convs, err := s.ListConversations(ctx, ListParams{AgentName: agentName})
	if err != nil {
		return nil, err
	}
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].CreatedAt.Before(convs[j].CreatedAt)
		}
		return convs[i].ID < convs[j].ID
	})
	return convs, nil
}

// Import stores conversations from an export. Records with an empty id or
// an id already present are skipped. A record exported while running is
// stored as idle since its reply can no longer arrive. Subscribers already
// waiting on an imported id are notified.
func (s *Store) Import(ctx context.Context, convs []model.Conversation) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	imported := 0
	for _, c := range convs {
		if c.ID == "" {
			continue
		}
		if _, exists := s.convs[c.ID]; exists {
			continue
		}
		c = c.Clone()
		if !model.ValidStatuses[c.Status] || c.Status == model.StatusRunning {
			c.Status = model.StatusIdle
		}
		s.convs[c.ID] = c
		s.metrics.ConversationCreated(c.AgentName)
		s.queue = append(s.queue, delivery{id: c.ID, snap: c.Clone()})
		imported++
	}
	if imported > 0 {
		s.persistLocked(ctx)
		s.log.Info("conversations_imported", "count", imported)
	}
	s.drainAndUnlock()
	return imported, nil
}
