package store

import (
	"context"
	"errors"
	"strings"

	"github.com/rcliao/agent-convo/internal/model"
)

// SearchParams holds parameters for searching conversations.
type SearchParams struct {
	Query     string
	AgentName string
	Limit     int
}

// SearchResult wraps a conversation with its first matching message.
type SearchResult struct {
	model.Conversation
	MatchMessage *model.Message `json:"match_message,omitempty"`
}

// Search finds conversations with a message containing the query,
// case-insensitively. Results are ordered like ListConversations.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	q := strings.ToLower(strings.TrimSpace(p.Query))
	if q == "" {
		return nil, errors.New("query is required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	convs, err := s.ListConversations(ctx, ListParams{AgentName: p.AgentName})
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, c := range convs {
		for i := range c.Messages {
			if strings.Contains(strings.ToLower(c.Messages[i].Content), q) {
				m := c.Messages[i]
				results = append(results, SearchResult{Conversation: c, MatchMessage: &m})
				break
			}
		}
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
