package store

import (
	"context"
	"sort"
)

// Stats holds store statistics.
type Stats struct {
	TotalConversations int            `json:"total_conversations"`
	TotalMessages      int            `json:"total_messages"`
	ByStatus           map[string]int `json:"by_status"`
	Agents             []AgentStats   `json:"agents"`
	Subscriptions      int            `json:"subscriptions"`
	Watched            int            `json:"watched_conversations"`
	PendingReplies     int            `json:"pending_replies"`
}

// AgentStats holds per-agent counts.
type AgentStats struct {
	Agent         string `json:"agent"`
	Conversations int    `json:"conversations"`
	Messages      int    `json:"messages"`
}

// Stats returns store statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := &Stats{ByStatus: map[string]int{}}
	per := map[string]*AgentStats{}

	s.mu.Lock()
	for _, c := range s.convs {
		st.TotalConversations++
		st.TotalMessages += len(c.Messages)
		st.ByStatus[string(c.Status)]++
		a := per[c.AgentName]
		if a == nil {
			a = &AgentStats{Agent: c.AgentName}
			per[c.AgentName] = a
		}
		a.Conversations++
		a.Messages += len(c.Messages)
		st.Subscriptions += s.bus.Count(c.ID)
		st.PendingReplies += s.sched.Pending(c.ID)
	}
	s.mu.Unlock()
	st.Watched = s.bus.Topics()

	for _, a := range per {
		st.Agents = append(st.Agents, *a)
	}
	sort.Slice(st.Agents, func(i, j int) bool {
		if st.Agents[i].Conversations != st.Agents[j].Conversations {
			return st.Agents[i].Conversations > st.Agents[j].Conversations
		}
		return st.Agents[i].Agent < st.Agents[j].Agent
	})
	return st, nil
}
