// Package model defines the core conversation data types.
package model

import "time"

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return ValidRoles[r]
}

// Conversation is an ordered thread of messages with one agent persona.
type Conversation struct {
	ID        string            `json:"id"`
	AgentName string            `json:"agent_name"`
	Status    Status            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []Message         `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Message is a single turn within a conversation.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy that shares no maps or slices with c.
func (c Conversation) Clone() Conversation {
	out := c
	out.Metadata = cloneMap(c.Metadata)
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	out := m
	out.Metadata = cloneMap(m.Metadata)
	return out
}

// LastMessage returns the most recent message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ValidRoles are the allowed message roles.
var ValidRoles = map[Role]bool{
	RoleUser:      true,
	RoleAssistant: true,
	RoleSystem:    true,
}

// ValidStatuses are the allowed conversation states.
var ValidStatuses = map[Status]bool{
	StatusIdle:      true,
	StatusRunning:   true,
	StatusCompleted: true,
}
