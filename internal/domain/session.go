// Package domain contains core domain types shared across the router and gateway.
package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// History is a bounded rolling window of messages. Older entries are evicted,
// never mutated.
type History struct {
	limit    int
	messages []Message
}

// NewHistory creates a history that retains at most limit messages.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 6
	}
	return &History{limit: limit}
}

// Append adds a message and evicts the oldest entries beyond the window.
func (h *History) Append(role Role, content string) {
	h.messages = append(h.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if over := len(h.messages) - h.limit; over > 0 {
		kept := make([]Message, h.limit)
		copy(kept, h.messages[over:])
		h.messages = kept
	}
}

// Recent returns a copy of the retained messages, oldest first.
func (h *History) Recent() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	return len(h.messages)
}

// ConsentState tracks the search opt-in for a session.
// At most one query can be pending at a time.
type ConsentState struct {
	Pending *Message
	Granted bool
}

// Ask stores query as the pending request, replacing any previous one.
func (c *ConsentState) Ask(query string) {
	c.Pending = &Message{Role: RoleUser, Content: query, Timestamp: time.Now()}
}

// Clear drops the pending request.
func (c *ConsentState) Clear() {
	c.Pending = nil
}
