// Package voice provides conversation state for the Liz voice assistant.
package voice

import (
	"sync"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single user or assistant message in the conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the ordered log of conversation turns supplied as context to
// the dialogue stage. It is append-only and grows without bound for the
// lifetime of the session; there is no eviction or truncation policy.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewHistory creates an empty conversation history.
func NewHistory() *History {
	return &History{}
}

// AddExchange records a completed user/assistant exchange, in that order.
func (h *History) AddExchange(userText, assistantText string) {
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns,
		Turn{Role: RoleUser, Content: userText, Timestamp: now},
		Turn{Role: RoleAssistant, Content: assistantText, Timestamp: now},
	)
}

// Turns returns a copy of all turns in chronological order.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Turn, len(h.turns))
	copy(result, h.turns)
	return result
}

// Len returns the number of stored turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Clear removes all conversation turns.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
