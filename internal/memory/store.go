// Package memory holds the conversation: the in-memory message history
// sent to the model on every turn, and the SQLite transcript store that
// records sessions for later listing and export.
package memory

import (
	"sync"

	"github.com/spinach-rag/spinach/internal/llm"
)

// History is the ordered message list sent to the model. The first
// entry is always the system prompt. History is safe for concurrent
// use.
type History struct {
	mu          sync.RWMutex
	messages    []llm.Message
	maxMessages int // non-system messages kept by Trim; 0 means unlimited
}

// NewHistory creates a history holding only the system prompt.
func NewHistory(systemPrompt string, maxMessages int) *History {
	if maxMessages < 0 {
		maxMessages = 0
	}
	return &History{
		messages: []llm.Message{{
			Role:    llm.RoleSystem,
			Content: systemPrompt,
		}},
		maxMessages: maxMessages,
	}
}

// Append adds a message to the end of the history.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, llm.Message{Role: role, Content: content})
}

// Messages returns a copy of the history.
func (h *History) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]llm.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages, including the system prompt.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Truncate drops every message after the first n. The system prompt is
// never removed.
func (h *History) Truncate(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n = max(n, 1)
	if n < len(h.messages) {
		clear(h.messages[n:])
		h.messages = h.messages[:n]
	}
}

// Reset clears the history back to the system prompt.
func (h *History) Reset() {
	h.Truncate(1)
}

// SystemPrompt returns the first message's content.
func (h *History) SystemPrompt() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.messages[0].Content
}

// Trim enforces the message cap by dropping the oldest non-system
// messages, and returns how many were dropped. It is applied between
// turns so that Truncate offsets taken during a turn stay valid.
func (h *History) Trim() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxMessages == 0 {
		return 0
	}
	excess := len(h.messages) - 1 - h.maxMessages
	if excess <= 0 {
		return 0
	}
	h.messages = append(h.messages[:1], h.messages[1+excess:]...)
	return excess
}
