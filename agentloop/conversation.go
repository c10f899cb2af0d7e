package agentloop

import (
	"unicode/utf8"
)

// DefaultMaxMessages bounds a Conversation when no capacity is given.
const DefaultMaxMessages = 20

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one conversation entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is a bounded, ordered history. When full, appending drops the
// oldest message. It is owned by a single run and is not safe for
// concurrent use.
type Conversation struct {
	max      int
	messages []Message
}

// NewConversation returns an empty history holding at most maxMessages.
func NewConversation(maxMessages int) *Conversation {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Conversation{max: maxMessages}
}

// MaxMessages returns the capacity.
func (c *Conversation) MaxMessages() int { return c.max }

// Append adds a message, evicting from the front to stay within capacity.
func (c *Conversation) Append(role Role, content string) error {
	if !role.Valid() {
		return &TypeContractError{Field: "role", Reason: "unknown role " + string(role)}
	}
	if !utf8.ValidString(content) {
		return &TypeContractError{Field: "content", Reason: "not valid UTF-8 text"}
	}
	c.messages = append(c.messages, Message{Role: role, Content: content})
	if over := len(c.messages) - c.max; over > 0 {
		c.messages = append(c.messages[:0:0], c.messages[over:]...)
	}
	return nil
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Clear removes every message.
func (c *Conversation) Clear() { c.messages = nil }

// Snapshot returns an independent copy of the history, oldest first.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns up to n of the most recent messages, oldest first.
func (c *Conversation) Last(n int) []Message {
	if n <= 0 || n > len(c.messages) {
		n = len(c.messages)
	}
	out := make([]Message, n)
	copy(out, c.messages[len(c.messages)-n:])
	return out
}

// RenderRequestMessages maps the history one-to-one onto request messages.
func (c *Conversation) RenderRequestMessages() []RequestMessage {
	out := make([]RequestMessage, len(c.messages))
	for i, m := range c.messages {
		out[i] = RequestMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
