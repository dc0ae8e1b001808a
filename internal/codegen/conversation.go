package codegen

import "github.com/jkaninda/fundi/internal/llm"

// DefaultMaxMessages caps how many messages a Conversation retains.
// Each exchange contributes two messages (user + assistant).
const DefaultMaxMessages = 20

// DefaultSendMessages caps how many retained messages are sent per request.
const DefaultSendMessages = 10

// Conversation is a bounded sliding window over past exchanges. Without a
// cap, repair cycles would grow the prompt context without limit.
type Conversation struct {
	messages    []llm.Message
	maxMessages int
	sendLimit   int
}

// NewConversation creates a Conversation with the default bounds.
func NewConversation() *Conversation {
	return NewConversationWithLimits(DefaultMaxMessages, DefaultSendMessages)
}

// NewConversationWithLimits creates a Conversation with explicit caps.
// Non-positive values fall back to the defaults.
func NewConversationWithLimits(maxMessages, sendLimit int) *Conversation {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if sendLimit <= 0 {
		sendLimit = DefaultSendMessages
	}
	return &Conversation{maxMessages: maxMessages, sendLimit: sendLimit}
}

// Append records one user/assistant exchange, evicting the oldest messages
// once the retention cap is exceeded.
func (c *Conversation) Append(userContent, assistantContent string) {
	c.messages = append(c.messages,
		llm.Message{Role: llm.RoleUser, Content: userContent},
		llm.Message{Role: llm.RoleAssistant, Content: assistantContent},
	)
	if len(c.messages) > c.maxMessages {
		c.messages = c.messages[len(c.messages)-c.maxMessages:]
	}
}

// Messages returns a copy of the most recent messages, up to the send limit.
func (c *Conversation) Messages() []llm.Message {
	msgs := c.messages
	if len(msgs) > c.sendLimit {
		msgs = msgs[len(msgs)-c.sendLimit:]
	}
	cp := make([]llm.Message, len(msgs))
	copy(cp, msgs)
	return cp
}

// Len returns the number of retained messages.
func (c *Conversation) Len() int { return len(c.messages) }
