// Package llm generates assistant replies from a running conversation.
//
// A ChatContext holds the conversation (system prompt first). Providers
// stream the reply as deltas; Collect drains a stream into one string.
package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrNoAPIKey is returned when a provider is built without credentials.
var ErrNoAPIKey = errors.New("llm: API key required")

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation entry.
type Message struct {
	Role Role
	Text string
}

// ChatContext is a conversation history safe for concurrent use.
type ChatContext struct {
	mu       sync.RWMutex
	messages []Message
}

// NewChatContext starts a conversation with an optional system prompt.
func NewChatContext(systemPrompt string) *ChatContext {
	c := &ChatContext{}
	if systemPrompt != "" {
		c.messages = append(c.messages, Message{Role: RoleSystem, Text: systemPrompt})
	}
	return c
}

// Append adds a message and returns c for chaining.
func (c *ChatContext) Append(role Role, text string) *ChatContext {
	c.mu.Lock()
	c.messages = append(c.messages, Message{Role: role, Text: text})
	c.mu.Unlock()
	return c
}

// Copy returns an independent snapshot.
func (c *ChatContext) Copy() *ChatContext {
	return &ChatContext{messages: c.Messages()}
}

// Messages returns a copy of the history.
func (c *ChatContext) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *ChatContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Usage is token accounting for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
	u.TotalTokens += u2.TotalTokens
}

// Chunk is one piece of a streamed reply.
type Chunk struct {
	// Delta is incremental text, possibly empty.
	Delta string

	// Usage is set on the chunk that reports token usage, if any.
	Usage *Usage
}

// Stream is a streamed reply. Recv returns io.EOF once the reply is done.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Provider generates replies.
type Provider interface {
	// Chat streams the assistant reply to the conversation in cc.
	Chat(ctx context.Context, cc *ChatContext) (Stream, error)

	// Close releases resources.
	Close() error
}

// Collect drains s and returns the full text and usage. It closes s.
func Collect(s Stream) (string, Usage, error) {
	defer s.Close()

	var (
		b     strings.Builder
		usage Usage
	)
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), usage, nil
		}
		if err != nil {
			return b.String(), usage, err
		}
		b.WriteString(chunk.Delta)
		if chunk.Usage != nil {
			usage.Add(*chunk.Usage)
		}
	}
}
