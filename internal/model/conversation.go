// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Conversation errors.
var (
	// ErrInFlight is returned when a turn is started while an assistant
	// message is still streaming.
	ErrInFlight = errors.New("an assistant reply is still streaming")

	// ErrNotStreaming is returned when content is appended with no assistant
	// message in flight.
	ErrNotStreaming = errors.New("no assistant reply is streaming")
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// entry is the stored form of a message. The builder holds streamed content
// until the reply is finalized.
type entry struct {
	msg Message
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	stream strings.Builder
}

func (e *entry) view() Message {
	msg := e.msg
	if msg.Streaming {
		msg.Content = e.stream.String()
	}
	return msg
}

// Conversation is an append-only, in-memory log of messages. Only the last
// message may change, and only while it is the streaming assistant reply.
// A Conversation is safe for concurrent use.
type Conversation struct {
	mu        sync.RWMutex
	entries   []*entry
	streaming *entry

	CreatedAt time.Time
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		entries:   make([]*entry, 0, 8),
		CreatedAt: time.Now(),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

func (c *Conversation) add(msg Message) (Message, error) {
	if c.streaming != nil {
		return Message{}, ErrInFlight
	}
	e := &entry{msg: msg}
	c.entries = append(c.entries, e)
	if msg.Streaming {
		c.streaming = e
	}
	return msg, nil
}

// AddSeedMessage appends the welcome greeting.
func (c *Conversation) AddSeedMessage(content string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(NewSeedMessage(content))
}

// AddUserMessage appends a user message. Content is stored verbatim.
func (c *Conversation) AddUserMessage(content string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(NewUserMessage(content))
}

// AddAssistantMessage appends a complete assistant message.
func (c *Conversation) AddAssistantMessage(content string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(NewMessage(RoleAssistant, content))
}

// BeginAssistant appends an empty assistant message that receives streamed
// content until FinalizeLast is called.
func (c *Conversation) BeginAssistant() (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := NewMessage(RoleAssistant, "")
	msg.Streaming = true
	return c.add(msg)
}

// AppendToLast appends a delta to the streaming assistant message and returns
// its updated view.
func (c *Conversation) AppendToLast(delta string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming == nil {
		return Message{}, ErrNotStreaming
	}
	c.streaming.stream.WriteString(delta)
	return c.streaming.view(), nil
}

// FinalizeLast freezes the streaming assistant message. It reports false when
// nothing was streaming.
func (c *Conversation) FinalizeLast() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.streaming
	if e == nil {
		return Message{}, false
	}
	e.msg.Content = e.stream.String()
	e.msg.Streaming = false
	e.stream.Reset()
	c.streaming = nil
	return e.msg, true
}

// InFlight reports whether an assistant message is streaming.
func (c *Conversation) InFlight() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streaming != nil
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 {
		return Message{}, false
	}
	return c.entries[len(c.entries)-1].view(), true
}

// Get returns the message with the given ID.
func (c *Conversation) Get(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.msg.ID == id {
			return e.view(), true
		}
	}
	return Message{}, false
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return c.Len() == 0
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// Transcript returns the wire form of every non-seed message, in order.
func (c *Conversation) Transcript() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	turns := make([]Turn, 0, len(c.entries))
	for _, e := range c.entries {
		if e.msg.Seed {
			continue
		}
		turns = append(turns, e.view().Turn())
	}
	return turns
}

// Snapshot returns a read-only copy of the conversation.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := make([]Message, len(c.entries))
	for i, e := range c.entries {
		msgs[i] = e.view()
	}
	return Snapshot{Messages: msgs, Streaming: c.streaming != nil}
}

// Snapshot is an immutable projection of a conversation handed to renderers.
type Snapshot struct {
	Messages  []Message
	Streaming bool // an assistant reply is still arriving
	Loading   bool // a turn is in progress (set by the panel)
}

// Len returns the number of messages in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Messages)
}

// Last returns the newest message in the snapshot.
func (s Snapshot) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Thinking reports whether a typing indicator belongs under the last message:
// a turn is in progress and no reply has started yet.
func (s Snapshot) Thinking() bool {
	if !s.Loading {
		return false
	}
	last, ok := s.Last()
	return !ok || last.Role != RoleAssistant
}
