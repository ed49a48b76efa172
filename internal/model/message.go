// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/adtech-chat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Explainer"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is a role the gateway accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// WelcomeID is the fixed ID of the greeting that seeds every panel.
const WelcomeID = "welcome"

// Message is a single entry of a conversation. Values handed out by a
// Conversation are copies; mutating them does not change the conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Streaming is true while assistant content is still arriving.
	Streaming bool `json:"-"`

	// Seed marks the greeting shown before the first turn. Seed messages are
	// displayed but never sent to the proxy.
	Seed bool `json:"-"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewSeedMessage creates the welcome greeting.
func NewSeedMessage(content string) Message {
	msg := NewMessage(RoleAssistant, content)
	msg.ID = WelcomeID
	msg.Seed = true
	return msg
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Preview returns a one-line preview of the message content, at most maxLen
// runes long.
func (m Message) Preview(maxLen int) string {
	return util.TruncateRunes(util.SingleLine(m.Content), maxLen)
}

// Turn is the wire form of a message: the role/content pair the proxy and the
// gateway exchange.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn returns the wire form of m.
func (m Message) Turn() Turn {
	return Turn{Role: m.Role, Content: m.Content}
}

// generateID returns a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}
