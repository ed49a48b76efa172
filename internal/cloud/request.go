// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"encoding/json"
	"fmt"
)

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`    // "user", "assistant", or "system"
	Content string `json:"content"` // The message content
}

// ChatRequest is the body sent to the chat-completions endpoint.
//
// Conversation messages are carried as raw JSON so they reach the gateway
// exactly as the caller sent them.
type ChatRequest struct {
	Model    string            `json:"model"`
	Messages []json.RawMessage `json:"messages"`
	Stream   bool              `json:"stream"`
}

// BuildRequest prepends the system instruction to messages and enables
// streaming. An empty model selects DefaultModel.
func BuildRequest(model, systemPrompt string, messages []json.RawMessage) (ChatRequest, error) {
	if model == "" {
		model = DefaultModel
	}

	system, err := json.Marshal(ChatMessage{Role: "system", Content: systemPrompt})
	if err != nil {
		return ChatRequest{}, fmt.Errorf("failed to marshal system message: %w", err)
	}

	all := make([]json.RawMessage, 0, len(messages)+1)
	all = append(all, system)
	all = append(all, messages...)

	return ChatRequest{
		Model:    model,
		Messages: all,
		Stream:   true,
	}, nil
}
