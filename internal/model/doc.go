// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A conversation lives in memory only and is discarded with the panel that
// owns it. It is append-only: the single exception is the assistant reply that
// is currently streaming, whose content grows until it is finalized. At most
// one reply streams at a time.
//
// # Key Types
//
//   - Conversation: ordered, concurrency-safe message log
//   - Message: single message with role, content and timestamp
//   - Snapshot: immutable copy of a conversation for renderers
//   - Turn: role/content pair sent over the wire
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.AddSeedMessage("Hi!")
//	conv.AddUserMessage("Explain DSP like I'm new")
//	conv.BeginAssistant()
//	conv.AppendToLast("A DSP is ")
//	conv.FinalizeLast()
//
//	turns := conv.Transcript() // seed excluded
package model
