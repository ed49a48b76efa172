// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/adtech-chat/internal/model"
)

// =============================================================================
// PANEL MESSAGES
// =============================================================================

// SnapshotMsg carries a new view of the panel's conversation.
type SnapshotMsg struct {
	Snapshot model.Snapshot
}

// TurnDoneMsg is sent when a submitted turn has finished, successfully or not.
type TurnDoneMsg struct {
	Err error
}

// ResetDoneMsg is sent after the conversation was cleared.
type ResetDoneMsg struct{}

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamTickMsg drives render pacing while a reply is streaming.
type StreamTickMsg struct {
	Time time.Time
}
