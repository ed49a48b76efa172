// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/jeranaias/adtech-chat/internal/model"
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

const (
	// DefaultMaxFPS caps re-renders while a reply streams.
	DefaultMaxFPS = 30

	maxFPSLimit = 120
)

// StreamingBuffer coalesces panel snapshots so a fast stream does not
// re-render the view for every fragment. Only the newest snapshot is kept;
// a snapshot passes straight through when the frame limiter allows it, and
// otherwise waits for the next Flush.
//
// Snapshots of an idle panel always pass so the final state is never held
// back.
//
// Thread-safety: Offer is called from the turn goroutine, Flush from the
// Bubble Tea loop.
type StreamingBuffer struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	interval time.Duration
	latest   model.Snapshot
	pending  bool
	dropped  int
}

// NewStreamingBuffer creates a buffer that lets through at most maxFPS
// snapshots per second. Out of range values select DefaultMaxFPS.
func NewStreamingBuffer(maxFPS int) *StreamingBuffer {
	if maxFPS <= 0 || maxFPS > maxFPSLimit {
		maxFPS = DefaultMaxFPS
	}
	return &StreamingBuffer{
		limiter:  rate.NewLimiter(rate.Limit(maxFPS), 1),
		interval: time.Second / time.Duration(maxFPS),
	}
}

// Offer records snap and reports whether it should be rendered now. When it
// returns false the snapshot stays pending for Flush.
func (sb *StreamingBuffer) Offer(snap model.Snapshot) bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !snap.Loading || sb.limiter.Allow() {
		sb.pending = false
		sb.latest = model.Snapshot{}
		return true
	}
	if sb.pending {
		sb.dropped++
	}
	sb.latest = snap
	sb.pending = true
	return false
}

// Flush returns the pending snapshot, if any, and clears it.
func (sb *StreamingBuffer) Flush() (model.Snapshot, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.pending {
		return model.Snapshot{}, false
	}
	snap := sb.latest
	sb.latest = model.Snapshot{}
	sb.pending = false
	return snap, true
}

// Reset drops any pending snapshot.
func (sb *StreamingBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.latest = model.Snapshot{}
	sb.pending = false
}

// Pending reports whether a snapshot is waiting for Flush.
func (sb *StreamingBuffer) Pending() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.pending
}

// Dropped returns how many snapshots were superseded before being rendered.
func (sb *StreamingBuffer) Dropped() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.dropped
}

// Interval returns the frame interval used for stream ticks.
func (sb *StreamingBuffer) Interval() time.Duration {
	return sb.interval
}

// =============================================================================
// PROGRAM BRIDGE
// =============================================================================

// Bridge forwards panel snapshots into a running Bubble Tea program. Install
// Observe as the panel's observer, then Attach the program before Run.
type Bridge struct {
	buffer *StreamingBuffer

	mu   sync.RWMutex
	send func(tea.Msg)
}

// NewBridge creates a bridge pacing renders at maxFPS.
func NewBridge(maxFPS int) *Bridge {
	return &Bridge{buffer: NewStreamingBuffer(maxFPS)}
}

// Attach directs snapshots to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.AttachFunc(p.Send)
}

// AttachFunc directs snapshots to send. Tests use it in place of a program.
func (b *Bridge) AttachFunc(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

// Observe is the panel observer.
func (b *Bridge) Observe(snap model.Snapshot) {
	if !b.buffer.Offer(snap) {
		return
	}
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send != nil {
		send(SnapshotMsg{Snapshot: snap})
	}
}

// Buffer returns the pacing buffer.
func (b *Bridge) Buffer() *StreamingBuffer {
	return b.buffer
}

// =============================================================================
// STREAMING TICK COMMAND
// =============================================================================

// streamTickCmd schedules the next StreamTickMsg.
func streamTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
