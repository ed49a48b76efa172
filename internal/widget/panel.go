// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/adtech-chat/internal/model"
	"github.com/jeranaias/adtech-chat/internal/sse"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Welcome is the greeting every panel opens with.
const Welcome = "Hi! I'm your AdTech explainer. Ask me anything about programmatic advertising, " +
	"and I'll explain it in simple terms. Try asking about DSPs, RTB auctions, or cookie alternatives!"

const (
	// ErrorPrefix starts the assistant message that reports a failed turn.
	ErrorPrefix = "Sorry, I encountered an error: "

	// MsgTryAgain stands in for errors that carry no text.
	MsgTryAgain = "Please try again."
)

// QuickPrompts are the suggestions offered under the conversation.
var QuickPrompts = []string{
	"Explain DSP like I'm new",
	"What's the difference between SSP and Ad Exchange?",
	"Explain RTB from a PM perspective",
	"How does cookie-less targeting work?",
}

// Panel errors.
var (
	ErrEmptyInput = errors.New("message is empty")
	ErrBusy       = errors.New("a reply is already in progress")
	ErrClosed     = errors.New("chat panel is closed")
)

// =============================================================================
// PANEL
// =============================================================================

// Option configures a Panel.
type Option func(*Panel)

// WithContext sets the module label sent with every turn.
func WithContext(label string) Option {
	return func(p *Panel) { p.context = label }
}

// WithWelcome replaces the greeting.
func WithWelcome(text string) Option {
	return func(p *Panel) { p.welcome = text }
}

// WithObserver registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change and must not block for long.
func WithObserver(fn func(model.Snapshot)) Option {
	return func(p *Panel) { p.observer = fn }
}

// WithLogger sets the logger for turn failures.
func WithLogger(logger *log.Logger) Option {
	return func(p *Panel) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Panel drives one chat conversation: it accepts user input, sends the
// transcript through a Sender and streams the reply into the conversation.
// At most one turn runs at a time. A Panel is safe for concurrent use.
type Panel struct {
	sender   Sender
	welcome  string
	observer func(model.Snapshot)
	logger   *log.Logger

	mu      sync.Mutex
	conv    *model.Conversation // nil once closed
	context string
	loading bool
	cancel  context.CancelFunc
}

// New creates a panel seeded with the welcome message.
func New(sender Sender, opts ...Option) *Panel {
	p := &Panel{
		sender:  sender,
		welcome: Welcome,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.conv = p.seeded()
	return p
}

func (p *Panel) seeded() *model.Conversation {
	conv := model.NewConversation()
	conv.AddSeedMessage(p.welcome)
	return conv
}

// Submit sends text as the next user turn and blocks until the reply has
// streamed in or failed. Failures are also recorded in the conversation as an
// assistant message starting with ErrorPrefix.
//
// Blank input returns ErrEmptyInput and a turn already in progress returns
// ErrBusy; neither changes anything.
func (p *Panel) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	p.mu.Lock()
	if p.conv == nil {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.loading {
		p.mu.Unlock()
		return ErrBusy
	}
	conv := p.conv
	// Content is sent exactly as typed.
	if _, err := conv.AddUserMessage(text); err != nil {
		p.mu.Unlock()
		return err
	}
	p.loading = true
	turnCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	req := ChatRequest{Messages: conv.Transcript(), Context: p.context}
	p.mu.Unlock()
	defer cancel()

	p.notify(conv)

	err := p.run(turnCtx, conv, req)
	p.finish(ctx, conv, err)
	return err
}

// run performs the exchange and streams the reply into conv.
func (p *Panel) run(ctx context.Context, conv *model.Conversation, req ChatRequest) error {
	body, err := p.sender.Send(ctx, req)
	if err != nil {
		return err
	}
	defer body.Close()

	if !p.mutate(conv, func() { conv.BeginAssistant() }) {
		return ErrClosed
	}

	_, err = sse.Stream(ctx, body, func(delta string) {
		p.mutate(conv, func() { conv.AppendToLast(delta) })
	})
	return err
}

// finish closes out a turn. A turn that outlived Close or Reset leaves no
// trace.
func (p *Panel) finish(parent context.Context, conv *model.Conversation, err error) {
	p.mu.Lock()
	if p.conv != conv {
		p.mu.Unlock()
		return
	}
	conv.FinalizeLast()
	if err != nil && parent.Err() == nil {
		p.logger.Printf("CHAT_TURN_FAILED | context=%q error=%v", p.context, err)
		conv.AddAssistantMessage(ErrorPrefix + errorText(err))
	}
	p.loading = false
	p.cancel = nil
	p.mu.Unlock()

	p.notify(conv)
}

// mutate applies fn to conv and notifies the observer, unless conv is no
// longer the live conversation.
func (p *Panel) mutate(conv *model.Conversation, fn func()) bool {
	p.mu.Lock()
	if p.conv != conv {
		p.mu.Unlock()
		return false
	}
	fn()
	p.mu.Unlock()

	p.notify(conv)
	return true
}

// notify hands the observer a snapshot of conv if it is still live.
func (p *Panel) notify(conv *model.Conversation) {
	if p.observer == nil {
		return
	}
	p.mu.Lock()
	if p.conv != conv {
		p.mu.Unlock()
		return
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.observer(snap)
}

func errorText(err error) string {
	var sErr *sse.StreamError
	if errors.As(err, &sErr) {
		err = sErr.Err
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgTryAgain
}

// =============================================================================
// STATE
// =============================================================================

// Loading reports whether a turn is in progress.
func (p *Panel) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Snapshot returns a copy of the conversation and the loading state. A closed
// panel returns an empty snapshot.
func (p *Panel) Snapshot() model.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Panel) snapshotLocked() model.Snapshot {
	if p.conv == nil {
		return model.Snapshot{}
	}
	snap := p.conv.Snapshot()
	snap.Loading = p.loading
	return snap
}

// QuickPrompts returns the suggested questions.
func (p *Panel) QuickPrompts() []string {
	return append([]string(nil), QuickPrompts...)
}

// Context returns the module label sent with each turn.
func (p *Panel) Context() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.context
}

// SetContext changes the module label for subsequent turns.
func (p *Panel) SetContext(label string) {
	p.mu.Lock()
	p.context = label
	p.mu.Unlock()
}

// Closed reports whether Close has been called.
func (p *Panel) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conv == nil
}

// =============================================================================
// TEARDOWN
// =============================================================================

// Reset cancels any turn in progress and starts over from the greeting.
func (p *Panel) Reset() error {
	p.mu.Lock()
	if p.conv == nil {
		p.mu.Unlock()
		return ErrClosed
	}
	p.abortLocked()
	conv := p.seeded()
	p.conv = conv
	p.mu.Unlock()

	p.notify(conv)
	return nil
}

// Close tears the panel down. A turn in progress is cancelled and its late
// results are dropped; the conversation is discarded. Observer calls already
// under way may still complete. Close is idempotent.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abortLocked()
	p.conv = nil
}

func (p *Panel) abortLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.loading = false
}
