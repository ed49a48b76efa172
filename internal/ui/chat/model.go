// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/adtech-chat/internal/model"
	"github.com/jeranaias/adtech-chat/internal/ui/styles"
	"github.com/jeranaias/adtech-chat/internal/widget"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the chat view.
type Options struct {
	// Markdown renders finished assistant replies with glamour.
	Markdown bool

	// Context bounds every turn started from the view. Nil means Background.
	Context context.Context

	// Keys overrides DefaultKeyMap.
	Keys *KeyMap
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat panel. All conversation state
// lives in the widget.Panel; the model only renders snapshots of it.
type Model struct {
	panel  *widget.Panel
	bridge *Bridge
	theme  *styles.Theme
	ctx    context.Context
	keys   KeyMap

	// Dimensions
	width  int
	height int

	// Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Rendering
	snapshot model.Snapshot
	markdown *markdownRenderer
	ticking  bool

	// quickIndex is the next suggestion Tab fills in.
	quickIndex int

	// status is a transient notice shown in the status bar.
	status string

	quitting bool
}

// New creates the chat view for panel. bridge may be nil, in which case the
// view refreshes only when a turn finishes.
func New(panel *widget.Panel, theme *styles.Theme, bridge *Bridge, opts Options) Model {
	if theme == nil {
		theme = styles.NewTheme()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	keys := DefaultKeyMap()
	if opts.Keys != nil {
		keys = *opts.Keys
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about AdTech concepts..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	// ASCII frames render on every terminal
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.Thinking

	m := Model{
		panel:    panel,
		bridge:   bridge,
		theme:    theme,
		ctx:      ctx,
		keys:     keys,
		viewport: vp,
		input:    ti,
		spinner:  sp,
		snapshot: panel.Snapshot(),
	}
	if opts.Markdown {
		m.markdown = newMarkdownRenderer(theme.GlamourStyle())
	}
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case SnapshotMsg:
		m.applySnapshot(msg.Snapshot)
		return m, m.startTicking()

	case StreamTickMsg:
		return m.handleStreamTick()

	case TurnDoneMsg:
		return m.handleTurnDone(msg)

	case ResetDoneMsg:
		if m.markdown != nil {
			m.markdown.forget()
		}
		if m.bridge != nil {
			m.bridge.Buffer().Reset()
		}
		m.quickIndex = 0
		m.status = ""
		m.applySnapshot(m.panel.Snapshot())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snapshot.Loading {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderChat()
}

// =============================================================================
// HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// Layout: header + viewport + quick prompts + input box + status bar.
	// These must match renderChat; it measures and pads if they drift.
	const (
		headerHeight      = 3
		quickPromptHeight = 1
		inputHeight       = 3
		statusBarHeight   = 1
	)

	vpHeight := m.height - headerHeight - quickPromptHeight - inputHeight - statusBarHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	vpWidth := m.width
	if vpWidth < 1 {
		vpWidth = 1
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight

	// Border (2) + padding (2) + prompt (2)
	inputWidth := m.width - 6
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	if m.markdown != nil {
		m.markdown.setWidth(bubbleWidth(m.width) - bubbleChrome)
	}
	m.refresh()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.QuickPrompt):
		prompts := m.panel.QuickPrompts()
		if len(prompts) == 0 || m.snapshot.Loading {
			return m, nil
		}
		m.input.SetValue(prompts[m.quickIndex%len(prompts)])
		m.input.CursorEnd()
		m.quickIndex++
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		return m, resetCmd(m.panel)

	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
		return m, nil
	}

	// The input is disabled while a reply is loading.
	if m.snapshot.Loading {
		return m, nil
	}
	m.status = ""
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the current input. It does nothing while loading or when the
// input is blank, like a disabled send button.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if m.snapshot.Loading || m.panel.Loading() || strings.TrimSpace(text) == "" {
		return m, nil
	}
	m.input.Reset()
	m.status = ""
	// Show the turn as loading until the first snapshot arrives.
	m.snapshot.Loading = true
	m.refresh()
	return m, tea.Batch(submitCmd(m.ctx, m.panel, text), m.startTicking())
}

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	m.ticking = false
	if m.bridge != nil {
		if snap, ok := m.bridge.Buffer().Flush(); ok {
			m.applySnapshot(snap)
		}
	}
	return m, m.startTicking()
}

func (m Model) handleTurnDone(msg TurnDoneMsg) (tea.Model, tea.Cmd) {
	// Failed turns are already in the transcript.
	if errors.Is(msg.Err, widget.ErrBusy) {
		m.status = "Still answering, please wait"
	}
	if m.bridge != nil {
		m.bridge.Buffer().Reset()
	}
	m.applySnapshot(m.panel.Snapshot())
	return m, nil
}

// =============================================================================
// STATE
// =============================================================================

// applySnapshot renders snap and keeps the view pinned to the newest message
// when it was already at the bottom.
func (m *Model) applySnapshot(snap model.Snapshot) {
	m.snapshot = snap
	m.refresh()
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() <= m.viewport.Height
	m.viewport.SetContent(m.renderMessages())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// startTicking schedules a stream tick while a turn is loading and no tick is
// already pending.
func (m *Model) startTicking() tea.Cmd {
	if m.ticking || !m.snapshot.Loading || m.bridge == nil {
		return nil
	}
	m.ticking = true
	return streamTickCmd(m.bridge.Buffer().Interval())
}

// Snapshot returns the snapshot currently on screen.
func (m Model) Snapshot() model.Snapshot {
	return m.snapshot
}

// Input returns the current input text.
func (m Model) Input() string {
	return m.input.Value()
}

// Status returns the transient status notice.
func (m Model) Status() string {
	return m.status
}

// =============================================================================
// COMMANDS
// =============================================================================

// submitCmd runs a turn in the background and reports when it ends.
func submitCmd(ctx context.Context, panel *widget.Panel, text string) tea.Cmd {
	return func() tea.Msg {
		return TurnDoneMsg{Err: panel.Submit(ctx, text)}
	}
}

func resetCmd(panel *widget.Panel) tea.Cmd {
	return func() tea.Msg {
		panel.Reset()
		return ResetDoneMsg{}
	}
}
