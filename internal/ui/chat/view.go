// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/adtech-chat/internal/model"
	"github.com/jeranaias/adtech-chat/internal/util"
	"github.com/jeranaias/adtech-chat/internal/widget"
)

const (
	// Title and subtitle shown in the header.
	Title    = "AI Explainer"
	Subtitle = "Powered by Lovable AI"

	// streamCursor trails a reply that is still arriving.
	streamCursor = "▌"

	// typingDots stands in for an empty reply.
	typingDots = "• • •"

	// bubbleChrome is the border and padding around bubble text.
	bubbleChrome = 4

	minBubbleWidth = 20
)

// bubbleWidth is the widest a message bubble may be: 80% of the panel.
func bubbleWidth(total int) int {
	w := total * 4 / 5
	if w < minBubbleWidth {
		w = minBubbleWidth
	}
	return w
}

// =============================================================================
// MAIN RENDER
// =============================================================================

// renderChat renders the complete panel.
// Layout: header (3 lines) + messages (viewport) + quick prompts (1 line) +
// input (3 lines) + status (1 line).
//
// The viewport height is computed in handleResize from the same layout. If a
// component changes height, update the constants there too.
func (m Model) renderChat() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	header := m.renderHeader()
	prompts := m.renderQuickPrompts()
	input := m.renderInput()
	status := m.renderStatusBar()

	available := m.height - lipgloss.Height(header) - lipgloss.Height(prompts) -
		lipgloss.Height(input) - lipgloss.Height(status)
	if available < 1 {
		available = 1
	}

	messages := m.viewport.View()
	if lipgloss.Height(messages) != available {
		messages = lipgloss.NewStyle().
			Height(available).
			MaxHeight(available).
			Width(m.width).
			Render(messages)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, messages, prompts, input, status)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	inner := m.width - 2
	if inner < 1 {
		inner = 1
	}

	title := "✦ " + Title
	line := m.theme.HeaderTitle.Render(title)
	if label := m.panel.Context(); label != "" {
		// UNICODE: module names are fitted by display width, not bytes
		room := inner - util.StringWidth(title) - 4
		if room > 0 {
			line += "  " + m.theme.ContextBadge.Render("["+util.TruncateWidth(label, room)+"]")
		}
	}
	subtitle := m.theme.HeaderSubtitle.Render(util.TruncateWidth(Subtitle, inner))

	return m.theme.Header.
		Width(m.width).
		Render(lipgloss.JoinVertical(lipgloss.Left, line, subtitle))
}

// =============================================================================
// MESSAGES
// =============================================================================

// renderMessages renders the whole transcript for the viewport.
func (m Model) renderMessages() string {
	var b strings.Builder
	for i, msg := range m.snapshot.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg))
	}

	if m.snapshot.Thinking() {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderThinking())
	}
	return b.String()
}

// renderMessage renders a single message: a role label over a bubble.
// User messages sit on the right, assistant messages on the left.
func (m Model) renderMessage(msg model.Message) string {
	maxWidth := bubbleWidth(m.width)

	switch msg.Role {
	case model.RoleUser:
		label := m.theme.UserLabel.Render(msg.Role.DisplayName())
		bubble := m.bubble(m.theme.UserBubble, msg.Content, maxWidth)
		block := lipgloss.JoinVertical(lipgloss.Right, label, bubble)
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, block)

	default:
		label := m.theme.AssistantLabel.Render("✦ " + msg.Role.DisplayName())
		return lipgloss.JoinVertical(lipgloss.Left, label, m.renderAssistantBody(msg, maxWidth))
	}
}

func (m Model) renderAssistantBody(msg model.Message, maxWidth int) string {
	switch {
	case strings.HasPrefix(msg.Content, widget.ErrorPrefix):
		return m.bubble(m.theme.ErrorBubble, msg.Content, maxWidth)

	case msg.Streaming:
		content := msg.Content
		if content == "" {
			content = m.theme.Thinking.Render(typingDots)
		}
		return m.bubble(m.theme.AssistantBubble, content+m.theme.Cursor.Render(streamCursor), maxWidth)

	case m.markdown != nil:
		rendered := m.markdown.render(msg.ID, msg.Content)
		return m.theme.AssistantBubble.Render(rendered)

	default:
		return m.bubble(m.theme.AssistantBubble, msg.Content, maxWidth)
	}
}

// bubble wraps content in style, no wider than maxWidth including chrome.
// Short content gets a bubble that fits it.
func (m Model) bubble(style lipgloss.Style, content string, maxWidth int) string {
	inner := maxWidth - bubbleChrome
	if inner < 1 {
		inner = 1
	}
	if w := lipgloss.Width(content); w < inner {
		inner = w
	}
	if inner < 1 {
		inner = 1
	}
	return style.Width(inner + 2).Render(content)
}

// renderThinking renders the typing indicator shown before a reply starts.
func (m Model) renderThinking() string {
	label := m.theme.AssistantLabel.Render("✦ " + model.RoleAssistant.DisplayName())
	body := m.theme.AssistantBubble.Render(m.spinner.View() + " " + m.theme.Thinking.Render(typingDots))
	return lipgloss.JoinVertical(lipgloss.Left, label, body)
}

// =============================================================================
// INPUT AREA
// =============================================================================

// renderQuickPrompts lists the suggestions on one line, fitted to the width.
func (m Model) renderQuickPrompts() string {
	list := strings.Join(m.panel.QuickPrompts(), " · ")
	return m.theme.QuickPromptKey.Render("Tab") + " " +
		m.theme.QuickPrompt.Render(util.TruncateWidth(list, m.width-4))
}

func (m Model) renderInput() string {
	style := m.theme.InputBorder
	if m.snapshot.Loading {
		style = m.theme.InputBusy
	}
	width := m.width - 2
	if width < 1 {
		width = 1
	}
	return style.Width(width).Render(m.input.View())
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatusBar() string {
	state := m.theme.StatusReady.Render("Ready")
	if m.snapshot.Loading {
		state = m.theme.StatusBusy.Render(m.spinner.View() + " Thinking")
	}

	var hints []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, fmt.Sprintf("%s %s", h.Key, h.Desc))
	}
	right := strings.Join(hints, " • ")
	if m.status != "" {
		right = m.status
	}

	avail := m.width - lipgloss.Width(state) - 4
	if avail < 0 {
		avail = 0
	}
	right = m.theme.Hint.Render(util.TruncateWidth(right, avail))

	gap := m.width - lipgloss.Width(state) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.
		Width(m.width).
		Render(state + strings.Repeat(" ", gap) + right)
}
