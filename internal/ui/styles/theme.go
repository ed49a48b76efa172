// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styles of the chat panel.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Header
	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style
	ContextBadge   lipgloss.Style

	// Messages
	UserLabel       lipgloss.Style
	AssistantLabel  lipgloss.Style
	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	ErrorBubble     lipgloss.Style
	Thinking        lipgloss.Style
	Cursor          lipgloss.Style

	// Input area
	QuickPrompt    lipgloss.Style
	QuickPromptKey lipgloss.Style
	InputBorder    lipgloss.Style
	InputBusy      lipgloss.Style

	// Status bar
	StatusBar   lipgloss.Style
	StatusReady lipgloss.Style
	StatusBusy  lipgloss.Style
	Hint        lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	colorProfile := termenv.ColorProfile()
	return newTheme(colorProfile, termenv.HasDarkBackground())
}

func newTheme(profile termenv.Profile, isDark bool) *Theme {
	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// GlamourStyle names the glamour standard style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.HeaderSubtitle = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.ContextBadge = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	// Messages
	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	bubble := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		Padding(0, 1)

	t.UserBubble = bubble.
		Foreground(UserBubbleFg).
		BorderForeground(UserBubbleBorder)

	t.AssistantBubble = bubble.
		Foreground(AssistantBubbleFg).
		BorderForeground(AssistantBubbleBorder)

	t.ErrorBubble = bubble.
		Foreground(Rose).
		BorderForeground(ErrorBubbleBorder)

	t.Thinking = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.Cursor = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	// Input area
	t.QuickPrompt = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.QuickPromptKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.InputBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)

	t.InputBusy = t.InputBorder.
		BorderForeground(Overlay)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusReady = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.StatusBusy = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.Hint = lipgloss.NewStyle().
		Foreground(TextMuted)
}
