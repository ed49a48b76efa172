// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat panel for the AdTech explainer.

The view is a Bubble Tea model over a widget.Panel. The panel owns the
conversation and the network turn; this package only renders snapshots of it
and turns key presses into panel calls.

# Key Components

## Model (model.go)

The Model struct holds the view state:
  - Viewport for the scrolling transcript
  - Text input, disabled while a reply is loading
  - Tab cycling through the quick prompts into the input
  - Ctrl+L to start over from the greeting

## View Rendering (view.go)

  - Header with title, subtitle and the current module badge
  - User bubbles on the right, assistant bubbles on the left
  - Error replies in their own bubble style
  - Typing indicator until the first fragment of a reply arrives
  - Status bar with key hints

## Streaming (streaming.go)

A Bridge forwards panel snapshots into the running program. Its
StreamingBuffer caps re-renders at a frame rate; snapshots that arrive faster
wait for the next stream tick.

# Usage

	bridge := chat.NewBridge(cfg.UI.MaxFPS)
	panel := widget.New(client, widget.WithObserver(bridge.Observe))
	p := tea.NewProgram(chat.New(panel, styles.NewTheme(), bridge, chat.Options{Markdown: true}),
		tea.WithAltScreen())
	bridge.Attach(p)
	_, err := p.Run()
	panel.Close()
*/
package chat
