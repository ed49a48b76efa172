// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// markdownRenderer renders finalized assistant replies with glamour. Output is
// cached per message ID and width because finished messages never change.
// A streaming reply is never rendered as markdown: partial syntax would
// reflow on every fragment.
type markdownRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]string
}

func newMarkdownRenderer(style string) *markdownRenderer {
	return &markdownRenderer{
		style: style,
		cache: make(map[string]string),
	}
}

// setWidth rebuilds the renderer when the wrap width changes.
func (r *markdownRenderer) setWidth(width int) {
	if width < 1 {
		width = 1
	}
	if width == r.width && r.renderer != nil {
		return
	}
	r.width = width
	r.renderer = nil
	clear(r.cache)
}

// render returns content as styled terminal output. Rendering failures
// fall back to the raw text.
func (r *markdownRenderer) render(id, content string) string {
	if content == "" {
		return ""
	}
	if out, ok := r.cache[id]; ok {
		return out
	}
	if r.renderer == nil {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(r.width),
		)
		if err != nil {
			return content
		}
		r.renderer = tr
	}

	out, err := r.renderer.Render(content)
	if err != nil {
		return content
	}
	// glamour pads the document with blank lines
	out = strings.Trim(out, "\n")
	r.cache[id] = out
	return out
}

// forget drops every cached rendering.
func (r *markdownRenderer) forget() {
	clear(r.cache)
}
