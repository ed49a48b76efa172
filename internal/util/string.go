// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// UNICODE: Everything here counts runes or terminal cells, never bytes, so
// gateway text with multi-byte characters is never cut mid-character.

// Ellipsis is appended to truncated text.
const Ellipsis = "..."

// TruncateRunes truncates s to at most maxRunes runes, ending with "..." when
// anything was cut.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes <= len(Ellipsis) {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-len(Ellipsis)]) + Ellipsis
}

// TruncateWidth truncates s to fit maxWidth terminal cells. Wide characters
// (CJK, emoji) count as two cells.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(Ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, Ellipsis)
}

// StringWidth returns the number of terminal cells s occupies.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// PadRight pads s with spaces to width cells. Wider strings are returned as is.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// SingleLine collapses runs of whitespace, newlines included, to one space.
// Used for one-line previews of multi-line replies.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
