// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling of the terminal chat panel.
//
// Colors are lipgloss.AdaptiveColor values so the panel reads well on light
// and dark terminals. NewTheme probes the terminal once through termenv and
// also picks the matching glamour style for rendered replies.
package styles
