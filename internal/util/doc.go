// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the proxy and the terminal
// client.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis, used for log lines
//   - TruncateWidth, StringWidth, PadRight: terminal cell aware layout
//   - SingleLine: whitespace folding for previews
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	display := util.TruncateWidth(reply, 40)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
