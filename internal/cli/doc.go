// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the adtech-chat command line.
//
// Commands:
//   - serve:   run the chat proxy
//   - chat:    open the chat panel (full screen, or line mode with --plain)
//   - ask:     ask one question and stream the answer to stdout
//   - config:  init, show, get, set, keys and path for the config file
//   - version: print build information
//
// Errors are returned to Execute, which prints them once and maps them to
// an exit code (see ExitCode).
package cli
