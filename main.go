// adtech-chat - AdTech explainer chat panel and streaming chat proxy.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/adtech-chat/internal/cli"
	"github.com/jeranaias/adtech-chat/internal/server"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with the packages that report it
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	server.Version = Version
}

func main() {
	os.Exit(cli.Execute())
}
