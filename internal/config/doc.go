// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// adtech-chat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ProxyConfig: listener, route, gateway and system prompt settings
//   - ClientConfig: proxy endpoint and publishable key for the chat panel
//   - UIConfig: terminal rendering settings
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (ADTECH_*)
//   - ~/.adtech-chat/config.toml
//   - Built-in defaults
//
// The gateway credential is never part of the file. The proxy reads it at
// request time from the variable named by proxy.credential_env
// (LOVABLE_API_KEY by default).
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr := cfg.Proxy.Addr
package config
