// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"fmt"
	"log"

	"github.com/jeranaias/adtech-chat/internal/config"
	"github.com/jeranaias/adtech-chat/internal/prompt"
)

// ============================================================================
// CONFIG WIRING
// ============================================================================

// NewChatHandlerFromConfig builds the chat handler a [proxy] section
// describes. The returned prompt source is the one the handler reads; callers
// that want live reloads start its Watch.
func NewChatHandlerFromConfig(cfg config.ProxyConfig, logger *log.Logger) (*ChatHandler, *prompt.Source, error) {
	if logger == nil {
		logger = log.Default()
	}

	src, err := prompt.NewSource(cfg.SystemPromptFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load system prompt: %w", err)
	}
	src.WithLogger(logger)

	chat := NewChatHandler(HandlerConfig{
		Model:         cfg.Model,
		GatewayURL:    cfg.UpstreamURL,
		CredentialEnv: cfg.CredentialEnv,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	}, src).WithLogger(logger)

	return chat, src, nil
}

// NewFromConfig builds the routed proxy server for cfg.
func NewFromConfig(cfg config.ProxyConfig, logger *log.Logger) (*Server, *prompt.Source, error) {
	chat, src, err := NewChatHandlerFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	srv := NewServer(Config{
		Addr:        cfg.Addr,
		ChatPath:    cfg.Path,
		CORSOrigins: cfg.Origins(),
	}, chat).WithLogger(logger)
	return srv, src, nil
}
