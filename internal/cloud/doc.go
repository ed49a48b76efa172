// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the client for the hosted chat-completion gateway.
//
// The proxy makes exactly one gateway call per inbound request. The gateway
// answers with an SSE stream that the caller relays untouched, so this
// package never parses a successful body.
//
// # Key Types
//
//   - Client: gateway client with a shared streaming transport (TLS 1.2+)
//   - ChatRequest: model, system + conversation messages, stream flag
//   - GatewayError: non-success status with a bounded body for diagnostics
//
// # Usage
//
//	req, _ := cloud.BuildRequest(cloud.DefaultModel, systemPrompt, messages)
//	body, err := cloud.NewClient(apiKey).Stream(ctx, req)
//	switch {
//	case errors.Is(err, cloud.ErrRateLimited):
//	case errors.Is(err, cloud.ErrInsufficientCredits):
//	}
//
// # Security
//
// The credential is never logged; use Fingerprint. Error bodies are kept
// for server-side logs and must not be returned to callers.
package cloud
