// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the chat proxy: a stateless relay between the chat
// panel and the AI gateway.
//
// For every POST the proxy prepends the system instruction (naming the
// current module when a context label is supplied), makes one streaming
// gateway call and copies the SSE body back byte for byte. Gateway rate-limit
// (429) and credit (402) failures keep their status with a fixed message;
// everything else collapses to 500 with a generic message and the detail is
// logged server-side only.
//
// # Endpoints
//
//   - POST    /functions/v1/adtech-chat - relay a conversation turn
//   - OPTIONS /functions/v1/adtech-chat - CORS pre-flight (204, no body)
//   - GET     /health                   - health check
//
// # Key Types
//
//   - ChatHandler: the relay, usable with or without the router
//   - Server: chi router, middleware chain and lifecycle
//   - CORSConfig: cross-origin policy applied to every response
//
// # Usage
//
//	chat := server.NewChatHandler(server.HandlerConfig{}, promptSource)
//	srv := server.NewServer(server.Config{Addr: ":8787"}, chat)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
