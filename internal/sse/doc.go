// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes streamed chat-completion responses into text deltas.
//
// The gateway streams lines of the form "data: <json>" terminated by a
// "data: [DONE]" line. Network reads split those lines at arbitrary byte
// offsets, so the Decoder keeps a pending-bytes buffer and only acts on
// complete lines. A record whose JSON is structurally unfinished is held back
// and joined with the bytes that follow it, until a blank line or a new data
// line shows it will never complete.
//
// # Key Types
//
//   - Decoder: push-based incremental decoder (Feed / Close)
//   - Stats: counters describing what the decoder has seen
//   - StreamError: read failure carrying the partial content received
//
// # Usage
//
// Drive a decoder by hand:
//
//	dec := sse.NewDecoder()
//	for chunk := range chunks {
//	    for _, delta := range dec.Feed(chunk) {
//	        fmt.Print(delta)
//	    }
//	}
//	dec.Close()
//
// Or let it consume a response body:
//
//	content, err := sse.Stream(ctx, resp.Body, func(delta string) {
//	    fmt.Print(delta)
//	})
package sse
