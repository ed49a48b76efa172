// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package widget implements the chat panel independent of any UI.
//
// A Panel holds one conversation seeded with a greeting. Each submitted turn
// posts the transcript (greeting excluded) and the current module label to
// the chat proxy through a Client, then streams the SSE reply into an
// assistant message as fragments arrive. Failures become an assistant message
// so the conversation always explains what happened.
//
// # Usage
//
//	client := widget.NewClient(cfg.Client.Endpoint, cfg.Client.APIKey)
//	panel := widget.New(client,
//		widget.WithContext("Header Bidding"),
//		widget.WithObserver(func(s model.Snapshot) { render(s) }),
//	)
//	defer panel.Close()
//
//	if err := panel.Submit(ctx, "What is a DSP?"); err != nil {
//		log.Printf("turn failed: %v", err)
//	}
package widget
