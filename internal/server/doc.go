// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server serves the local web page for a chat session.
//
// One page, one session: the browser drives the same session.State the
// terminal surfaces use, and answers arrive as server-sent events.
//
// # Endpoints
//
//   - GET  /                       - The chat page
//   - GET  /health                 - Health check
//   - GET  /api/state              - Settings, current conversation, stats
//   - GET  /api/settings           - Settings (API key masked)
//   - POST /api/settings           - Partial settings update
//   - POST /api/submit             - Ask a question; event-stream response
//   - POST /api/cancel             - Cancel the streaming response
//   - POST /api/clear              - Start a new conversation
//   - GET  /api/templates          - Templates, quick prompts, models
//   - POST /api/template           - Load a template
//   - POST /api/prompt             - Prefill a quick prompt
//   - GET  /api/history            - Recent conversations
//   - POST /api/history/{id}/load  - Make a conversation current
//   - GET  /api/export?format=txt  - Download the response
//
// # Usage
//
//	srv := server.New(state, server.Options{Addr: "127.0.0.1:8501"})
//	if err := srv.ListenAndServe(ctx, nil); err != nil {
//		log.Fatal(err)
//	}
package server
