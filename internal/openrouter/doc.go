// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openrouter provides the streaming chat-completion client for OpenRouter.
//
// OpenRouter exposes many LLM providers behind one OpenAI-compatible API. This
// package sends a chat-completion request with stream=true and decodes the
// server-sent-event response line by line into StreamEvents.
//
// # Key Types
//
//   - Client: HTTP client for the completions endpoint
//   - CompletionRequest: model, messages, temperature, max_tokens and API key
//   - Stream: lazy event sequence returned by Submit
//   - LineParser: state machine that turns one "data: ..." line into an event
//   - APIError / ValidationError: the two failure kinds callers need to handle
//
// # Usage
//
// Submit a request and consume the stream:
//
//	client := openrouter.NewClient()
//	stream, err := client.Submit(ctx, openrouter.CompletionRequest{
//	    Model:       "openai/gpt-3.5-turbo",
//	    Messages:    []openrouter.ChatMessage{openrouter.NewUserMessage("hi")},
//	    Temperature: 0.7,
//	    MaxTokens:   100,
//	    APIKey:      key,
//	})
//	if err != nil {
//	    return err
//	}
//	for ev, err := range stream.Events() {
//	    if err != nil {
//	        return err
//	    }
//	    if ev.Kind == openrouter.EventContentDelta {
//	        fmt.Print(ev.Text)
//	    }
//	}
//
// # Failure Semantics
//
// A non-2xx status fails Submit with *APIError and no stream. Transport faults
// and stalled reads fail the stream with *APIError. Malformed lines never abort a
// stream. Nothing is retried.
package openrouter
