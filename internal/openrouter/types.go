// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openrouter

import "strings"

// Message roles accepted by the completions endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Temperature and token bounds for a CompletionRequest.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // The message content
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// CompletionRequest is one chat-completion submission.
// The API key travels in the Authorization header, never in the body.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
	APIKey      string        `json:"-"`
}

// checkTransport enforces the preconditions Submit needs to issue a request at all.
// Range checks on temperature and max_tokens belong to the caller.
func (r CompletionRequest) checkTransport() error {
	if strings.TrimSpace(r.APIKey) == "" {
		return &ValidationError{Field: "api_key", Message: "OpenRouter API key is required"}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "at least one message is required"}
	}
	return nil
}

// StreamChunk is the JSON payload of a single "data:" line.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
			Role    string  `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Content returns the first choice's content fragment and whether one was present.
func (c *StreamChunk) Content() (string, bool) {
	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == nil {
		return "", false
	}
	return *c.Choices[0].Delta.Content, true
}

// FinishReason returns the first choice's finish reason, if any.
func (c *StreamChunk) FinishReason() string {
	if len(c.Choices) == 0 || c.Choices[0].FinishReason == nil {
		return ""
	}
	return *c.Choices[0].FinishReason
}
