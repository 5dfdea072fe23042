// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"strings"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/openrouter"
)

// Settings are the per-session knobs a submission is built from.
type Settings struct {
	APIKey           string  `json:"-"`
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	SystemPrompt     string  `json:"system_prompt"`
	Context          string  `json:"context"`
	SaveConversation bool    `json:"save_conversation"`
	AutoClear        bool    `json:"auto_clear"`
	ShowStats        bool    `json:"show_stats"`
}

// SettingsFromConfig seeds session settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	if cfg == nil {
		cfg = config.Default()
	}
	return Settings{
		APIKey:           cfg.OpenRouter.APIKey,
		Model:            cfg.Chat.Model,
		Temperature:      cfg.Chat.Temperature,
		MaxTokens:        cfg.Chat.MaxTokens,
		SystemPrompt:     cfg.Chat.SystemPrompt,
		Context:          cfg.Chat.Context,
		SaveConversation: cfg.Chat.SaveConversation,
		AutoClear:        cfg.Chat.AutoClear,
		ShowStats:        cfg.Chat.ShowStats,
	}
}

// ValidateRanges checks the sampling parameters and model. It does not
// require an API key, so settings can be edited before one is configured.
func (s Settings) ValidateRanges() error {
	if strings.TrimSpace(s.Model) == "" {
		return &openrouter.ValidationError{Field: "model", Message: "must not be empty"}
	}
	if s.Temperature < openrouter.MinTemperature || s.Temperature > openrouter.MaxTemperature {
		return &openrouter.ValidationError{
			Field:   "temperature",
			Message: fmt.Sprintf("must be between %.1f and %.1f, got %g", openrouter.MinTemperature, openrouter.MaxTemperature, s.Temperature),
		}
	}
	if s.MaxTokens <= 0 {
		return &openrouter.ValidationError{
			Field:   "max_tokens",
			Message: fmt.Sprintf("must be positive, got %d", s.MaxTokens),
		}
	}
	if s.MaxTokens > config.MaxTokensLimit {
		return &openrouter.ValidationError{
			Field:   "max_tokens",
			Message: fmt.Sprintf("must be at most %d, got %d", config.MaxTokensLimit, s.MaxTokens),
		}
	}
	return nil
}

// Validate checks everything a submission needs, including the API key.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.APIKey) == "" {
		return &openrouter.ValidationError{
			Field:   "api_key",
			Message: "OpenRouter API key is not configured (set OPENROUTER_API_KEY or run 'chatstream setup')",
		}
	}
	return s.ValidateRanges()
}

// BuildMessages assembles the message list for one question: the system
// prompt when non-blank, then the context as a user message when non-blank,
// then the question itself.
func BuildMessages(s Settings, question string) []openrouter.ChatMessage {
	messages := make([]openrouter.ChatMessage, 0, 3)
	if strings.TrimSpace(s.SystemPrompt) != "" {
		messages = append(messages, openrouter.NewSystemMessage(s.SystemPrompt))
	}
	if strings.TrimSpace(s.Context) != "" {
		messages = append(messages, openrouter.NewUserMessage("Context: "+s.Context))
	}
	return append(messages, openrouter.NewUserMessage(question))
}
