// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openrouter

// DefaultModel is used when no model is configured.
const DefaultModel = "openai/gpt-3.5-turbo"

// KnownModels lists model identifiers offered in pickers, in display order.
var KnownModels = []string{
	"openai/gpt-4o",
	"openai/gpt-4o-mini",
	"openai/gpt-3.5-turbo",
	"anthropic/claude-3.5-sonnet",
	"anthropic/claude-3-opus",
	"anthropic/claude-3-haiku",
	"google/gemini-pro-1.5",
	"meta-llama/llama-3.1-70b-instruct",
}

// ModelAliases maps friendly names to full model identifiers.
var ModelAliases = map[string]string{
	"auto":   "openrouter/auto",
	"gpt4o":  "openai/gpt-4o",
	"mini":   "openai/gpt-4o-mini",
	"gpt35":  "openai/gpt-3.5-turbo",
	"sonnet": "anthropic/claude-3.5-sonnet",
	"opus":   "anthropic/claude-3-opus",
	"haiku":  "anthropic/claude-3-haiku",
	"gemini": "google/gemini-pro-1.5",
	"llama":  "meta-llama/llama-3.1-70b-instruct",
}

// ResolveModel expands a friendly alias; any other value is returned unchanged.
func ResolveModel(name string) string {
	if full, ok := ModelAliases[name]; ok {
		return full
	}
	return name
}

// NextKnownModel returns the model after current in KnownModels, wrapping around.
// An unknown current model yields the first entry.
func NextKnownModel(current string) string {
	for i, m := range KnownModels {
		if m == current {
			return KnownModels[(i+1)%len(KnownModels)]
		}
	}
	return KnownModels[0]
}
