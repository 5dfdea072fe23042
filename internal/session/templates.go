// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "strings"

// Template is a named system prompt preset.
type Template struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}

// QuickPrompt is a named question starter.
type QuickPrompt struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

var builtinTemplates = []Template{
	{
		Name:         "Code Review",
		SystemPrompt: "You are a senior software engineer. Review this code for best practices, security issues, and potential improvements.",
	},
	{
		Name:         "Content Writing",
		SystemPrompt: "You are a professional content writer. Help me create engaging, SEO-optimized content.",
	},
	{
		Name:         "Data Analysis",
		SystemPrompt: "You are a data scientist. Help me analyze this data and provide insights.",
	},
}

var builtinQuickPrompts = []QuickPrompt{
	{Name: "Brainstorm Ideas", Prompt: "Help me brainstorm creative ideas for..."},
	{Name: "Write Content", Prompt: "Write a professional email about..."},
	{Name: "Research Topic", Prompt: "Research and explain the key aspects of..."},
	{Name: "Code Help", Prompt: "Help me debug this code and suggest improvements..."},
}

// Templates returns the built-in templates in display order.
func Templates() []Template {
	return append([]Template(nil), builtinTemplates...)
}

// QuickPrompts returns the built-in quick prompts in display order.
func QuickPrompts() []QuickPrompt {
	return append([]QuickPrompt(nil), builtinQuickPrompts...)
}

// LookupTemplate finds a template by name. Matching ignores case and
// accepts a unique prefix ("code" finds "Code Review").
func LookupTemplate(name string) (Template, bool) {
	i := lookup(name, len(builtinTemplates), func(i int) string { return builtinTemplates[i].Name })
	if i < 0 {
		return Template{}, false
	}
	return builtinTemplates[i], true
}

// LookupQuickPrompt finds a quick prompt by name, with the same matching
// rules as LookupTemplate.
func LookupQuickPrompt(name string) (QuickPrompt, bool) {
	i := lookup(name, len(builtinQuickPrompts), func(i int) string { return builtinQuickPrompts[i].Name })
	if i < 0 {
		return QuickPrompt{}, false
	}
	return builtinQuickPrompts[i], true
}

// NextTemplate returns the template after current, wrapping around.
// An unknown or empty name yields the first template.
func NextTemplate(current string) Template {
	for i, t := range builtinTemplates {
		if strings.EqualFold(t.Name, current) {
			return builtinTemplates[(i+1)%len(builtinTemplates)]
		}
	}
	return builtinTemplates[0]
}

func lookup(name string, n int, nameAt func(int) string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return -1
	}
	match := -1
	for i := 0; i < n; i++ {
		candidate := strings.ToLower(nameAt(i))
		if candidate == name {
			return i
		}
		if strings.HasPrefix(candidate, name) {
			if match >= 0 {
				return -1 // ambiguous
			}
			match = i
		}
	}
	return match
}
