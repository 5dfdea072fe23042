// args.go - Global flag parsing for chatstream commands.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// FLAG TABLE
// =============================================================================

// valueFlags maps every spelling of a value-taking flag to its canonical name.
var valueFlags = map[string]string{
	"-m": "model", "--model": "model",
	"-t": "temperature", "--temperature": "temperature", "--temp": "temperature",
	"-n": "max-tokens", "--max-tokens": "max-tokens", "--tokens": "max-tokens",
	"-s": "system", "--system": "system",
	"-c": "context", "--context": "context",
	"--template": "template",
	"--addr":     "addr",
}

// boolFlags maps every spelling of a boolean flag to its canonical name.
var boolFlags = map[string]string{
	"-q": "quiet", "--quiet": "quiet",
	"-v": "verbose", "--verbose": "verbose",
	"--plain": "plain", "--no-markdown": "plain",
}

// passThrough are dash-prefixed words treated as commands.
var passThrough = map[string]bool{
	"-h": true, "--help": true, "--version": true,
}

// =============================================================================
// GLOBAL FLAG PARSING
// =============================================================================

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Supported formats: --flag value, --flag=value, -f value. A bare "--" ends
// flag parsing so questions may start with a dash.
func parseGlobalFlags(args []string) ([]string, Args, error) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			remaining = append(remaining, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" || passThrough[arg] || isNumber(arg) {
			remaining = append(remaining, arg)
			continue
		}

		flag, value, hasValue := strings.Cut(arg, "=")

		if name, ok := boolFlags[flag]; ok {
			on := true
			if hasValue {
				b, err := ParseBoolString(value)
				if err != nil {
					return nil, parsed, NewValidationError(name, value, "expected true or false")
				}
				on = b
			}
			setBoolFlag(&parsed, name, on)
			continue
		}

		name, ok := valueFlags[flag]
		if !ok {
			return nil, parsed, NewValidationErrorWithExample(flag, "", "unknown flag", "run 'chatstream help' for the flag list")
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, parsed, ErrMissingArgument(flag, flag+" VALUE")
			}
			i++
			value = args[i]
		}
		if err := setValueFlag(&parsed, name, value); err != nil {
			return nil, parsed, err
		}
	}

	return remaining, parsed, nil
}

func setBoolFlag(args *Args, name string, on bool) {
	switch name {
	case "quiet":
		args.Quiet = on
	case "verbose":
		args.Verbose = on
	case "plain":
		args.Plain = on
	}
}

func setValueFlag(args *Args, name, value string) error {
	switch name {
	case "model":
		if strings.TrimSpace(value) == "" {
			return NewValidationError("model", value, "must not be empty")
		}
		args.Model = strings.TrimSpace(value)
	case "temperature":
		t, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return NewValidationErrorWithExample("temperature", value, "must be a number", "--temperature 0.7")
		}
		args.Temperature = &t
	case "max-tokens":
		n, err := ParseIntWithValidation(strings.TrimSpace(value), "max-tokens")
		if err != nil {
			return NewValidationErrorWithExample("max-tokens", value, err.Error(), "--max-tokens 1000")
		}
		args.MaxTokens = &n
	case "system":
		args.SystemPrompt = &value
	case "context":
		args.Context = &value
	case "template":
		args.Template = value
	case "addr":
		args.Addr = value
	}
	return nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// =============================================================================
// HELPER FUNCTIONS FOR COMMON ARG PATTERNS
// =============================================================================

// ParseIntWithValidation parses an integer from a string and validates it's positive.
func ParseIntWithValidation(s string, fieldName string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", fieldName)
	}

	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer", fieldName)
	}

	if val <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", fieldName, val)
	}

	return val, nil
}

// ParseBoolString parses a boolean from various string representations.
// Accepts: true/false, yes/no, y/n, 1/0, on/off (case-insensitive)
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}
