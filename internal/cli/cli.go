// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for chatstream.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdServe
	CmdModels
	CmdSetup
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name used in logs.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdAsk:
		return "ask"
	case CmdChat:
		return "chat"
	case CmdServe:
		return "serve"
	case CmdModels:
		return "models"
	case CmdSetup:
		return "setup"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	Plain   bool // never render markdown

	// Session overrides; nil or empty means "use the config value"
	Model        string
	Temperature  *float64
	MaxTokens    *int
	SystemPrompt *string
	Context      *string
	Template     string

	// Command-specific
	Query      string
	Subcommand string
	ConfigKey  string
	ConfigVal  string
	Addr       string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `chatstream - streaming chat client for OpenRouter

Usage:
  chatstream                          Start the terminal UI (default)
  chatstream ask "question"           Ask one question, stream the answer
  chatstream chat                     Interactive chat (REPL)
  chatstream serve [--addr HOST:PORT] Local web page
  chatstream models [filter]          List available models
  chatstream setup                    Configure the OpenRouter API key
  chatstream config show              Show configuration (API key masked)
  chatstream config get KEY           Print one configuration value
  chatstream config set KEY VALUE     Set a configuration value
  chatstream config reset             Reset to defaults (keeps the API key)
  chatstream config keys              List configuration keys
  chatstream config path              Show the config file path
  chatstream version                  Show version
  chatstream help                     Show this help

Global flags:
  -m, --model NAME          Model id or alias (sonnet, haiku, gpt4o, ...)
  -t, --temperature T       Sampling temperature, 0.0 to 2.0
  -n, --max-tokens N        Maximum response tokens
  -s, --system TEXT         System prompt
  -c, --context TEXT        Context sent before the question
      --template NAME       Load a built-in template (Code Review, ...)
      --plain               Print raw text instead of rendered markdown
  -q, --quiet               Minimal output
  -v, --verbose             Log debug events

Environment:
  OPENROUTER_API_KEY        API key (overrides config)
  CHATSTREAM_MODEL          Default model
  CHATSTREAM_BASE_URL       API base URL
  CHATSTREAM_ADDR           serve listen address
  CHATSTREAM_HOME           Config directory (default ~/.chatstream)

Examples:
  chatstream ask "Explain goroutines in two sentences"
  chatstream ask --model haiku --temperature 0.2 "Summarize RFC 9110"
  chatstream chat --template "Code Review"
  chatstream config set chat.max_tokens 2000
`

// PrintUsage prints the help text.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("chatstream %s (commit %s, built %s, %s)\n", Version, GitCommit, BuildDate, runtime.Version())
}

// Parse parses os.Args. Parse errors are printed and exit with ExitUsageError.
func Parse() (Command, Args) {
	cmd, args, err := ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n\n", ErrorStyle.Render("[ERROR]"), err)
		fmt.Fprintln(os.Stderr, "Run 'chatstream help' for usage.")
		os.Exit(ExitUsageError)
	}
	return cmd, args
}

// ParseArgs parses argv (without the program name). Global flags may appear
// anywhere on the command line.
func ParseArgs(argv []string) (Command, Args, error) {
	remaining, parsed, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, parsed, err
	}

	if len(remaining) == 0 {
		return CmdTUI, parsed, nil
	}

	name := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch name {
	case "tui":
		return CmdTUI, parsed, nil

	case "ask", "a":
		parsed.Query = strings.TrimSpace(strings.Join(remaining, " "))
		if parsed.Query == "" {
			return CmdAsk, parsed, ErrMissingArgument("question", `chatstream ask "your question"`)
		}
		return CmdAsk, parsed, nil

	case "chat", "repl":
		return CmdChat, parsed, nil

	case "serve", "web":
		return CmdServe, parsed, nil

	case "models", "model":
		parsed.Query = strings.Join(remaining, " ")
		return CmdModels, parsed, nil

	case "setup", "init":
		return CmdSetup, parsed, nil

	case "config", "cfg":
		parseConfigArgs(&parsed, remaining)
		return CmdConfig, parsed, nil

	case "version", "--version":
		return CmdVersion, parsed, nil

	case "help", "-h", "--help":
		return CmdHelp, parsed, nil

	default:
		return CmdHelp, parsed, fmt.Errorf("unknown command: %s", name)
	}
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) > 0 {
		args.Subcommand = strings.ToLower(remaining[0])
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = strings.Join(remaining[2:], " ")
		}
	}
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// HandleVersion handles the "version" command.
func HandleVersion() {
	PrintVersion()
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}

// Exit prints err the way every command does and exits with its code.
func Exit(err error) {
	if err == nil {
		os.Exit(ExitSuccess)
	}
	DisplayError(os.Stderr, err)
	os.Exit(GetExitCode(err))
}
