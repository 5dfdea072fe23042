// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/storage"
)

const testKey = "sk-or-v1-0123456789abcdef0123456789abcdef"

// =============================================================================
// ARG PARSING
// =============================================================================

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantCmd  Command
		validate func(*testing.T, Args)
	}{
		{name: "no args starts tui", argv: nil, wantCmd: CmdTUI},
		{
			name:    "ask joins words",
			argv:    []string{"ask", "what", "is", "go?"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "what is go?", a.Query)
			},
		},
		{
			name:    "flags anywhere",
			argv:    []string{"-m", "haiku", "ask", "hi", "--temperature=0.2", "-n", "50"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "haiku", a.Model)
				require.NotNil(t, a.Temperature)
				assert.InDelta(t, 0.2, *a.Temperature, 1e-9)
				require.NotNil(t, a.MaxTokens)
				assert.Equal(t, 50, *a.MaxTokens)
				assert.Equal(t, "hi", a.Query)
			},
		},
		{
			name:    "double dash keeps dashes in question",
			argv:    []string{"ask", "--", "-v", "means", "verbose?"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "-v means verbose?", a.Query)
				assert.False(t, a.Verbose)
			},
		},
		{
			name:    "negative number is positional",
			argv:    []string{"ask", "is", "-1", "odd"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "is -1 odd", a.Query)
			},
		},
		{
			name:    "bool flags",
			argv:    []string{"chat", "-q", "--plain", "--verbose=false"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				assert.True(t, a.Quiet)
				assert.True(t, a.Plain)
				assert.False(t, a.Verbose)
			},
		},
		{
			name:    "system and template",
			argv:    []string{"repl", "--template", "Code Review", "-s", ""},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "Code Review", a.Template)
				require.NotNil(t, a.SystemPrompt)
				assert.Empty(t, *a.SystemPrompt)
			},
		},
		{
			name:    "serve addr",
			argv:    []string{"web", "--addr", "127.0.0.1:9000"},
			wantCmd: CmdServe,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "127.0.0.1:9000", a.Addr)
			},
		},
		{
			name:    "models filter",
			argv:    []string{"models", "claude"},
			wantCmd: CmdModels,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "claude", a.Query)
			},
		},
		{
			name:    "config set joins value",
			argv:    []string{"config", "set", "chat.system_prompt", "Be", "brief."},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "set", a.Subcommand)
				assert.Equal(t, "chat.system_prompt", a.ConfigKey)
				assert.Equal(t, "Be brief.", a.ConfigVal)
			},
		},
		{name: "setup alias", argv: []string{"init"}, wantCmd: CmdSetup},
		{name: "version flag", argv: []string{"--version"}, wantCmd: CmdVersion},
		{name: "help flag", argv: []string{"-h"}, wantCmd: CmdHelp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := ParseArgs(tt.argv)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCmd, cmd)
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"empty ask", []string{"ask"}, "question"},
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"unknown flag", []string{"--json", "ask", "x"}, "unknown flag"},
		{"missing flag value", []string{"ask", "x", "--model"}, "--model"},
		{"bad temperature", []string{"-t", "warm", "ask", "x"}, "temperature"},
		{"non-positive tokens", []string{"-n", "0", "ask", "x"}, "max-tokens"},
		{"bad bool", []string{"--quiet=maybe", "chat"}, "quiet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseArgs(tt.argv)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "ask", CmdAsk.String())
	assert.Equal(t, "serve", CmdServe.String())
	assert.Equal(t, "unknown", Command(99).String())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"cancelled", fmt.Errorf("wrap: %w", context.Canceled), ExitCancelled},
		{"no key", &openrouter.ValidationError{Field: "api_key", Message: "missing"}, ExitConfigError},
		{"config invalid", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "chat.max_tokens", Message: "bad"}}), ExitConfigError},
		{"usage", NewValidationError("temperature", "x", "bad"), ExitUsageError},
		{"api validation", &openrouter.ValidationError{Field: "question", Message: "empty"}, ExitUsageError},
		{"not found", ErrNotFound("conversation", "9"), ExitNotFoundError},
		{"auth", &openrouter.APIError{StatusCode: http.StatusUnauthorized}, ExitAuthError},
		{"read timeout", &openrouter.APIError{Err: openrouter.ErrReadTimeout}, ExitTimeoutError},
		{"network", &openrouter.APIError{Message: "connection refused", Err: errors.New("dial")}, ExitNetworkError},
		{"api", &openrouter.APIError{StatusCode: http.StatusInternalServerError}, ExitAPIError},
		{"config command", NewCommandError("config", "save", "disk full", nil), ExitConfigError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestFormatError(t *testing.T) {
	assert.Empty(t, FormatError(nil))
	assert.Equal(t, "Cancelled.", FormatError(context.Canceled))
	assert.Equal(t, "A response is already streaming.", FormatError(session.ErrBusy))
	assert.Equal(t, "Conversation not found.", FormatError(storage.ErrRecordNotFound))
	assert.Contains(t, FormatError(&openrouter.APIError{StatusCode: http.StatusUnauthorized}), "Authentication failed")
	assert.Contains(t, FormatError(config.ValidateErrors{{Field: "chat.temperature", Message: "out of range"}}),
		"Configuration is invalid: chat.temperature")
	assert.Equal(t, "boom", FormatError(errors.New("boom")))

	var buf bytes.Buffer
	DisplayError(&buf, errors.New("boom"))
	assert.Contains(t, buf.String(), "[ERROR]")
	assert.Contains(t, buf.String(), "boom")
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationErrorWithExample("temperature", "hot", "must be a number", "--temperature 0.7")
	assert.Equal(t, `invalid temperature "hot": must be a number (example: --temperature 0.7)`, err.Error())
}

// =============================================================================
// HELPERS
// =============================================================================

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		128000:   "128,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
	}
	for n, want := range tests {
		assert.Equal(t, want, formatNumber(n), "formatNumber(%d)", n)
	}
}

func TestJoinQuoted(t *testing.T) {
	assert.Equal(t, `"a", "b c"`, joinQuoted([]string{"a", "b c"}))
}

func TestPromptLine(t *testing.T) {
	var out bytes.Buffer
	line, err := promptLine(bufio.NewReader(strings.NewReader("  answer \n")), &out, "Q: ")
	require.NoError(t, err)
	assert.Equal(t, "answer", line)
	assert.Equal(t, "Q: ", out.String())
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	temp := 1.5
	tokens := 77
	system := "Be terse."
	ApplyOverrides(cfg, Args{Model: "sonnet", Temperature: &temp, MaxTokens: &tokens, SystemPrompt: &system, Addr: ":9999"})

	assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.Chat.Model)
	assert.InDelta(t, 1.5, cfg.Chat.Temperature, 1e-9)
	assert.Equal(t, 77, cfg.Chat.MaxTokens)
	assert.Equal(t, "Be terse.", cfg.Chat.SystemPrompt)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, config.Default().Chat.Context, cfg.Chat.Context)

	withTemplate := config.Default()
	ApplyOverrides(withTemplate, Args{Template: "code review"})
	assert.Contains(t, withTemplate.Chat.SystemPrompt, "senior software engineer")

	ApplyOverrides(withTemplate, Args{Template: "Code Review", SystemPrompt: &system})
	assert.Equal(t, "Be terse.", withTemplate.Chat.SystemPrompt)
}

func TestNewRuntimeTemplate(t *testing.T) {
	cfg := config.Default()
	cfg.OpenRouter.APIKey = testKey

	rt, err := NewRuntime(cfg, Args{Template: "code review"})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, "Code Review", rt.State.TemplateName())
	assert.Contains(t, rt.State.Settings().SystemPrompt, "senior software engineer")

	system := "Only answer in haiku."
	rt2, err := NewRuntime(cfg, Args{Template: "Code Review", SystemPrompt: &system})
	require.NoError(t, err)
	defer rt2.Close()
	assert.Equal(t, system, rt2.State.Settings().SystemPrompt)
	assert.Empty(t, rt2.State.TemplateName())

	_, err = NewRuntime(cfg, Args{Template: "Poetry"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Data Analysis")
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// ASK
// =============================================================================

// streamServer answers every completion request with deltas, or with
// status when it is not 200.
func streamServer(t *testing.T, status int, deltas ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			payload, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"delta": map[string]string{"content": d}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestState(t *testing.T, baseURL string) *session.State {
	t.Helper()
	history, err := storage.NewHistoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	settings := session.SettingsFromConfig(config.Default())
	settings.APIKey = testKey
	client := openrouter.NewClient().WithBaseURL(baseURL)
	return session.NewState(settings, client, history)
}

func TestRunAskPlain(t *testing.T) {
	srv := streamServer(t, http.StatusOK, "Hel", "lo")
	st := newTestState(t, srv.URL)

	var out, errOut bytes.Buffer
	err := runAsk(context.Background(), st, "Say hello", &out, &errOut, askOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Hello\n", out.String())
	assert.Contains(t, errOut.String(), "[Stats]")
	assert.Contains(t, errOut.String(), "5 chars")
	assert.Equal(t, "Hello", st.Current().Response)
}

func TestRunAskQuietOmitsStats(t *testing.T) {
	srv := streamServer(t, http.StatusOK, "ok\n")
	st := newTestState(t, srv.URL)

	var out, errOut bytes.Buffer
	require.NoError(t, runAsk(context.Background(), st, "q", &out, &errOut, askOptions{Quiet: true}))
	assert.Equal(t, "ok\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestRunAskError(t *testing.T) {
	srv := streamServer(t, http.StatusUnauthorized)
	st := newTestState(t, srv.URL)

	var out, errOut bytes.Buffer
	err := runAsk(context.Background(), st, "q", &out, &errOut, askOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, openrouter.ErrAuthFailed)
	assert.Equal(t, ExitAuthError, GetExitCode(err))
	assert.Empty(t, out.String())
}

func TestRunAskMarkdownBuffersUntilDone(t *testing.T) {
	srv := streamServer(t, http.StatusOK, "# Title\n", "body text")
	st := newTestState(t, srv.URL)

	var out, errOut bytes.Buffer
	err := runAsk(context.Background(), st, "q", &out, &errOut, askOptions{Markdown: true, Width: 60, Progress: true, Quiet: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Title")
	assert.Contains(t, out.String(), "body text")
	assert.Contains(t, errOut.String(), "Streaming...")
}

// =============================================================================
// REPL
// =============================================================================

func newTestREPL(t *testing.T, baseURL string) (*REPL, *bytes.Buffer, *[]string) {
	t.Helper()
	st := newTestState(t, baseURL)
	var out bytes.Buffer
	var copied []string
	r := newREPL(st, &out, &out, replOptions{
		Quiet:     true,
		ExportDir: t.TempDir(),
		Clipboard: func(s string) error {
			copied = append(copied, s)
			return nil
		},
	})
	r.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return r, &out, &copied
}

func TestREPLAskAndFollowUps(t *testing.T) {
	srv := streamServer(t, http.StatusOK, "The answer.")
	r, out, copied := newTestREPL(t, srv.URL)
	ctx := context.Background()

	more, err := r.handleLine(ctx, "What is it?")
	require.NoError(t, err)
	assert.True(t, more)
	assert.Contains(t, out.String(), "The answer.")

	_, err = r.handleLine(ctx, "/copy")
	require.NoError(t, err)
	assert.Equal(t, []string{"The answer."}, *copied)

	_, err = r.handleLine(ctx, "/export")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(r.exportDir, "ai_response_20250102_030405.txt"))
	require.NoError(t, err)
	assert.Equal(t, "The answer.", string(data))

	out.Reset()
	_, err = r.handleLine(ctx, "/history")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Recent Conversations")
	assert.Contains(t, out.String(), "What is it?")

	_, err = r.handleLine(ctx, "/clear")
	require.NoError(t, err)
	assert.True(t, r.state.Current().IsZero())

	out.Reset()
	_, err = r.handleLine(ctx, "/load 1")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "The answer.")
	assert.Equal(t, "The answer.", r.state.Current().Response)

	_, err = r.handleLine(ctx, "/load 5")
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestREPLSettingsCommands(t *testing.T) {
	r, out, _ := newTestREPL(t, "http://unused")
	ctx := context.Background()

	tests := []struct {
		line  string
		check func(*testing.T, session.Settings)
	}{
		{"/model sonnet", func(t *testing.T, s session.Settings) { assert.Equal(t, "anthropic/claude-3.5-sonnet", s.Model) }},
		{"/temp 0.3", func(t *testing.T, s session.Settings) { assert.InDelta(t, 0.3, s.Temperature, 1e-9) }},
		{"/tokens 256", func(t *testing.T, s session.Settings) { assert.Equal(t, 256, s.MaxTokens) }},
		{"/system Be brief.", func(t *testing.T, s session.Settings) { assert.Equal(t, "Be brief.", s.SystemPrompt) }},
		{"/system clear", func(t *testing.T, s session.Settings) { assert.Empty(t, s.SystemPrompt) }},
		{"/context Go 1.24", func(t *testing.T, s session.Settings) { assert.Equal(t, "Go 1.24", s.Context) }},
		{"/template Data Analysis", func(t *testing.T, s session.Settings) { assert.Contains(t, s.SystemPrompt, "data scientist") }},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			more, err := r.handleLine(ctx, tt.line)
			require.NoError(t, err)
			assert.True(t, more)
			tt.check(t, r.state.Settings())
		})
	}

	_, err := r.handleLine(ctx, "/temp 9")
	require.Error(t, err)
	assert.InDelta(t, 0.3, r.state.Settings().Temperature, 1e-9)

	_, err = r.handleLine(ctx, "/tokens many")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	out.Reset()
	_, err = r.handleLine(ctx, "/settings")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "anthropic/claude-3.5-sonnet")
	assert.NotContains(t, out.String(), testKey)
}

func TestREPLPromptsAndMisc(t *testing.T) {
	r, out, copied := newTestREPL(t, "http://unused")
	ctx := context.Background()

	_, err := r.handleLine(ctx, "/prompt brainstorm ideas")
	require.NoError(t, err)
	assert.Equal(t, "Help me brainstorm creative ideas for...", r.takePrefill())
	assert.Empty(t, r.takePrefill())

	_, err = r.handleLine(ctx, "/prompt nope")
	require.Error(t, err)

	_, err = r.handleLine(ctx, "/copy")
	require.Error(t, err)
	assert.Empty(t, *copied)

	_, err = r.handleLine(ctx, "/export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to export")

	_, err = r.handleLine(ctx, "/export pdf")
	require.Error(t, err)

	_, err = r.handleLine(ctx, "/bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	out.Reset()
	_, err = r.handleLine(ctx, "/help")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "/export")

	out.Reset()
	_, err = r.handleLine(ctx, "/model list")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "* "+openrouter.DefaultModel)

	more, err := r.handleLine(ctx, "   ")
	require.NoError(t, err)
	assert.True(t, more)

	for _, quit := range []string{"/quit", "/q", "exit"} {
		more, err := r.handleLine(ctx, quit)
		require.NoError(t, err)
		assert.False(t, more, quit)
	}
}

func TestCompleteSlashCommand(t *testing.T) {
	assert.Equal(t, []string{"/temp", "/tokens", "/template"}, completeSlashCommand("/t"))
	assert.Equal(t, []string{"/quit"}, completeSlashCommand("/Q"))
	assert.Nil(t, completeSlashCommand("hello"))
	assert.Nil(t, completeSlashCommand("/model x"))
}

// =============================================================================
// MODELS
// =============================================================================

type fakeLister struct {
	models []openrouter.ModelInfo
	err    error
}

func (f fakeLister) ListModels(ctx context.Context, apiKey string) ([]openrouter.ModelInfo, error) {
	return f.models, f.err
}

func TestRunModels(t *testing.T) {
	lister := fakeLister{models: []openrouter.ModelInfo{
		{ID: "openai/gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "anthropic/claude-3-haiku", Name: "Claude 3 Haiku", ContextSize: 200000},
	}}

	var out, errOut bytes.Buffer
	require.NoError(t, runModels(context.Background(), lister, "", "openai/gpt-4o", "", &out, &errOut))
	assert.Contains(t, out.String(), "* openai/gpt-4o")
	assert.Contains(t, out.String(), "128,000")
	assert.Less(t, strings.Index(out.String(), "anthropic/"), strings.Index(out.String(), "openai/"))
	assert.Empty(t, errOut.String())

	out.Reset()
	require.NoError(t, runModels(context.Background(), lister, "", "", "haiku", &out, &errOut))
	assert.Contains(t, out.String(), "claude-3-haiku")
	assert.NotContains(t, out.String(), "gpt-4o ")
}

func TestRunModelsFallsBack(t *testing.T) {
	lister := fakeLister{err: &openrouter.APIError{Message: "offline", Err: errors.New("dial")}}

	var out, errOut bytes.Buffer
	require.NoError(t, runModels(context.Background(), lister, "", "", "", &out, &errOut))
	assert.Contains(t, errOut.String(), "built-in list")
	for _, m := range openrouter.KnownModels {
		assert.Contains(t, out.String(), m)
	}
}

// =============================================================================
// CONFIG AND SETUP
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENROUTER_API_KEY", "CHATSTREAM_MODEL", "CHATSTREAM_BASE_URL", "CHATSTREAM_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestConfigSetGetShow(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	var out bytes.Buffer

	require.NoError(t, runConfig(Args{Subcommand: "set", ConfigKey: "chat.temperature", ConfigVal: "0.3"}, path, &out))
	require.NoError(t, runConfig(Args{Subcommand: "set", ConfigKey: "chat.model", ConfigVal: "haiku"}, path, &out))
	require.NoError(t, runConfig(Args{Subcommand: "set", ConfigKey: "openrouter.api_key", ConfigVal: testKey}, path, &out))
	assert.NotContains(t, out.String(), testKey)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	out.Reset()
	require.NoError(t, runConfig(Args{Subcommand: "get", ConfigKey: "chat.model"}, path, &out))
	assert.Equal(t, "anthropic/claude-3-haiku\n", out.String())

	out.Reset()
	require.NoError(t, runConfig(Args{Subcommand: "show"}, path, &out))
	assert.Contains(t, out.String(), "temperature = 0.3")
	assert.NotContains(t, out.String(), testKey)

	out.Reset()
	require.NoError(t, runConfig(Args{Subcommand: "reset"}, path, &out))
	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.InDelta(t, config.Default().Chat.Temperature, cfg.Chat.Temperature, 1e-9)
	assert.Equal(t, testKey, cfg.OpenRouter.APIKey)
}

func TestConfigErrors(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	var out bytes.Buffer

	err := runConfig(Args{Subcommand: "set", ConfigKey: "chat.temperature", ConfigVal: "5"}, path, &out)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "invalid value must not be saved")

	err = runConfig(Args{Subcommand: "set", ConfigKey: "chat.nope", ConfigVal: "1"}, path, &out)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))

	err = runConfig(Args{Subcommand: "set"}, path, &out)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	err = runConfig(Args{Subcommand: "frob"}, path, &out)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestConfigKeysAndPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	var out bytes.Buffer

	require.NoError(t, runConfig(Args{Subcommand: "keys"}, path, &out))
	assert.Contains(t, out.String(), "chat.max_tokens\n")
	assert.Contains(t, out.String(), "openrouter.api_key\n")

	out.Reset()
	require.NoError(t, runConfig(Args{Subcommand: "path"}, path, &out))
	assert.Equal(t, path+"\n", out.String())
}

func TestRunSetup(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "chatstream", "config.toml")
	secret := func() (string, error) { return testKey, nil }

	var out bytes.Buffer
	err := runSetup(bufio.NewReader(strings.NewReader("sonnet\n")), secret, &out, path)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Saved "+path)
	assert.NotContains(t, out.String(), testKey)

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, testKey, cfg.OpenRouter.APIKey)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.Chat.Model)

	// Empty answers keep what is there.
	out.Reset()
	empty := func() (string, error) { return "", nil }
	require.NoError(t, runSetup(bufio.NewReader(strings.NewReader("\n")), empty, &out, path))
	cfg, err = config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, testKey, cfg.OpenRouter.APIKey)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.Chat.Model)
}

func TestRunSetupRequiresKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	empty := func() (string, error) { return "", nil }

	var out bytes.Buffer
	err := runSetup(bufio.NewReader(strings.NewReader("")), empty, &out, path)
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestRunSetupWarnsOnOddKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	secret := func() (string, error) { return "not-a-key", nil }

	var out bytes.Buffer
	require.NoError(t, runSetup(bufio.NewReader(strings.NewReader("")), secret, &out, path))
	assert.Contains(t, out.String(), "[WARN]")
}

// =============================================================================
// SERVE RELOAD
// =============================================================================

func TestApplyReload(t *testing.T) {
	st := newTestState(t, "http://unused")

	next := config.Default()
	next.Chat.Model = "openai/gpt-4o"
	next.Chat.Temperature = 0.1
	applyReload(st, next, nil, Args{})
	assert.Equal(t, "openai/gpt-4o", st.Settings().Model)
	assert.Equal(t, testKey, st.Settings().APIKey, "key kept when the file has none")

	// Flags win over the file.
	next = config.Default()
	next.Chat.Model = "openai/gpt-4o"
	applyReload(st, next, nil, Args{Model: "haiku"})
	assert.Equal(t, "anthropic/claude-3-haiku", st.Settings().Model)

	// Failed or invalid reloads keep the current settings.
	applyReload(st, nil, errors.New("parse error"), Args{})
	bad := config.Default()
	bad.Chat.Temperature = 7
	applyReload(st, bad, nil, Args{})
	assert.Equal(t, "anthropic/claude-3-haiku", st.Settings().Model)
}

func TestApplyReloadKeepsTemplate(t *testing.T) {
	codeReview, ok := session.LookupTemplate("Code Review")
	require.True(t, ok)

	t.Run("template flag", func(t *testing.T) {
		st := newTestState(t, "http://unused")
		_, err := st.LoadTemplate("Code Review")
		require.NoError(t, err)

		applyReload(st, config.Default(), nil, Args{Template: "Code Review"})
		assert.Equal(t, "Code Review", st.TemplateName())
		assert.Equal(t, codeReview.SystemPrompt, st.Settings().SystemPrompt)
	})

	t.Run("template loaded in the session", func(t *testing.T) {
		st := newTestState(t, "http://unused")
		_, err := st.LoadTemplate("Data Analysis")
		require.NoError(t, err)

		next := config.Default()
		next.Chat.Model = "openai/gpt-4o"
		applyReload(st, next, nil, Args{Template: "Code Review"})
		assert.Equal(t, "Data Analysis", st.TemplateName())
		assert.Contains(t, st.Settings().SystemPrompt, "data scientist")
		assert.Equal(t, "openai/gpt-4o", st.Settings().Model)
	})

	t.Run("system flag wins", func(t *testing.T) {
		st := newTestState(t, "http://unused")
		system := "Be terse."
		applyReload(st, config.Default(), nil, Args{Template: "Code Review", SystemPrompt: &system})
		assert.Empty(t, st.TemplateName())
		assert.Equal(t, system, st.Settings().SystemPrompt)
	})

	t.Run("edited prompt drops the template", func(t *testing.T) {
		st := newTestState(t, "http://unused")
		_, err := st.LoadTemplate("Code Review")
		require.NoError(t, err)
		require.NoError(t, st.UpdateSettings(func(s *session.Settings) { s.SystemPrompt = "Custom." }))
		assert.Empty(t, st.TemplateName())

		applyReload(st, config.Default(), nil, Args{})
		assert.Empty(t, st.TemplateName())
		assert.Equal(t, config.Default().Chat.SystemPrompt, st.Settings().SystemPrompt)
	})
}
