// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat (REPL) command.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   chatstream chat
//   chatstream chat --model sonnet --template "Code Review"
//
// Interactive Commands (during chat):
//   /help, /h            Show available commands
//   /clear, /c           Start a new conversation (history is kept)
//   /model [name|list]   Show, switch or list models
//   /temp [value]        Show or set temperature (0.0 - 2.0)
//   /tokens [n]          Show or set max tokens
//   /system [text|clear] Show, set or clear the system prompt
//   /context [text|clear] Show, set or clear the context
//   /template [name]     List templates or load one
//   /prompt [name]       List quick prompts or prefill one
//   /history             List recent conversations
//   /load N              Load conversation N from /history
//   /copy                Copy the last response to the clipboard
//   /export [txt|md|json|html] Save the last response to a file
//   /settings            Show the current settings
//   /quit, /q            Exit chat
//   Ctrl+C               Cancel the streaming response
//   Ctrl+D               Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/peterh/liner"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/storage"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.line.SetCompleter(completeSlashCommand)
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line, prefilled with suggestion when non-empty.
func (c *ChatCLI) ReadInput(prompt, suggestion string) (string, error) {
	var input string
	var err error
	if suggestion != "" {
		input, err = c.line.PromptWithSuggestion(prompt, suggestion, -1)
	} else {
		input, err = c.line.Prompt(prompt)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// slashCommands lists the commands offered by tab completion.
var slashCommands = []string{
	"/help", "/clear", "/model", "/temp", "/tokens", "/system", "/context",
	"/template", "/prompt", "/history", "/load", "/copy", "/export", "/settings", "/quit",
}

func completeSlashCommand(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// REPL
// =============================================================================

// REPL holds the state of an interactive chat session.
type REPL struct {
	state  *session.State
	out    io.Writer
	errOut io.Writer

	markdown     bool
	width        int
	quiet        bool
	exportDir    string
	historyLimit int
	clipboard    func(string) error
	now          func() time.Time

	listed  []session.ConversationRecord // last /history listing, for /load
	prefill string                       // text for the next prompt
	queries int
	started time.Time
}

// replOptions configures a REPL.
type replOptions struct {
	Markdown     bool
	Width        int
	Quiet        bool
	ExportDir    string
	HistoryLimit int
	Clipboard    func(string) error
}

func newREPL(st *session.State, out, errOut io.Writer, opts replOptions) *REPL {
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	return &REPL{
		state:        st,
		out:          out,
		errOut:       errOut,
		markdown:     opts.Markdown,
		width:        opts.Width,
		quiet:        opts.Quiet,
		exportDir:    opts.ExportDir,
		historyLimit: opts.HistoryLimit,
		clipboard:    opts.Clipboard,
		now:          time.Now,
		started:      time.Now(),
	}
}

// HandleChatCommand handles the "chat" command.
func HandleChatCommand(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	rt, err := NewRuntime(cfg, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	mode := detectOutput(args, cfg)
	r := newREPL(rt.State, os.Stdout, os.Stderr, replOptions{
		Markdown:     mode.Markdown,
		Width:        mode.Width,
		Quiet:        args.Quiet,
		ExportDir:    cfg.UI.ExportDir,
		HistoryLimit: cfg.UI.HistoryLimit,
	})

	input := NewChatCLI()
	defer input.Close()

	// Ctrl+C while streaming cancels the response. At the prompt liner
	// reports it as ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if rt.State.Cancel() {
				fmt.Fprintln(os.Stderr, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	if !args.Quiet {
		r.printWelcome()
	}

	ctx := context.Background()
	for {
		line, err := input.ReadInput(PromptStyle.Render("you> "), r.takePrefill())
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed stdin.
			fmt.Fprintln(r.out)
			r.printExitSummary()
			return nil
		}

		more, err := r.handleLine(ctx, line)
		if err != nil {
			DisplayError(r.errOut, err)
		}
		if !more {
			r.printExitSummary()
			return nil
		}
	}
}

// handleLine processes one line of input. It returns false when the
// session should end.
func (r *REPL) handleLine(ctx context.Context, line string) (bool, error) {
	input := strings.TrimSpace(line)
	if input == "" {
		return true, nil
	}
	if strings.HasPrefix(input, "/") {
		return r.handleSlashCommand(input)
	}
	if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
		return false, nil
	}
	return true, r.ask(ctx, input)
}

// ask streams the answer to question.
func (r *REPL) ask(ctx context.Context, question string) error {
	fmt.Fprintln(r.out)
	err := runAsk(ctx, r.state, question, r.out, r.errOut, askOptions{
		Markdown: r.markdown,
		Width:    r.width,
		Quiet:    r.quiet,
	})
	fmt.Fprintln(r.out)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	r.queries++
	return nil
}

func (r *REPL) takePrefill() string {
	p := r.prefill
	r.prefill = ""
	return p
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func (r *REPL) handleSlashCommand(input string) (bool, error) {
	command, rest, _ := strings.Cut(input, " ")
	command = strings.ToLower(command)
	rest = strings.TrimSpace(rest)

	switch command {
	case "/help", "/h", "/?", "/":
		r.printHelp()
	case "/clear", "/c", "/new":
		r.state.Clear()
		r.println(SuccessStyle.Render("[New conversation]"))
	case "/model", "/m":
		return true, r.modelCommand(rest)
	case "/temp", "/temperature":
		return true, r.temperatureCommand(rest)
	case "/tokens", "/max-tokens":
		return true, r.tokensCommand(rest)
	case "/system":
		return true, r.textSettingCommand("system prompt", rest, func(s *session.Settings) *string { return &s.SystemPrompt })
	case "/context":
		return true, r.textSettingCommand("context", rest, func(s *session.Settings) *string { return &s.Context })
	case "/template", "/t":
		return true, r.templateCommand(rest)
	case "/prompt", "/p":
		return true, r.promptCommand(rest)
	case "/history":
		return true, r.historyCommand()
	case "/load":
		return true, r.loadCommand(rest)
	case "/copy":
		return true, r.copyCommand()
	case "/export", "/save":
		return true, r.exportCommand(rest)
	case "/settings", "/status", "/s":
		r.printSettings()
	case "/quit", "/q", "/exit":
		return false, nil
	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return true, nil
}

func (r *REPL) modelCommand(arg string) error {
	switch arg {
	case "":
		r.printf("%s %s\n", DimStyle.Render("[Model]"), CommandStyle.Render(r.state.Settings().Model))
		return nil
	case "list", "ls":
		current := r.state.Settings().Model
		for _, m := range openrouter.KnownModels {
			marker := "  "
			if m == current {
				marker = "* "
			}
			r.printf("%s%s\n", marker, m)
		}
		return nil
	}

	model := openrouter.ResolveModel(arg)
	if err := r.state.UpdateSettings(func(s *session.Settings) { s.Model = model }); err != nil {
		return err
	}
	r.printf("%s Switched to model: %s\n", SuccessStyle.Render("[OK]"), model)
	return nil
}

func (r *REPL) temperatureCommand(arg string) error {
	if arg == "" {
		r.printf("%s %.1f\n", DimStyle.Render("[Temperature]"), r.state.Settings().Temperature)
		return nil
	}
	t, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return NewValidationErrorWithExample("temperature", arg, "must be a number", "/temp 0.7")
	}
	if err := r.state.UpdateSettings(func(s *session.Settings) { s.Temperature = t }); err != nil {
		return err
	}
	r.printf("%s Temperature set to %.1f\n", SuccessStyle.Render("[OK]"), t)
	return nil
}

func (r *REPL) tokensCommand(arg string) error {
	if arg == "" {
		r.printf("%s %d\n", DimStyle.Render("[Max tokens]"), r.state.Settings().MaxTokens)
		return nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return NewValidationErrorWithExample("max tokens", arg, "must be an integer", "/tokens 1000")
	}
	if err := r.state.UpdateSettings(func(s *session.Settings) { s.MaxTokens = n }); err != nil {
		return err
	}
	r.printf("%s Max tokens set to %d\n", SuccessStyle.Render("[OK]"), n)
	return nil
}

// textSettingCommand shows, clears or replaces a free-text setting.
func (r *REPL) textSettingCommand(name, arg string, field func(*session.Settings) *string) error {
	if arg == "" {
		s := r.state.Settings()
		value := *field(&s)
		if value == "" {
			value = DimStyle.Render("(none)")
		}
		r.printf("%s %s\n", DimStyle.Render("["+name+"]"), value)
		return nil
	}
	value := arg
	if strings.EqualFold(arg, "clear") {
		value = ""
	}
	if err := r.state.UpdateSettings(func(s *session.Settings) { *field(s) = value }); err != nil {
		return err
	}
	if value == "" {
		r.printf("%s %s cleared\n", SuccessStyle.Render("[OK]"), name)
	} else {
		r.printf("%s %s updated\n", SuccessStyle.Render("[OK]"), name)
	}
	return nil
}

func (r *REPL) templateCommand(arg string) error {
	if arg == "" {
		current := r.state.TemplateName()
		r.println(SectionStyle.Render("Templates"))
		for _, t := range session.Templates() {
			marker := "  "
			if t.Name == current {
				marker = "* "
			}
			r.printf("%s%s\n    %s\n", marker, CommandStyle.Render(t.Name), DimStyle.Render(t.SystemPrompt))
		}
		return nil
	}
	t, err := r.state.LoadTemplate(arg)
	if err != nil {
		return NewValidationErrorWithExample("template", arg, "unknown template", templateNames())
	}
	r.printf("%s Template: %s loaded\n", SuccessStyle.Render("[OK]"), t.Name)
	return nil
}

func (r *REPL) promptCommand(arg string) error {
	if arg == "" {
		r.println(SectionStyle.Render("Quick prompts"))
		for _, p := range session.QuickPrompts() {
			r.printf("  %-18s %s\n", CommandStyle.Render(p.Name), DimStyle.Render(p.Prompt))
		}
		return nil
	}
	p, err := r.state.ApplyQuickPrompt(arg)
	if err != nil {
		var names []string
		for _, q := range session.QuickPrompts() {
			names = append(names, q.Name)
		}
		return NewValidationErrorWithExample("quick prompt", arg, "unknown quick prompt", joinQuoted(names))
	}
	r.prefill = p.Prompt
	return nil
}

func (r *REPL) historyCommand() error {
	records, err := r.state.RecentHistory(context.Background(), r.historyLimit)
	if err != nil {
		return err
	}
	r.listed = records
	r.println(storage.FormatHistoryList(records))
	if len(records) > 0 {
		r.println(DimStyle.Render("Use /load N to show a conversation."))
	}
	return nil
}

func (r *REPL) loadCommand(arg string) error {
	if arg == "" {
		return ErrMissingArgument("conversation number", "/load 1")
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return NewValidationErrorWithExample("conversation number", arg, "must be a positive integer", "/load 1")
	}
	if r.listed == nil {
		if r.listed, err = r.state.RecentHistory(context.Background(), r.historyLimit); err != nil {
			return err
		}
	}
	if n > len(r.listed) {
		return ErrNotFound("conversation", arg)
	}

	rec, err := r.state.LoadRecord(context.Background(), r.listed[n-1].ID)
	if err != nil {
		return err
	}
	r.printf("%s %s\n\n", SectionStyle.Render("Q:"), rec.Question)
	if r.markdown {
		fmt.Fprint(r.out, renderMarkdown(rec.Response, r.width))
	} else {
		r.println(rec.Response)
	}
	r.printf("%s\n", DimStyle.Render(fmt.Sprintf("[%s | %s]", rec.DateLabel(), rec.Model)))
	return nil
}

func (r *REPL) copyCommand() error {
	text := r.state.Current().Response
	if text == "" {
		return errors.New("nothing to copy yet")
	}
	if err := r.clipboard(text); err != nil {
		return WrapError(err, "copy to clipboard")
	}
	r.printf("%s Response copied to clipboard\n", SuccessStyle.Render("[OK]"))
	return nil
}

func (r *REPL) exportCommand(format string) error {
	opts := &export.Options{OutputDir: r.exportDir, IncludeMetadata: true}
	exporter, err := export.ExporterFor(format, opts)
	if err != nil {
		return NewValidationErrorWithExample("format", format, err.Error(), "/export md")
	}
	path, err := export.ExportToFile(r.state.Current(), exporter, opts, r.now())
	if err != nil {
		if errors.Is(err, export.ErrNothingToExport) {
			return errors.New("nothing to export yet")
		}
		return err
	}
	log.Printf("EXPORT_COMPLETE | path=%s", path)
	r.printf("%s Exported to %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func (r *REPL) printf(format string, a ...any) {
	fmt.Fprintf(r.out, format, a...)
}

func (r *REPL) println(s string) {
	fmt.Fprintln(r.out, s)
}

// printWelcome prints the welcome banner.
func (r *REPL) printWelcome() {
	s := r.state.Settings()
	r.println("")
	r.println(TitleStyle.Render("chatstream interactive chat"))
	r.println(RenderSeparator(30))
	r.printf("%s%s\n", RenderLabel("Model:"), CommandStyle.Render(s.Model))
	if name := r.state.TemplateName(); name != "" {
		r.printf("%s%s\n", RenderLabel("Template:"), CommandStyle.Render(name))
	}
	if s.APIKey == "" {
		r.printf("%s%s\n", RenderLabel("API key:"), WarningStyle.Render("not configured (run 'chatstream setup')"))
	}
	r.println("")
	r.println(DimStyle.Render("Type your question and press Enter. Commands: /help, /quit"))
	r.println("")
}

// printHelp prints available commands.
func (r *REPL) printHelp() {
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Start a new conversation"},
		{"/model [name|list]", "Show, switch or list models"},
		{"/temp [value]", "Show or set temperature (0.0 - 2.0)"},
		{"/tokens [n]", "Show or set max tokens"},
		{"/system [text|clear]", "Show or set the system prompt"},
		{"/context [text|clear]", "Show or set the context"},
		{"/template [name]", "List templates or load one"},
		{"/prompt [name]", "List quick prompts or prefill one"},
		{"/history", "List recent conversations"},
		{"/load N", "Show conversation N from /history"},
		{"/copy", "Copy the last response"},
		{"/export [txt|md|json|html]", "Save the last response to a file"},
		{"/settings", "Show current settings"},
		{"/quit, /q", "Exit chat"},
	}

	r.println("")
	r.println(SectionStyle.Render("Available Commands"))
	r.println(RenderSeparator(20))
	for _, c := range commands {
		r.printf("  %s  %s\n", CommandStyle.Render(fmt.Sprintf("%-22s", c.cmd)), DimStyle.Render(c.desc))
	}
	r.println("")
	r.println(DimStyle.Render("Tip: Ctrl+C cancels the streaming response, Ctrl+D exits"))
	r.println("")
}

// printSettings prints the session settings.
func (r *REPL) printSettings() {
	s := r.state.Settings()
	system := s.SystemPrompt
	if system == "" {
		system = "(none)"
	}
	ctxText := s.Context
	if ctxText == "" {
		ctxText = "(none)"
	}

	r.println("")
	r.println(SectionStyle.Render("Settings"))
	r.println(RenderSeparator(20))
	r.printf("%s%s\n", RenderLabel("Model:"), s.Model)
	r.printf("%s%.1f\n", RenderLabel("Temperature:"), s.Temperature)
	r.printf("%s%d\n", RenderLabel("Max tokens:"), s.MaxTokens)
	r.printf("%s%s\n", RenderLabel("System:"), system)
	r.printf("%s%s\n", RenderLabel("Context:"), ctxText)
	r.printf("%s%s\n", RenderLabel("API key:"), openrouter.MaskKey(s.APIKey))
	r.printf("%s%v\n", RenderLabel("Save history:"), s.SaveConversation)
	r.println("")
}

// printExitSummary prints the session summary on exit.
func (r *REPL) printExitSummary() {
	if r.queries > 0 && !r.quiet {
		elapsed := time.Since(r.started).Round(time.Second)
		r.printf("%s %s questions in %s\n", DimStyle.Render("[Session]"), formatNumber(r.queries), elapsed)
	}
	r.println(DimStyle.Render("Goodbye!"))
}
