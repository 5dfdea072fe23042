// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/openrouter"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// Layout constants.
const (
	inputHeight        = 3
	noticeDuration     = 4 * time.Second
	defaultHistorySize = 10
)

// noticeKind selects the notice style.
type noticeKind int

const (
	noticeInfo noticeKind = iota
	noticeSuccess
	noticeWarning
	noticeError
)

// Options configures a new Model.
type Options struct {
	State        *session.State
	Theme        *styles.Theme
	ExportDir    string
	HistoryLimit int
	Markdown     bool
	Version      string

	// Clipboard writes text to the system clipboard. Defaults to
	// clipboard.WriteAll.
	Clipboard func(string) error
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	state *session.State
	theme *styles.Theme
	keys  KeyMap

	// Widgets
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model

	// Streaming
	buffer      *StreamingBuffer
	cancelMgr   *cancelManager
	streaming   bool
	question    string
	response    string
	streamStart time.Time
	renderer    *markdownRenderer

	// History pane
	showHistory   bool
	history       []session.ConversationRecord
	historyCursor int
	historyLimit  int

	// Notices
	notice     string
	noticeKind noticeKind
	noticeID   int
	stats      string

	// Settings mirrored from config
	exportDir string
	version   string
	clipboard func(string) error
	quickIdx  int

	width, height int
	ready         bool
}

// New creates the chat model.
func New(opts Options) *Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}
	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistorySize
	}
	writeClipboard := opts.Clipboard
	if writeClipboard == nil {
		writeClipboard = clipboard.WriteAll
	}
	exportDir := opts.ExportDir
	if exportDir == "" {
		exportDir = "."
	}

	keys := DefaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Ask anything... (Enter to send, Alt+Enter for a new line)"
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Line),
		spinner.WithStyle(theme.Spinner),
	)

	m := &Model{
		state:        opts.State,
		theme:        theme,
		keys:         keys,
		input:        ta,
		viewport:     viewport.New(80, 10),
		spinner:      sp,
		help:         help.New(),
		buffer:       NewStreamingBuffer(),
		cancelMgr:    newCancelManager(),
		renderer:     newMarkdownRenderer(opts.Markdown, theme.IsDark),
		historyLimit: historyLimit,
		exportDir:    exportDir,
		version:      opts.Version,
		clipboard:    writeClipboard,
		quickIdx:     -1,
	}

	if cur := m.state.Current(); !cur.IsZero() {
		m.question = cur.Question
		m.response = cur.Response
	}
	if q := m.state.Question(); q != "" {
		m.input.SetValue(q)
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.loadHistoryCmd())
}

// Streaming reports whether a submission is in flight.
func (m *Model) Streaming() bool {
	return m.streaming
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamTickMsg:
		return m.handleStreamTick()

	case StreamCompleteMsg:
		return m.handleStreamComplete(msg)

	case StreamErrorMsg:
		return m.handleStreamError(msg)

	case HistoryLoadedMsg:
		if msg.Err != nil {
			return m, m.setNotice(noticeError, "History unavailable: "+msg.Err.Error())
		}
		m.history = msg.Records
		if m.historyCursor >= len(m.history) {
			m.historyCursor = max(0, len(m.history)-1)
		}
		return m, nil

	case RecordLoadedMsg:
		if msg.Err != nil {
			return m, m.setNotice(noticeError, "Could not load conversation: "+msg.Err.Error())
		}
		m.question = msg.Record.Question
		m.response = msg.Record.Response
		m.stats = ""
		m.showHistory = false
		m.layout()
		m.refreshViewport(true)
		return m, m.setNotice(noticeInfo, "Loaded conversation from "+msg.Record.DateLabel())

	case ExportCompleteMsg:
		if msg.Err != nil {
			if errors.Is(msg.Err, export.ErrNothingToExport) {
				return m, m.setNotice(noticeWarning, "Nothing to export yet")
			}
			return m, m.setNotice(noticeError, "Export failed: "+msg.Err.Error())
		}
		return m, m.setNotice(noticeSuccess, "Exported to "+msg.Path)

	case CopyCompleteMsg:
		if msg.Err != nil {
			return m, m.setNotice(noticeError, "Copy failed: "+msg.Err.Error())
		}
		return m, m.setNotice(noticeSuccess, "Response copied to clipboard")

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)

	case clearNoticeMsg:
		if msg.id == m.noticeID {
			m.notice = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !m.streaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey routes key presses. Global bindings win over the textarea.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHistory {
		return m.handleHistoryKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Cancel):
		if m.streaming {
			m.cancelMgr.cancel()
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Quit):
		m.cancelMgr.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Clear):
		if m.streaming {
			return m, m.setNotice(noticeWarning, "Wait for the response or press Ctrl+C to cancel")
		}
		m.state.Clear()
		m.input.Reset()
		m.question, m.response, m.stats = "", "", ""
		m.quickIdx = -1
		m.refreshViewport(true)
		return m, m.setNotice(noticeInfo, "New conversation")

	case key.Matches(msg, m.keys.Template):
		next := session.NextTemplate(m.state.TemplateName())
		if _, err := m.state.LoadTemplate(next.Name); err != nil {
			return m, m.setNotice(noticeError, err.Error())
		}
		return m, m.setNotice(noticeSuccess, fmt.Sprintf("Template: %s loaded", next.Name))

	case key.Matches(msg, m.keys.QuickPrompt):
		prompts := session.QuickPrompts()
		m.quickIdx = (m.quickIdx + 1) % len(prompts)
		p, err := m.state.ApplyQuickPrompt(prompts[m.quickIdx].Name)
		if err != nil {
			return m, m.setNotice(noticeError, err.Error())
		}
		m.input.SetValue(p.Prompt)
		m.input.CursorEnd()
		return m, m.setNotice(noticeInfo, "Quick prompt: "+p.Name)

	case key.Matches(msg, m.keys.Model):
		var model string
		err := m.state.UpdateSettings(func(s *session.Settings) {
			s.Model = openrouter.NextKnownModel(s.Model)
			model = s.Model
		})
		if err != nil {
			return m, m.setNotice(noticeError, openrouter.UserMessage(err))
		}
		return m, m.setNotice(noticeInfo, "Model: "+model)

	case key.Matches(msg, m.keys.Export):
		return m, exportCmd(m.state.Current(), m.exportDir)

	case key.Matches(msg, m.keys.Copy):
		text := m.state.Current().Response
		if text == "" {
			return m, m.setNotice(noticeWarning, "Nothing to copy yet")
		}
		return m, copyCmd(m.clipboard, text)

	case key.Matches(msg, m.keys.History):
		m.showHistory = true
		m.historyCursor = 0
		m.layout()
		m.refreshViewport(!m.streaming)
		return m, m.loadHistoryCmd()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.state.SetQuestion(m.input.Value())
	return m, cmd
}

// handleHistoryKey handles keys while the history pane has focus.
func (m *Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Close):
		m.showHistory = false
		m.layout()
		m.refreshViewport(!m.streaming)
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
		m.cancelMgr.cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.historyCursor > 0 {
			m.historyCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.historyCursor < len(m.history)-1 {
			m.historyCursor++
		}
	case key.Matches(msg, m.keys.Load):
		if m.streaming {
			return m, m.setNotice(noticeWarning, "Wait for the response before loading history")
		}
		if m.historyCursor < len(m.history) {
			return m, loadRecordCmd(m.state, m.history[m.historyCursor].ID)
		}
	}
	return m, nil
}

// submit starts streaming the composed question.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	if m.streaming {
		return m, m.setNotice(noticeWarning, "A response is already streaming")
	}
	question := m.input.Value()
	m.state.SetQuestion(question)

	// Validation errors surface before any visible state changes.
	settings := m.state.Settings()
	if err := settings.Validate(); err != nil {
		return m, m.setNotice(noticeError, openrouter.UserMessage(err))
	}
	if isBlank(question) {
		return m, m.setNotice(noticeWarning, "Please enter a question.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelMgr.set(cancel)
	m.buffer.Reset()
	m.streaming = true
	m.question = question
	m.response = ""
	m.stats = ""
	m.notice = ""
	m.streamStart = time.Now()
	m.refreshViewport(true)

	log.Printf("TUI_SUBMIT | model=%s chars=%d", settings.Model, len(question))
	return m, tea.Batch(
		submitCmd(ctx, m.state, question, m.buffer),
		streamTickCmd(),
		m.spinner.Tick,
	)
}

func (m *Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if !m.streaming {
		return m, nil
	}
	if content, ok := m.buffer.Flush(); ok {
		m.response += content
		m.refreshViewport(false)
	}
	return m, streamTickCmd()
}

func (m *Model) handleStreamComplete(msg StreamCompleteMsg) (tea.Model, tea.Cmd) {
	m.streaming = false
	m.cancelMgr.cancel()

	// Deltas that arrived after the last frame.
	if rest, ok := m.buffer.ForceFlush(); ok {
		m.response += rest
	}
	if m.response != msg.Record.Response {
		log.Printf("TUI_STREAM_RESYNC | rendered=%d recorded=%d", len(m.response), len(msg.Record.Response))
		m.response = msg.Record.Response
	}
	if m.state.Settings().ShowStats {
		m.stats = msg.Stats.String()
	}
	if m.state.Question() == "" {
		m.input.Reset()
	}
	m.refreshViewport(true)
	return m, tea.Batch(
		m.setNotice(noticeSuccess, "Response complete"),
		m.loadHistoryCmd(),
	)
}

func (m *Model) handleStreamError(msg StreamErrorMsg) (tea.Model, tea.Cmd) {
	m.streaming = false
	m.cancelMgr.cancel()
	m.buffer.Reset()

	// Partial text is discarded; show the last completed conversation.
	cur := m.state.Current()
	m.question, m.response = cur.Question, cur.Response
	m.refreshViewport(true)

	if errors.Is(msg.Err, context.Canceled) {
		return m, m.setNotice(noticeWarning, "Response cancelled")
	}
	if errors.Is(msg.Err, session.ErrBusy) {
		return m, m.setNotice(noticeWarning, "A response is already streaming")
	}
	return m, m.setNotice(noticeError, openrouter.UserMessage(msg.Err))
}

func (m *Model) handleConfigReloaded(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		return m, m.setNotice(noticeWarning, "Config reload failed, keeping current settings")
	}
	cfg := msg.Config
	if err := m.state.ReloadSettings(session.SettingsFromConfig(cfg)); err != nil {
		return m, m.setNotice(noticeWarning, "Config reload rejected: "+openrouter.UserMessage(err))
	}
	if cfg.UI.ExportDir != "" {
		m.exportDir = cfg.UI.ExportDir
	}
	if cfg.UI.HistoryLimit > 0 {
		m.historyLimit = cfg.UI.HistoryLimit
	}
	return m, m.setNotice(noticeInfo, "Configuration reloaded")
}

// setNotice shows a transient notification.
func (m *Model) setNotice(kind noticeKind, text string) tea.Cmd {
	m.noticeID++
	m.notice = text
	m.noticeKind = kind
	id := m.noticeID
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return clearNoticeMsg{id: id}
	})
}

// =============================================================================
// COMMANDS
// =============================================================================

// submitCmd runs one submission, feeding deltas into buf.
func submitCmd(ctx context.Context, st *session.State, question string, buf *StreamingBuffer) tea.Cmd {
	return func() tea.Msg {
		rec, err := st.Submit(ctx, question, buf.Write)
		if err != nil {
			return StreamErrorMsg{Err: err}
		}
		return StreamCompleteMsg{Record: rec, Stats: st.LastStats()}
	}
}

func (m *Model) loadHistoryCmd() tea.Cmd {
	st, limit := m.state, m.historyLimit
	return func() tea.Msg {
		records, err := st.RecentHistory(context.Background(), limit)
		return HistoryLoadedMsg{Records: records, Err: err}
	}
}

func loadRecordCmd(st *session.State, id string) tea.Cmd {
	return func() tea.Msg {
		rec, err := st.LoadRecord(context.Background(), id)
		return RecordLoadedMsg{Record: rec, Err: err}
	}
}

func exportCmd(rec session.ConversationRecord, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := export.ExportText(rec, &export.Options{OutputDir: dir}, time.Now())
		return ExportCompleteMsg{Path: path, Err: err}
	}
}

func copyCmd(write func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return CopyCompleteMsg{Err: write(text)}
	}
}
