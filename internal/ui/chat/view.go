// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatstream/internal/util"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// =============================================================================
// LAYOUT
// =============================================================================

// resize applies a new window size.
func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.theme.SetSize(width, height)
	m.ready = true
	m.layout()
	m.refreshViewport(!m.streaming)
}

// layout sizes widgets from the window size.
//
//	header    1
//	question  1
//	response  rest
//	status    1
//	input     border + inputHeight
//	help      1 (more when expanded)
func (m *Model) layout() {
	if !m.ready {
		return
	}
	helpHeight := 1
	if m.help.ShowAll {
		helpHeight = 4
	}
	chrome := 1 + 1 + 1 + (1 + inputHeight) + helpHeight
	vpHeight := m.height - chrome
	if vpHeight < 3 {
		vpHeight = 3
	}

	m.viewport.Width = m.responseWidth()
	m.viewport.Height = vpHeight
	m.input.SetWidth(max(10, m.width-2))
	m.help.Width = m.width
}

// responseWidth is the width of the response pane, narrower when the
// history pane sits beside it.
func (m *Model) responseWidth() int {
	w := m.width
	if m.showHistory && m.theme.GetLayoutMode() == styles.LayoutWide {
		w -= historyPaneWidth
	}
	return max(10, w)
}

const historyPaneWidth = 64

// refreshViewport re-renders the response. final selects markdown
// rendering; while streaming, plain wrapping keeps each frame cheap.
func (m *Model) refreshViewport(final bool) {
	width := m.responseWidth() - 1
	var content string
	switch {
	case m.response == "" && m.streaming:
		content = ""
	case m.response == "":
		content = m.theme.Placeholder.Render("Your AI response will appear here.")
	case final:
		content = m.renderer.Render(m.response, width)
	default:
		content = wrapPlain(m.response, width)
	}
	m.viewport.SetContent(content)
	if m.streaming {
		m.viewport.GotoBottom()
	} else if final {
		m.viewport.GotoTop()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	body := m.viewport.View()
	if m.showHistory {
		pane := m.renderHistory()
		if m.theme.GetLayoutMode() == styles.LayoutWide {
			body = lipgloss.JoinHorizontal(lipgloss.Top, body, pane)
		} else {
			body = pane
		}
	}

	sections := []string{
		m.renderHeader(),
		m.renderQuestion(),
		body,
		m.renderStatus(),
		m.theme.InputContainer.Width(m.width).Render(m.input.View()),
		m.renderHelp(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	settings := m.state.Settings()
	title := m.theme.HeaderTitle.Render("chatstream")
	if m.version != "" {
		title += " " + m.theme.HeaderSubtitle.Render(m.version)
	}

	parts := []string{settings.Model, fmt.Sprintf("temp %.1f", settings.Temperature), fmt.Sprintf("max %d", settings.MaxTokens)}
	if name := m.state.TemplateName(); name != "" {
		parts = append(parts, name)
	}
	info := m.theme.HeaderSubtitle.Render(strings.Join(parts, " | "))

	gap := m.width - lipgloss.Width(title) - lipgloss.Width(info) - 2
	if gap < 1 {
		return m.theme.Header.Width(m.width).Render(util.TruncateWidth(title+" "+info, max(1, m.width-2)))
	}
	return m.theme.Header.Width(m.width).Render(title + strings.Repeat(" ", gap) + info)
}

func (m *Model) renderQuestion() string {
	label := m.theme.QuestionLabel.Render("Q: ")
	if m.question == "" {
		return label + m.theme.Placeholder.Render("no question yet")
	}
	avail := max(1, m.width-lipgloss.Width(label))
	return label + util.TruncateWidth(util.SingleLine(m.question), avail)
}

func (m *Model) renderStatus() string {
	var left string
	switch {
	case m.streaming:
		elapsed := time.Since(m.streamStart).Round(100 * time.Millisecond)
		left = m.spinner.View() + " " + m.theme.ThinkingText.Render(fmt.Sprintf("Streaming response... %s (Ctrl+C to cancel)", elapsed))
	case m.notice != "":
		left = m.renderNotice()
	case m.stats != "":
		left = m.theme.StatsLabel.Render("Stats: ") + m.theme.StatsValue.Render(m.stats)
	}
	return m.theme.StatusBar.Width(m.width).Render(left)
}

func (m *Model) renderNotice() string {
	switch m.noticeKind {
	case noticeSuccess:
		return styles.RenderSuccess(m.notice)
	case noticeWarning:
		return styles.RenderWarning(m.notice)
	case noticeError:
		return styles.RenderError(m.notice)
	default:
		return styles.RenderInfo(m.notice)
	}
}

func (m *Model) renderHelp() string {
	if m.showHistory {
		return m.help.View(historyKeys{k: m.keys})
	}
	return m.help.View(m.keys)
}

// renderHistory draws the recent conversations list.
func (m *Model) renderHistory() string {
	width := historyPaneWidth
	if m.theme.GetLayoutMode() != styles.LayoutWide {
		width = m.width
	}

	var sb strings.Builder
	sb.WriteString(m.theme.HistoryTitle.Render("Recent Conversations"))
	sb.WriteString("\n\n")

	if len(m.history) == 0 {
		sb.WriteString(m.theme.HistoryMeta.Render("No conversations yet."))
	}
	for i, rec := range m.history {
		line := fmt.Sprintf("%s  %s", rec.QuestionPreview(), m.theme.HistoryMeta.Render(rec.DateLabel()))
		if i == m.historyCursor {
			line = m.theme.HistoryItemSelected.Render(rec.QuestionPreview()) + "  " + m.theme.HistoryMeta.Render(rec.DateLabel())
		} else {
			line = m.theme.HistoryItem.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return m.theme.HistoryPane.
		Width(max(10, width-2)).
		Height(max(1, m.viewport.Height-2)).
		Render(strings.TrimRight(sb.String(), "\n"))
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
