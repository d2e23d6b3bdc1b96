// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/util"
)

// View renders the interface.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.form != nil {
		header := m.theme.Header.Width(m.width).Render("Settings")
		return lipgloss.JoinVertical(lipgloss.Left, header, m.form.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTabs(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatus(),
		m.help.View(m.keys),
	)
}

// =============================================================================
// TAB BAR
// =============================================================================

func (m Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, t := range m.tabs {
		title := t.title()
		switch {
		case i == m.active:
			parts = append(parts, m.theme.TabActive.Render(title))
		case t.conv.Typing():
			parts = append(parts, m.theme.TabTyping.Render(title))
		default:
			parts = append(parts, m.theme.Tab.Render(title))
		}
	}
	bar := strings.Join(parts, m.theme.TabDivider.Render("|"))
	return util.TruncateWidth(bar, m.width)
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (m Model) renderConversation(t *tab) string {
	if t.conv.IsEmpty() {
		return m.theme.Muted.Render("\n  Type a message and press enter to ask " + t.conv.ModelName() + ".")
	}

	var sb strings.Builder
	msgs := t.conv.Messages()
	for i, msg := range msgs {
		streaming := t.conv.Typing() && i == len(msgs)-1 && msg.Role == model.RoleAssistant
		sb.WriteString(m.renderLabel(msg))
		sb.WriteString("\n")
		sb.WriteString(m.renderBody(msg, streaming))
		sb.WriteString("\n")
	}

	if t.conv.Typing() {
		if last, _ := t.conv.Last(); last.Role != model.RoleAssistant {
			sb.WriteString(m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName()))
			sb.WriteString("\n")
		}
		sb.WriteString("  " + m.spinner.View() + m.theme.Muted.Render(" typing"))
		sb.WriteString("\n")
	}
	if t.streamErr != nil {
		sb.WriteString(m.theme.Error.Render("  ! " + t.streamErr.Error()))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderLabel(msg model.Message) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	case model.RoleAssistant:
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	default:
		label = m.theme.SystemLabel.Render(msg.Role.DisplayName())
	}
	if msg.Timestamp.IsZero() {
		return label
	}
	return label + " " + m.theme.Timestamp.Render(humanize.Time(msg.Timestamp))
}

// renderBody renders finished assistant replies as markdown. Text still
// streaming is wrapped plainly so partial markup does not jump around.
func (m Model) renderBody(msg model.Message, streaming bool) string {
	if msg.Role != model.RoleAssistant || streaming || m.renderer == nil {
		return m.theme.MessageBody.Width(max(m.width-2, 10)).Render(msg.Content)
	}
	if out, ok := m.renderCache[msg.Content]; ok {
		return out
	}
	out, err := m.renderer.Render(msg.Content)
	if err != nil {
		return m.theme.MessageBody.Render(msg.Content)
	}
	out = strings.TrimRight(out, "\n")
	m.renderCache[msg.Content] = out
	return out
}

// =============================================================================
// INPUT AND STATUS
// =============================================================================

func (m Model) renderInput() string {
	t := m.activeTab()
	box := m.theme.InputBox
	if t.asker.Busy() {
		box = m.theme.InputBlocked
	}
	return box.Width(max(m.width-2, 10)).Render(t.input.View())
}

func (m Model) renderStatus() string {
	t := m.activeTab()

	modelName := m.theme.Model.Render(t.conv.ModelName())
	if snap := m.app.Directory.Snapshot(); snap.Loaded {
		if _, ok := snap.Choices(); !ok {
			modelName = m.theme.ModelDown.Render(model.UnableToConnect)
		}
	}

	left := modelName + m.theme.Muted.Render(" | "+humanize.Comma(int64(t.conv.Len()))+" messages")
	if m.status == "" {
		return m.theme.StatusBar.Render(left)
	}

	status := m.theme.Notice.Render(m.status)
	if m.statusErr {
		status = m.theme.Error.Render(m.status)
	}
	return m.theme.StatusBar.Render(left + "  " + status)
}
