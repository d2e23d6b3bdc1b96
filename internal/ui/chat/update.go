// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/tasks"
)

// Update handles every message for the chat interface.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		if m.form != nil {
			return m.updateForm(msg)
		}
		return m, nil

	case askerEventMsg:
		return m.handleAskerEvent(msg)

	case modelsLoadedMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Msg("model list unavailable")
			return m, m.setStatus(model.UnableToConnect, true)
		}
		return m, nil

	case settingsFileMsg:
		return m.handleSettingsFile()

	case clipboardMsg:
		if msg.err != nil {
			return m, m.setStatus("Copy failed: "+msg.err.Error(), true)
		}
		return m, m.setStatus("Reply copied to clipboard", false)

	case exportedMsg:
		if msg.err != nil {
			return m, m.setStatus("Export failed: "+msg.err.Error(), true)
		}
		return m, m.setStatus("Exported to "+msg.path, false)

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
			m.statusErr = false
		}
		return m, nil

	case spinner.TickMsg:
		if !m.anyTyping() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh(false)
		return m, cmd

	case settingsSubmittedMsg, settingsCanceledMsg:
		return m.closeSettings(msg)

	case tea.MouseMsg:
		if m.form == nil {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.KeyMsg:
		if m.form != nil {
			return m.updateForm(msg)
		}
		return m.handleKey(msg)
	}

	if m.form != nil {
		return m.updateForm(msg)
	}

	// Cursor blink and other input internals.
	var cmd tea.Cmd
	t := m.activeTab()
	t.input, cmd = t.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	t := m.activeTab()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Send):
		return m.send(t)

	case key.Matches(msg, m.keys.Stop):
		if t.asker.Busy() {
			t.asker.Stop()
			return m, m.setStatus("Stopping...", false)
		}
		return m, nil

	case key.Matches(msg, m.keys.New):
		conv := m.app.NewConversation()
		m.tabs = append(m.tabs, newTab(conv, m.app.NewAsker(conv)))
		m.resizeInputs()
		m.focus(len(m.tabs) - 1)
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		return m.deleteActive()

	case key.Matches(msg, m.keys.NextTab):
		m.focus(m.active + 1)
		return m, nil

	case key.Matches(msg, m.keys.PrevTab):
		m.focus(m.active - 1)
		return m, nil

	case key.Matches(msg, m.keys.NextModel):
		return m.nextModel(t)

	case key.Matches(msg, m.keys.Reload):
		return m, tea.Batch(
			m.setStatus("Reloading models...", false),
			loadModels(m.ctx, m.app.Directory, true),
		)

	case key.Matches(msg, m.keys.Settings):
		return m.openSettings()

	case key.Matches(msg, m.keys.Copy):
		reply, ok := t.conv.LastAssistant()
		if !ok || reply.Content == "" {
			return m, m.setStatus("Nothing to copy yet", true)
		}
		return m, copyToClipboard(reply.Content)

	case key.Matches(msg, m.keys.Save):
		if err := m.app.Save(); err != nil {
			return m, m.setStatus("Save failed: "+err.Error(), true)
		}
		return m, m.setStatus("Saved", false)

	case key.Matches(msg, m.keys.Export):
		if t.conv.Len() == 0 {
			return m, m.setStatus("Nothing to export yet", true)
		}
		return m, exportConversation(t.conv, m.app.Paths.Exports)

	case key.Matches(msg, m.keys.ScrollUp, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	var cmd tea.Cmd
	t.input, cmd = t.input.Update(msg)
	return m, cmd
}

// send asks the active conversation's model. Nothing happens while a reply
// is streaming or when the input is blank.
func (m Model) send(t *tab) (tea.Model, tea.Cmd) {
	if t.asker.Busy() {
		return m, nil
	}
	if err := t.asker.Ask(&t.input); err != nil {
		if errors.Is(err, model.ErrNoClient) {
			return m, m.setStatus("No connection: check the server URL in settings (C-o)", true)
		}
		log.Error().Err(err).Str("conversation", t.conv.ID()).Msg("send failed")
		return m, m.setStatus(err.Error(), true)
	}
	if !t.asker.Busy() {
		return m, nil
	}

	m.refresh(true)
	cmds := []tea.Cmd{waitForEvent(t.conv.ID(), t.asker.Events())}
	if !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleAskerEvent(msg askerEventMsg) (tea.Model, tea.Cmd) {
	t := m.tabFor(msg.convID)
	if t == nil || !msg.ok {
		return m, nil
	}

	t.asker.Apply(msg.event)
	if t == m.activeTab() {
		m.refresh(false)
	}

	var cmd tea.Cmd
	if msg.event.Kind == tasks.EventWordError {
		cmd = m.setStatus("Stream error: "+msg.event.Err.Error(), true)
	}
	if t.asker.Events() == msg.events {
		return m, tea.Batch(cmd, waitForEvent(msg.convID, msg.events))
	}
	return m, cmd
}

func (m Model) deleteActive() (tea.Model, tea.Cmd) {
	t := m.activeTab()
	t.conv.MarkForDeletion()
	t.close()
	m.tabs = slices.Delete(m.tabs, m.active, m.active+1)

	if len(m.tabs) == 0 {
		conv := m.app.NewConversation()
		m.tabs = append(m.tabs, newTab(conv, m.app.NewAsker(conv)))
		m.resizeInputs()
	}
	m.focus(min(m.active, len(m.tabs)-1))
	return m, m.setStatus("Conversation deleted", false)
}

// nextModel moves the active conversation to the next installed model.
func (m Model) nextModel(t *tab) (tea.Model, tea.Cmd) {
	snap := m.app.Directory.Snapshot()
	if !snap.Loaded {
		return m, tea.Batch(
			m.setStatus("Models are still loading", false),
			loadModels(m.ctx, m.app.Directory, false),
		)
	}
	names, ok := snap.Choices()
	if !ok {
		return m, m.setStatus(model.UnableToConnect, true)
	}
	if len(names) == 0 {
		return m, m.setStatus("No models installed", true)
	}

	next := names[0]
	if i := slices.Index(names, t.conv.ModelName()); i >= 0 {
		next = names[(i+1)%len(names)]
	}
	t.conv.SetModelName(next)
	t.input.Placeholder = "Ask " + next + "..."
	return m, m.setStatus("Model: "+next, false)
}

func (m Model) handleSettingsFile() (tea.Model, tea.Cmd) {
	next := waitForSettingsFile(m.settingsChanges)
	changed, err := m.app.Settings.Reload()
	if err != nil {
		log.Warn().Err(err).Msg("settings reload had problems")
	}
	if !changed {
		return m, next
	}
	m.applyStyle()
	return m, tea.Batch(next,
		m.setStatus("Settings reloaded", false),
		loadModels(m.ctx, m.app.Directory, false),
	)
}

// quit aborts running replies, saves everything and exits.
func (m Model) quit() (tea.Model, tea.Cmd) {
	for _, t := range m.tabs {
		t.close()
	}
	m.cancel()
	if err := m.app.Save(); err != nil {
		m.saveErr = fmt.Errorf("failed to save on exit: %w", err)
	}
	return m, tea.Quit
}

func (m *Model) resizeInputs() {
	if !m.ready {
		return
	}
	for _, t := range m.tabs {
		t.input.Width = max(m.width-6, 10)
	}
}
