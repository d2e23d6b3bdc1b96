// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"os"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nshiell/ollama-chat/internal/export"
	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/storage"
	"github.com/nshiell/ollama-chat/internal/tasks"
	"github.com/nshiell/ollama-chat/internal/util"
)

// =============================================================================
// MESSAGES
// =============================================================================

// askerEventMsg carries one fetch event for the conversation convID.
// ok is false once the channel closed.
type askerEventMsg struct {
	convID string
	events <-chan tasks.Event
	event  tasks.Event
	ok     bool
}

// modelsLoadedMsg reports that a directory load finished.
type modelsLoadedMsg struct {
	err error
}

// settingsFileMsg reports that settings.toml changed on disk.
type settingsFileMsg struct{}

// clipboardMsg reports the result of a copy.
type clipboardMsg struct {
	err error
}

// exportedMsg reports where an export was written.
type exportedMsg struct {
	path string
	err  error
}

// clearStatusMsg clears the status line if it still shows the message
// with the given sequence number.
type clearStatusMsg struct {
	seq int
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForEvent blocks on one conversation's events.
func waitForEvent(convID string, events <-chan tasks.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		return askerEventMsg{convID: convID, events: events, event: ev, ok: ok}
	}
}

// loadModels fills the directory off the event loop.
func loadModels(ctx context.Context, dir *model.Directory, reload bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, modelLoadTimeout)
		defer cancel()
		if reload {
			return modelsLoadedMsg{err: dir.Reload(ctx)}
		}
		return modelsLoadedMsg{err: dir.Load(ctx)}
	}
}

// waitForSettingsFile blocks until the settings watcher fires.
func waitForSettingsFile(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return settingsFileMsg{}
	}
}

func copyToClipboard(text string) tea.Cmd {
	return func() tea.Msg {
		return clipboardMsg{err: clipboard.WriteAll(text)}
	}
}

// exportConversation writes conv as Markdown into dir.
func exportConversation(conv *model.Conversation, dir string) tea.Cmd {
	stored := storage.FromConversation(conv)
	return func() tea.Msg {
		if err := os.MkdirAll(dir, util.DefaultDirPerm); err != nil {
			return exportedMsg{err: err}
		}
		path, err := export.ToFile(stored, dir, export.FormatMarkdown, export.DefaultOptions())
		return exportedMsg{path: path, err: err}
	}
}

func clearStatusAfter(seq int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}
