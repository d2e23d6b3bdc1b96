// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nshiell/ollama-chat/internal/app"
)

// Run shows the chat interface until the user quits. It returns the
// error from the final save, if any.
func Run(a *app.App) error {
	p := tea.NewProgram(
		New(a, nil),
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse wheel scrolling
	)

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.SaveErr()
	}
	return nil
}
