// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the colour schemes and lip gloss styles for the
// terminal UI.
//
// Each settings style name (Blue, Green, Purple, Mono) selects a Palette.
// NewTheme builds every style from one palette and the detected terminal
// background:
//
//	theme := styles.NewTheme(settings.Style)
//	header := theme.Header.Render("ollama-chat")
//
// All colours are lipgloss.AdaptiveColor so light and dark terminals both
// read well. Mono uses no hues at all, which suits terminals with limited
// colour support.
package styles
