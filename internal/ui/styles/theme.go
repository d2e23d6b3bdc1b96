// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	Palette Palette

	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Tabs
	Tab        lipgloss.Style
	TabActive  lipgloss.Style
	TabTyping  lipgloss.Style
	TabDivider lipgloss.Style

	// Header and status
	Header    lipgloss.Style
	StatusBar lipgloss.Style
	StatusKey lipgloss.Style
	Model     lipgloss.Style
	ModelDown lipgloss.Style

	// Messages
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	Timestamp      lipgloss.Style
	MessageBody    lipgloss.Style

	// Input
	InputBox     lipgloss.Style
	InputPrompt  lipgloss.Style
	InputBlocked lipgloss.Style

	// Feedback
	Spinner lipgloss.Style
	Error   lipgloss.Style
	Notice  lipgloss.Style
	Muted   lipgloss.Style
}

// NewTheme creates a theme for the named style, detecting the terminal
// background and colour profile.
func NewTheme(style string) *Theme {
	return NewThemeFor(style, termenv.ColorProfile(), termenv.HasDarkBackground())
}

// NewThemeFor creates a theme without probing the terminal.
func NewThemeFor(style string, profile termenv.Profile, isDark bool) *Theme {
	palette, _ := PaletteFor(style)
	t := &Theme{
		Palette:      palette,
		IsDark:       isDark,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// GlamourStyle names the glamour stylesheet matching the theme.
func (t *Theme) GlamourStyle() string {
	switch {
	case t.Palette.Name == "Mono" || t.ColorProfile == termenv.Ascii:
		return "notty"
	case t.IsDark:
		return "dark"
	default:
		return "light"
	}
}

func (t *Theme) initStyles() {
	p := t.Palette

	t.Tab = lipgloss.NewStyle().
		Foreground(TextMuted).
		Padding(0, 1)

	t.TabActive = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextInverse).
		Background(p.Accent).
		Padding(0, 1)

	t.TabTyping = t.Tab.
		Italic(true).
		Foreground(p.Accent)

	t.TabDivider = lipgloss.NewStyle().
		Foreground(Overlay)

	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.Accent).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextMuted).
		Padding(0, 1)

	t.StatusKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.Accent)

	t.Model = lipgloss.NewStyle().
		Foreground(p.Accent)

	t.ModelDown = lipgloss.NewStyle().
		Foreground(Rose).
		Strikethrough(true)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.User)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.Assistant)

	t.SystemLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Amber)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.MessageBody = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.InputBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.Accent).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(p.Accent)

	t.InputBlocked = t.InputBox.
		BorderForeground(Overlay)

	t.Spinner = lipgloss.NewStyle().
		Foreground(p.Accent)

	t.Error = lipgloss.NewStyle().
		Foreground(Rose)

	t.Notice = lipgloss.NewStyle().
		Foreground(Amber)

	t.Muted = lipgloss.NewStyle().
		Foreground(TextMuted)
}
