// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// SHARED COLORS
// =============================================================================

// Rose - Errors, connection failures
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - Warnings, pending deletion
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextMuted - Hints, timestamps, very subtle text
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// Overlay - Borders, separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// TextInverse - Text on coloured backgrounds
var TextInverse = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}

// =============================================================================
// PALETTES
// =============================================================================

// Palette is the set of accent colours one style name selects.
type Palette struct {
	Name string

	// Accent colours the active tab, the header and the prompt
	Accent lipgloss.AdaptiveColor

	// AccentDeep is the active tab background
	AccentDeep lipgloss.AdaptiveColor

	// User and Assistant colour the role labels
	User      lipgloss.AdaptiveColor
	Assistant lipgloss.AdaptiveColor
}

var palettes = map[string]Palette{
	"blue": {
		Name:       "Blue",
		Accent:     lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#60A5FA"},
		AccentDeep: lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#1E3A8A"},
		User:       lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"},
		Assistant:  lipgloss.AdaptiveColor{Light: "#1E40AF", Dark: "#93C5FD"},
	},
	"green": {
		Name:       "Green",
		Accent:     lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"},
		AccentDeep: lipgloss.AdaptiveColor{Light: "#047857", Dark: "#064E3B"},
		User:       lipgloss.AdaptiveColor{Light: "#65A30D", Dark: "#A3E635"},
		Assistant:  lipgloss.AdaptiveColor{Light: "#065F46", Dark: "#A7F3D0"},
	},
	"purple": {
		Name:       "Purple",
		Accent:     lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"},
		AccentDeep: lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#4C1D95"},
		User:       lipgloss.AdaptiveColor{Light: "#DB2777", Dark: "#F9A8D4"},
		Assistant:  lipgloss.AdaptiveColor{Light: "#5B4B8A", Dark: "#E9E4F5"},
	},
	"mono": {
		Name:       "Mono",
		Accent:     lipgloss.AdaptiveColor{Light: "#111111", Dark: "#EEEEEE"},
		AccentDeep: lipgloss.AdaptiveColor{Light: "#444444", Dark: "#555555"},
		User:       lipgloss.AdaptiveColor{Light: "#111111", Dark: "#EEEEEE"},
		Assistant:  lipgloss.AdaptiveColor{Light: "#444444", Dark: "#BBBBBB"},
	},
}

// PaletteFor returns the palette for a style name, case-insensitively.
// Unknown names get Blue and ok false.
func PaletteFor(name string) (p Palette, ok bool) {
	p, ok = palettes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return palettes["blue"], false
	}
	return p, true
}
