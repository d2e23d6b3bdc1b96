// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog/log"

	"github.com/nshiell/ollama-chat/internal/app"
	"github.com/nshiell/ollama-chat/internal/config"
	"github.com/nshiell/ollama-chat/internal/ui/styles"
)

const (
	modelLoadTimeout = 10 * time.Second
	statusTimeout    = 4 * time.Second
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	app   *app.App
	theme *styles.Theme
	keys  KeyMap
	help  help.Model

	tabs   []*tab
	active int

	viewport viewport.Model
	spinner  spinner.Model
	spinning bool

	renderer    *glamour.TermRenderer
	renderCache map[string]string

	form     *huh.Form
	formData *settingsForm

	ctx             context.Context
	cancel          context.CancelFunc
	settingsChanges <-chan struct{}

	width, height int
	ready         bool

	status    string
	statusErr bool
	statusSeq int

	saveErr error
}

// New creates the chat model for every open conversation in a. theme may
// be nil, in which case it is built from the settings style.
func New(a *app.App, theme *styles.Theme) Model {
	if theme == nil {
		theme = styles.NewTheme(a.Settings.Get().Style)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		app:         a,
		theme:       theme,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		viewport:    viewport.New(80, 20),
		spinner:     sp,
		renderCache: make(map[string]string),
		ctx:         ctx,
		cancel:      cancel,
	}

	for _, conv := range a.Conversations() {
		m.tabs = append(m.tabs, newTab(conv, a.NewAsker(conv)))
	}
	m.focus(len(m.tabs) - 1)

	changes, err := a.Settings.Watch(ctx, config.DefaultDebounce)
	if err != nil {
		log.Warn().Err(err).Msg("settings file will not be watched")
	}
	m.settingsChanges = changes

	return m
}

// Init starts loading models and watching the settings file.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		loadModels(m.ctx, m.app.Directory, false),
		waitForSettingsFile(m.settingsChanges),
	)
}

// SaveErr returns the error from the save performed on quit.
func (m Model) SaveErr() error {
	return m.saveErr
}

// =============================================================================
// TABS
// =============================================================================

func (m *Model) activeTab() *tab {
	return m.tabs[m.active]
}

func (m *Model) tabFor(convID string) *tab {
	for _, t := range m.tabs {
		if t.conv.ID() == convID {
			return t
		}
	}
	return nil
}

// focus makes tab i active and gives it the keyboard.
func (m *Model) focus(i int) {
	if len(m.tabs) == 0 {
		return
	}
	i = (i%len(m.tabs) + len(m.tabs)) % len(m.tabs)
	for j, t := range m.tabs {
		if j == i {
			t.input.Focus()
		} else {
			t.input.Blur()
		}
	}
	m.active = i
	m.refresh(true)
}

func (m *Model) anyTyping() bool {
	for _, t := range m.tabs {
		if t.conv.Typing() {
			return true
		}
	}
	return false
}

// =============================================================================
// LAYOUT
// =============================================================================

// Rows outside the viewport: tab bar, input box (3), status, help.
const chromeHeight = 1 + 3 + 1 + 1

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.ready = true

	m.viewport.Width = width
	m.viewport.Height = max(height-chromeHeight, 1)
	m.help.Width = width

	for _, t := range m.tabs {
		t.input.Width = max(width-6, 10)
	}
	m.rebuildRenderer()
	m.refresh(false)
}

func (m *Model) rebuildRenderer() {
	wrap := max(m.width-4, 20)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		log.Warn().Err(err).Msg("markdown renderer unavailable")
		r = nil
	}
	m.renderer = r
	m.renderCache = make(map[string]string)
}

// applyStyle rebuilds the theme when the settings style changed.
func (m *Model) applyStyle() {
	style := m.app.Settings.Get().Style
	if p, _ := styles.PaletteFor(style); p.Name == m.theme.Palette.Name {
		return
	}
	m.theme = styles.NewThemeFor(style, m.theme.ColorProfile, m.theme.IsDark)
	m.spinner.Style = m.theme.Spinner
	m.rebuildRenderer()
	m.refresh(false)
}

// refresh redraws the active conversation into the viewport. The view
// follows new output when it was already at the bottom.
func (m *Model) refresh(toBottom bool) {
	if len(m.tabs) == 0 {
		return
	}
	follow := toBottom || m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation(m.activeTab()))
	if follow {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// STATUS LINE
// =============================================================================

func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.statusSeq++
	m.status = text
	m.statusErr = isErr
	return clearStatusAfter(m.statusSeq, statusTimeout)
}
