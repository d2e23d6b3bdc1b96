// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/nshiell/ollama-chat/internal/config"
	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/ollama"
)

type settingsSubmittedMsg struct{}

type settingsCanceledMsg struct{}

// settingsForm holds the values the dialog edits.
type settingsForm struct {
	url       string
	modelName string
	context   string
	style     string
	font      string
	fontSize  string
}

func newSettingsForm(s config.Settings) *settingsForm {
	return &settingsForm{
		url:       s.URL,
		modelName: s.ModelName,
		context:   s.Context,
		style:     s.Style,
		font:      s.Font,
		fontSize:  strconv.Itoa(s.FontSize),
	}
}

// fields returns the edited values for Settings.Update. The unavailable
// sentinel is never stored as a model name.
func (f *settingsForm) fields(current config.Settings) (map[string]any, error) {
	size, err := strconv.Atoi(strings.TrimSpace(f.fontSize))
	if err != nil {
		return nil, fmt.Errorf("font size must be a whole number")
	}
	modelName := f.modelName
	if modelName == "" || modelName == model.UnableToConnect {
		modelName = current.ModelName
	}
	return map[string]any{
		config.KeyModelName: modelName,
		config.KeyContext:   f.context,
		config.KeyURL:       strings.TrimSpace(f.url),
		config.KeyStyle:     f.style,
		config.KeyFont:      f.font,
		config.KeyFontSize:  size,
	}, nil
}

// =============================================================================
// DIALOG
// =============================================================================

func (m Model) openSettings() (tea.Model, tea.Cmd) {
	data := newSettingsForm(m.app.Settings.Get())

	styleOptions := make([]huh.Option[string], 0, len(config.Styles))
	for _, s := range config.Styles {
		styleOptions = append(styleOptions, huh.NewOption(s, s))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server URL").
				Description("Connecting loads the model list from this server").
				Value(&data.url).
				Validate(func(s string) error {
					_, err := ollama.ValidateURL(s)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model").
				OptionsFunc(func() []huh.Option[string] {
					return huh.NewOptions(m.connect(data.url)...)
				}, &data.url).
				Height(8).
				Value(&data.modelName),
			huh.NewText().
				Title("Context").
				Description("Extra system prompt sent with every request").
				Lines(3).
				Value(&data.context),
			huh.NewSelect[string]().
				Title("Style").
				Options(styleOptions...).
				Value(&data.style),
			huh.NewInput().
				Title("Font").
				Value(&data.font),
			huh.NewInput().
				Title("Font size").
				Value(&data.fontSize).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil {
						return fmt.Errorf("whole number required")
					}
					if n < config.MinFontSize || n > config.MaxFontSize {
						return fmt.Errorf("between %d and %d", config.MinFontSize, config.MaxFontSize)
					}
					return nil
				}),
		),
	).
		WithShowHelp(true).
		WithWidth(max(m.width-4, 40))

	form.SubmitCmd = func() tea.Msg { return settingsSubmittedMsg{} }
	form.CancelCmd = func() tea.Msg { return settingsCanceledMsg{} }

	m.form = form
	m.formData = data
	return m, form.Init()
}

// connect rebuilds the backend for url and returns what the model list
// should offer. It runs before the dialog is confirmed so the list matches
// the server being configured.
func (m Model) connect(url string) []string {
	if err := m.app.Backend.Connect(strings.TrimSpace(url)); err != nil {
		return []string{model.UnableToConnect}
	}
	ctx, cancel := context.WithTimeout(m.ctx, modelLoadTimeout)
	defer cancel()
	names, ok := m.app.Directory.Choices(ctx)
	if !ok || len(names) == 0 {
		return []string{model.UnableToConnect}
	}
	return names
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
		return m.closeSettings(settingsCanceledMsg{})
	}

	updated, cmd := m.form.Update(msg)
	if f, ok := updated.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.closeSettings(settingsSubmittedMsg{})
	case huh.StateAborted:
		return m.closeSettings(settingsCanceledMsg{})
	}
	return m, cmd
}

// closeSettings applies or discards the dialog. Canceling reconnects to the
// saved URL in case the dialog connected elsewhere.
func (m Model) closeSettings(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}
	data := m.formData
	m.form = nil
	m.formData = nil
	current := m.app.Settings.Get()

	if _, ok := msg.(settingsCanceledMsg); ok {
		if m.app.Backend.URL() != current.URL {
			m.app.Backend.Connect(current.URL)
			return m, loadModels(m.ctx, m.app.Directory, false)
		}
		return m, nil
	}

	fields, err := data.fields(current)
	if err == nil {
		err = m.app.Settings.Update(fields)
	}
	if err != nil {
		return m, m.setStatus("Settings not applied: "+err.Error(), true)
	}
	if err := m.app.Settings.Save(); err != nil {
		return m, m.setStatus("Settings applied but not saved: "+err.Error(), true)
	}

	m.applyStyle()
	return m, tea.Batch(
		m.setStatus("Settings saved", false),
		loadModels(m.ctx, m.app.Directory, false),
	)
}
