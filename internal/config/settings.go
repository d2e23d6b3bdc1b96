// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"strings"

	"github.com/nshiell/ollama-chat/internal/ollama"
)

// =============================================================================
// SETTINGS
// =============================================================================

// Field keys, as written in settings.toml and accepted by Store.Update.
const (
	KeyModelName = "model_name"
	KeyURL       = "url"
	KeyStyle     = "style"
	KeyFont      = "font"
	KeyFontSize  = "font_size"
	KeyContext   = "context"
)

// Keys lists every recognized field in display order.
var Keys = []string{KeyModelName, KeyURL, KeyStyle, KeyFont, KeyFontSize, KeyContext}

// Styles are the recognized colour schemes.
var Styles = []string{"Blue", "Green", "Purple", "Mono"}

// Font size bounds accepted by Validate.
const (
	MinFontSize = 6
	MaxFontSize = 72
)

// Settings is the persisted user configuration.
type Settings struct {
	// ModelName is the model new conversations start with
	ModelName string `toml:"model_name"`

	// URL is the Ollama server base URL
	URL string `toml:"url"`

	// Style names the colour scheme (see Styles)
	Style string `toml:"style"`

	// Font and FontSize are kept for compatibility with the desktop
	// client's settings file; the terminal UI ignores them.
	Font     string `toml:"font"`
	FontSize int    `toml:"font_size"`

	// Context is an extra system prompt sent with every request
	Context string `toml:"context"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		ModelName: "mistral-nemo:latest",
		URL:       ollama.DefaultBaseURL,
		Style:     "Blue",
		Font:      "Ubuntu",
		FontSize:  12,
		Context:   "You are being used for the programmer in building the application",
	}
}

// Get returns the value of one field by key.
func (s Settings) Get(key string) (any, bool) {
	switch key {
	case KeyModelName:
		return s.ModelName, true
	case KeyURL:
		return s.URL, true
	case KeyStyle:
		return s.Style, true
	case KeyFont:
		return s.Font, true
	case KeyFontSize:
		return s.FontSize, true
	case KeyContext:
		return s.Context, true
	}
	return nil, false
}

// Map returns every field keyed by its TOML name.
func (s Settings) Map() map[string]any {
	m := make(map[string]any, len(Keys))
	for _, k := range Keys {
		v, _ := s.Get(k)
		m[k] = v
	}
	return m
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a settings validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate reports values that are well-typed but unusable.
func (s Settings) Validate() error {
	var errs ValidateErrors

	if _, err := ollama.ValidateURL(s.URL); err != nil {
		errs = append(errs, ValidationError{Field: KeyURL, Message: err.Error()})
	}
	if strings.TrimSpace(s.ModelName) == "" {
		errs = append(errs, ValidationError{Field: KeyModelName, Message: "must not be empty"})
	}
	if s.FontSize < MinFontSize || s.FontSize > MaxFontSize {
		errs = append(errs, ValidationError{
			Field:   KeyFontSize,
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinFontSize, MaxFontSize, s.FontSize),
		})
	}
	if !knownStyle(s.Style) {
		errs = append(errs, ValidationError{
			Field:   KeyStyle,
			Message: fmt.Sprintf("unknown style %q (want one of %s)", s.Style, strings.Join(Styles, ", ")),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func knownStyle(name string) bool {
	for _, s := range Styles {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
