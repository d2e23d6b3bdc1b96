// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"github.com/nshiell/ollama-chat/internal/event"
	"github.com/nshiell/ollama-chat/internal/util"
)

// Environment overrides, applied over the file on Open and Reload. They
// last for the process only: Save writes the file's value for any field
// still holding its override.
const (
	EnvURL   = "OLLAMA_CHAT_URL"
	EnvModel = "OLLAMA_CHAT_MODEL"
)

var errUnknownKey = errors.New("unknown settings key")

// =============================================================================
// STORE
// =============================================================================

// Store is the single mutable Settings instance.
//
// All mutation goes through Update, which fires Changed once per call after
// every field is applied. Listeners should re-derive whatever depends on
// settings rather than look for the field that moved.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings Settings

	// file holds the values as read from disk; env the overrides in force.
	file Settings
	env  map[string]string

	// Changed receives the new settings after each successful Update.
	Changed event.Signal[Settings]
}

// NewStore creates a store holding s that saves to path.
func NewStore(path string, s Settings) *Store {
	return &Store{path: path, settings: s, file: s}
}

// Open loads path into a new store. The store is always usable: a missing
// file gives defaults, a malformed one gives defaults plus a returned error,
// and a malformed field gives its default plus a ValidateErrors entry.
func Open(path string) (*Store, error) {
	file, err := loadFile(path)
	env := envOverrides()
	st := NewStore(path, applyEnvOverrides(file, env))
	st.file = file
	st.env = env
	return st, err
}

// Path returns the file the store saves to.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update merges recognized keys from fields and ignores the rest. A value
// of the wrong type for a recognized key rejects the whole update, leaving
// the settings untouched.
func (s *Store) Update(fields map[string]any) error {
	s.mu.Lock()
	next := s.settings
	var errs ValidateErrors
	for key, value := range fields {
		if err := next.set(key, value); err != nil {
			if errors.Is(err, errUnknownKey) {
				log.Debug().Str("key", key).Msg("ignoring unknown settings key")
				continue
			}
			errs = append(errs, ValidationError{Field: key, Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		s.mu.Unlock()
		return errs
	}
	s.settings = next
	// A field moved away from its override is the user's choice and persists.
	for key, value := range s.env {
		if current, _ := next.Get(key); current != value {
			delete(s.env, key)
		}
	}
	s.mu.Unlock()

	s.Changed.Emit(next)
	return nil
}

// Set parses raw for key and applies it with Update. Used by the command
// line, where every value arrives as text.
func (s *Store) Set(key, raw string) error {
	var value any = raw
	if key == KeyFontSize {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return ValidationError{Field: key, Message: fmt.Sprintf("not an integer: %q", raw)}
		}
		value = n
	} else if _, ok := Default().Get(key); !ok {
		return ValidationError{Field: key, Message: "unknown settings key"}
	}
	return s.Update(map[string]any{key: value})
}

// Reload re-reads the file and applies it through Update when it differs
// from the current settings. It reports whether anything changed.
func (s *Store) Reload() (bool, error) {
	file, loadErr := loadFile(s.path)
	env := envOverrides()
	loaded := applyEnvOverrides(file, env)

	s.mu.Lock()
	s.file = file
	s.env = env
	unchanged := loaded == s.settings
	s.mu.Unlock()
	if unchanged {
		return false, loadErr
	}
	if err := s.Update(loaded.Map()); err != nil {
		return false, err
	}
	return true, loadErr
}

// Save writes the settings atomically with 0600 permissions. Fields still
// carrying an environment override keep the value the file had.
func (s *Store) Save() error {
	s.mu.RLock()
	current := s.settings
	for key := range s.env {
		if v, ok := s.file.Get(key); ok {
			_ = current.set(key, v)
		}
	}
	s.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteString("# ollama-chat settings\n")
	buf.WriteString("# Unknown keys are ignored; malformed values fall back to defaults.\n\n")
	if err := toml.NewEncoder(&buf).Encode(current); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := util.AtomicWriteFile(s.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	s.mu.Lock()
	s.file = current
	s.mu.Unlock()
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// loadFile reads settings from path, defaulting anything absent or bad.
func loadFile(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings: %w", err)
	}

	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Default(), fmt.Errorf("failed to decode settings %s: %w", path, err)
	}

	var errs ValidateErrors
	for _, key := range Keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		if err := s.set(key, value); err != nil {
			errs = append(errs, ValidationError{Field: key, Message: err.Error() + " (using default)"})
		}
	}

	// Well-typed but unusable values also fall back.
	var verrs ValidateErrors
	if errors.As(s.Validate(), &verrs) {
		for _, ve := range verrs {
			s.reset(ve.Field)
			ve.Message += " (using default)"
			errs = append(errs, ve)
		}
	}

	if len(errs) > 0 {
		return s, errs
	}
	return s, nil
}

// envOverrides returns the settings keys set from the environment.
func envOverrides() map[string]string {
	env := make(map[string]string)
	// OLLAMA_CHAT_URL
	if url := os.Getenv(EnvURL); url != "" {
		env[KeyURL] = url
	}
	// OLLAMA_CHAT_MODEL
	if model := os.Getenv(EnvModel); model != "" {
		env[KeyModelName] = model
	}
	return env
}

func applyEnvOverrides(s Settings, env map[string]string) Settings {
	for key, value := range env {
		_ = s.set(key, value)
	}
	return s
}

// =============================================================================
// FIELD ACCESS
// =============================================================================

// set assigns one field, checking the value's type.
func (s *Settings) set(key string, value any) error {
	switch key {
	case KeyModelName:
		return setString(&s.ModelName, value)
	case KeyURL:
		return setString(&s.URL, value)
	case KeyStyle:
		return setString(&s.Style, value)
	case KeyFont:
		return setString(&s.Font, value)
	case KeyContext:
		return setString(&s.Context, value)
	case KeyFontSize:
		n, err := toInt(value)
		if err != nil {
			return err
		}
		s.FontSize = n
		return nil
	}
	return errUnknownKey
}

// reset restores one field to its default.
func (s *Settings) reset(key string) {
	d := Default()
	v, ok := d.Get(key)
	if !ok {
		return
	}
	_ = s.set(key, v)
}

func setString(dst *string, value any) error {
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("want text, got %T", value)
	}
	*dst = str
	return nil
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("integer %d out of range", v)
		}
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("want integer, got %v", v)
		}
		return int(v), nil
	}
	return 0, fmt.Errorf("want integer, got %T", value)
}
