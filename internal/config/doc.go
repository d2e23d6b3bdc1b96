// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config holds the process-wide Settings store for ollama-chat.
//
// Settings are persisted as TOML with sensible defaults, environment
// variable overrides and per-field validation. A field that is missing or
// has the wrong type falls back to its default instead of failing the load.
//
// # Key Types
//
//   - Settings: model_name, url, style, font, font_size, context
//   - Store: the single mutable instance; Update merges fields and fires
//     one Changed notification
//   - ValidationError, ValidateErrors: field-level problems
//
// # Configuration Precedence
//
// Settings are loaded from (in order of precedence):
//   - Environment variables (OLLAMA_CHAT_URL, OLLAMA_CHAT_MODEL)
//   - $OLLAMA_CHAT_HOME/settings.toml (default ~/.ollama-chat/settings.toml)
//   - Built-in defaults
//
// # Usage
//
//	store, err := config.Open(path)
//	if err != nil {
//	    log.Warn().Err(err).Msg("settings partly defaulted")
//	}
//	store.Changed.Subscribe(func(s config.Settings) { rebuildClient(s.URL) })
//	_ = store.Update(map[string]any{"model_name": "llama3:8b"})
package config
