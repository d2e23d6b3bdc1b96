// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the configuration directory.
const HomeEnv = "OLLAMA_CHAT_HOME"

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the ollama-chat configuration directory path.
func Dir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ollama-chat"), nil
}

// Paths locates every file the application keeps under one directory.
type Paths struct {
	Dir           string
	Settings      string // settings.toml
	Conversations string // one JSON file per conversation
	Database      string // SQLite history
	History       string // REPL line history
	Exports       string
	Log           string
}

// PathsIn returns the layout rooted at dir.
func PathsIn(dir string) Paths {
	return Paths{
		Dir:           dir,
		Settings:      filepath.Join(dir, "settings.toml"),
		Conversations: filepath.Join(dir, "conversations"),
		Database:      filepath.Join(dir, "history.db"),
		History:       filepath.Join(dir, "repl_history"),
		Exports:       filepath.Join(dir, "exports"),
		Log:           filepath.Join(dir, "ollama-chat.log"),
	}
}

// DefaultPaths returns the layout rooted at Dir().
func DefaultPaths() (Paths, error) {
	dir, err := Dir()
	if err != nil {
		return Paths{}, err
	}
	return PathsIn(dir), nil
}
