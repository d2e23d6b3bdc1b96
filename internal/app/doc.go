// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires settings, storage, the backend connection and the model
// directory into one object shared by the terminal UI and the line-oriented
// commands.
//
// # Lifecycle
//
//	a, err := app.Open(app.Options{Paths: paths})
//	defer a.Close()
//
//	conv := a.Conversations()[0]
//	asker := a.NewAsker(conv)
//	...
//	err = a.Save()
package app
