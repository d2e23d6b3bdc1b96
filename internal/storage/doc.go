// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations between runs.
//
// Two backends implement Store:
//
//   - JSONStore writes one JSON file per conversation (the default)
//   - SQLiteStore keeps every conversation in a single database
//
// # Usage
//
//	paths, _ := config.DefaultPaths()
//	store, err := storage.Open(storage.KindJSON, paths.Conversations)
//	defer store.Close()
//
//	err = store.Save(storage.FromConversation(conv))
//	all, err := store.LoadAll()
//
// Missing conversations report ErrConversationNotFound:
//
//	if errors.Is(err, storage.ErrConversationNotFound) { ... }
package storage
