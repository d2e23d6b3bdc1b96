// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation state machine, its messages and
// the model directory.
//
// # Key Types
//
//   - Conversation: ordered message log with an Idle/Responding state and
//     typed change signals
//   - Message: single message with role and content
//   - Role: message role enumeration (user, assistant, system)
//   - Directory: lazily loaded, cached list of model names with the last
//     load error
//
// # Usage
//
// A conversation is owned by one goroutine (the UI loop). Observers
// subscribe to its signals:
//
//	conv := model.NewConversation("mistral-nemo:latest")
//	conv.OnWord.Subscribe(func(tok string) { fmt.Print(tok) })
//	if err := conv.AddUserMessage("Hello!"); err != nil {
//	    return err // ErrInvalidState while a reply is streaming
//	}
//
// Model names are fetched once and cached until Reload:
//
//	dir := model.NewDirectory(client)
//	names, ok := dir.Choices(ctx)
//	if !ok {
//	    // names == []string{model.UnableToConnect}
//	}
package model
