// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the tabbed chat interface.
//
// Each open conversation is a tab with its own input line and Asker. Only
// the active tab is drawn. Streaming replies reach the Bubble Tea loop as
// messages: a command blocks on the Asker's event channel, Update applies
// the event to the conversation and re-arms the wait until the reply ends.
//
// # Keys
//
//	enter       send
//	esc         stop the reply
//	ctrl+n      new conversation
//	ctrl+w      delete conversation
//	tab         next conversation
//	ctrl+p      next model
//	ctrl+r      reload models
//	ctrl+o      settings
//	ctrl+y      copy last reply
//	ctrl+s      save
//	ctrl+c      save and quit
package chat
