// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package asker turns "the user pressed send" into a streamed reply.
//
// An Asker belongs to one conversation and owns its single task slot. Ask
// validates the input, appends the user message and starts a FetchTask; the
// UI loop then reads Events and hands each one back to Apply, which updates
// the conversation on the UI goroutine. The slot is freed only when the
// task reports that typing stopped.
//
// # Usage
//
//	a := asker.New(conv, backend, store.SystemContext, log.Logger)
//	if err := a.Ask(input); err != nil {
//	    return err
//	}
//	for ev := range a.Events() {
//	    a.Apply(ev)
//	}
package asker
