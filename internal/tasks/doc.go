// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks runs one streamed chat request in the background.
//
// A FetchTask issues a single /api/chat request and reports progress as a
// channel of Events. The goroutine that reads the channel (the UI loop)
// applies them to the conversation, so the conversation is never touched by
// the worker itself.
//
// # Key Types
//
//   - FetchTask: one cancellable streaming request
//   - Event: typing on/off, a token, or a fragment error
//   - Status: Queued, Running, Complete, Failed, Canceled
//   - Streamer: the backend capability a task needs
//
// # Usage
//
//	task := tasks.NewFetchTask(tasks.FromClient(client), conv.ToOllamaMessages(), conv.ModelName(), settings.Context)
//	events, err := task.Start(ctx)
//	if err != nil {
//	    return err
//	}
//	for ev := range events {
//	    switch ev.Kind {
//	    case tasks.EventToken:
//	        conv.AppendToken(ev.Token)
//	    }
//	}
//
// The event sequence is always Typing(true), zero or more Token and
// WordError events, then Typing(false), unless the context passed to Start
// is canceled, which abandons delivery.
package tasks
