// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package asker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nshiell/ollama-chat/internal/model"
	"github.com/nshiell/ollama-chat/internal/tasks"
)

// ErrClosed is returned by Ask after Close.
var ErrClosed = errors.New("asker closed")

// TextField is the input the user types into.
type TextField interface {
	Value() string
	SetValue(string)
}

// Backend supplies the current chat backend. ok is false when no client is
// configured.
type Backend interface {
	Streamer() (s tasks.Streamer, ok bool)
}

// Asker orchestrates sending for one conversation. Its methods must be
// called from the goroutine that owns the conversation.
type Asker struct {
	conv          *model.Conversation
	backend       Backend
	systemContext func() string
	logger        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	task   *tasks.FetchTask
	events <-chan tasks.Event
}

// New creates an Asker for conv. systemContext is read at each send and may
// be nil.
func New(conv *model.Conversation, backend Backend, systemContext func() string, logger zerolog.Logger) *Asker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Asker{
		conv:          conv,
		backend:       backend,
		systemContext: systemContext,
		logger:        logger.With().Str("conversation", conv.ID()).Logger(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Conversation returns the conversation this Asker sends for.
func (a *Asker) Conversation() *model.Conversation {
	return a.conv
}

// Ask sends the field's text. It does nothing while a reply is streaming or
// when the text is blank. Without a backend it returns model.ErrNoClient and
// leaves the field as typed. On success the field is cleared.
func (a *Asker) Ask(field TextField) error {
	if a.task != nil {
		return nil
	}
	if a.ctx.Err() != nil {
		return ErrClosed
	}

	text := strings.TrimSpace(field.Value())
	if text == "" {
		return nil
	}

	streamer, ok := a.backend.Streamer()
	if !ok {
		return model.ErrNoClient
	}

	if err := a.conv.AddUserMessage(text); err != nil {
		// The empty task slot means the conversation should be idle.
		a.logger.Error().Err(err).Msg("conversation refused a user message with no task running")
		return fmt.Errorf("conversation state out of sync with asker: %w", err)
	}
	field.SetValue("")

	var sysContext string
	if a.systemContext != nil {
		sysContext = a.systemContext()
	}

	task := tasks.NewFetchTask(streamer, a.conv.ToOllamaMessages(), a.conv.ModelName(), sysContext)
	events, err := task.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("failed to start request: %w", err)
	}

	a.task = task
	a.events = events
	a.logger.Debug().Str("task", task.ID).Str("model", task.Model).Int("messages", a.conv.Len()).Msg("request started")
	return nil
}

// Events returns the running task's event channel, or nil when idle.
func (a *Asker) Events() <-chan tasks.Event {
	return a.events
}

// Apply performs one task event on the conversation. Events from a task
// other than the current one are ignored, as are tokens after Stop.
func (a *Asker) Apply(ev tasks.Event) {
	if a.task == nil || ev.TaskID != a.task.ID {
		return
	}

	switch ev.Kind {
	case tasks.EventTyping:
		a.conv.SetTyping(ev.Typing)
		if !ev.Typing {
			a.logger.Debug().
				Str("task", a.task.ID).
				Str("status", a.task.Status().String()).
				Int("tokens", a.task.Tokens()).
				Dur("elapsed", a.task.Duration()).
				Msg("request finished")
			a.release()
		}
	case tasks.EventToken:
		if a.task.Stopped() {
			return
		}
		a.conv.AppendToken(ev.Token)
	case tasks.EventWordError:
		a.logger.Warn().Err(ev.Err).Str("task", a.task.ID).Msg("stream error")
		a.conv.WordError(ev.Err)
	}
}

func (a *Asker) release() {
	a.task = nil
	a.events = nil
}

// Stop asks the running task to finish. The slot stays taken until its
// Typing(false) event is applied.
func (a *Asker) Stop() {
	if a.task != nil {
		a.task.Stop()
	}
}

// Busy reports whether a task occupies the slot.
func (a *Asker) Busy() bool {
	return a.task != nil
}

// Task returns the running task, or nil.
func (a *Asker) Task() *tasks.FetchTask {
	return a.task
}

// Drain applies events on the calling goroutine until the running task
// finishes. Used by line-oriented front ends that have no event loop.
func (a *Asker) Drain(ctx context.Context) error {
	for a.events != nil {
		select {
		case ev, ok := <-a.events:
			if !ok {
				// Closed without Typing(false): the task was abandoned.
				a.conv.SetTyping(false)
				a.release()
				return a.ctx.Err()
			}
			a.Apply(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close aborts any running request and frees the slot. The Asker cannot
// send again afterwards.
func (a *Asker) Close() {
	a.cancel()
	if a.task != nil {
		a.conv.SetTyping(false)
		a.release()
	}
}
