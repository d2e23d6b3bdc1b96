// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nshiell/ollama-chat/internal/asker"
	"github.com/nshiell/ollama-chat/internal/model"
)

// stopGrace is how long a stopped reply may take to wind down before the
// request is aborted outright.
const stopGrace = 5 * time.Second

// interruptFunc derives a context that a Ctrl+C cancels.
type interruptFunc func(context.Context) (context.Context, context.CancelFunc)

// interruptContext returns a context cancelled by Ctrl+C.
func interruptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

// lineField adapts a plain string to asker.TextField.
type lineField struct {
	value string
}

func (f *lineField) Value() string     { return f.value }
func (f *lineField) SetValue(v string) { f.value = v }

// replyResult describes how one streamed reply ended.
type replyResult struct {
	Text    string
	Stopped bool
	Aborted bool
	Errors  []error
}

// Failed reports a reply that produced nothing but errors.
func (r replyResult) Failed() bool {
	return r.Text == "" && len(r.Errors) > 0
}

// Err returns the last stream error, or nil.
func (r replyResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[len(r.Errors)-1]
}

// streamReply sends text and writes tokens to out as they are applied.
// The first interrupt stops the reply cooperatively; a second one during
// the wind-down aborts it, as does cancelling ctx.
func streamReply(ctx context.Context, interrupts interruptFunc, ask *asker.Asker, text string, out io.Writer) (replyResult, error) {
	conv := ask.Conversation()
	var res replyResult
	endsWithNewline := true

	unsubscribeWord := conv.OnWord.Subscribe(func(token string) {
		if token == "" {
			return
		}
		io.WriteString(out, token)
		endsWithNewline = strings.HasSuffix(token, "\n")
	})
	defer unsubscribeWord()
	unsubscribeErr := conv.OnWordError.Subscribe(func(err error) {
		res.Errors = append(res.Errors, err)
	})
	defer unsubscribeErr()

	if err := ask.Ask(&lineField{value: text}); err != nil {
		if errors.Is(err, model.ErrNoClient) {
			return res, fmt.Errorf("no server connection, check --url or `ollama-chat settings`: %w", err)
		}
		return res, err
	}
	if !ask.Busy() {
		return res, nil
	}

	stopCtx, stopWatch := interrupts(ctx)
	err := ask.Drain(stopCtx)
	stopWatch()
	if err != nil {
		if ctx.Err() != nil {
			ask.Close()
			res.Aborted = true
			return res, ctx.Err()
		}
		res.Stopped = true
		ask.Stop()
		abortCtx, abortWatch := interrupts(ctx)
		defer abortWatch()
		graceCtx, cancel := context.WithTimeout(abortCtx, stopGrace)
		defer cancel()
		if err := ask.Drain(graceCtx); err != nil {
			ask.Close()
			res.Aborted = true
		}
	}

	if !endsWithNewline {
		io.WriteString(out, "\n")
	}
	// Only an assistant message after the question belongs to this reply.
	if msg, ok := conv.Last(); ok && msg.Role == model.RoleAssistant {
		res.Text = msg.Content
	}
	return res, nil
}
